// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"runabout/pkg/ingest"
	"runabout/pkg/log"
	"runabout/pkg/metrics"
	"runabout/pkg/scenario"
)

// Outbox 发件箱；ingest.PostgresSink 实现了它
type Outbox interface {
	Claim(ctx context.Context, relayID string) (*ingest.OutboxEntry, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string, requeue bool) error
}

var _ Outbox = (*ingest.PostgresSink)(nil)

// errMalformed 载荷无法解码，放回队列也不会成功
var errMalformed = errors.New("malformed scenario payload")

// Relay 从发件箱认领场景并转发到下游 sink；先占并发槽位再 Claim，转发后释放槽位
type Relay struct {
	relayID      string
	outbox       Outbox
	target       ingest.Sink
	pollInterval time.Duration
	timeout      time.Duration
	limiter      chan struct{}
	logger       *log.Logger
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewRelay maxConcurrency <=0 时默认 2；pollInterval <=0 时默认 2s
func NewRelay(relayID string, outbox Outbox, target ingest.Sink, pollInterval time.Duration, maxConcurrency int, logger *log.Logger) *Relay {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{
		relayID:      relayID,
		outbox:       outbox,
		target:       target,
		pollInterval: pollInterval,
		timeout:      ingest.DefaultTimeout,
		limiter:      make(chan struct{}, maxConcurrency),
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// ID relay 标识，写入 scenario_outbox.relay_id
func (r *Relay) ID() string { return r.relayID }

// Start 启动 Claim 循环
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case r.limiter <- struct{}{}:
				entry, err := r.outbox.Claim(ctx, r.relayID)
				if err != nil || entry == nil {
					<-r.limiter
					if err != nil && ctx.Err() == nil {
						r.logger.Error("Claim failed", "relay_id", r.relayID, "error", err)
					}
					if !r.sleep(ctx) {
						return
					}
					continue
				}
				r.wg.Add(1)
				go func(e *ingest.OutboxEntry) {
					defer r.wg.Done()
					defer func() { <-r.limiter }()
					r.forward(ctx, e)
				}(entry)
			}
		}
	}()
}

func (r *Relay) sleep(ctx context.Context) bool {
	select {
	case <-r.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(r.pollInterval):
		return true
	}
}

// Stop 停止 Claim 循环并等待进行中的转发结束；可重复调用
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// forward 转发一条；载荷损坏的标记 failed，下游失败的放回 pending
func (r *Relay) forward(ctx context.Context, e *ingest.OutboxEntry) {
	metrics.RelayBusy.WithLabelValues(r.relayID).Inc()
	defer metrics.RelayBusy.WithLabelValues(r.relayID).Dec()

	err := r.deliver(ctx, e)
	// 状态回写不随 ctx 取消而丢失
	bg, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	switch {
	case err == nil:
		metrics.RelayTotal.WithLabelValues("delivered").Inc()
		if err := r.outbox.MarkDelivered(bg, e.ID); err != nil {
			r.logger.Error("MarkDelivered failed", "id", e.ID, "error", err)
		}
	case errors.Is(err, errMalformed):
		metrics.RelayTotal.WithLabelValues("failed").Inc()
		r.logger.Warn("丢弃无法解码的场景", "id", e.ID, "project", e.Project, "error", err)
		if err := r.outbox.MarkFailed(bg, e.ID, err.Error(), false); err != nil {
			r.logger.Error("MarkFailed failed", "id", e.ID, "error", err)
		}
	default:
		metrics.RelayTotal.WithLabelValues("requeued").Inc()
		r.logger.Info("转发失败，放回队列", "id", e.ID, "sink", r.target.Name(), "error", err)
		if err := r.outbox.MarkFailed(bg, e.ID, err.Error(), true); err != nil {
			r.logger.Error("MarkFailed failed", "id", e.ID, "error", err)
		}
		// 下游不可用时占住槽位一个轮询周期，避免立即重新认领同一条
		r.sleep(ctx)
	}
}

func (r *Relay) deliver(ctx context.Context, e *ingest.OutboxEntry) error {
	if _, err := scenario.ParseEnvelope(e.Payload); err != nil {
		return errors.Join(errMalformed, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.target.Deliver(ctx, ingest.Delivery{ID: e.ID, Project: e.Project, Payload: e.Payload})
}

// DefaultRelayID 返回默认 relay 标识（env 或 hostname）
func DefaultRelayID() string {
	if id := os.Getenv("RELAY_ID"); id != "" {
		return id
	}
	host, _ := os.Hostname()
	if host != "" {
		return host
	}
	return "relay-unknown"
}
