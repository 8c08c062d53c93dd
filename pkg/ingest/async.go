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

package ingest

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"runabout/pkg/log"
	"runabout/pkg/metrics"
	"runabout/pkg/scenario"
	"runabout/pkg/tracing"
)

// 队列默认参数
const (
	DefaultQueueSize = 1024
	DefaultWorkers   = 2
	DefaultRetryMax  = 2
	DefaultBackoff   = 500 * time.Millisecond
)

// AsyncOptions AsyncClient 参数；除 RetryMax 外零值使用默认
type AsyncOptions struct {
	QueueSize int
	Workers   int
	RetryMax  int // 首次之外的重试次数；<0 使用默认
	Backoff   time.Duration
	Timeout   time.Duration
	Logger    *log.Logger
}

func (o AsyncOptions) withDefaults() AsyncOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.RetryMax < 0 {
		o.RetryMax = DefaultRetryMax
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// AsyncClient 有界队列 + 固定数量的投递 goroutine。
// 队列满或已关闭时 Send 直接丢弃，采集方永远不会被投递阻塞。
type AsyncClient struct {
	project string
	sink    Sink
	opts    AsyncOptions
	queue   chan Delivery
	// 所有 worker 共享的重试节流，避免下游故障时重试风暴
	retry *rate.Limiter

	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	stopCtx  context.Context
	stopFunc context.CancelFunc
}

// NewAsyncClient 创建并启动投递 goroutine
func NewAsyncClient(project string, sink Sink, opts AsyncOptions) *AsyncClient {
	opts = opts.withDefaults()
	c := &AsyncClient{
		project: project,
		sink:    sink,
		opts:    opts,
		queue:   make(chan Delivery, opts.QueueSize),
		retry:   rate.NewLimiter(rate.Every(opts.Backoff), opts.Workers),
	}
	c.stopCtx, c.stopFunc = context.WithCancel(context.Background())
	for i := 0; i < opts.Workers; i++ {
		c.wg.Add(1)
		go c.run()
	}
	return c
}

// Sink 返回投递目标
func (c *AsyncClient) Sink() Sink { return c.sink }

// Send 实现 Client
func (c *AsyncClient) Send(s *scenario.Scenario) {
	if s == nil {
		return
	}
	d, err := NewDelivery(c.project, s)
	if err != nil {
		metrics.IngestDroppedTotal.WithLabelValues("encode").Inc()
		c.opts.Logger.Warn("scenario encode failed, dropped", "error", err)
		return
	}
	c.Enqueue(d)
}

// Enqueue 投递已编码的载荷；返回是否入队
func (c *AsyncClient) Enqueue(d Delivery) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.IngestDroppedTotal.WithLabelValues("closed").Inc()
		return false
	}
	select {
	case c.queue <- d:
		metrics.IngestQueueDepth.Set(float64(len(c.queue)))
		return true
	default:
		metrics.IngestDroppedTotal.WithLabelValues("full").Inc()
		c.opts.Logger.Warn("ingest queue full, scenario dropped", "project", c.project, "delivery_id", d.ID)
		return false
	}
}

// Close 停止接收新场景并等待队列排空；ctx 到期时放弃剩余重试
func (c *AsyncClient) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		c.stopFunc()
		<-done
		err = ctx.Err()
	}
	c.stopFunc()
	if closer, ok := c.sink.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (c *AsyncClient) run() {
	defer c.wg.Done()
	for d := range c.queue {
		metrics.IngestQueueDepth.Set(float64(len(c.queue)))
		c.deliver(d)
	}
}

func (c *AsyncClient) deliver(d Delivery) {
	var err error
	for attempt := 0; attempt <= c.opts.RetryMax; attempt++ {
		if attempt > 0 {
			if !c.wait(time.Duration(attempt) * c.opts.Backoff) {
				break
			}
		}
		err = c.attempt(d)
		if err == nil {
			metrics.IngestTotal.WithLabelValues(c.sink.Name(), "delivered").Inc()
			return
		}
		c.opts.Logger.Debug("delivery attempt failed", "sink", c.sink.Name(), "delivery_id", d.ID, "attempt", attempt+1, "error", err)
	}
	metrics.IngestTotal.WithLabelValues(c.sink.Name(), "failed").Inc()
	c.opts.Logger.Warn("scenario delivery failed", "sink", c.sink.Name(), "delivery_id", d.ID, "error", err)
}

func (c *AsyncClient) attempt(d Delivery) error {
	ctx, cancel := context.WithTimeout(c.stopCtx, c.opts.Timeout)
	defer cancel()
	ctx, span := tracing.StartDeliverySpan(ctx, c.sink.Name(), d.ID)
	err := c.sink.Deliver(ctx, d)
	tracing.EndSpan(span, err)
	return err
}

// wait 退避后再经共享节流；Close 超时则放弃
func (c *AsyncClient) wait(backoff time.Duration) bool {
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.stopCtx.Done():
		return false
	}
	return c.retry.Wait(c.stopCtx) == nil
}
