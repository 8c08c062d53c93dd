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
	"fmt"

	"github.com/redis/go-redis/v9"

	"runabout/pkg/config"
	"runabout/pkg/log"
	"runabout/pkg/utils"
)

// NewSink 按配置创建投递目标；type 为 none 时返回 nil, nil
func NewSink(ctx context.Context, cfg config.IngestConfig, apiToken string) (Sink, error) {
	timeout := utils.ParseDuration(cfg.Timeout, DefaultTimeout)
	switch cfg.Type {
	case "", "http":
		return NewHTTPSink(utils.CoalesceString(cfg.URL, config.DefaultIngestURL), apiToken, timeout), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("连接 redis 失败: %w", err)
		}
		return NewRedisSink(client, cfg.Subject, 0), nil
	case "postgres":
		sink, err := NewPostgresSink(ctx, cfg.DSN, 0)
		if err != nil {
			return nil, fmt.Errorf("连接 postgres 失败: %w", err)
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			_ = sink.Close()
			return nil, fmt.Errorf("初始化 scenario_outbox 失败: %w", err)
		}
		return sink, nil
	case "nats":
		sink, err := DialNATS(cfg.URL, cfg.Subject)
		if err != nil {
			return nil, fmt.Errorf("连接 nats 失败: %w", err)
		}
		return sink, nil
	case "memory":
		return NewMemorySink(), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported ingest type: %s", cfg.Type)
}

// NewClient 按配置创建异步投递客户端；type 为 none 时返回 Discard
func NewClient(ctx context.Context, cfg config.IngestConfig, project, apiToken string, logger *log.Logger) (Client, error) {
	sink, err := NewSink(ctx, cfg, apiToken)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return Discard, nil
	}
	retryMax := cfg.RetryMax
	if retryMax < 0 {
		retryMax = DefaultRetryMax
	}
	return NewAsyncClient(project, sink, AsyncOptions{
		QueueSize: utils.DefaultInt(cfg.QueueSize, DefaultQueueSize),
		Workers:   utils.DefaultInt(cfg.Workers, DefaultWorkers),
		RetryMax:  retryMax,
		Backoff:   utils.ParseDuration(cfg.Backoff, DefaultBackoff),
		Timeout:   utils.ParseDuration(cfg.Timeout, DefaultTimeout),
		Logger:    logger,
	}), nil
}
