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
	"fmt"
	"io"

	"runabout/pkg/config"
	"runabout/pkg/ingest"
	"runabout/pkg/log"
	"runabout/pkg/utils"
)

// App 发件箱转发进程：ingest.type=postgres 的宿主写入 scenario_outbox，本进程转发到 relay.target
type App struct {
	config *config.Config
	logger *log.Logger
	outbox *ingest.PostgresSink
	target ingest.Sink
	relay  *Relay
	cancel context.CancelFunc
}

// NewApp 连接发件箱与下游
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Ingest.Type != "postgres" || cfg.Ingest.DSN == "" {
		return nil, fmt.Errorf("relay 需要 ingest.type=postgres 与 ingest.dsn")
	}
	switch cfg.Relay.Target.Type {
	case "postgres", "memory", "none":
		return nil, fmt.Errorf("unsupported relay target: %s", cfg.Relay.Target.Type)
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	outbox, err := ingest.NewPostgresSink(ctx, cfg.Ingest.DSN, utils.ParseDuration(cfg.Relay.ClaimLease, 0))
	if err != nil {
		return nil, fmt.Errorf("连接发件箱失败: %w", err)
	}
	if err := outbox.EnsureSchema(ctx); err != nil {
		_ = outbox.Close()
		return nil, fmt.Errorf("初始化 scenario_outbox 失败: %w", err)
	}
	target, err := ingest.NewSink(ctx, cfg.Relay.Target, cfg.APIToken)
	if err != nil {
		_ = outbox.Close()
		return nil, fmt.Errorf("初始化转发目标失败: %w", err)
	}

	relay := NewRelay(
		utils.CoalesceString(cfg.Relay.ID, DefaultRelayID()),
		outbox,
		target,
		utils.ParseDuration(cfg.Relay.PollInterval, 0),
		cfg.Relay.Concurrency,
		logger,
	)
	return &App{config: cfg, logger: logger, outbox: outbox, target: target, relay: relay}, nil
}

// Start 启动转发循环
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.relay.Start(ctx)
	a.logger.Info("relay 已启动", "relay_id", a.relay.ID(), "target", a.target.Name())
	return nil
}

// Shutdown 等待进行中的转发结束后关闭连接
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 relay")
	done := make(chan struct{})
	go func() {
		a.relay.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if a.cancel != nil {
			a.cancel()
		}
		<-done
	}
	if a.cancel != nil {
		a.cancel()
	}
	if closer, ok := a.target.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Error("关闭转发目标失败", "error", err)
		}
	}
	return a.outbox.Close()
}
