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

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"runabout/pkg/agent"
	"runabout/pkg/callsite"
	"runabout/pkg/config"
	"runabout/pkg/controlplane"
	"runabout/pkg/encoder"
	"runabout/pkg/ingest"
	"runabout/pkg/intercept"
	"runabout/pkg/log"
	"runabout/pkg/runabout"
	"runabout/pkg/tracing"
	"runabout/pkg/utils"
)

// Bootstrap 按配置装配的运行时：投递、控制面、Service 与 Agent
type Bootstrap struct {
	Config       *config.Config
	Logger       *log.Logger
	Ingest       ingest.Client
	ControlPlane controlplane.Client
	Service      *runabout.Service
	Agent        *agent.Agent

	tracer *sdktrace.TracerProvider
}

// NewBootstrap 装配运行时；table 为宿主声明拦截点的表，可为 nil。
// 只装配不启动，Start 负责 Install 与轮询。
func NewBootstrap(ctx context.Context, cfg *config.Config, table *intercept.Table) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	client, err := ingest.NewClient(ctx, cfg.Ingest, cfg.Project, cfg.APIToken, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化场景投递失败: %w", err)
	}
	cp, err := controlplane.NewClient(ctx, cfg.ControlPlane, cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("初始化控制面失败: %w", err)
	}

	resolver := callsite.NewResolver(
		callsite.WithFilter(callsite.DefaultFilter().WithInternal(cfg.Agent.InternalPrefixes...)),
	)
	builder := runabout.NewBuilder(
		runabout.WithResolver(resolver),
		runabout.WithEncoder(encoder.New(encoder.WithMaxNodes(cfg.Agent.MaxNodes))),
		runabout.WithBuilderLogger(logger),
	)
	svc, err := runabout.NewService(cfg.Project,
		runabout.WithBuilder(builder),
		runabout.WithIngest(client),
		runabout.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []agent.Option{
		agent.WithService(svc),
		agent.WithLogger(logger),
		agent.WithRateLimit(cfg.Agent.RateLimit, cfg.Agent.Burst),
	}
	if cp != nil {
		opts = append(opts, agent.WithControlPlane(cp))
	}
	ag, err := agent.New(cfg.Project, table, opts...)
	if err != nil {
		return nil, err
	}

	return &Bootstrap{
		Config:       cfg,
		Logger:       logger,
		Ingest:       client,
		ControlPlane: cp,
		Service:      svc,
		Agent:        ag,
	}, nil
}

// Start agent.enabled 为 true 时安装 Agent；配置了控制面与轮询间隔时开始轮询
func (b *Bootstrap) Start(ctx context.Context, opts ...agent.Option) error {
	if !b.Config.AgentEnabled() {
		b.Logger.Info("agent 未启用，仅提供 Service")
		return nil
	}
	if err := b.Agent.Install(opts...); err != nil {
		return err
	}
	interval := utils.ParseDuration(b.Config.Agent.PollInterval, 0)
	if b.ControlPlane == nil || interval <= 0 {
		return nil
	}
	return b.Agent.StartPolling(ctx, interval)
}

// InitTracing 启用 monitoring.tracing 时初始化全局 tracer；
// 启动管理 API 的进程由 hertz 的 OpenTelemetry provider 负责，不需要调用。
func (b *Bootstrap) InitTracing() error {
	tc := b.Config.Monitoring.Tracing
	if !tc.Enable {
		return nil
	}
	endpoint := utils.CoalesceString(tc.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		b.Logger.Warn("tracing 已启用但未配置 export_endpoint，跳过")
		return nil
	}
	tp, err := tracing.InitTracer(tracing.OTelConfig{
		ServiceName:    utils.CoalesceString(tc.ServiceName, "runabout"),
		ExportEndpoint: endpoint,
		Insecure:       tc.Insecure,
	})
	if err != nil {
		return fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	b.tracer = tp
	return nil
}

// Shutdown 停用 Agent，排空投递队列，关闭控制面连接与 tracer
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	var errs []error
	if err := b.Agent.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭场景投递: %w", err))
	}
	if closer, ok := b.ControlPlane.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭控制面: %w", err))
		}
	}
	if b.tracer != nil {
		if err := b.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭 tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
