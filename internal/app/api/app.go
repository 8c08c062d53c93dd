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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"runabout/internal/api/http"
	"runabout/internal/api/http/middleware"
	"runabout/internal/app"
	"runabout/pkg/log"
)

type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 管理 API 进程：Hertz 服务 + 已装配的运行时
type App struct {
	bootstrap    *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 基于 bootstrap 创建管理 API
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Agent == nil {
		return nil, fmt.Errorf("bootstrap with agent is required")
	}
	handler := http.NewHandler(bootstrap.Agent, bootstrap.Logger)
	mw := middleware.NewMiddleware(bootstrap.Config.Admin.Token, bootstrap.Logger)
	return &App{
		bootstrap: bootstrap,
		router:    http.NewRouter(handler, mw),
	}, nil
}

// Addr 监听地址
func (a *App) Addr() string {
	host := a.bootstrap.Config.Admin.Host
	port := a.bootstrap.Config.Admin.Port
	if port <= 0 {
		port = 7070
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Run 启动 HTTP 服务，阻塞直到关闭
func (a *App) Run() error {
	cfg := a.bootstrap.Config
	addr := a.Addr()
	a.bootstrap.Logger.Info("管理 API 启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	if cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "runabout-agentd"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tcfg := hertztracing.NewServerTracer()
			// tracer 中间件需在路由注册前挂载
			a.hertz = server.Default(server.WithHostPorts(addr), tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
			a.router.Register(a.hertz)
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		}
	}
	if a.hertz == nil {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭：先停 HTTP，再关闭运行时（排空投递队列）
func (a *App) Shutdown(ctx context.Context) error {
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	return a.bootstrap.Shutdown(ctx)
}
