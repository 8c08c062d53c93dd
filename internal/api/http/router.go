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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"runabout/internal/api/http/middleware"
)

// Router 管理 API 路由
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
}

// NewRouter 创建路由
func NewRouter(handler *Handler, middleware *middleware.Middleware) *Router {
	return &Router{
		handler:    handler,
		middleware: middleware,
	}
}

// Build 创建 Hertz 实例并注册路由，opts 可附加 tracer 等服务端选项
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	h := server.Default(append([]config.Option{server.WithHostPorts(addr)}, opts...)...)
	r.Register(h)
	return h
}

// Register 在已有实例上注册路由
func (r *Router) Register(h *server.Hertz) {
	h.Use(r.middleware.AccessLog())
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	// 只读接口不鉴权；变更插桩状态的接口需要 token
	api.GET("/agent", r.handler.AgentStatus)
	api.POST("/agent/install", r.middleware.Auth(), r.handler.Install)
	api.POST("/agent/disable", r.middleware.Auth(), r.handler.Disable)

	api.GET("/instructions", r.handler.ListInstructions)
	api.PUT("/instructions", r.middleware.Auth(), r.handler.ReplaceInstructions)
	api.POST("/instructions/refresh", r.middleware.Auth(), r.handler.RefreshLatest)
}
