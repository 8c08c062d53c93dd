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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"runabout/pkg/agent"
	rerrors "runabout/pkg/errors"
	"runabout/pkg/instruction"
	"runabout/pkg/log"
	"runabout/pkg/metrics"
)

// Handler 管理 API 处理器
type Handler struct {
	agent  *agent.Agent
	logger *log.Logger
}

// NewHandler 创建处理器
func NewHandler(a *agent.Agent, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{agent: a, logger: logger}
}

// PointStatus 单个拦截点
type PointStatus struct {
	Name    string `json:"name"`
	Patched bool   `json:"patched"`
}

// AgentStatus GET /api/agent 的响应
type AgentStatus struct {
	Project      string        `json:"project"`
	Installed    bool          `json:"installed"`
	Enabled      bool          `json:"enabled"`
	Polling      bool          `json:"polling"`
	Instructions int           `json:"instructions"`
	Points       []PointStatus `json:"points"`
}

// InstructionsBody PUT /api/instructions 请求体与 GET 响应体
type InstructionsBody struct {
	Instructions instruction.Set `json:"instructions"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "runabout-agentd",
	})
}

// AgentStatus 安装状态与拦截点
// GET /api/agent
func (h *Handler) AgentStatus(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.status())
}

func (h *Handler) status() AgentStatus {
	points := h.agent.Table().Points()
	st := AgentStatus{
		Project:      h.agent.Project(),
		Installed:    h.agent.Installed(),
		Enabled:      h.agent.Enabled(),
		Polling:      h.agent.Polling(),
		Instructions: h.agent.Current().Len(),
		Points:       make([]PointStatus, 0, len(points)),
	}
	for _, p := range points {
		st.Points = append(st.Points, PointStatus{Name: p.String(), Patched: p.Patched()})
	}
	return st
}

// Install 安装或重新启用 Agent
// POST /api/agent/install
func (h *Handler) Install(ctx context.Context, c *app.RequestContext) {
	if err := h.agent.Install(); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, h.status())
}

// Disable 停用拦截器，保留已挂钩的点
// POST /api/agent/disable
func (h *Handler) Disable(ctx context.Context, c *app.RequestContext) {
	h.agent.Disable()
	c.JSON(consts.StatusOK, h.status())
}

// ListInstructions 当前生效的指令
// GET /api/instructions
func (h *Handler) ListInstructions(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, InstructionsBody{Instructions: h.agent.Current()})
}

// ReplaceInstructions 以请求体整体替换指令集
// PUT /api/instructions
func (h *Handler) ReplaceInstructions(ctx context.Context, c *app.RequestContext) {
	var body InstructionsBody
	dec := json.NewDecoder(bytes.NewReader(c.Request.Body()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid instructions: " + err.Error(),
		})
		return
	}
	if body.Instructions == nil {
		body.Instructions = instruction.NewSet()
	}
	report, err := h.agent.Refresh(ctx, body.Instructions)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, report)
}

// RefreshLatest 从控制面拉取并应用
// POST /api/instructions/refresh
func (h *Handler) RefreshLatest(ctx context.Context, c *app.RequestContext) {
	report, err := h.agent.RefreshLatest(ctx)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, report)
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// writeError 状态不允许的操作返回 409，配置错误 400，其余（控制面不可用等）502
func (h *Handler) writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := consts.StatusBadGateway
	switch {
	case errors.Is(err, agent.ErrNotInstalled), errors.Is(err, agent.ErrNoControlPlane):
		status = consts.StatusConflict
	case errors.Is(err, rerrors.ErrConfiguration):
		status = consts.StatusBadRequest
	default:
		h.logger.ErrorContext(ctx, "admin request failed", "path", string(c.Path()), "error", err)
	}
	c.JSON(status, map[string]string{"error": err.Error()})
}
