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

// Package agent 管理插桩生命周期：安装拦截器、按指令集增删拦截点、停用与轮询控制面。
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"runabout/pkg/callsite"
	rerrors "runabout/pkg/errors"
	"runabout/pkg/instruction"
	"runabout/pkg/intercept"
	"runabout/pkg/log"
	"runabout/pkg/metrics"
	"runabout/pkg/runabout"
	"runabout/pkg/tracing"
)

// PropertyPoint 拦截场景的 properties 中记录触发点的键
const PropertyPoint = "intercept.point"

var (
	// ErrNotInstalled Install 之前调用了 Refresh
	ErrNotInstalled = rerrors.Configf("agent is not installed")
	// ErrNoControlPlane 未配置指令来源
	ErrNoControlPlane = rerrors.Configf("no control plane configured")
)

// Failure 单条指令的插桩失败
type Failure struct {
	Instruction instruction.Instruction `json:"instruction"`
	Op          string                  `json:"op"` // install | uninstall
	Err         error                   `json:"-"`
	Message     string                  `json:"error"`
}

// Report 一次 Refresh 的结果，各列表按 Type、Method 排序
type Report struct {
	Added   []instruction.Instruction `json:"added"`
	Removed []instruction.Instruction `json:"removed"`
	Failed  []Failure                 `json:"failed"`
}

// OK 没有失败项
func (r *Report) OK() bool { return r != nil && len(r.Failed) == 0 }

// Err 合并全部失败；无失败时为 nil
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Agent 插桩生命周期管理器。
//
// 状态只前进不回退：未安装 → 已安装(停用) ⇄ 已安装(启用)。Disable 不移除已挂钩的拦截点，
// 只让拦截器变为空操作；再次 Install 即恢复。Install、Refresh、Disable 由同一把锁串行化，
// 拦截路径只做原子读取。
type Agent struct {
	project string
	table   *intercept.Table
	store   *instruction.Store

	mu  sync.Mutex
	cfg agentConfig

	installed atomic.Bool
	enabled   atomic.Bool
	bound     atomic.Pointer[bindings]

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New 创建 Agent；table 为 nil 时使用新表。未指定 Service 时场景只构建不投递。
func New(project string, table *intercept.Table, opts ...Option) (*Agent, error) {
	if project == "" {
		return nil, rerrors.Configf("project name is required")
	}
	if table == nil {
		table = intercept.NewTable()
	}
	a := &Agent{
		project: project,
		table:   table,
		store:   instruction.NewStore(),
	}
	for _, opt := range opts {
		opt(&a.cfg)
	}
	if err := a.applyDefaults(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) applyDefaults() error {
	if a.cfg.logger == nil {
		a.cfg.logger = log.Default()
	}
	if a.cfg.service == nil {
		svc, err := runabout.NewService(a.project, runabout.WithLogger(a.cfg.logger))
		if err != nil {
			return err
		}
		a.cfg.service = svc
	}
	return nil
}

// Project 项目名
func (a *Agent) Project() string { return a.project }

// Table 拦截点表
func (a *Agent) Table() *intercept.Table { return a.table }

// Service 当前绑定的 Service
func (a *Agent) Service() *runabout.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.service
}

// Installed 是否已安装
func (a *Agent) Installed() bool { return a.installed.Load() }

// Enabled 拦截器是否生效
func (a *Agent) Enabled() bool { return a.enabled.Load() }

// Current 已实际生效的指令集
func (a *Agent) Current() instruction.Set { return a.store.Current() }

// Install 安装并启用拦截器。可重复调用：每次都用 opts 重新绑定协作者。
func (a *Agent) Install(opts ...Option) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, opt := range opts {
		opt(&a.cfg)
	}
	if err := a.applyDefaults(); err != nil {
		return err
	}
	a.bound.Store(a.cfg.bindings())
	first := a.installed.CompareAndSwap(false, true)
	a.enabled.Store(true)
	if first {
		a.cfg.logger.Info("runabout agent installed", "project", a.project, "points", len(a.table.Points()))
	}
	return nil
}

// Disable 停用拦截器并停止轮询，已挂钩的拦截点保留
func (a *Agent) Disable() {
	a.mu.Lock()
	wasEnabled := a.enabled.Swap(false)
	done := a.stopPollingLocked()
	logger := a.cfg.logger
	a.mu.Unlock()
	if done != nil {
		<-done
	}
	if wasEnabled {
		logger.Info("runabout agent disabled", "project", a.project)
	}
}

// Refresh 以 next 整体替换期望指令集。
//
// 每条差异独立应用，单条失败不影响其余条目，失败逐条记录在 Report 中并通知 ErrorListener。
// 只有安装成功的指令计入当前集合，下次 Refresh 会重试失败的新增。
// 返回的 error 只表示整体被拒绝（未安装或指令非法）。
func (a *Agent) Refresh(ctx context.Context, next instruction.Set) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.installed.Load() {
		metrics.RefreshTotal.WithLabelValues("rejected").Inc()
		return nil, ErrNotInstalled
	}
	if err := next.Validate(); err != nil {
		metrics.RefreshTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	_, span := tracing.StartRefreshSpan(ctx, a.project, next.Len())

	applied := a.store.Current()
	toAdd, toRemove := instruction.Diff(applied, next)
	report := &Report{}

	for _, ins := range toRemove.Sorted() {
		// 未生效的指令 Uninstall 会报错，但拦截点上已无其 hook，同样从当前集合移除
		delete(applied, ins)
		if _, err := a.table.Uninstall(ins); err != nil {
			a.fail(report, ins, "uninstall", err)
			continue
		}
		metrics.InstrumentationTotal.WithLabelValues("uninstall").Inc()
		report.Removed = append(report.Removed, ins)
	}
	for _, ins := range toAdd.Sorted() {
		if _, err := a.table.Install(ins, a.intercept); err != nil {
			a.fail(report, ins, "install", err)
			continue
		}
		metrics.InstrumentationTotal.WithLabelValues("install").Inc()
		applied.Add(ins)
		report.Added = append(report.Added, ins)
	}
	a.store.Replace(applied)
	metrics.PatchedPoints.Set(float64(a.table.PatchedCount()))

	result := "ok"
	if !report.OK() {
		result = "partial"
	}
	metrics.RefreshTotal.WithLabelValues(result).Inc()
	tracing.EndSpan(span, report.Err())
	a.cfg.logger.Info("instructions refreshed",
		"project", a.project,
		"added", len(report.Added),
		"removed", len(report.Removed),
		"failed", len(report.Failed),
		"active", applied.Len(),
	)
	return report, nil
}

func (a *Agent) fail(report *Report, ins instruction.Instruction, op string, err error) {
	metrics.InstrumentationFailTotal.WithLabelValues(op).Inc()
	report.Failed = append(report.Failed, Failure{Instruction: ins, Op: op, Err: err, Message: err.Error()})
	a.cfg.logger.Warn("instrumentation failed", "op", op, "instruction", ins.String(), "error", err)
	if a.cfg.errListener != nil {
		a.cfg.errListener.OnInstrumentationError(ins, err)
	}
}

// RefreshLatest 从控制面拉取项目当前的指令集并应用
func (a *Agent) RefreshLatest(ctx context.Context) (*Report, error) {
	a.mu.Lock()
	cp := a.cfg.controlPlane
	a.mu.Unlock()
	if cp == nil {
		return nil, ErrNoControlPlane
	}
	set, err := cp.GetLatestInstructions(ctx, a.project)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("pull_failed").Inc()
		return nil, rerrors.Wrap(err, "pull instructions")
	}
	return a.Refresh(ctx, set)
}

// StartPolling 立即拉取一次，之后每隔 interval 拉取；Disable 或 ctx 结束时停止。
// 重复调用会先停掉之前的轮询。
func (a *Agent) StartPolling(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return rerrors.Configf("poll interval must be positive, got %s", interval)
	}
	a.mu.Lock()
	if a.cfg.controlPlane == nil {
		a.mu.Unlock()
		return ErrNoControlPlane
	}
	if !a.installed.Load() {
		a.mu.Unlock()
		return ErrNotInstalled
	}
	prev := a.stopPollingLocked()
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.pollCancel, a.pollDone = cancel, done
	logger := a.cfg.logger
	a.mu.Unlock()
	if prev != nil {
		<-prev
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := a.RefreshLatest(pollCtx); err != nil && pollCtx.Err() == nil {
				logger.Warn("instruction poll failed", "project", a.project, "error", err)
			}
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	logger.Info("instruction polling started", "project", a.project, "interval", interval.String())
	return nil
}

// Polling 是否正在轮询
func (a *Agent) Polling() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pollDone == nil {
		return false
	}
	select {
	case <-a.pollDone:
		return false
	default:
		return true
	}
}

// stopPollingLocked 取消轮询并返回其 done；调用方须在释放锁之后等待，轮询中的 Refresh 需要同一把锁
func (a *Agent) stopPollingLocked() chan struct{} {
	if a.pollCancel == nil {
		return nil
	}
	a.pollCancel()
	done := a.pollDone
	a.pollCancel, a.pollDone = nil, nil
	return done
}

// Shutdown 停用并关闭 Service 的投递
func (a *Agent) Shutdown(ctx context.Context) error {
	a.Disable()
	return a.Service().Close(ctx)
}

// intercept 安装在拦截点上的 hook
func (a *Agent) intercept(p *intercept.Point, args []any) {
	if !a.enabled.Load() {
		return
	}
	b := a.bound.Load()
	if b == nil || b.service == nil {
		return
	}
	if b.limiter != nil && !b.limiter.Allow() {
		metrics.CaptureThrottledTotal.Inc()
		return
	}
	// 解析的是被拦截方法的调用方，跳过被拦截方法自身的帧
	typeName, method := p.Type(), p.Method()
	notPatched := func(f callsite.Frame) bool {
		return f.Type != typeName || f.Method != method
	}
	sc := b.service.Builder().BuildFrom(notPatched, "", map[string]string{PropertyPoint: p.String()}, args...)
	metrics.ScenariosTotal.WithLabelValues("intercept").Inc()
	if b.listener != nil {
		b.listener.OnScenario(sc)
	}
	b.service.Emit(sc)
}
