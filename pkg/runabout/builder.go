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

// Package runabout 是采集设施的入口：Builder 解析调用点并编码对象，Service 在其上
// 提供 CreateScenario/SaveScenario 等宿主可直接调用的方法。
package runabout

import (
	"errors"
	"time"

	"runabout/pkg/callsite"
	"runabout/pkg/encoder"
	"runabout/pkg/log"
	"runabout/pkg/metrics"
	"runabout/pkg/scenario"
)

// Builder 场景构造器；不做任何 I/O，可并发使用
type Builder struct {
	resolver *callsite.Resolver
	encoder  *encoder.Encoder
	now      func() time.Time
	logger   *log.Logger
}

// BuilderOption 配置 Builder
type BuilderOption func(*Builder)

// WithResolver 替换调用点解析器
func WithResolver(r *callsite.Resolver) BuilderOption {
	return func(b *Builder) { b.resolver = r }
}

// WithEncoder 替换实例编码器
func WithEncoder(e *encoder.Encoder) BuilderOption {
	return func(b *Builder) { b.encoder = e }
}

// WithClock 替换时间来源（测试用）
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithBuilderLogger 设置 logger
func WithBuilderLogger(l *log.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder 未指定的组件使用默认实现
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = callsite.NewResolver()
	}
	if b.encoder == nil {
		b.encoder = encoder.New()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	return b
}

// Resolver 返回调用点解析器
func (b *Builder) Resolver() *callsite.Resolver { return b.resolver }

// Encoder 返回实例编码器
func (b *Builder) Encoder() *encoder.Encoder { return b.encoder }

// Build 构造场景。site 为 nil 时从当前 goroutine 的调用栈解析；
// 解析失败时场景不带调用点，实例按参数顺序编码。
func (b *Builder) Build(site *callsite.CallSite, eventID string, properties map[string]string, objects ...any) *scenario.Scenario {
	return b.build(site, nil, eventID, properties, objects)
}

// BuildFrom 同 Build，但总是解析调用点，并以 extra 额外过滤候选帧
func (b *Builder) BuildFrom(extra func(callsite.Frame) bool, eventID string, properties map[string]string, objects ...any) *scenario.Scenario {
	return b.build(nil, extra, eventID, properties, objects)
}

func (b *Builder) build(site *callsite.CallSite, extra func(callsite.Frame) bool, eventID string, properties map[string]string, objects []any) *scenario.Scenario {
	start := time.Now()
	defer func() { metrics.CaptureDuration.Observe(time.Since(start).Seconds()) }()

	if site == nil {
		site = b.resolve(extra)
	}
	instances := make([]scenario.Instance, 0, len(objects))
	for _, obj := range objects {
		in := b.encoder.Encode(obj)
		if in.Unencodable() {
			metrics.InstancesUnencodableTotal.Inc()
		}
		instances = append(instances, in)
	}
	return scenario.New(site, eventID, properties, b.now(), instances...)
}

func (b *Builder) resolve(extra func(callsite.Frame) bool) *callsite.CallSite {
	site, err := b.resolver.Resolve(extra)
	if err == nil {
		return site
	}
	metrics.CallSiteUnresolvedTotal.Inc()
	if !errors.Is(err, callsite.ErrNoCallSite) {
		b.logger.Debug("call site resolution failed", "error", err)
	}
	return nil
}
