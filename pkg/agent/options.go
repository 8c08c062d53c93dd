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

package agent

import (
	"golang.org/x/time/rate"

	"runabout/pkg/controlplane"
	"runabout/pkg/instruction"
	"runabout/pkg/log"
	"runabout/pkg/runabout"
	"runabout/pkg/scenario"
)

// Listener 接收拦截生成的场景，在被拦截的 goroutine 上同步调用
type Listener interface {
	OnScenario(s *scenario.Scenario)
}

// ListenerFunc 函数适配 Listener
type ListenerFunc func(s *scenario.Scenario)

// OnScenario 实现 Listener
func (f ListenerFunc) OnScenario(s *scenario.Scenario) { f(s) }

// ErrorListener 接收单条指令的插桩失败
type ErrorListener interface {
	OnInstrumentationError(ins instruction.Instruction, err error)
}

// ErrorListenerFunc 函数适配 ErrorListener
type ErrorListenerFunc func(ins instruction.Instruction, err error)

// OnInstrumentationError 实现 ErrorListener
func (f ErrorListenerFunc) OnInstrumentationError(ins instruction.Instruction, err error) { f(ins, err) }

// Option 配置 Agent；New 与 Install 均可传入，Install 时重新绑定
type Option func(*agentConfig)

type agentConfig struct {
	service      *runabout.Service
	listener     Listener
	errListener  ErrorListener
	controlPlane controlplane.Client
	logger       *log.Logger
	limit        rate.Limit
	burst        int
}

// WithService 场景构建与投递使用的 Service
func WithService(s *runabout.Service) Option {
	return func(c *agentConfig) { c.service = s }
}

// WithListener 每个拦截场景的回调
func WithListener(l Listener) Option {
	return func(c *agentConfig) { c.listener = l }
}

// WithErrorListener 插桩失败回调；回调时持有 Agent 的锁，回调内不能再调用 Agent
func WithErrorListener(l ErrorListener) Option {
	return func(c *agentConfig) { c.errListener = l }
}

// WithControlPlane RefreshLatest 与轮询使用的指令来源
func WithControlPlane(cp controlplane.Client) Option {
	return func(c *agentConfig) { c.controlPlane = cp }
}

// WithLogger 日志
func WithLogger(l *log.Logger) Option {
	return func(c *agentConfig) { c.logger = l }
}

// WithRateLimit 每秒最多生成 perSecond 个场景；perSecond<=0 不限流
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *agentConfig) {
		if perSecond <= 0 {
			c.limit, c.burst = 0, 0
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limit, c.burst = rate.Limit(perSecond), burst
	}
}

// bindings 拦截路径读取的协作者快照，整体原子替换
type bindings struct {
	service  *runabout.Service
	listener Listener
	limiter  *rate.Limiter
}

func (c *agentConfig) bindings() *bindings {
	b := &bindings{service: c.service, listener: c.listener}
	if c.limit > 0 {
		b.limiter = rate.NewLimiter(c.limit, c.burst)
	}
	return b
}
