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

// Package intercept 提供可选择接入的拦截点：宿主代码在方法入口声明并触发 Point，
// Agent 按指令向匹配的 Point 安装或移除 Hook。
package intercept

import "sync/atomic"

// Hook 拦截回调；args 为被拦截方法的实参
type Hook func(p *Point, args []any)

// Point 一个可被拦截的方法入口
type Point struct {
	typeName string
	method   string
	hook     atomic.Pointer[Hook]
}

// Type 声明类型的全限定名
func (p *Point) Type() string { return p.typeName }

// Method 方法名
func (p *Point) Method() string { return p.method }

// String Type.Method
func (p *Point) String() string { return p.typeName + "." + p.method }

// Patched 当前是否安装了 Hook
func (p *Point) Patched() bool { return p.hook.Load() != nil }

// Fire 在被拦截方法入口调用。未安装 Hook 时只有一次原子读取。
// Hook 中的 panic 被吞掉，不会传播到宿主代码。
func (p *Point) Fire(args ...any) {
	if p == nil {
		return
	}
	h := p.hook.Load()
	if h == nil {
		return
	}
	invoke(*h, p, args)
}

func invoke(h Hook, p *Point, args []any) {
	defer func() { _ = recover() }()
	h(p, args)
}

func (p *Point) set(h Hook) {
	if h == nil {
		p.hook.Store(nil)
		return
	}
	p.hook.Store(&h)
}
