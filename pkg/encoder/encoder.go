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

// Package encoder 将运行时对象编码为可执行的 Go 表达式及其类型依赖。
//
// 解析顺序：注册表中的精确类型编码器，其次 Replayable，再次基于反射的结构化渲染，
// 最后是 unencodable("<类型>") 哨兵。Encode 对任意输入都返回 Instance，不会 panic。
package encoder

import (
	"reflect"

	"runabout/pkg/scenario"
)

// DefaultMaxNodes 单次 Encode 访问的节点上限
const DefaultMaxNodes = 10000

// Encoder 实例编码器，可并发使用
type Encoder struct {
	registry *Registry
	maxNodes int
}

// Option 配置 Encoder
type Option func(*Encoder)

// WithRegistry 替换自定义编码器注册表
func WithRegistry(r *Registry) Option {
	return func(e *Encoder) { e.registry = r }
}

// WithMaxNodes 设置节点预算，<=0 使用默认值
func WithMaxNodes(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.maxNodes = n
		}
	}
}

// New 默认使用 DefaultRegistry
func New(opts ...Option) *Encoder {
	e := &Encoder{registry: DefaultRegistry(), maxNodes: DefaultMaxNodes}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	return e
}

// Registry 返回自定义编码器注册表
func (e *Encoder) Registry() *Registry {
	return e.registry
}

// Encode 编码单个对象。根节点无法编码时返回哨兵实例，
// 子节点无法编码时在表达式中就地替换为哨兵，保留其余部分。
// 回放代码无权书写的字段与类型同样降级为哨兵，例如其他包的未导出字段。
func (e *Encoder) Encode(v any) (inst scenario.Instance) {
	if v == nil {
		return scenario.NewInstance("nil", "nil", nil)
	}
	t := reflect.TypeOf(v)
	typeName := QualifiedName(t)
	defer func() {
		if r := recover(); r != nil {
			inst = scenario.Unencodable(typeName)
		}
	}()

	s := newState(e, t)
	expr := s.render(reflect.ValueOf(v), true)
	if scenario.IsUnencodable(expr) {
		return scenario.Unencodable(typeName)
	}
	return scenario.NewInstance(typeName, expr, s.dependencies())
}
