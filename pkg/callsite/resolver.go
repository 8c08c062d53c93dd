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

package callsite

import (
	"errors"
	"fmt"

	rerrors "runabout/pkg/errors"
)

// ErrNoCallSite 遍历完调用栈没有可接受的帧；不是异常，表示调用点缺省
var ErrNoCallSite = errors.New("no external call site on stack")

// Resolver 调用点解析器
type Resolver struct {
	stack     StackProvider
	filter    Filter
	types     *TypeRegistry
	predicate func(Frame) bool
}

// Option 配置 Resolver
type Option func(*Resolver)

// WithStack 替换调用栈来源（测试中注入构造的栈）
func WithStack(p StackProvider) Option {
	return func(r *Resolver) { r.stack = p }
}

// WithFilter 替换帧过滤器
func WithFilter(f Filter) Option {
	return func(r *Resolver) { r.filter = f }
}

// WithTypes 指定类型注册表
func WithTypes(t *TypeRegistry) Option {
	return func(r *Resolver) { r.types = t }
}

// WithPredicate 调用方附加的帧谓词，返回 false 的帧被跳过
func WithPredicate(p func(Frame) bool) Option {
	return func(r *Resolver) { r.predicate = p }
}

// NewResolver 默认使用当前 goroutine 的运行时栈与 DefaultFilter
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		stack:  RuntimeStack{},
		filter: DefaultFilter(),
		types:  NewTypeRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Types 返回注册表，供宿主登记类型
func (r *Resolver) Types() *TypeRegistry {
	return r.types
}

// Resolve 由内向外遍历调用栈，返回第一个对外有意义的调用点。
//
// 合成、匿名、库内部帧以及被 Predicate 或 extra 拒绝的帧均跳过。第一个通过的帧若无法
// 转换为 CallSite，立即停止遍历并返回 ErrResolution：继续向外找会把场景归到错误的调用点。
// 遍历完仍无可接受帧时返回 ErrNoCallSite。本方法不会 panic。
func (r *Resolver) Resolve(extra func(Frame) bool) (site *CallSite, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			site, err = nil, fmt.Errorf("%w: %v", rerrors.ErrResolution, rec)
		}
	}()

	for _, f := range r.stack.Frames() {
		if r.filter.Skip(f) {
			continue
		}
		if r.predicate != nil && !r.predicate(f) {
			continue
		}
		if extra != nil && !extra(f) {
			continue
		}
		return r.toCallSite(f)
	}
	return nil, ErrNoCallSite
}

func (r *Resolver) toCallSite(f Frame) (*CallSite, error) {
	if f.Type == "" || f.Method == "" {
		return nil, fmt.Errorf("%w: frame %q has no declaring type", rerrors.ErrResolution, f.Function)
	}
	params, err := r.types.Signature(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rerrors.ErrResolution, err)
	}
	return &CallSite{
		Type:   f.Type,
		Method: f.Method,
		Params: append([]string(nil), params...),
	}, nil
}
