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

package encoder

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EncodeFunc 自定义编码器：返回可执行表达式及其引用的全限定类型名
type EncodeFunc func(v any) (expression string, dependencies []string, err error)

// Replayable 类型自身提供重放表达式。返回错误或 panic 时该对象编码为哨兵。
type Replayable interface {
	ReplayExpression() (expression string, dependencies []string, err error)
}

var replayableType = reflect.TypeFor[Replayable]()

// Registry 按精确的运行时类型查找自定义编码器
type Registry struct {
	mu       sync.RWMutex
	encoders map[reflect.Type]EncodeFunc
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{encoders: make(map[reflect.Type]EncodeFunc)}
}

// DefaultRegistry 预置 time.Time、time.Duration、uuid.UUID 编码器
func DefaultRegistry() *Registry {
	r := NewRegistry()
	Register(r, encodeTime)
	Register(r, encodeDuration)
	Register(r, encodeUUID)
	return r
}

// Register 以泛型形式登记 T 的编码器
func Register[T any](r *Registry, fn func(T) (string, []string, error)) {
	r.Set(reflect.TypeFor[T](), func(v any) (string, []string, error) {
		tv, ok := v.(T)
		if !ok {
			return "", nil, fmt.Errorf("encoder: expected %s, got %T", reflect.TypeFor[T](), v)
		}
		return fn(tv)
	})
}

// Set 登记或覆盖 t 的编码器；fn 为 nil 时删除
func (r *Registry) Set(t reflect.Type, fn EncodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.encoders, t)
		return
	}
	r.encoders[t] = fn
}

// Lookup 精确匹配，不考虑接口实现或指针解引用
func (r *Registry) Lookup(t reflect.Type) (EncodeFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.encoders[t]
	return fn, ok
}

// Len 已登记的类型数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.encoders)
}

func encodeTime(t time.Time) (string, []string, error) {
	return fmt.Sprintf("time.Unix(%d, %d).UTC()", t.Unix(), t.Nanosecond()), []string{"time.Time"}, nil
}

func encodeDuration(d time.Duration) (string, []string, error) {
	return fmt.Sprintf("time.Duration(%d)", int64(d)), []string{"time.Duration"}, nil
}

func encodeUUID(id uuid.UUID) (string, []string, error) {
	return fmt.Sprintf("uuid.MustParse(%q)", id.String()), []string{"github.com/google/uuid.UUID"}, nil
}
