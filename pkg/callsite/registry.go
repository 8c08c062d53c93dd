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
	"reflect"
	"runtime"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ErrMethodNotFound 声明类型已注册，但在其方法集中找不到该方法
var ErrMethodNotFound = errors.New("method not found on registered type")

// TypeRegistry 宿主登记的反射类型与函数，用于还原帧的参数列表。
// Go 运行时不保留函数签名，未登记的帧参数列表为空。
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	funcs map[string][]string
}

// NewTypeRegistry 创建空注册表
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]reflect.Type),
		funcs: make(map[string][]string),
	}
}

// Register 登记命名类型；指针类型按其元素类型登记
func (r *TypeRegistry) Register(ts ...reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Name() == "" || t.PkgPath() == "" {
			continue
		}
		r.types[t.PkgPath()+"."+t.Name()] = t
	}
}

// RegisterValue 按值的动态类型登记
func (r *TypeRegistry) RegisterValue(vs ...any) {
	ts := make([]reflect.Type, 0, len(vs))
	for _, v := range vs {
		ts = append(ts, reflect.TypeOf(v))
	}
	r.Register(ts...)
}

// RegisterFunc 登记包级函数或方法表达式的签名
func (r *TypeRegistry) RegisterFunc(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("RegisterFunc: %T is not a function", fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return fmt.Errorf("RegisterFunc: cannot resolve symbol for %T", fn)
	}
	name := rf.Name()
	params := paramTypes(v.Type(), 0)
	if f := ParseFrame(name); f.Type != f.Package && len(params) > 0 {
		// 方法表达式的第一个参数是接收者
		params = params[1:]
	}
	r.mu.Lock()
	r.funcs[name] = params
	r.mu.Unlock()
	return nil
}

// Signature 返回帧的参数类型列表；声明类型已登记但方法不存在时返回 ErrMethodNotFound
func (r *TypeRegistry) Signature(f Frame) ([]string, error) {
	if r == nil {
		return f.Params, nil
	}
	r.mu.RLock()
	params, okFn := r.funcs[f.Function]
	t, okType := r.types[f.Type]
	r.mu.RUnlock()

	if okFn {
		return params, nil
	}
	if okType {
		if m, ok := reflect.PointerTo(t).MethodByName(f.Method); ok {
			return paramTypes(m.Type, 1), nil
		}
		if isExported(f.Method) {
			return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, f.Type, f.Method)
		}
		// 未导出方法不在反射方法集中，无法定位也无法否定
	}
	return f.Params, nil
}

func paramTypes(ft reflect.Type, skip int) []string {
	out := make([]string, 0, ft.NumIn())
	for i := skip; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			out = append(out, "..."+in.Elem().String())
			continue
		}
		out = append(out, in.String())
	}
	return out
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
