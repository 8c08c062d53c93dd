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
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"runabout/pkg/scenario"
)

// visit 当前渲染路径上的引用节点
type visit struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

// state 单次 Encode 的渲染状态，不跨 goroutine
type state struct {
	enc   *Encoder
	deps  map[string]struct{}
	path  map[visit]struct{}
	nodes int
	// home 根值类型所在的包，回放代码按位于该包处理
	home  string
	// quals 包限定符到 import path，同一表达式内限定符不能指向两个包
	quals map[string]string
}

func newState(e *Encoder, root reflect.Type) *state {
	return &state{
		enc:   e,
		deps:  make(map[string]struct{}),
		path:  make(map[visit]struct{}),
		home:  homePackage(root),
		quals: make(map[string]string),
	}
}

// homePackage 剥去指针、切片、数组与 map 后第一个命名类型的包
func homePackage(t reflect.Type) string {
	for t != nil && t.Name() == "" {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		default:
			return ""
		}
	}
	if t == nil {
		return ""
	}
	return t.PkgPath()
}

func (s *state) dependencies() []string {
	out := make([]string, 0, len(s.deps))
	for d := range s.deps {
		out = append(out, d)
	}
	return out
}

func (s *state) addDep(name string) {
	if name != "" {
		s.deps[name] = struct{}{}
	}
}

func (s *state) sentinel(t reflect.Type) string {
	return scenario.UnencodableExpression(QualifiedName(t))
}

// render 渲染单个节点。iface 为 true 表示表达式没有类型上下文（顶层或接口值），
// 非默认类型的常量需要显式转换。
func (s *state) render(v reflect.Value, iface bool) string {
	if !v.IsValid() {
		return "nil"
	}
	t := v.Type()
	s.nodes++
	if s.nodes > s.enc.maxNodes {
		return s.sentinel(t)
	}
	v = addressable(accessible(v))

	if v.CanInterface() {
		if fn, ok := s.enc.registry.Lookup(t); ok {
			return s.custom(t, func() (string, []string, error) { return fn(v.Interface()) })
		}
		if selfEncoding(v) {
			r := v.Interface().(Replayable)
			return s.custom(t, r.ReplayExpression)
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		return s.basic(t, strconv.FormatBool(v.Bool()), iface)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return s.basic(t, strconv.FormatInt(v.Int(), 10), iface)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return s.basic(t, strconv.FormatUint(v.Uint(), 10), iface)
	case reflect.Float32, reflect.Float64:
		lit, ok := formatFloat(v.Float(), t.Bits())
		if !ok {
			return s.sentinel(t)
		}
		return s.basic(t, lit, iface)
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		bits := t.Bits() / 2
		re, okRe := formatFloat(real(c), bits)
		im, okIm := formatFloat(imag(c), bits)
		if !okRe || !okIm {
			return s.sentinel(t)
		}
		return s.basic(t, "complex("+re+", "+im+")", iface)
	case reflect.String:
		return s.basic(t, strconv.Quote(v.String()), iface)
	case reflect.Interface:
		if v.IsNil() {
			return "nil"
		}
		return s.render(v.Elem(), true)
	case reflect.Pointer:
		return s.pointer(v, iface)
	case reflect.Struct:
		return s.structLit(v)
	case reflect.Slice:
		return s.slice(v, iface)
	case reflect.Array:
		return s.array(v)
	case reflect.Map:
		return s.mapLit(v, iface)
	}
	// chan、func、unsafe.Pointer 无法重建
	return s.sentinel(t)
}

// custom 调用自定义编码器，错误或 panic 均降级为哨兵
func (s *state) custom(t reflect.Type, fn func() (string, []string, error)) (expr string) {
	defer func() {
		if r := recover(); r != nil {
			expr = s.sentinel(t)
		}
	}()
	e, deps, err := fn()
	if err != nil || strings.TrimSpace(e) == "" {
		return s.sentinel(t)
	}
	for _, d := range deps {
		s.addDep(d)
	}
	return e
}

func (s *state) basic(t reflect.Type, lit string, iface bool) string {
	if t.PkgPath() == "" && (!iface || isDefaultLiteral(t.Kind(), lit)) {
		return lit
	}
	te, ok := s.typeExpr(t)
	if !ok {
		return s.sentinel(t)
	}
	return te + "(" + lit + ")"
}

func (s *state) pointer(v reflect.Value, iface bool) string {
	t := v.Type()
	if v.IsNil() {
		return s.typedNil(t, iface)
	}
	leave, ok := s.enter(v)
	if !ok {
		return s.sentinel(t)
	}
	defer leave()

	te, ok := s.writeType(t.Elem(), false)
	if !ok {
		return s.sentinel(t)
	}
	inner := s.render(v.Elem(), true)
	if scenario.IsUnencodable(inner) {
		return s.sentinel(t)
	}
	if strings.HasPrefix(inner, te+"{") {
		return "&" + inner
	}
	s.typeExpr(t.Elem())
	return fmt.Sprintf("func() *%s { v := %s; return &v }()", te, inner)
}

func (s *state) structLit(v reflect.Value) string {
	t := v.Type()
	if s.foreignUnexported(v) {
		return s.sentinel(t)
	}
	te, ok := s.typeExpr(t)
	if !ok {
		return s.sentinel(t)
	}
	var b strings.Builder
	b.WriteString(te)
	b.WriteByte('{')
	first := true
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		f := v.Field(i)
		if sf.Name == "_" || f.IsZero() {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(sf.Name)
		b.WriteString(": ")
		b.WriteString(s.render(f, false))
	}
	b.WriteByte('}')
	return b.String()
}

func (s *state) slice(v reflect.Value, iface bool) string {
	t := v.Type()
	if v.IsNil() {
		return s.typedNil(t, iface)
	}
	te, ok := s.typeExpr(t)
	if !ok {
		return s.sentinel(t)
	}
	if t.Elem().Kind() == reflect.Uint8 && t.Elem().PkgPath() == "" {
		return te + "(" + strconv.Quote(string(v.Bytes())) + ")"
	}
	if v.Len() > 0 {
		leave, ok := s.enter(v)
		if !ok {
			return s.sentinel(t)
		}
		defer leave()
	}
	return te + "{" + s.elements(v) + "}"
}

func (s *state) array(v reflect.Value) string {
	t := v.Type()
	te, ok := s.typeExpr(t)
	if !ok {
		return s.sentinel(t)
	}
	return te + "{" + s.elements(v) + "}"
}

func (s *state) elements(v reflect.Value) string {
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = s.render(v.Index(i), false)
	}
	return strings.Join(parts, ", ")
}

func (s *state) mapLit(v reflect.Value, iface bool) string {
	t := v.Type()
	if v.IsNil() {
		return s.typedNil(t, iface)
	}
	te, ok := s.typeExpr(t)
	if !ok {
		return s.sentinel(t)
	}
	leave, ok := s.enter(v)
	if !ok {
		return s.sentinel(t)
	}
	defer leave()

	type entry struct{ k, v string }
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{k: s.render(iter.Key(), false), v: s.render(iter.Value(), false)})
	}
	// 键按渲染文本排序，保证输出确定
	sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.k + ": " + e.v
	}
	return te + "{" + strings.Join(parts, ", ") + "}"
}

func (s *state) typedNil(t reflect.Type, iface bool) string {
	if !iface {
		return "nil"
	}
	te, ok := s.typeExpr(t)
	if !ok {
		return s.sentinel(t)
	}
	if t.Kind() == reflect.Pointer {
		return "(" + te + ")(nil)"
	}
	return te + "(nil)"
}

// foreignUnexported 存在非零的未导出字段且字段不属于根值所在的包，
// 回放代码无法在字面量中为其赋值
func (s *state) foreignUnexported(v reflect.Value) bool {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath == "" || sf.PkgPath == s.home || sf.Name == "_" {
			continue
		}
		if !v.Field(i).IsZero() {
			return true
		}
	}
	return false
}

// enter 将引用节点压入当前路径；已在路径上说明存在环
func (s *state) enter(v reflect.Value) (func(), bool) {
	key := visit{typ: v.Type(), ptr: v.Pointer()}
	if v.Kind() == reflect.Slice {
		key.n = v.Len()
	}
	if _, seen := s.path[key]; seen {
		return nil, false
	}
	s.path[key] = struct{}{}
	return func() { delete(s.path, key) }, true
}

// typeExpr 返回类型在表达式中的写法并记录依赖；无法书写的类型返回 false
func (s *state) typeExpr(t reflect.Type) (string, bool) {
	return s.writeType(t, true)
}

// writeType record 为 false 时只检查可写性，不记录依赖与限定符
func (s *state) writeType(t reflect.Type, record bool) (string, bool) {
	if t.Name() != "" {
		pkg := t.PkgPath()
		if pkg == "" {
			return t.Name(), true
		}
		if strings.ContainsRune(t.Name(), '[') {
			// 泛型实例的类型实参无法从反射中还原为源码
			return "", false
		}
		if !importable(pkg, s.home) {
			return "", false
		}
		q := PackageName(pkg)
		if prev, ok := s.quals[q]; ok && prev != pkg {
			return "", false
		}
		if record {
			s.quals[q] = pkg
			s.addDep(pkg + "." + t.Name())
		}
		return q + "." + t.Name(), true
	}
	switch t.Kind() {
	case reflect.Pointer:
		e, ok := s.writeType(t.Elem(), record)
		return "*" + e, ok
	case reflect.Slice:
		e, ok := s.writeType(t.Elem(), record)
		return "[]" + e, ok
	case reflect.Array:
		e, ok := s.writeType(t.Elem(), record)
		return fmt.Sprintf("[%d]%s", t.Len(), e), ok
	case reflect.Map:
		k, okK := s.writeType(t.Key(), record)
		e, okE := s.writeType(t.Elem(), record)
		return "map[" + k + "]" + e, okK && okE
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any", true
		}
	case reflect.Struct:
		fields := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			ft, ok := s.writeType(sf.Type, record)
			if !ok {
				return "", false
			}
			if sf.Anonymous {
				fields = append(fields, ft)
				continue
			}
			fields = append(fields, sf.Name+" "+ft)
		}
		if len(fields) == 0 {
			return "struct{}", true
		}
		return "struct{ " + strings.Join(fields, "; ") + " }", true
	}
	return "", false
}

// importable 报告 home 包能否导入 pkg：路径中最后一个 internal 元素的父目录
// 必须是 home 或其祖先。标准库的 internal/... 对任何用户包都不可见。
func importable(pkg, home string) bool {
	var parent string
	switch {
	case pkg == "internal" || strings.HasPrefix(pkg, "internal/"):
		return false
	case strings.HasSuffix(pkg, "/internal"):
		parent = strings.TrimSuffix(pkg, "/internal")
	default:
		i := strings.LastIndex(pkg, "/internal/")
		if i < 0 {
			return true
		}
		parent = pkg[:i]
	}
	home = strings.TrimSuffix(home, "_test")
	return home == parent || strings.HasPrefix(home, parent+"/")
}

// selfEncoding 值自身实现 Replayable。指针的元素类型已实现时交给元素处理，
// 避免指针位置拿到元素的表达式。
func selfEncoding(v reflect.Value) bool {
	t := v.Type()
	if t.Kind() == reflect.Interface || !t.Implements(replayableType) {
		return false
	}
	if t.Kind() == reflect.Pointer {
		return !v.IsNil() && !t.Elem().Implements(replayableType)
	}
	return true
}

// accessible 去掉未导出字段带来的只读标记，使自定义编码器可以拿到值
func accessible(v reflect.Value) reflect.Value {
	if v.CanInterface() || !v.CanAddr() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

// addressable 复制不可寻址的结构体与数组，使其未导出字段可以经 accessible 读取
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() || !v.CanInterface() {
		return v
	}
	switch v.Kind() {
	case reflect.Struct, reflect.Array:
		p := reflect.New(v.Type()).Elem()
		p.Set(v)
		return p
	}
	return v
}

func formatFloat(f float64, bits int) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'g', -1, bits), true
}

// isDefaultLiteral 字面量在无类型上下文中的默认类型恰好是 kind
func isDefaultLiteral(kind reflect.Kind, lit string) bool {
	switch kind {
	case reflect.Bool, reflect.Int, reflect.String, reflect.Complex128:
		return true
	case reflect.Float64:
		return strings.ContainsAny(lit, ".eE")
	}
	return false
}
