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

// Package callsite 识别调用采集设施的真实调用点：遍历调用栈、过滤编译器生成/匿名/库内部帧。
package callsite

import (
	"fmt"
	"strings"
)

// Frame 调用栈中的一帧
//
// Type 为声明类型的全限定名（import path + "." + 类型名）；包级函数没有接收者，
// 此时 Type 为包的 import path。Params 为 nil 表示签名未知。
type Frame struct {
	Function string   // 运行时符号名，如 example.com/shop.(*Cart).Checkout.func1
	Package  string   // import path
	Type     string   // 声明类型全限定名；包级匿名函数为空
	Method   string   // 方法/函数名（不含闭包后缀）
	Params   []string // 参数类型列表，可选
	File     string
	Line     int
}

// CallSite 解析出的调用点：声明类型 + 方法签名
type CallSite struct {
	Type   string   `json:"type"`
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
}

// String 返回线上格式使用的 "<全限定类型>.<方法名>"
func (c CallSite) String() string {
	return c.Type + "." + c.Method
}

// Signature 返回带参数列表的签名
func (c CallSite) Signature() string {
	return c.String() + "(" + strings.Join(c.Params, ", ") + ")"
}

// ParseCallSite 解析 "<全限定类型>.<方法名>" 或带参数列表的签名
func ParseCallSite(s string) (*CallSite, error) {
	s = strings.TrimSpace(s)
	var params []string
	if i := strings.Index(s, "("); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			return nil, fmt.Errorf("invalid call site %q: unbalanced parameter list", s)
		}
		params = splitParams(s[i+1 : len(s)-1])
		s = s[:i]
	}
	dot := strings.LastIndex(s, ".")
	if dot <= 0 || dot == len(s)-1 || strings.LastIndex(s, "/") > dot {
		return nil, fmt.Errorf("invalid call site %q", s)
	}
	return &CallSite{Type: s[:dot], Method: s[dot+1:], Params: params}, nil
}

func splitParams(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseFrame 将运行时符号名解析为 Frame
//
//	example.com/shop.(*Cart).Checkout        -> Type example.com/shop.Cart, Method Checkout
//	example.com/shop.Cart.Total              -> Type example.com/shop.Cart, Method Total
//	example.com/shop.run.func1               -> Type example.com/shop, Method run
//	example.com/shop.glob..func1             -> Type "", Method ""
func ParseFrame(function string) Frame {
	f := Frame{Function: function}
	pkg, rest := splitPackage(function)
	f.Package = pkg
	if rest == "" {
		return f
	}

	if strings.HasPrefix(rest, "(") {
		end := strings.Index(rest, ")")
		if end < 0 {
			return f
		}
		recv := strings.TrimPrefix(rest[1:end], "*")
		segs := strings.Split(strings.TrimPrefix(rest[end+1:], "."), ".")
		f.Type = qualify(pkg, stripTypeArgs(recv))
		f.Method = trimMethodValue(segs[0])
		return f
	}

	segs := strings.Split(rest, ".")
	if segs[0] == "glob" {
		// 包级变量初始化中的闭包，没有可寻址的声明者
		return f
	}
	if len(segs) >= 2 && segs[1] != "" && !isSyntheticSegment(trimMethodValue(segs[1])) {
		f.Type = qualify(pkg, stripTypeArgs(segs[0]))
		f.Method = trimMethodValue(segs[1])
		return f
	}
	f.Type = pkg
	f.Method = trimMethodValue(stripTypeArgs(segs[0]))
	return f
}

// splitPackage 按最后一个 '/' 之后的第一个 '.' 切分包路径；
// 运行时会把最后一段路径中的 '.' 转义为 %2e，因此该切分无歧义。
func splitPackage(sym string) (pkg, rest string) {
	slash := strings.LastIndex(sym, "/")
	dot := strings.Index(sym[slash+1:], ".")
	if dot < 0 {
		return "", sym
	}
	i := slash + 1 + dot
	return strings.ReplaceAll(sym[:i], "%2e", "."), sym[i+1:]
}

func qualify(pkg, name string) string {
	if pkg == "" || name == "" {
		return name
	}
	return pkg + "." + name
}

func stripTypeArgs(name string) string {
	if i := strings.Index(name, "["); i >= 0 {
		return name[:i]
	}
	return name
}

// trimMethodValue 去掉方法值（-fm）与 range-over-func 循环体（-rangeN）后缀
func trimMethodValue(name string) string {
	name = strings.TrimSuffix(name, "-fm")
	if base, ok := trimRangeSuffix(name); ok {
		return base
	}
	return name
}

// trimRangeSuffix 识别 Loop-range1、Loop-range1-range2 这类循环体闭包名
func trimRangeSuffix(seg string) (string, bool) {
	i := strings.Index(seg, "-range")
	if i < 0 {
		return seg, false
	}
	rest := seg[i:]
	for rest != "" {
		if !strings.HasPrefix(rest, "-range") {
			return seg, false
		}
		rest = rest[len("-range"):]
		n := 0
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		if n == 0 {
			return seg, false
		}
		rest = rest[n:]
	}
	return seg[:i], true
}
