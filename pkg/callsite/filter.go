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
	"strings"
	"unicode"
)

// LibraryPackages 采集库自身的包；解析结果永远不会落在这些包内
var LibraryPackages = []string{
	"runabout/pkg/agent",
	"runabout/pkg/controlplane",
	"runabout/pkg/callsite",
	"runabout/pkg/encoder",
	"runabout/pkg/ingest",
	"runabout/pkg/instruction",
	"runabout/pkg/intercept",
	"runabout/pkg/runabout",
	"runabout/pkg/scenario",
	"runabout/internal",
}

// 运行时生成的跳板帧所在的包
var syntheticPackages = map[string]bool{
	"runtime": true,
	"reflect": true,
}

// Filter 单帧分类，无副作用
type Filter struct {
	Internal []string // 视为库内部的包路径（含子包）
}

// DefaultFilter 以 LibraryPackages 为内部包
func DefaultFilter() Filter {
	return Filter{Internal: append([]string(nil), LibraryPackages...)}
}

// WithInternal 返回追加内部包后的副本
func (f Filter) WithInternal(pkgs ...string) Filter {
	out := make([]string, 0, len(f.Internal)+len(pkgs))
	out = append(out, f.Internal...)
	out = append(out, pkgs...)
	return Filter{Internal: out}
}

// IsSynthetic 编译器/运行时生成的帧：闭包（funcN）、方法值（-fm）、
// range-over-func 循环体（-rangeN）、defer/go 包装、重命名的 init，以及 runtime/reflect 跳板
func (Filter) IsSynthetic(f Frame) bool {
	if syntheticPackages[f.Package] {
		return true
	}
	if strings.HasSuffix(f.Function, "-fm") {
		return true
	}
	_, rest := splitPackage(f.Function)
	for _, seg := range strings.Split(rest, ".") {
		if isSyntheticSegment(seg) {
			return true
		}
	}
	return false
}

// IsAnonymous 声明者没有稳定、可寻址的名字
func (Filter) IsAnonymous(f Frame) bool {
	if f.Type == "" || f.Method == "" {
		return true
	}
	return strings.ContainsAny(f.Type, " {}()") || strings.Contains(f.Type, "..")
}

// IsInternal 声明类型属于采集库自身
func (flt Filter) IsInternal(f Frame) bool {
	pkg := f.Package
	if pkg == "" {
		pkg = f.Type
	}
	for _, p := range flt.Internal {
		if pkg == p || strings.HasPrefix(pkg, p+"/") || strings.HasPrefix(pkg, p+".") {
			return true
		}
	}
	return false
}

// Skip 三类过滤任一命中即跳过
func (flt Filter) Skip(f Frame) bool {
	return flt.IsSynthetic(f) || flt.IsAnonymous(f) || flt.IsInternal(f)
}

// isSyntheticSegment 识别 func1、1、deferwrap1、gowrap2、M-range1 这类编译器命名
func isSyntheticSegment(seg string) bool {
	if seg == "" {
		return false
	}
	if _, ok := trimRangeSuffix(seg); ok {
		return true
	}
	for _, prefix := range []string{"func", "deferwrap", "gowrap"} {
		if strings.HasPrefix(seg, prefix) && isDigits(seg[len(prefix):]) {
			return true
		}
	}
	return isDigits(seg)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
