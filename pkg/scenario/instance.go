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

package scenario

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const unencodablePrefix = "unencodable("

// Instance 单个被捕获对象的可重放编码，构造后不可变
type Instance struct {
	typeName     string
	expression   string
	dependencies []string
}

// NewInstance 依赖去重并排序，空字符串被丢弃
func NewInstance(typeName, expression string, dependencies []string) Instance {
	return Instance{
		typeName:     typeName,
		expression:   expression,
		dependencies: normalizeDeps(dependencies),
	}
}

// Unencodable 无法编码时的哨兵实例，保留原始类型名
func Unencodable(typeName string) Instance {
	return Instance{
		typeName:   typeName,
		expression: UnencodableExpression(typeName),
	}
}

// UnencodableExpression 返回 unencodable("<类型名>")
func UnencodableExpression(typeName string) string {
	return unencodablePrefix + strconv.Quote(typeName) + ")"
}

// IsUnencodable 判断表达式是否为哨兵
func IsUnencodable(expression string) bool {
	return strings.HasPrefix(expression, unencodablePrefix) && strings.HasSuffix(expression, ")")
}

// Type 原对象的全限定类型名
func (i Instance) Type() string { return i.typeName }

// Expression 可执行的 Go 表达式
func (i Instance) Expression() string { return i.expression }

// Dependencies 表达式引用的全限定类型名（副本）
func (i Instance) Dependencies() []string {
	return append([]string(nil), i.dependencies...)
}

// Unencodable 是否为哨兵实例
func (i Instance) Unencodable() bool { return IsUnencodable(i.expression) }

func (i Instance) wire() wireInstance {
	deps := i.dependencies
	if deps == nil {
		deps = []string{}
	}
	return wireInstance{Type: i.typeName, Eval: i.expression, Dependencies: append([]string(nil), deps...)}
}

// MarshalJSON 输出 {"type","eval","dependencies"}
func (i Instance) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.wire())
}

// UnmarshalJSON 解析线上格式的实例
func (i *Instance) UnmarshalJSON(data []byte) error {
	var w wireInstance
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return fmt.Errorf("instance: %s is required", KeyType)
	}
	*i = NewInstance(w.Type, w.Eval, w.Dependencies)
	return nil
}

func normalizeDeps(deps []string) []string {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
