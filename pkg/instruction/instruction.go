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

// Package instruction 定义声明式插桩指令、指令集合与当前生效集合的存储。
package instruction

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	rerrors "runabout/pkg/errors"
)

// ErrInvalidReference 指令引用无法解析
var ErrInvalidReference = fmt.Errorf("%w: invalid instruction reference", rerrors.ErrConfiguration)

// Instruction 插桩指令，按 (Type, Method) 判等。Method 为空表示该类型的全部方法。
type Instruction struct {
	Type   string `json:"type"`
	Method string `json:"method,omitempty"`
}

// New 构造并校验指令
func New(typeName, method string) (Instruction, error) {
	ins := Instruction{Type: strings.TrimSpace(typeName), Method: strings.TrimSpace(method)}
	if err := ins.Validate(); err != nil {
		return Instruction{}, err
	}
	return ins, nil
}

// Parse 解析 "example.com/pkg.Type" 或 "example.com/pkg.Type#Method"
func Parse(reference string) (Instruction, error) {
	ref := strings.TrimSpace(reference)
	typeName, method, hasMethod := strings.Cut(ref, "#")
	if hasMethod && method == "" {
		return Instruction{}, fmt.Errorf("%w: %q has an empty method", ErrInvalidReference, reference)
	}
	return New(typeName, method)
}

// MustParse 解析失败时 panic，仅用于常量指令
func MustParse(reference string) Instruction {
	ins, err := Parse(reference)
	if err != nil {
		panic(err)
	}
	return ins
}

// Validate 校验类型名与方法名
func (i Instruction) Validate() error {
	if i.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidReference)
	}
	if strings.ContainsAny(i.Type, " \t\n#()") {
		return fmt.Errorf("%w: malformed type %q", ErrInvalidReference, i.Type)
	}
	if i.Method != "" && !isIdentifier(i.Method) {
		return fmt.Errorf("%w: malformed method %q", ErrInvalidReference, i.Method)
	}
	return nil
}

// AllMethods 指令是否覆盖类型的全部方法
func (i Instruction) AllMethods() bool { return i.Method == "" }

// Matches 指令是否作用于给定的类型与方法
func (i Instruction) Matches(typeName, method string) bool {
	return i.Type == typeName && (i.Method == "" || i.Method == method)
}

// Key 引用语法 Type 或 Type#Method
func (i Instruction) Key() string {
	if i.Method == "" {
		return i.Type
	}
	return i.Type + "#" + i.Method
}

func (i Instruction) String() string { return i.Key() }

// UnmarshalJSON 解析并校验 {"type","method"}
func (i *Instruction) UnmarshalJSON(data []byte) error {
	type plain Instruction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	ins, err := New(p.Type, p.Method)
	if err != nil {
		return err
	}
	*i = ins
	return nil
}

func isIdentifier(s string) bool {
	for idx, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if idx > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return utf8.RuneCountInString(s) > 0
}
