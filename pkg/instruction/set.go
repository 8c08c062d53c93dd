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

package instruction

import (
	"encoding/json"
	"errors"
	"sort"
)

// Set 指令集合，完整描述某一时刻期望的插桩状态
type Set map[Instruction]struct{}

// NewSet 由指令构造集合
func NewSet(ins ...Instruction) Set {
	s := make(Set, len(ins))
	s.Add(ins...)
	return s
}

// ParseSet 逐条解析引用；全部错误合并返回
func ParseSet(references []string) (Set, error) {
	s := make(Set, len(references))
	var errs []error
	for _, ref := range references {
		ins, err := Parse(ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.Add(ins)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// Add 加入指令
func (s Set) Add(ins ...Instruction) {
	for _, i := range ins {
		s[i] = struct{}{}
	}
}

// Contains 是否包含
func (s Set) Contains(i Instruction) bool {
	_, ok := s[i]
	return ok
}

// Len 元素数
func (s Set) Len() int { return len(s) }

// Clone 浅拷贝；nil 返回空集合
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for i := range s {
		out[i] = struct{}{}
	}
	return out
}

// Equal 元素完全相同
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !o.Contains(i) {
			return false
		}
	}
	return true
}

// Sorted 按 Type、Method 排序
func (s Set) Sorted() []Instruction {
	out := make([]Instruction, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Type != out[b].Type {
			return out[a].Type < out[b].Type
		}
		return out[a].Method < out[b].Method
	})
	return out
}

// Validate 校验全部指令
func (s Set) Validate() error {
	var errs []error
	for _, i := range s.Sorted() {
		if err := i.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarshalJSON 输出排序后的数组
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON 解析数组，重复项合并
func (s *Set) UnmarshalJSON(data []byte) error {
	var list []Instruction
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewSet(list...)
	return nil
}

// Diff toAdd = next − prev，toRemove = prev − next
func Diff(prev, next Set) (toAdd, toRemove Set) {
	toAdd, toRemove = make(Set), make(Set)
	for i := range next {
		if !prev.Contains(i) {
			toAdd[i] = struct{}{}
		}
	}
	for i := range prev {
		if !next.Contains(i) {
			toRemove[i] = struct{}{}
		}
	}
	return toAdd, toRemove
}
