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

package intercept

import (
	"fmt"
	"sort"
	"sync"

	rerrors "runabout/pkg/errors"
	"runabout/pkg/instruction"
)

// ErrNoPoint 指令没有匹配任何已声明的拦截点
var ErrNoPoint = fmt.Errorf("%w: no interception point", rerrors.ErrInstrumentation)

type pointKey struct {
	typeName string
	method   string
}

// Table 拦截点表。Declare 可在任意时刻调用；Install/Uninstall 由 Agent 串行调用。
type Table struct {
	mu     sync.Mutex
	points map[pointKey]*Point
	active map[instruction.Instruction]Hook
}

// NewTable 创建空表
func NewTable() *Table {
	return &Table{
		points: make(map[pointKey]*Point),
		active: make(map[instruction.Instruction]Hook),
	}
}

// Declare 声明拦截点，同一 (type, method) 返回同一个 Point。
// 已生效的指令若匹配新声明的点，立即为其安装 Hook。
func (t *Table) Declare(typeName, method string) *Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := pointKey{typeName, method}
	if p, ok := t.points[k]; ok {
		return p
	}
	p := &Point{typeName: typeName, method: method}
	t.points[k] = p
	p.set(t.hookFor(p))
	return p
}

// Lookup 查找已声明的拦截点
func (t *Table) Lookup(typeName, method string) (*Point, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.points[pointKey{typeName, method}]
	return p, ok
}

// Install 向指令匹配的全部拦截点安装 hook，返回安装的点数
func (t *Table) Install(ins instruction.Instruction, hook Hook) (int, error) {
	if hook == nil {
		return 0, rerrors.Instrumentationf("install %s: nil hook", ins)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	matched := t.matching(ins)
	if len(matched) == 0 {
		return 0, fmt.Errorf("install %s: %w", ins, ErrNoPoint)
	}
	t.active[ins] = hook
	for _, p := range matched {
		p.set(t.hookFor(p))
	}
	return len(matched), nil
}

// Uninstall 移除指令的 hook。仍被其他生效指令覆盖的点改用其 hook，其余恢复为未拦截。
func (t *Table) Uninstall(ins instruction.Instruction) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[ins]; !ok {
		return 0, fmt.Errorf("uninstall %s: not installed: %w", ins, ErrNoPoint)
	}
	delete(t.active, ins)
	matched := t.matching(ins)
	for _, p := range matched {
		p.set(t.hookFor(p))
	}
	return len(matched), nil
}

// Active 已安装的指令，按 Type、Method 排序
func (t *Table) Active() []instruction.Instruction {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := make(instruction.Set, len(t.active))
	for ins := range t.active {
		s.Add(ins)
	}
	return s.Sorted()
}

// Points 全部已声明的拦截点，按名称排序
func (t *Table) Points() []*Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Point, 0, len(t.points))
	for _, p := range t.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// PatchedCount 当前已安装 Hook 的点数
func (t *Table) PatchedCount() int {
	n := 0
	for _, p := range t.Points() {
		if p.Patched() {
			n++
		}
	}
	return n
}

func (t *Table) matching(ins instruction.Instruction) []*Point {
	var out []*Point
	for k, p := range t.points {
		if ins.Matches(k.typeName, k.method) {
			out = append(out, p)
		}
	}
	return out
}

// hookFor 精确到方法的指令优先于整类型指令
func (t *Table) hookFor(p *Point) Hook {
	if h, ok := t.active[instruction.Instruction{Type: p.typeName, Method: p.method}]; ok {
		return h
	}
	if h, ok := t.active[instruction.Instruction{Type: p.typeName}]; ok {
		return h
	}
	return nil
}
