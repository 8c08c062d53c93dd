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

import "runtime"

// defaultMaxDepth 单次遍历读取的最大帧数
const defaultMaxDepth = 64

// StackProvider 返回当前 goroutine 由内向外的帧序列
type StackProvider interface {
	Frames() []Frame
}

// StackFunc 函数适配 StackProvider
type StackFunc func() []Frame

// Frames 实现 StackProvider
func (f StackFunc) Frames() []Frame { return f() }

// StaticStack 固定的帧序列，测试中用于构造确定的调用栈
type StaticStack []Frame

// Frames 实现 StackProvider
func (s StaticStack) Frames() []Frame { return s }

// StackOf 按符号名构造 StaticStack
func StackOf(functions ...string) StaticStack {
	out := make(StaticStack, 0, len(functions))
	for _, fn := range functions {
		out = append(out, ParseFrame(fn))
	}
	return out
}

// RuntimeStack 基于 runtime.Callers，只读取调用方自己的 goroutine
type RuntimeStack struct {
	Skip     int // 额外跳过的帧数
	MaxDepth int // <=0 使用 64
}

// Frames 实现 StackProvider
func (s RuntimeStack) Frames() []Frame {
	depth := s.MaxDepth
	if depth <= 0 {
		depth = defaultMaxDepth
	}
	pcs := make([]uintptr, depth)
	// 跳过 runtime.Callers 与本方法
	n := runtime.Callers(2+s.Skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		fr, more := frames.Next()
		f := ParseFrame(fr.Function)
		f.File = fr.File
		f.Line = fr.Line
		out = append(out, f)
		if !more {
			break
		}
	}
	return out
}
