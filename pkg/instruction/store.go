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

import "sync/atomic"

// Store 当前生效的指令集合。读取无锁；Replace 原子替换，读者只会看到旧集合或新集合。
type Store struct {
	current atomic.Pointer[Set]
}

// NewStore 初始为空集合
func NewStore() *Store {
	s := &Store{}
	empty := make(Set)
	s.current.Store(&empty)
	return s
}

// Current 返回当前集合的副本
func (s *Store) Current() Set {
	return (*s.current.Load()).Clone()
}

// Replace 替换当前集合并返回相对旧集合的差异
func (s *Store) Replace(next Set) (toAdd, toRemove Set) {
	cp := next.Clone()
	prev := s.current.Swap(&cp)
	return Diff(*prev, cp)
}
