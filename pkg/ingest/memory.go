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

package ingest

import (
	"context"
	"sync"

	"runabout/pkg/scenario"
)

// MemorySink 保存在内存中，供测试与本地观察
type MemorySink struct {
	mu         sync.Mutex
	deliveries []Delivery
	err        error
}

// NewMemorySink 创建空 sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name 实现 Sink
func (s *MemorySink) Name() string { return "memory" }

// FailWith 之后的投递都返回 err；nil 恢复正常
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Deliver 实现 Sink
func (s *MemorySink) Deliver(ctx context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	d.Payload = append([]byte(nil), d.Payload...)
	s.deliveries = append(s.deliveries, d)
	return nil
}

// Len 已投递条数
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

// Deliveries 已投递的副本
func (s *MemorySink) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Envelopes 解码全部已投递信封
func (s *MemorySink) Envelopes() ([]*scenario.Envelope, error) {
	ds := s.Deliveries()
	out := make([]*scenario.Envelope, 0, len(ds))
	for _, d := range ds {
		env, err := scenario.ParseEnvelope(d.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Reset 清空
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.deliveries = nil
	s.mu.Unlock()
}
