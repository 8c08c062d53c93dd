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

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix 场景列表 key 前缀，完整 key 为 <prefix>:<project>
const DefaultRedisKeyPrefix = "runabout:scenarios"

// RedisSink 将信封 LPUSH 到每个项目一个列表，下游以 BRPOP 消费
type RedisSink struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewRedisSink maxLen > 0 时每次写入后裁剪列表长度
func NewRedisSink(client *redis.Client, prefix string, maxLen int64) *RedisSink {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisSink{client: client, prefix: prefix, maxLen: maxLen}
}

// Name 实现 Sink
func (s *RedisSink) Name() string { return "redis" }

// Key 项目对应的列表 key
func (s *RedisSink) Key(project string) string {
	return s.prefix + ":" + project
}

// Deliver 实现 Sink
func (s *RedisSink) Deliver(ctx context.Context, d Delivery) error {
	key := s.Key(d.Project)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, d.Payload)
		if s.maxLen > 0 {
			pipe.LTrim(ctx, key, 0, s.maxLen-1)
		}
		return nil
	})
	return err
}

// Close 关闭连接
func (s *RedisSink) Close() error {
	return s.client.Close()
}
