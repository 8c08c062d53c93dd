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

package controlplane

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"runabout/pkg/instruction"
	"runabout/pkg/tracing"
)

// DefaultRedisKeyPrefix 指令集合 key 前缀，完整 key 为 <prefix>:<project>
const DefaultRedisKeyPrefix = "runabout:instructions"

// RedisClient 从 Redis 集合读取指令，每个成员是一条 JSON 编码的 Instruction
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient prefix 为空时使用 DefaultRedisKeyPrefix
func NewRedisClient(client *redis.Client, prefix string) *RedisClient {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisClient{client: client, prefix: prefix}
}

// Key 项目对应的集合 key
func (c *RedisClient) Key(project string) string {
	return c.prefix + ":" + project
}

// GetLatestInstructions 实现 Client；任一成员无法解析时整体失败，不返回部分集合
func (c *RedisClient) GetLatestInstructions(ctx context.Context, project string) (set instruction.Set, err error) {
	ctx, span := tracing.StartPullSpan(ctx, "redis", project)
	defer func() { tracing.EndSpan(span, err) }()

	members, err := c.client.SMembers(ctx, c.Key(project)).Result()
	if err != nil {
		return nil, err
	}
	set = instruction.NewSet()
	for _, m := range members {
		var ins instruction.Instruction
		if err := json.Unmarshal([]byte(m), &ins); err != nil {
			return nil, fmt.Errorf("instruction member %q: %w", m, err)
		}
		set.Add(ins)
	}
	return set, nil
}

// Publish 用 set 整体替换项目的指令集合
func (c *RedisClient) Publish(ctx context.Context, project string, set instruction.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	key := c.Key(project)
	members := make([]interface{}, 0, set.Len())
	for _, ins := range set.Sorted() {
		data, err := json.Marshal(ins)
		if err != nil {
			return err
		}
		members = append(members, string(data))
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	return err
}

// Close 关闭连接
func (c *RedisClient) Close() error {
	return c.client.Close()
}
