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

// Package controlplane 从控制面拉取项目当前的插桩指令集。
package controlplane

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"runabout/pkg/config"
	"runabout/pkg/instruction"
	"runabout/pkg/utils"
)

// Client 指令来源
type Client interface {
	// GetLatestInstructions 返回项目当前的完整期望指令集
	GetLatestInstructions(ctx context.Context, project string) (instruction.Set, error)
}

// StaticClient 固定指令集，来自配置或测试
type StaticClient struct {
	set instruction.Set
}

// NewStaticClient 创建固定指令集客户端
func NewStaticClient(set instruction.Set) *StaticClient {
	return &StaticClient{set: set.Clone()}
}

// GetLatestInstructions 实现 Client，对所有项目返回同一集合的副本
func (c *StaticClient) GetLatestInstructions(ctx context.Context, project string) (instruction.Set, error) {
	return c.set.Clone(), nil
}

// NewClient 按配置创建客户端；type 为 none 或空时返回 nil, nil
func NewClient(ctx context.Context, cfg config.ControlPlaneConfig, apiToken string) (Client, error) {
	timeout := utils.ParseDuration(cfg.Timeout, DefaultTimeout)
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "static":
		set, err := instruction.ParseSet(cfg.Instructions)
		if err != nil {
			return nil, fmt.Errorf("control_plane.instructions: %w", err)
		}
		return NewStaticClient(set), nil
	case "http":
		return NewHTTPClient(cfg.URL, apiToken, timeout), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("连接 redis 失败: %w", err)
		}
		return NewRedisClient(client, ""), nil
	}
	return nil, fmt.Errorf("unsupported control_plane type: %s", cfg.Type)
}
