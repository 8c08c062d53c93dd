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

// Package ingest 负责把场景异步投递到外部存储：AsyncClient 维护有界队列与投递 goroutine，
// Sink 负责具体传输（HTTP、Redis、PostgreSQL、NATS、内存）。
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"runabout/pkg/scenario"
)

// DefaultTimeout 单次投递默认超时
const DefaultTimeout = 10 * time.Second

// Client 采集侧使用的投递接口；Send 不阻塞，不返回投递结果
type Client interface {
	Send(s *scenario.Scenario)
}

// ClientFunc 函数适配 Client
type ClientFunc func(s *scenario.Scenario)

// Send 实现 Client
func (f ClientFunc) Send(s *scenario.Scenario) { f(s) }

// Discard 丢弃全部场景
var Discard Client = ClientFunc(func(*scenario.Scenario) {})

// Delivery 一次投递的载荷；ID 用作下游去重键
type Delivery struct {
	ID      string
	Project string
	Payload []byte // scenario.Envelope 的 JSON
}

// NewDelivery 将场景包装为带项目名的信封
func NewDelivery(project string, s *scenario.Scenario) (Delivery, error) {
	payload, err := scenario.Envelope{ProjectName: project, Scenario: s}.Marshal()
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{ID: uuid.NewString(), Project: project, Payload: payload}, nil
}

// Sink 投递目标
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}
