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

package runabout

import (
	"context"
	"strings"

	"runabout/pkg/config"
	rerrors "runabout/pkg/errors"
	"runabout/pkg/ingest"
	"runabout/pkg/log"
	"runabout/pkg/metrics"
	"runabout/pkg/scenario"
)

// Service 面向宿主代码的采集服务
type Service struct {
	project string
	builder *Builder
	ingest  ingest.Client
	logger  *log.Logger
}

// Option 配置 Service
type Option func(*Service)

// WithBuilder 替换场景构造器
func WithBuilder(b *Builder) Option {
	return func(s *Service) { s.builder = b }
}

// WithIngest 设置投递客户端；未设置时场景只在本地构造
func WithIngest(c ingest.Client) Option {
	return func(s *Service) { s.ingest = c }
}

// WithLogger 设置 logger
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService 创建采集服务；project 不能为空
func NewService(project string, opts ...Option) (*Service, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, rerrors.Configf("project name is required")
	}
	s := &Service{project: project}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.builder == nil {
		s.builder = NewBuilder(WithBuilderLogger(s.logger))
	}
	if s.ingest == nil {
		s.ingest = ingest.Discard
	}
	return s, nil
}

// Connect 创建投递到 Runabout ingest 服务的采集服务，使用默认队列参数
func Connect(project, apiToken string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(apiToken) == "" {
		return nil, rerrors.Configf("api token is required")
	}
	logger := log.Default()
	sink := ingest.NewHTTPSink(config.DefaultIngestURL, apiToken, ingest.DefaultTimeout)
	client := ingest.NewAsyncClient(project, sink, ingest.AsyncOptions{RetryMax: ingest.DefaultRetryMax, Logger: logger})
	return NewService(project, append([]Option{WithIngest(client), WithLogger(logger)}, opts...)...)
}

// ProjectName 项目名
func (s *Service) ProjectName() string { return s.project }

// Builder 返回场景构造器
func (s *Service) Builder() *Builder { return s.builder }

// Encode 编码单个对象，不会失败
func (s *Service) Encode(v any) scenario.Instance {
	return s.builder.encoder.Encode(v)
}

// CreateScenario 在当前调用点构造场景，不投递
func (s *Service) CreateScenario(eventID string, properties map[string]string, objects ...any) *scenario.Scenario {
	sc := s.builder.Build(nil, eventID, properties, objects...)
	metrics.ScenariosTotal.WithLabelValues("direct").Inc()
	return sc
}

// SaveScenario 构造场景并交给投递客户端，立即返回
func (s *Service) SaveScenario(eventID string, properties map[string]string, objects ...any) *scenario.Scenario {
	sc := s.CreateScenario(eventID, properties, objects...)
	s.Emit(sc)
	return sc
}

// Emit 投递已构造的场景，不阻塞
func (s *Service) Emit(sc *scenario.Scenario) {
	if sc == nil {
		return
	}
	s.ingest.Send(sc)
}

// Close 关闭投递客户端并等待队列排空
func (s *Service) Close(ctx context.Context) error {
	if c, ok := s.ingest.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}
