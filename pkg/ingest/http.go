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
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSink 以 POST 投递到 ingest 服务
type HTTPSink struct {
	client *resty.Client
	url    string
}

// NewHTTPSink apiToken 为空时不带 Authorization
func NewHTTPSink(url, apiToken string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "runabout-go")
	if apiToken != "" {
		client.SetAuthToken(apiToken)
	}
	return &HTTPSink{client: client, url: url}
}

// Name 实现 Sink
func (s *HTTPSink) Name() string { return "http" }

// URL 投递地址
func (s *HTTPSink) URL() string { return s.url }

// Deliver 实现 Sink；非 2xx 视为失败，由调用方重试
func (s *HTTPSink) Deliver(ctx context.Context, d Delivery) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", d.ID).
		SetBody(d.Payload).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("POST %s: %s: %s", s.url, resp.Status(), resp.String())
	}
	return nil
}
