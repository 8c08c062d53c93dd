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
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"runabout/pkg/instruction"
	"runabout/pkg/tracing"
)

// DefaultTimeout 单次拉取超时
const DefaultTimeout = 10 * time.Second

// instructionsResponse GET /projects/{project}/instructions 的响应体
type instructionsResponse struct {
	Instructions instruction.Set `json:"instructions"`
}

// HTTPClient 通过 HTTP 拉取指令
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient baseURL 形如 https://api.runabout.dev
func NewHTTPClient(baseURL, apiToken string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "runabout-go")
	if apiToken != "" {
		client.SetAuthToken(apiToken)
	}
	return &HTTPClient{client: client}
}

// GetLatestInstructions 实现 Client
func (c *HTTPClient) GetLatestInstructions(ctx context.Context, project string) (set instruction.Set, err error) {
	ctx, span := tracing.StartPullSpan(ctx, "http", project)
	defer func() { tracing.EndSpan(span, err) }()

	var out instructionsResponse
	path := "/projects/" + url.PathEscape(project) + "/instructions"
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s: %s", path, resp.Status(), resp.String())
	}
	if out.Instructions == nil {
		return instruction.NewSet(), nil
	}
	return out.Instructions, nil
}
