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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"runabout/pkg/instruction"
)

func adminBaseURL() string {
	if u := os.Getenv("RUNABOUT_ADMIN_URL"); u != "" {
		return u
	}
	return "http://127.0.0.1:7070"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(adminBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("RUNABOUT_ADMIN_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

func getAgentStatus() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/agent")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/agent: %s", resp.String())
	}
	return out, nil
}

func postAgent(action string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/agent/" + action)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/agent/%s: %s", action, resp.String())
	}
	return out, nil
}

func listInstructions() ([]instruction.Instruction, error) {
	var out struct {
		Instructions instruction.Set `json:"instructions"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/instructions")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/instructions: %s", resp.String())
	}
	return out.Instructions.Sorted(), nil
}

func putInstructions(set instruction.Set) (map[string]interface{}, error) {
	body := map[string]interface{}{"instructions": set}
	var out map[string]interface{}
	resp, err := newClient().R().
		SetBody(body).
		SetResult(&out).
		Put("/api/instructions")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("PUT /api/instructions: %s", resp.String())
	}
	return out, nil
}

func refreshInstructions() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/instructions/refresh")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/instructions/refresh: %s", resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
