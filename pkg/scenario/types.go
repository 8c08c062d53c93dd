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

// Package scenario 定义场景与实例的数据模型及其线上 JSON 格式。
package scenario

// ContractVersion 线上格式契约版本
const ContractVersion = "1.0.0"

// 线上格式的键
const (
	KeyVersion      = "version"
	KeyMethod       = "method"
	KeyType         = "type"
	KeyEval         = "eval"
	KeyDependencies = "dependencies"
	KeyInputs       = "inputs"
	KeyDatetime     = "datetime"
	KeyEventID      = "event_id"
	KeyProjectName  = "project_name"
	KeyProperties   = "properties"
	KeyScenario     = "scenario"
)

// wireInstance inputs 数组中的一项
type wireInstance struct {
	Type         string   `json:"type"`
	Eval         string   `json:"eval"`
	Dependencies []string `json:"dependencies"`
}

// wireScenario 字段顺序即输出顺序
type wireScenario struct {
	Version    string            `json:"version"`
	Method     string            `json:"method,omitempty"`
	EventID    string            `json:"event_id,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Datetime   string            `json:"datetime"`
	Inputs     []wireInstance    `json:"inputs"`
}
