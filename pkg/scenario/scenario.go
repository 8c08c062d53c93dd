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

package scenario

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"runabout/pkg/callsite"
)

// Scenario 一次捕获事件，构造后不可变，可跨 goroutine 共享
type Scenario struct {
	version    string
	callSite   *callsite.CallSite
	instances  []Instance
	eventID    string
	properties map[string]string
	timestamp  time.Time
}

// New 构造场景；site 为 nil 表示调用点未解析
func New(site *callsite.CallSite, eventID string, properties map[string]string, timestamp time.Time, instances ...Instance) *Scenario {
	s := &Scenario{
		version:   ContractVersion,
		eventID:   eventID,
		timestamp: timestamp.UTC(),
		instances: append([]Instance(nil), instances...),
	}
	if site != nil {
		cp := *site
		cp.Params = append([]string(nil), site.Params...)
		s.callSite = &cp
	}
	if len(properties) > 0 {
		s.properties = maps.Clone(properties)
	}
	return s
}

// Version 契约版本
func (s *Scenario) Version() string { return s.version }

// CallSite 调用点副本；未解析时为 nil
func (s *Scenario) CallSite() *callsite.CallSite {
	if s.callSite == nil {
		return nil
	}
	cp := *s.callSite
	cp.Params = append([]string(nil), s.callSite.Params...)
	return &cp
}

// Method 线上格式的 method 值；未解析时为空
func (s *Scenario) Method() string {
	if s.callSite == nil {
		return ""
	}
	return s.callSite.String()
}

// Instances 按捕获参数顺序排列（副本）
func (s *Scenario) Instances() []Instance {
	return append([]Instance(nil), s.instances...)
}

// EventID 关联 id，可为空
func (s *Scenario) EventID() string { return s.eventID }

// Properties 上下文属性（副本）
func (s *Scenario) Properties() map[string]string {
	return maps.Clone(s.properties)
}

// Timestamp 捕获时间（UTC）
func (s *Scenario) Timestamp() time.Time { return s.timestamp }

// MarshalJSON 按固定键顺序输出线上格式
func (s *Scenario) MarshalJSON() ([]byte, error) {
	w := wireScenario{
		Version:    s.version,
		Method:     s.Method(),
		EventID:    s.eventID,
		Properties: s.properties,
		Datetime:   s.timestamp.Format(time.RFC3339Nano),
		Inputs:     make([]wireInstance, 0, len(s.instances)),
	}
	for _, in := range s.instances {
		w.Inputs = append(w.Inputs, in.wire())
	}
	return json.Marshal(w)
}

// UnmarshalJSON 解析线上格式；仅用于解码，构造请使用 New
func (s *Scenario) UnmarshalJSON(data []byte) error {
	var w wireScenario
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Version == "" {
		return fmt.Errorf("scenario: %s is required", KeyVersion)
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Datetime)
	if err != nil {
		return fmt.Errorf("scenario: invalid %s: %w", KeyDatetime, err)
	}
	var site *callsite.CallSite
	if w.Method != "" {
		site, err = callsite.ParseCallSite(w.Method)
		if err != nil {
			return fmt.Errorf("scenario: invalid %s: %w", KeyMethod, err)
		}
	}
	instances := make([]Instance, 0, len(w.Inputs))
	for idx, in := range w.Inputs {
		if in.Type == "" {
			return fmt.Errorf("scenario: %s[%d].%s is required", KeyInputs, idx, KeyType)
		}
		instances = append(instances, NewInstance(in.Type, in.Eval, in.Dependencies))
	}
	*s = *New(site, w.EventID, w.Properties, ts, instances...)
	s.version = w.Version
	return nil
}

// Parse 解码单个场景
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Envelope 投递到 ingest 的外层结构
type Envelope struct {
	ProjectName string    `json:"project_name"`
	Scenario    *Scenario `json:"scenario"`
}

// Marshal 序列化信封
func (e Envelope) Marshal() ([]byte, error) {
	if e.Scenario == nil {
		return nil, fmt.Errorf("envelope: %s is required", KeyScenario)
	}
	return json.Marshal(e)
}

// ParseEnvelope 解码信封；兼容直接传入场景本体
func ParseEnvelope(data []byte) (*Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw[KeyScenario]; !ok {
		s, err := Parse(data)
		if err != nil {
			return nil, err
		}
		return &Envelope{Scenario: s}, nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Scenario == nil {
		return nil, fmt.Errorf("envelope: %s is null", KeyScenario)
	}
	return &env, nil
}
