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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runabout/pkg/callsite"
)

var fixedTime = time.Date(2026, 3, 1, 10, 30, 0, 123000000, time.UTC)

func TestInstance_DependenciesNormalized(t *testing.T) {
	in := NewInstance("example.com/shop.Cart", "shop.Cart{}", []string{"example.com/shop.Item", "", "example.com/shop.Cart", "example.com/shop.Item"})
	assert.Equal(t, []string{"example.com/shop.Cart", "example.com/shop.Item"}, in.Dependencies())

	deps := in.Dependencies()
	deps[0] = "mutated"
	assert.Equal(t, "example.com/shop.Cart", in.Dependencies()[0], "accessor must return a copy")
}

func TestInstance_Unencodable(t *testing.T) {
	in := Unencodable("example.com/shop.Conn")
	assert.True(t, in.Unencodable())
	assert.Equal(t, `unencodable("example.com/shop.Conn")`, in.Expression())
	assert.Equal(t, "example.com/shop.Conn", in.Type())
	assert.Empty(t, in.Dependencies())

	assert.False(t, NewInstance("int", "1", nil).Unencodable())
}

func TestScenario_WireFormat(t *testing.T) {
	site := &callsite.CallSite{Type: "pkg.Caller", Method: "method", Params: []string{"int"}}
	s := New(site, "evt-1", map[string]string{"env": "prod"}, fixedTime,
		NewInstance("int", "1", nil),
		NewInstance("pkg.T", "pkg.T{}", []string{"pkg.T"}),
	)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	want := `{"version":"1.0.0","method":"pkg.Caller.method","event_id":"evt-1","properties":{"env":"prod"},` +
		`"datetime":"2026-03-01T10:30:00.123Z","inputs":[{"type":"int","eval":"1","dependencies":[]},` +
		`{"type":"pkg.T","eval":"pkg.T{}","dependencies":["pkg.T"]}]}`
	assert.JSONEq(t, want, string(data))

	// 键顺序固定
	str := string(data)
	order := []string{`"version"`, `"method"`, `"event_id"`, `"properties"`, `"datetime"`, `"inputs"`}
	last := -1
	for _, k := range order {
		idx := strings.Index(str, k)
		require.Greater(t, idx, last, k)
		last = idx
	}
}

func TestScenario_OptionalKeysOmitted(t *testing.T) {
	s := New(nil, "", nil, fixedTime)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0.0","datetime":"2026-03-01T10:30:00.123Z","inputs":[]}`, string(data))
	assert.Nil(t, s.CallSite())
	assert.Empty(t, s.Method())
}

func TestScenario_Immutable(t *testing.T) {
	props := map[string]string{"k": "v"}
	site := &callsite.CallSite{Type: "pkg.Caller", Method: "method"}
	s := New(site, "", props, fixedTime, NewInstance("int", "1", nil))

	props["k"] = "changed"
	site.Method = "other"
	s.Properties()["k"] = "again"
	s.Instances()[0] = NewInstance("string", `"x"`, nil)
	s.CallSite().Method = "third"

	assert.Equal(t, "v", s.Properties()["k"])
	assert.Equal(t, "pkg.Caller.method", s.Method())
	assert.Equal(t, "int", s.Instances()[0].Type())
}

func TestParse_RoundTrip(t *testing.T) {
	site := &callsite.CallSite{Type: "example.com/shop.Cart", Method: "Checkout"}
	s := New(site, "evt", map[string]string{"a": "b"}, fixedTime, NewInstance("int", "2", nil))
	data, err := json.Marshal(s)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, s.Method(), parsed.Method())
	assert.Equal(t, s.EventID(), parsed.EventID())
	assert.Equal(t, s.Properties(), parsed.Properties())
	assert.True(t, s.Timestamp().Equal(parsed.Timestamp()))
	require.Len(t, parsed.Instances(), 1)
	assert.Equal(t, "2", parsed.Instances()[0].Expression())
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		`{"datetime":"2026-03-01T10:30:00Z","inputs":[]}`,
		`{"version":"1.0.0","datetime":"yesterday","inputs":[]}`,
		`{"version":"1.0.0","method":"nodot","datetime":"2026-03-01T10:30:00Z","inputs":[]}`,
		`{"version":"1.0.0","datetime":"2026-03-01T10:30:00Z","inputs":[{"eval":"1"}]}`,
		`not json`,
	}
	for _, c := range cases {
		_, err := Parse([]byte(c))
		assert.Error(t, err, c)
	}
}

func TestEnvelope(t *testing.T) {
	s := New(nil, "", nil, fixedTime, NewInstance("bool", "true", nil))
	data, err := Envelope{ProjectName: "demo", Scenario: s}.Marshal()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"project_name":"demo","scenario":{"version":"1.0.0"`))

	env, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "demo", env.ProjectName)
	assert.Equal(t, "true", env.Scenario.Instances()[0].Expression())

	bare, err := json.Marshal(s)
	require.NoError(t, err)
	env, err = ParseEnvelope(bare)
	require.NoError(t, err)
	assert.Empty(t, env.ProjectName)
	assert.Len(t, env.Scenario.Instances(), 1)

	_, err = Envelope{ProjectName: "demo"}.Marshal()
	assert.Error(t, err)
	_, err = ParseEnvelope([]byte(`{"project_name":"demo","scenario":null}`))
	assert.Error(t, err)
}
