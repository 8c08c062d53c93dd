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

package runabout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "runabout/pkg/errors"
	"runabout/pkg/ingest"
	"runabout/pkg/log"
	"runabout/pkg/runabout"
	"runabout/pkg/scenario"
)

type checkout struct {
	svc *runabout.Service
}

func (c *checkout) submit(order Record) *scenario.Scenario {
	return c.svc.CreateScenario("order-submitted", nil, order)
}

func TestNewService_RequiresProject(t *testing.T) {
	_, err := runabout.NewService("  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrConfiguration)

	_, err = runabout.Connect("demo", "")
	assert.ErrorIs(t, err, rerrors.ErrConfiguration)
}

func TestService_ResolvesRuntimeCaller(t *testing.T) {
	svc, err := runabout.NewService("demo", runabout.WithLogger(log.Discard()))
	require.NoError(t, err)
	c := &checkout{svc: svc}

	sc := c.submit(Record{ID: 7})
	assert.Equal(t, testPkg+".checkout.submit", sc.Method())
	assert.Equal(t, "order-submitted", sc.EventID())
	require.Len(t, sc.Instances(), 1)
	assert.Equal(t, `runabout_test.Record{ID: 7}`, sc.Instances()[0].Expression())
}

func TestService_SaveScenarioDelivers(t *testing.T) {
	sink := ingest.NewMemorySink()
	client := ingest.NewAsyncClient("demo", sink, ingest.AsyncOptions{Workers: 1, Backoff: time.Millisecond, Logger: log.Discard()})
	svc, err := runabout.NewService("demo",
		runabout.WithIngest(client),
		runabout.WithLogger(log.Discard()),
		runabout.WithBuilder(staticBuilder("pkg.(*Caller).method")),
	)
	require.NoError(t, err)
	assert.Equal(t, "demo", svc.ProjectName())

	sc := svc.SaveScenario("evt", map[string]string{"k": "v"}, Person{Name: "Ethan"})
	require.NotNil(t, sc)
	require.NoError(t, svc.Close(context.Background()))

	envs, err := sink.Envelopes()
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "demo", envs[0].ProjectName)
	assert.Equal(t, "pkg.Caller.method", envs[0].Scenario.Method())
	assert.Equal(t, map[string]string{"k": "v"}, envs[0].Scenario.Properties())
	assert.Equal(t, sc.Instances(), envs[0].Scenario.Instances())
}

func TestService_EmitNilAndDiscard(t *testing.T) {
	var got []*scenario.Scenario
	svc, err := runabout.NewService("demo",
		runabout.WithIngest(ingest.ClientFunc(func(s *scenario.Scenario) { got = append(got, s) })),
		runabout.WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	svc.Emit(nil)
	assert.Empty(t, got)
	svc.Emit(scenario.New(nil, "", nil, time.Now()))
	assert.Len(t, got, 1)
	require.NoError(t, svc.Close(context.Background()))

	in := svc.Encode([]int{1, 2})
	assert.Equal(t, "[]int{1, 2}", in.Expression())
}
