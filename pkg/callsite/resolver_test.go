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

package callsite_test

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runabout/pkg/callsite"
	rerrors "runabout/pkg/errors"
)

type fixtureCaller struct{}

func (fixtureCaller) Handle(ctx context.Context, id int, tags ...string) {}

type harness struct {
	r *callsite.Resolver
}

func (h *harness) Capture() (*callsite.CallSite, error) {
	return h.r.Resolve(nil)
}

type rangeHost struct {
	r *callsite.Resolver
}

// Loop 在 range-over-func 循环体内解析调用点
func (h rangeHost) Loop(items []string) (sites []*callsite.CallSite, errs []error) {
	for range slices.Values(items) {
		site, err := h.r.Resolve(nil)
		sites = append(sites, site)
		errs = append(errs, err)
	}
	return sites, errs
}

func TestResolve_SkipsFilteredFrames(t *testing.T) {
	stack := callsite.StackOf(
		"runabout/pkg/runabout.(*Service).CreateScenario",
		"example.com/app.(*Handler).Serve.func1",
		"example.com/app.glob..func1",
		"example.com/app.(*Handler).Serve",
		"example.com/app.main",
	)
	r := callsite.NewResolver(callsite.WithStack(stack))

	site, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app.Handler.Serve", site.String())
}

func TestResolve_Deterministic(t *testing.T) {
	stack := callsite.StackOf(
		"runabout/pkg/intercept.(*Point).Fire",
		"example.com/app.(*Repo).Load",
		"example.com/app.(*Handler).Serve",
	)
	r := callsite.NewResolver(callsite.WithStack(stack))
	first, err := r.Resolve(nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Resolve(nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolve_NoMatchIsEmpty(t *testing.T) {
	stack := callsite.StackOf(
		"runabout/pkg/runabout.(*Builder).Build",
		"example.com/app.run.func1",
		"example.com/app.glob..func2",
		"runtime.goexit",
	)
	r := callsite.NewResolver(callsite.WithStack(stack))

	site, err := r.Resolve(nil)
	assert.Nil(t, site)
	assert.ErrorIs(t, err, callsite.ErrNoCallSite)
	assert.False(t, errors.Is(err, rerrors.ErrResolution))
}

func TestResolve_EmptyStack(t *testing.T) {
	r := callsite.NewResolver(callsite.WithStack(callsite.StaticStack(nil)))
	site, err := r.Resolve(nil)
	assert.Nil(t, site)
	assert.ErrorIs(t, err, callsite.ErrNoCallSite)
}

func TestResolve_FailureShortCircuits(t *testing.T) {
	types := callsite.NewTypeRegistry()
	types.Register(reflect.TypeOf(fixtureCaller{}))

	stack := callsite.StackOf(
		"runabout/pkg/callsite_test.fixtureCaller.Missing",
		"example.com/app.(*Handler).Serve",
	)
	r := callsite.NewResolver(callsite.WithStack(stack), callsite.WithTypes(types))

	site, err := r.Resolve(nil)
	assert.Nil(t, site, "must not fall through to a deeper frame")
	assert.ErrorIs(t, err, rerrors.ErrResolution)
	assert.ErrorIs(t, err, callsite.ErrMethodNotFound)
}

func TestResolve_RegisteredSignature(t *testing.T) {
	types := callsite.NewTypeRegistry()
	types.RegisterValue(&fixtureCaller{})

	r := callsite.NewResolver(
		callsite.WithStack(callsite.StackOf("runabout/pkg/callsite_test.fixtureCaller.Handle")),
		callsite.WithTypes(types),
	)
	site, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "runabout/pkg/callsite_test.fixtureCaller", site.Type)
	assert.Equal(t, "Handle", site.Method)
	assert.Equal(t, []string{"context.Context", "int", "...string"}, site.Params)
}

func TestResolve_UnexportedMethodOfRegisteredType(t *testing.T) {
	types := callsite.NewTypeRegistry()
	types.RegisterValue(fixtureCaller{})
	r := callsite.NewResolver(
		callsite.WithStack(callsite.StackOf("runabout/pkg/callsite_test.fixtureCaller.handle")),
		callsite.WithTypes(types),
	)
	site, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "handle", site.Method)
	assert.Empty(t, site.Params)
}

func TestResolve_RegisteredFunc(t *testing.T) {
	types := callsite.NewTypeRegistry()
	require.NoError(t, types.RegisterFunc(callsite.ParseCallSite))
	require.Error(t, types.RegisterFunc(42))

	frame := callsite.ParseFrame("runabout/pkg/callsite.ParseCallSite")
	params, err := types.Signature(frame)
	require.NoError(t, err)
	assert.Equal(t, []string{"string"}, params)
}

func TestResolve_Predicates(t *testing.T) {
	stack := callsite.StackOf(
		"example.com/app.(*Cart).Checkout",
		"example.com/app.(*Handler).Serve",
		"example.com/app.main",
	)
	r := callsite.NewResolver(
		callsite.WithStack(stack),
		callsite.WithPredicate(func(f callsite.Frame) bool { return f.Method != "Serve" }),
	)

	notCheckout := func(f callsite.Frame) bool { return f.Method != "Checkout" }
	site, err := r.Resolve(notCheckout)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app.main", site.String())

	site, err = r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app.Cart.Checkout", site.String())
}

func TestResolve_PanickingProviderIsRecovered(t *testing.T) {
	r := callsite.NewResolver(callsite.WithStack(callsite.StackFunc(func() []callsite.Frame {
		panic("stack unavailable")
	})))
	var (
		site *callsite.CallSite
		err  error
	)
	require.NotPanics(t, func() { site, err = r.Resolve(nil) })
	assert.Nil(t, site)
	assert.ErrorIs(t, err, rerrors.ErrResolution)
}

func TestRuntimeStack_ResolvesCaller(t *testing.T) {
	h := &harness{r: callsite.NewResolver()}
	site, err := h.Capture()
	require.NoError(t, err)
	assert.Equal(t, "runabout/pkg/callsite_test.harness.Capture", site.String())
}

func TestRuntimeStack_SkipsClosure(t *testing.T) {
	r := callsite.NewResolver()
	var site *callsite.CallSite
	var err error
	func() {
		site, err = r.Resolve(nil)
	}()
	require.NoError(t, err)
	assert.Equal(t, "runabout/pkg/callsite_test.TestRuntimeStack_SkipsClosure", site.String())
}

func TestRuntimeStack_Frames(t *testing.T) {
	frames := callsite.RuntimeStack{}.Frames()
	require.NotEmpty(t, frames)
	assert.Equal(t, "runabout/pkg/callsite_test.TestRuntimeStack_Frames", frames[0].Function)
	assert.NotEmpty(t, frames[0].File)
	assert.Positive(t, frames[0].Line)
}

func TestRuntimeStack_SkipsRangeFuncBody(t *testing.T) {
	h := rangeHost{r: callsite.NewResolver()}
	sites, errs := h.Loop([]string{"a", "b"})
	require.Len(t, sites, 2)
	for i := range sites {
		require.NoError(t, errs[i])
		assert.Equal(t, "runabout/pkg/callsite_test.rangeHost.Loop", sites[i].String())
	}
}

func TestRuntimeStack_RangeFuncBodyOfRegisteredType(t *testing.T) {
	types := callsite.NewTypeRegistry()
	types.RegisterValue(rangeHost{})
	h := rangeHost{r: callsite.NewResolver(callsite.WithTypes(types))}
	sites, errs := h.Loop([]string{"a"})
	require.Len(t, sites, 1)
	require.NoError(t, errs[0])
	assert.Equal(t, "Loop", sites[0].Method)
	assert.Equal(t, []string{"[]string"}, sites[0].Params)
}

func TestResolve_RangeFuncFrameOnConstructedStack(t *testing.T) {
	stack := callsite.StackOf(
		"example.com/app.(*Handler).Serve-range1",
		"slices.Values[...].func1",
		"example.com/app.(*Handler).Serve",
	)
	site, err := callsite.NewResolver(callsite.WithStack(stack)).Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app.Handler.Serve", site.String())
}
