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

package intercept

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "runabout/pkg/errors"
	"runabout/pkg/instruction"
)

func counter() (Hook, *atomic.Int64) {
	var n atomic.Int64
	return func(p *Point, args []any) { n.Add(1) }, &n
}

func TestTable_DeclareIdempotent(t *testing.T) {
	tbl := NewTable()
	p1 := tbl.Declare("example.com/shop.Cart", "Checkout")
	p2 := tbl.Declare("example.com/shop.Cart", "Checkout")
	assert.Same(t, p1, p2)
	assert.Equal(t, "example.com/shop.Cart.Checkout", p1.String())
	assert.False(t, p1.Patched())

	got, ok := tbl.Lookup("example.com/shop.Cart", "Checkout")
	require.True(t, ok)
	assert.Same(t, p1, got)
	_, ok = tbl.Lookup("example.com/shop.Cart", "Total")
	assert.False(t, ok)
}

func TestTable_InstallAndUninstall(t *testing.T) {
	tbl := NewTable()
	checkout := tbl.Declare("example.com/shop.Cart", "Checkout")
	total := tbl.Declare("example.com/shop.Cart", "Total")
	other := tbl.Declare("example.com/shop.Order", "Place")

	hook, calls := counter()
	n, err := tbl.Install(instruction.MustParse("example.com/shop.Cart"), hook)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, checkout.Patched())
	assert.True(t, total.Patched())
	assert.False(t, other.Patched())
	assert.Equal(t, 2, tbl.PatchedCount())

	checkout.Fire(1, "a")
	total.Fire()
	other.Fire()
	assert.Equal(t, int64(2), calls.Load())

	n, err = tbl.Uninstall(instruction.MustParse("example.com/shop.Cart"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, checkout.Patched())
	checkout.Fire()
	assert.Equal(t, int64(2), calls.Load())
	assert.Empty(t, tbl.Active())
}

func TestTable_NoPoint(t *testing.T) {
	tbl := NewTable()
	tbl.Declare("example.com/shop.Cart", "Checkout")
	hook, _ := counter()

	_, err := tbl.Install(instruction.MustParse("example.com/shop.Cart#Missing"), hook)
	assert.ErrorIs(t, err, ErrNoPoint)
	assert.ErrorIs(t, err, rerrors.ErrInstrumentation)
	assert.Empty(t, tbl.Active())

	_, err = tbl.Uninstall(instruction.MustParse("example.com/shop.Cart#Checkout"))
	assert.ErrorIs(t, err, ErrNoPoint)

	_, err = tbl.Install(instruction.MustParse("example.com/shop.Cart#Checkout"), nil)
	assert.ErrorIs(t, err, rerrors.ErrInstrumentation)
}

func TestTable_OverlappingInstructions(t *testing.T) {
	tbl := NewTable()
	p := tbl.Declare("example.com/shop.Cart", "Checkout")
	typeHook, typeCalls := counter()
	methodHook, methodCalls := counter()

	_, err := tbl.Install(instruction.MustParse("example.com/shop.Cart"), typeHook)
	require.NoError(t, err)
	_, err = tbl.Install(instruction.MustParse("example.com/shop.Cart#Checkout"), methodHook)
	require.NoError(t, err)

	p.Fire()
	assert.Equal(t, int64(0), typeCalls.Load())
	assert.Equal(t, int64(1), methodCalls.Load())

	// 移除方法级指令后仍由整类型指令覆盖
	_, err = tbl.Uninstall(instruction.MustParse("example.com/shop.Cart#Checkout"))
	require.NoError(t, err)
	assert.True(t, p.Patched())
	p.Fire()
	assert.Equal(t, int64(1), typeCalls.Load())
	assert.Equal(t, []instruction.Instruction{{Type: "example.com/shop.Cart"}}, tbl.Active())
}

func TestTable_LateDeclaration(t *testing.T) {
	tbl := NewTable()
	tbl.Declare("example.com/shop.Cart", "Checkout")
	hook, calls := counter()
	_, err := tbl.Install(instruction.MustParse("example.com/shop.Cart"), hook)
	require.NoError(t, err)

	late := tbl.Declare("example.com/shop.Cart", "Refund")
	assert.True(t, late.Patched())
	late.Fire()
	assert.Equal(t, int64(1), calls.Load())
}

func TestPoint_FireRecoversAndNil(t *testing.T) {
	tbl := NewTable()
	p := tbl.Declare("example.com/shop.Cart", "Checkout")
	_, err := tbl.Install(instruction.MustParse("example.com/shop.Cart#Checkout"), func(*Point, []any) {
		panic("hook failure")
	})
	require.NoError(t, err)
	assert.NotPanics(t, func() { p.Fire() })

	var nilPoint *Point
	assert.NotPanics(t, func() { nilPoint.Fire() })
}

func TestPoint_ConcurrentFireDuringInstall(t *testing.T) {
	tbl := NewTable()
	p := tbl.Declare("example.com/shop.Cart", "Checkout")
	ins := instruction.MustParse("example.com/shop.Cart#Checkout")
	hook, _ := counter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				p.Fire(j)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		_, err := tbl.Install(ins, hook)
		require.NoError(t, err)
		_, err = tbl.Uninstall(ins)
		require.NoError(t, err)
	}
	wg.Wait()
	assert.False(t, p.Patched())
}
