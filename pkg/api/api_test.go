package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlang/lumen/pkg/vm"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	return NewVM(Config{})
}

func TestSlotAPI_RoundTripsScalars(t *testing.T) {
	v := newTestVM(t)
	v.SetSlotCount(1)

	v.SetSlotBool(0, true)
	assert.True(t, v.GetSlotBool(0))

	v.SetSlotDouble(0, 3.5)
	assert.Equal(t, 3.5, v.GetSlotDouble(0))

	v.SetSlotString(0, "hello")
	assert.Equal(t, "hello", v.GetSlotString(0))

	v.SetSlotBytes(0, []byte{'h', 'i'})
	assert.Equal(t, []byte("hi"), v.GetSlotBytes(0))

	v.SetSlotNull(0)
	assert.False(t, v.GetSlotBool(0))
}

func TestSlotAPI_CopySlot(t *testing.T) {
	v := newTestVM(t)
	v.SetSlotCount(2)
	v.SetSlotDouble(0, 42)
	v.CopySlot(1, 0)
	assert.Equal(t, float64(42), v.GetSlotDouble(1))
}

func TestSlotAPI_ListAndMap(t *testing.T) {
	v := newTestVM(t)
	v.SetSlotCount(2)
	v.SetSlotNewList(0)
	v.SetSlotDouble(1, 10)
	v.ListAppendSlot(0, 1)

	list := v.slots[0].AsList()
	require.Len(t, list.Elements, 1)

	v.SetSlotNewMap(0)
	v.SetSlotString(1, "k")
	v.MapSetSlot(0, 1, 1)
}

func TestSlotAPI_SetSlotCountGrowsAndTruncates(t *testing.T) {
	v := newTestVM(t)
	v.SetSlotCount(3)
	assert.Equal(t, 3, v.GetSlotCount())
	v.SetSlotCount(1)
	assert.Equal(t, 1, v.GetSlotCount())
}

func TestInterpret_GetVariable(t *testing.T) {
	v := newTestVM(t)
	result, err := v.Interpret("main", `var Greeting = "hi"`)
	require.NoError(t, err)
	require.Equal(t, vm.ResultSuccess, result)

	v.SetSlotCount(1)
	ok := v.GetVariable("main", "Greeting", 0)
	require.True(t, ok)
	assert.Equal(t, "hi", v.GetSlotString(0))
}

func TestInterpret_GetVariableUnknownReturnsFalse(t *testing.T) {
	v := newTestVM(t)
	_, err := v.Interpret("main", `var X = 1`)
	require.NoError(t, err)

	v.SetSlotCount(1)
	ok := v.GetVariable("main", "DoesNotExist", 0)
	assert.False(t, ok)
}

func TestCallHandle_InvokesScriptMethod(t *testing.T) {
	v := newTestVM(t)
	_, err := v.Interpret("main", `
class Doubler {
  static twice(n) { n * 2 }
}
`)
	require.NoError(t, err)

	v.SetSlotCount(1)
	ok := v.GetVariable("main", "Doubler", 0)
	require.True(t, ok)
	v.SetSlotCount(2)
	v.SetSlotDouble(1, 21)

	handle := v.MakeCallHandle("twice(_)")
	err = v.Call(handle)
	require.NoError(t, err)
	assert.Equal(t, float64(42), v.GetSlotDouble(0))
}

func TestHandle_RetainsValueAcrossSlotReuse(t *testing.T) {
	v := newTestVM(t)
	v.SetSlotCount(1)
	v.SetSlotString(0, "keep me")

	h := v.GetSlotHandle(0)
	defer v.ReleaseHandle(h)

	v.SetSlotString(0, "overwritten")
	v.SetSlotHandle(0, h)
	assert.Equal(t, "keep me", v.GetSlotString(0))
}

func TestForeignMethod_RegisterBeforeClassExists(t *testing.T) {
	v := newTestVM(t)

	v.RegisterForeignMethod("main", "Native", true, "hash(_)", func(host *VM) {
		s := host.GetSlotString(1)
		host.SetSlotDouble(0, float64(len(s)))
	})

	_, err := v.Interpret("main", `class Native { foreign static hash(value) }`)
	require.NoError(t, err)

	v.SetSlotCount(1)
	require.True(t, v.GetVariable("main", "Native", 0))
	v.SetSlotCount(2)
	v.SetSlotString(1, "abcd")

	handle := v.MakeCallHandle("hash(_)")
	require.NoError(t, v.Call(handle))
	assert.Equal(t, float64(4), v.GetSlotDouble(0))
}

func TestForeignMethod_DefaultsToNullWhenUnset(t *testing.T) {
	v := newTestVM(t)
	v.RegisterForeignMethod("main", "Native", true, "noop()", func(host *VM) {})

	_, err := v.Interpret("main", `class Native { foreign static noop() }`)
	require.NoError(t, err)

	v.SetSlotCount(1)
	require.True(t, v.GetVariable("main", "Native", 0))

	handle := v.MakeCallHandle("noop()")
	require.NoError(t, v.Call(handle))
	assert.True(t, v.slots[0].IsNull())
}

func TestForeignMethod_AbortFiberReturnsError(t *testing.T) {
	v := newTestVM(t)
	v.RegisterForeignMethod("main", "Native", true, "fail()", func(host *VM) {
		host.SetSlotString(1, "boom")
		host.AbortFiber(1)
	})

	_, err := v.Interpret("main", `class Native { foreign static fail() }`)
	require.NoError(t, err)

	v.SetSlotCount(1)
	require.True(t, v.GetVariable("main", "Native", 0))

	handle := v.MakeCallHandle("fail()")
	err = v.Call(handle)
	require.Error(t, err)
}

func TestResolveForeignMethod_UsesConfigCallback(t *testing.T) {
	v := NewVM(Config{
		BindForeignMethod: func(module, className string, isStatic bool, signature string) ForeignMethodFn {
			if className == "Native" && signature == "answer()" {
				return func(host *VM) { host.SetSlotDouble(0, 42) }
			}
			return nil
		},
	})

	_, err := v.Interpret("main", `class Native { foreign static answer() }`)
	require.NoError(t, err)

	require.True(t, v.ResolveForeignMethod("main", "Native", true, "answer()"))

	v.SetSlotCount(1)
	require.True(t, v.GetVariable("main", "Native", 0))

	handle := v.MakeCallHandle("answer()")
	require.NoError(t, v.Call(handle))
	assert.Equal(t, float64(42), v.GetSlotDouble(0))
}
