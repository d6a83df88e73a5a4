package vm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberToString(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-42, "-42"},
		{0.1, "0.1"},
		{1.5e-7, "1.5e-7"},
		{0.000001, "0.000001"},
		{1e21, "1e+21"},
		{123456789012345680000, "123456789012345680000"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
		{0.30000000000000004, "0.30000000000000004"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NumberToString(tt.in), "%v", tt.in)
	}
}

func TestEquality(t *testing.T) {
	nan := NumberValue(math.NaN())
	negZero := NumberValue(math.Copysign(0, -1))

	assert.False(t, StrictEquals(nan, nan))
	assert.True(t, SameValue(nan, nan))
	assert.True(t, SameValueZero(nan, nan))

	assert.True(t, StrictEquals(negZero, IntValue(0)))
	assert.False(t, SameValue(negZero, IntValue(0)))
	assert.True(t, SameValueZero(negZero, IntValue(0)))

	assert.True(t, StrictEquals(NewStringValue("a"), NewStringValue("a")))
	assert.False(t, StrictEquals(NewStringValue("1"), IntValue(1)))
	assert.True(t, StrictEquals(Undefined, Undefined))
	assert.False(t, StrictEquals(Undefined, Null))
}

func TestOrderedMapIteration(t *testing.T) {
	m := NewOrderedMap()
	for i := 0; i < 4; i++ {
		m.Set(IntValue(i), IntValue(i*10))
	}
	m.Set(NumberValue(math.Copysign(0, -1)), NewStringValue("zero"))
	v, ok := m.Get(IntValue(0))
	require.True(t, ok)
	assert.Equal(t, "zero", Inspect(v))

	var seen []string
	m.Each(func(k, _ Value) bool {
		seen = append(seen, Inspect(k))
		switch Inspect(k) {
		case "1":
			// Deleting the current and next entries mid-iteration.
			m.Delete(IntValue(1))
			m.Delete(IntValue(2))
		case "3":
			m.Set(IntValue(9), Undefined)
		}
		return true
	})
	assert.Equal(t, []string{"0", "1", "3", "9"}, seen)
	assert.Equal(t, 3, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Has(IntValue(0)))
}

func TestHeapHandlesAndCollect(t *testing.T) {
	v := New(Options{GCThreshold: 1 << 20})
	kept := v.NewObject()
	kept.SetOwn("tag", NewStringValue("kept"))
	h := v.NewHandle(ObjectValue(kept))
	for i := 0; i < 100; i++ {
		v.NewObject()
	}

	v.Collect()
	s := v.HeapStats()
	assert.Equal(t, 1, s.Collections)
	assert.GreaterOrEqual(t, s.Freed, 100)
	assert.Same(t, kept, h.Value().AsObject())

	live := s.Live
	h.Release()
	v.Collect()
	assert.Equal(t, live-1, v.HeapStats().Live)
}

func TestJobQueue(t *testing.T) {
	var logs bytes.Buffer
	v := New(Options{Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))})

	var order []string
	v.EnqueueJob(Job{Run: func(v *VM) error {
		order = append(order, "first")
		v.EnqueueJob(Job{Run: func(*VM) error {
			order = append(order, "nested")
			return nil
		}})
		return errors.New("first failed")
	}})
	v.EnqueueJob(Job{Run: func(*VM) error {
		order = append(order, "second")
		return errors.New("second failed")
	}})
	assert.Equal(t, 2, v.PendingJobs())

	err := v.DrainJobQueue()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "second failed")
	assert.Equal(t, []string{"first", "second", "nested"}, order)
	assert.Equal(t, 0, v.PendingJobs())
	assert.Contains(t, logs.String(), "jobs.drain")
	assert.Contains(t, logs.String(), "count=3")
}

func TestJobQueueStopsOnCancel(t *testing.T) {
	v := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	v.SetContext(ctx)
	ran := 0
	v.EnqueueJob(Job{Run: func(*VM) error {
		ran++
		cancel()
		return nil
	}})
	v.EnqueueJob(Job{Run: func(*VM) error {
		ran++
		return nil
	}})
	err := v.DrainJobQueue()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, v.PendingJobs())
}

func TestNativeErrors(t *testing.T) {
	v := New(Options{})
	err := v.NewTypeErrorf("bad %s", "thing")
	var ex *Exception
	require.ErrorAs(t, err, &ex)
	o := ex.Value.AsObject()
	require.NotNil(t, o)
	assert.Equal(t, ClassError, o.Class())
	assert.Same(t, v.Realm().ErrorPrototypes[ErrTypeError], o.Prototype())
	assert.Contains(t, ex.Error(), "bad thing")

	// Without the builtins the prototypes carry no name.
	v.Realm().ErrorPrototypes[ErrTypeError].SetOwn("name", NewStringValue("TypeError"))
	assert.Equal(t, "TypeError: bad thing", DescribeThrown(ex.Value))

	host := v.ThrownValue(errors.New("disk on fire"))
	assert.Same(t, v.Realm().ErrorPrototypes[ErrInternalError], host.AsObject().Prototype())
	assert.Contains(t, DescribeThrown(host), "disk on fire")
}
