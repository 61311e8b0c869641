package audiochain_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain"
	"pipelined.dev/audiochain/config"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/param"
)

func frameOf(v byte) []byte {
	return bytes.Repeat([]byte{v}, mono.FrameBytes())
}

func TestColdConfig(t *testing.T) {
	e, _ := newEngine(t)
	p, _ := sourceGraph(t, e)

	tests := []struct {
		description string
		set         func() error
		key         string
		value       string
		expected    error
	}{
		{
			description: "dynamic",
			set:         func() error { return e.SetConfig(p, "level", "10") },
			key:         "level",
			value:       "10",
		},
		{
			description: "static",
			set:         func() error { return e.SetConfig(p, "offset", "20") },
			key:         "offset",
			value:       "20",
		},
		{
			description: "clamped",
			set:         func() error { return e.SetConfig(p, "level", "500") },
			key:         "level",
			value:       "100",
			expected:    audiochain.ErrWarning,
		},
		{
			description: "rejected",
			set:         func() error { return e.SetConfigPolicy(p, "level", "-1", param.Reject) },
			key:         "level",
			value:       "100",
			expected:    audiochain.ErrOutOfRange,
		},
		{
			description: "unknown key",
			set:         func() error { return e.SetConfig(p, "unknown", "1") },
			key:         "level",
			value:       "100",
			expected:    audiochain.ErrNotFound,
		},
		{
			description: "whole config",
			set:         func() error { return e.SetConfigPtr(p, &probeDynamic{Level: 7}) },
			key:         "level",
			value:       "7",
		},
		{
			description: "foreign config",
			set:         func() error { return e.SetConfigPtr(p, &struct{}{}) },
			key:         "level",
			value:       "7",
			expected:    audiochain.ErrIncompatible,
		},
		{
			description: "defaults",
			set:         func() error { return e.ResetDefault(p) },
			key:         "offset",
			value:       "0",
		},
	}
	for _, test := range tests {
		err := test.set()
		if test.expected == nil {
			assert.NoError(t, err, test.description)
		} else {
			assert.True(t, errors.Is(err, test.expected), "%s: %v", test.description, err)
		}
		v, err := e.GetConfig(p, test.key)
		require.NoError(t, err)
		assert.Equal(t, test.value, v, test.description)
	}
}

func TestRejectPolicy(t *testing.T) {
	s := config.Default()
	s.ClampPolicy = "reject"
	e, _ := newEngine(t, audiochain.WithSettings(s))
	p, _ := sourceGraph(t, e)

	err := e.SetConfig(p, "level", "500")
	assert.True(t, errors.Is(err, audiochain.ErrOutOfRange))
	v, err := e.GetConfig(p, "level")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestHotDynamic(t *testing.T) {
	ctx := context.Background()
	var r recorder
	e, stats := newEngine(t, r.options()...)
	p, out := sourceGraph(t, e)
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)

	ticket, err := e.RequestUpdate(p)
	assert.NoError(t, err)
	assert.Equal(t, uuid.Nil, ticket, "nothing staged")

	require.NoError(t, e.SetConfig(p, "level", "7"))
	v, err := e.GetConfig(p, "level")
	require.NoError(t, err)
	assert.Equal(t, "0", v, "staged value is not live")

	ticket, err = e.RequestUpdate(p)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ticket)
	_, err = e.RequestUpdate(p)
	assert.True(t, errors.Is(err, audiochain.ErrInvalidState), "update is pending")

	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, frameOf(7), read(t, e, out))
	u := r.lastUpdate(t)
	assert.Equal(t, p, u.ref)
	assert.Equal(t, ticket, u.ticket)
	assert.NoError(t, u.err)
	v, err = e.GetConfig(p, "level")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
	assert.Equal(t, []transition{
		{audiochain.Enabled, audiochain.ApplyConfigRequested},
		{audiochain.ApplyConfigRequested, audiochain.Enabled},
	}, r.transitions)

	// failed configure restores the last good config
	require.NoError(t, e.SetConfig(p, "failConfigure", "true"))
	require.NoError(t, e.SetConfig(p, "level", "9"))
	ticket, err = e.RequestUpdate(p)
	require.NoError(t, err)
	require.NoError(t, e.Cycle(ctx))
	u = r.lastUpdate(t)
	assert.Equal(t, ticket, u.ticket)
	assert.True(t, errors.Is(u.err, audiochain.ErrOutOfRange))
	assert.Equal(t, frameOf(7), read(t, e, out))
	v, err = e.GetConfig(p, "level")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
	assert.Equal(t, int64(1), stats.inits.Load())
}

func TestHotInconsistent(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	p, _ := sourceGraph(t, e)
	require.NoError(t, e.SetConfig(p, "offset", "60"))
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)

	require.NoError(t, e.SetConfig(p, "level", "60"))
	ticket, err := e.RequestUpdate(p)
	assert.True(t, errors.Is(err, audiochain.ErrInconsistent))
	assert.Equal(t, uuid.Nil, ticket)
	info := e.Algos()[0]
	assert.Equal(t, audiochain.Enabled, info.State)

	// rejected values are discarded
	ticket, err = e.RequestUpdate(p)
	assert.NoError(t, err)
	assert.Equal(t, uuid.Nil, ticket)
}

func TestReinit(t *testing.T) {
	ctx := context.Background()
	var r recorder
	e, stats := newEngine(t, r.options()...)
	p, out := sourceGraph(t, e)
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)

	require.NoError(t, e.SetConfig(p, "offset", "5"))
	ticket, err := e.RequestUpdate(p)
	require.NoError(t, err)

	// reinit slot doesn't process
	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, int64(0), stats.processes.Load())
	err = e.ReadChunk(out, make([]byte, mono.FrameBytes()))
	assert.True(t, fault.IsWarning(err))
	assert.Equal(t, audiochain.ApplyReinitCompleted, e.Algos()[0].State)
	u := r.lastUpdate(t)
	assert.Equal(t, ticket, u.ticket)
	assert.NoError(t, u.err)

	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, int64(1), stats.processes.Load())
	assert.Equal(t, frameOf(5), read(t, e, out))

	assert.Equal(t, []transition{
		{audiochain.Enabled, audiochain.ApplyReinitRequested},
		{audiochain.ApplyReinitRequested, audiochain.ApplyReinitOnGoing},
		{audiochain.ApplyReinitOnGoing, audiochain.ApplyReinitCompleted},
		{audiochain.ApplyReinitCompleted, audiochain.Enabled},
	}, r.transitions)
	assert.Equal(t, int64(2), stats.inits.Load())
	assert.Equal(t, int64(1), stats.deinits.Load())
}

func TestReinitFailure(t *testing.T) {
	ctx := context.Background()
	var r recorder
	e, stats := newEngine(t, r.options()...)
	p, out := sourceGraph(t, e)
	require.NoError(t, e.SetConfig(p, "offset", "3"))
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)

	require.NoError(t, e.SetConfig(p, "failInit", "true"))
	ticket, err := e.RequestUpdate(p)
	require.NoError(t, err)
	require.NoError(t, e.Cycle(ctx))
	u := r.lastUpdate(t)
	assert.Equal(t, ticket, u.ticket)
	assert.True(t, errors.Is(u.err, audiochain.ErrAllocationError))
	assert.Equal(t, audiochain.Enabled, e.Algos()[0].State)

	// last good config is initialized again
	v, err := e.GetConfig(p, "failInit")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
	assert.Equal(t, int64(3), stats.inits.Load())
	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, frameOf(3), read(t, e, out))
}

func TestReinitFailureDeinit(t *testing.T) {
	ctx := context.Background()
	var r recorder
	e, _ := newEngine(t, r.options()...)
	p, out := sourceGraph(t, e)
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)

	require.NoError(t, e.SetConfig(p, "failDeinit", "true"))
	require.NoError(t, e.SetConfig(p, "failConfigure", "true"))
	_, err := e.RequestUpdate(p)
	require.NoError(t, err)
	require.NoError(t, e.Cycle(ctx))
	u := r.lastUpdate(t)
	assert.True(t, errors.Is(u.err, audiochain.ErrOutOfRange), "%v", u.err)
	assert.True(t, errors.Is(u.err, audiochain.ErrInvalidState), "%v", u.err)
	assert.Equal(t, audiochain.Enabled, e.Algos()[0].State)

	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, frameOf(0), read(t, e, out))
}

func TestColdHotEquivalence(t *testing.T) {
	ctx := context.Background()
	settings := map[string]string{"offset": "4", "level": "2"}

	cold, _ := newEngine(t)
	pc, outc := sourceGraph(t, cold)
	for k, v := range settings {
		require.NoError(t, cold.SetConfig(pc, k, v))
	}
	require.NoError(t, cold.Play(ctx, audiochain.Start))
	defer cold.Play(ctx, audiochain.Stop)
	require.NoError(t, cold.Cycle(ctx))

	hot, _ := newEngine(t)
	ph, outh := sourceGraph(t, hot)
	require.NoError(t, hot.Play(ctx, audiochain.Start))
	defer hot.Play(ctx, audiochain.Stop)
	for k, v := range settings {
		require.NoError(t, hot.SetConfig(ph, k, v))
	}
	_, err := hot.RequestUpdate(ph)
	require.NoError(t, err)
	require.NoError(t, hot.Cycle(ctx))
	require.NoError(t, hot.Cycle(ctx))

	assert.Equal(t, read(t, cold, outc), read(t, hot, outh))
	for k := range settings {
		vc, err := cold.GetConfig(pc, k)
		require.NoError(t, err)
		vh, err := hot.GetConfig(ph, k)
		require.NoError(t, err)
		assert.Equal(t, vc, vh, k)
	}
}

func TestDisable(t *testing.T) {
	ctx := context.Background()
	var r recorder
	e, stats := newEngine(t, r.options()...)
	p, out := sourceGraph(t, e)
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)

	require.NoError(t, e.SetConfig(p, "level", "1"))
	ticket, err := e.RequestUpdate(p)
	require.NoError(t, err)
	require.NoError(t, e.SetCommonConfig(p, audiochain.KeyEnabled, false))
	u := r.lastUpdate(t)
	assert.Equal(t, ticket, u.ticket)
	assert.True(t, errors.Is(u.err, audiochain.ErrInvalidState))

	enabled, err := e.GetCommonConfig(p, audiochain.KeyEnabled)
	require.NoError(t, err)
	assert.Equal(t, false, enabled)
	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, int64(0), stats.processes.Load())

	_, err = e.RequestUpdate(p)
	assert.True(t, errors.Is(err, audiochain.ErrInvalidState))

	require.NoError(t, e.SetCommonConfig(p, audiochain.KeyEnabled, "true"))
	require.NoError(t, e.Cycle(ctx))
	assert.Equal(t, int64(1), stats.processes.Load())
	assert.Equal(t, frameOf(0), read(t, e, out))
}

func TestDisableTuning(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	out, err := e.CreateChunk("out", mono)
	require.NoError(t, err)
	require.NoError(t, e.SetChunkConfig(out, "chunkType", "user_sink"))
	p, err := e.CreateAlgo("probe", "", audiochain.DisableTuning, "")
	require.NoError(t, err)
	require.NoError(t, e.ConnectOutput(p, 0, out))

	require.NoError(t, e.SetConfig(p, "level", "1"), "cold path is allowed")
	require.NoError(t, e.Play(ctx, audiochain.Start))
	defer e.Play(ctx, audiochain.Stop)
	err = e.SetConfig(p, "level", "2")
	assert.True(t, errors.Is(err, audiochain.ErrInvalidState))
}

func TestStopDiscardsPending(t *testing.T) {
	ctx := context.Background()
	var r recorder
	e, _ := newEngine(t, r.options()...)
	p, _ := sourceGraph(t, e)
	require.NoError(t, e.Play(ctx, audiochain.Start))

	require.NoError(t, e.SetConfig(p, "offset", "1"))
	ticket, err := e.RequestUpdate(p)
	require.NoError(t, err)
	require.NoError(t, e.Play(ctx, audiochain.Stop))

	u := r.lastUpdate(t)
	assert.Equal(t, ticket, u.ticket)
	assert.True(t, errors.Is(u.err, audiochain.ErrInvalidState))
	assert.Equal(t, audiochain.Enabled, e.Algos()[0].State)
	v, err := e.GetConfig(p, "offset")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestCommonConfig(t *testing.T) {
	e, _ := newEngine(t)
	p, _ := sourceGraph(t, e)

	require.NoError(t, e.SetCommonConfig(p, audiochain.KeyDescription, "left channel"))
	v, err := e.GetCommonConfig(p, audiochain.KeyDescription)
	require.NoError(t, err)
	assert.Equal(t, "left channel", v)

	require.NoError(t, e.SetCommonConfig(p, audiochain.KeyUserData, 42))
	v, err = e.GetCommonConfig(p, audiochain.KeyUserData)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	err = e.SetCommonConfig(p, audiochain.KeyDescription, 1)
	assert.True(t, errors.Is(err, audiochain.ErrIncompatible))
	err = e.SetCommonConfig(p, audiochain.KeyControlCb, "callback")
	assert.True(t, errors.Is(err, audiochain.ErrIncompatible))
	err = e.SetCommonConfig(p, audiochain.KeyEnabled, "maybe")
	assert.True(t, errors.Is(err, audiochain.ErrOutOfRange))
	_, err = e.GetCommonConfig(p, "unknown")
	assert.True(t, errors.Is(err, audiochain.ErrNotFound))
}

func TestParams(t *testing.T) {
	e, _ := newEngine(t)
	p, _ := sourceGraph(t, e)
	require.NoError(t, e.SetConfig(p, "offset", "12"))

	params, err := e.Params(p)
	require.NoError(t, err)
	values := map[string]string{}
	for _, pr := range params {
		values[pr.Template+"."+pr.Name] = pr.Value
	}
	assert.Equal(t, map[string]string{
		"static.failInit":       "false",
		"static.failDeinit":     "false",
		"static.offset":         "12",
		"dynamic.failConfigure": "false",
		"dynamic.failProcess":   "false",
		"dynamic.level":         "0",
	}, values)
}
