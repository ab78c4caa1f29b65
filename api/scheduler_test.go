package api

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/sweep"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) RunSweep(_ context.Context, scope sweep.Scope) (*sweep.SweepReport, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &sweep.SweepReport{Scope: scope}, nil
}

func TestSweepScheduler_RunsOnStartAndTick(t *testing.T) {
	s := &countingSweeper{}
	ss := NewSweepScheduler(s, nil)
	ss.Interval = 10 * time.Millisecond

	ss.Start()
	ss.Start() // no-op while running
	require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	ss.Stop()

	after := s.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, s.calls.Load(), "no sweeps after Stop")

	// Restart after stop works.
	ss.Start()
	require.Eventually(t, func() bool { return s.calls.Load() > after }, 2*time.Second, 5*time.Millisecond)
	ss.Stop()
}

func TestSweepScheduler_Disabled(t *testing.T) {
	s := &countingSweeper{}
	ss := NewSweepScheduler(s, nil)
	ss.Enabled = false

	ss.Start()
	ss.Stop()

	assert.Zero(t, s.calls.Load())
}

func TestSweepScheduler_SkipsWhenRunInProgress(t *testing.T) {
	ss := NewSweepScheduler(&countingSweeper{err: property.ErrRunAlreadyInProgress}, nil)

	assert.Nil(t, ss.RunNow())
}

func TestSweepScheduler_RunNowReturnsReport(t *testing.T) {
	ss := NewSweepScheduler(&countingSweeper{}, nil)

	report := ss.RunNow()

	require.NotNil(t, report)
	assert.Equal(t, sweep.ScopeAll, report.Scope)
}
