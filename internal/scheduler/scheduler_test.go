package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/vigil/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	err      error
	ran      chan struct{}
}

func newStubJob(name string) *stubJob {
	return &stubJob{
		name:     name,
		schedule: "0 0 3 * * *",
		ran:      make(chan struct{}, 16),
	}
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }

func (j *stubJob) Run(ctx context.Context) error {
	j.ran <- struct{}{}
	return j.err
}

func waitRan(t *testing.T, j *stubJob) {
	t.Helper()
	select {
	case <-j.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run in time")
	}
}

func TestSchedulerAddJob(t *testing.T) {
	s := New(logger.NewNop(), 1, 0)

	require.NoError(t, s.AddJob(newStubJob("alpha")))
	assert.True(t, s.Has("alpha"))
	assert.Contains(t, s.GetAllJobs(), "alpha")
}

func TestSchedulerAddJobDuplicate(t *testing.T) {
	s := New(logger.NewNop(), 1, 0)

	require.NoError(t, s.AddJob(newStubJob("alpha")))

	err := s.AddJob(newStubJob("alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSchedulerAddJobBadSchedule(t *testing.T) {
	s := New(logger.NewNop(), 1, 0)

	j := newStubJob("broken")
	j.schedule = "not a schedule"

	require.Error(t, s.AddJob(j))
	assert.False(t, s.Has("broken"))
}

func TestSchedulerRemoveJob(t *testing.T) {
	s := New(logger.NewNop(), 1, 0)

	require.NoError(t, s.AddJob(newStubJob("alpha")))
	require.NoError(t, s.RemoveJob("alpha"))
	assert.False(t, s.Has("alpha"))

	err := s.RemoveJob("alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSchedulerRunJob(t *testing.T) {
	s := New(logger.NewNop(), 1, time.Second)

	j := newStubJob("alpha")
	require.NoError(t, s.AddJob(j))

	require.NoError(t, s.RunJob("alpha"))
	waitRan(t, j)
}

func TestSchedulerRunJobUnknown(t *testing.T) {
	s := New(logger.NewNop(), 1, 0)

	err := s.RunJob("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSchedulerRecordsFailure(t *testing.T) {
	s := New(logger.NewNop(), 1, time.Second)

	j := newStubJob("flaky")
	j.err = errors.New("upstream down")
	require.NoError(t, s.AddJob(j))

	require.NoError(t, s.RunJob("flaky"))
	waitRan(t, j)

	// RunJob dispatches asynchronously; poll until the result lands.
	var stats JobStats
	require.Eventually(t, func() bool {
		stats = s.GetJobStats()["flaky"]
		return stats.TotalRuns == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, 0, stats.SuccessCount)
	assert.NotNil(t, stats.LastRun)
}

type blockingJob struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func newBlockingJob(name string) *blockingJob {
	return &blockingJob{
		name:    name,
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (j *blockingJob) Name() string     { return j.name }
func (j *blockingJob) Schedule() string { return "0 0 3 * * *" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestSchedulerDropsTickPastGrace(t *testing.T) {
	s := New(logger.NewNop(), 1, 50*time.Millisecond)

	j := newBlockingJob("slow")
	require.NoError(t, s.AddJob(j))

	// First firing takes the only slot and holds it.
	require.NoError(t, s.RunJob("slow"))
	select {
	case <-j.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first firing did not start")
	}

	// Second firing finds the slot busy and must be dropped once the
	// grace window passes.
	require.NoError(t, s.RunJob("slow"))

	var stats JobStats
	require.Eventually(t, func() bool {
		stats = s.GetJobStats()["slow"]
		return stats.DroppedTicks == 1
	}, 2*time.Second, 10*time.Millisecond)

	close(j.release)
	require.Eventually(t, func() bool {
		return s.GetJobStats()["slow"].TotalRuns == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.GetJobStats()["slow"].SuccessCount)
}

func TestSchedulerZeroGraceDropsImmediately(t *testing.T) {
	s := New(logger.NewNop(), 1, 0)

	j := newBlockingJob("slow")
	require.NoError(t, s.AddJob(j))

	require.NoError(t, s.RunJob("slow"))
	select {
	case <-j.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first firing did not start")
	}

	require.NoError(t, s.RunJob("slow"))
	require.Eventually(t, func() bool {
		return s.GetJobStats()["slow"].DroppedTicks == 1
	}, 2*time.Second, 10*time.Millisecond)

	close(j.release)
}

func TestSchedulerJobPanicIsolated(t *testing.T) {
	s := New(logger.NewNop(), 1, time.Second)

	err := s.runIsolated(panicJob{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job panicked")
}

type panicJob struct{}

func (panicJob) Name() string                  { return "boom" }
func (panicJob) Schedule() string              { return "0 0 3 * * *" }
func (panicJob) Run(ctx context.Context) error { panic("kaboom") }
