package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadExpression(t *testing.T) {
	jobs := []*Job{{Name: "broken", Expr: "not a cron", Run: func(context.Context, time.Time) (int64, error) { return 0, nil }}}
	_, err := New(time.UTC, jobs)
	assert.Error(t, err)
}

func TestRunPassesUTCTime(t *testing.T) {
	var got time.Time
	job := &Job{Name: "flaky", Expr: "* * * * *", Run: func(_ context.Context, now time.Time) (int64, error) {
		got = now
		return 1, nil
	}}
	s, err := New(nil, []*Job{job})
	require.NoError(t, err)

	loc := time.FixedZone("UTC+5", 5*3600)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)
	s.now = func() time.Time { return fixed }

	s.run(job)
	assert.True(t, got.Equal(fixed))
	assert.Equal(t, time.UTC, got.Location())
}

func TestRunSkipsOverlappingTick(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	job := &Job{Name: "slow", Expr: "* * * * *", Run: func(context.Context, time.Time) (int64, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return 0, nil
	}}
	s, err := New(time.UTC, []*Job{job})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.run(job)
		close(done)
	}()
	<-started
	s.run(job)
	close(release)
	<-done

	assert.Equal(t, 1, calls)
}

func TestRunSurvivesJobError(t *testing.T) {
	calls := 0
	job := &Job{Name: "failing", Expr: "@hourly", Run: func(context.Context, time.Time) (int64, error) {
		calls++
		return 0, errors.New("boom")
	}}
	s, err := New(time.UTC, []*Job{job})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.run(job)
		s.run(job)
	})
	assert.Equal(t, 2, calls)
}

func TestDefaultJobsCoverEveryTask(t *testing.T) {
	jobs := DefaultJobs()
	require.Len(t, jobs, 4)
	for _, j := range jobs {
		assert.NotEmpty(t, j.Name)
		assert.NotNil(t, j.Run, j.Name)
	}
}
