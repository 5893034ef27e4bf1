package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjell-io/spanner-orm/internal/jobs"
)

func TestScheduler_AddJob(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, s.AddJob("snapshots", "0 0 3 * * *", func() {}))

	err := s.AddJob("snapshots", "@hourly", func() {})
	assert.ErrorContains(t, err, "job snapshots already exists")

	err = s.AddJob("broken", "not a cron expression", func() {})
	assert.ErrorContains(t, err, "failed to add job broken")

	// the failed add must not claim the name
	require.NoError(t, s.AddJob("broken", "@hourly", func() {}))
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())

	assert.ErrorContains(t, s.RemoveJob("ghost"), "job ghost not found")

	require.NoError(t, s.AddJob("cleanup", "@hourly", func() {}))
	require.NoError(t, s.RemoveJob("cleanup"))
	assert.Empty(t, s.JobNames())

	// the name is free again
	require.NoError(t, s.AddJob("cleanup", "@hourly", func() {}))
}

func TestScheduler_JobNames(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	require.NoError(t, s.AddJob("c", "@hourly", func() {}))
	require.NoError(t, s.AddJob("a", "@hourly", func() {}))
	require.NoError(t, s.AddJob("b", "@hourly", func() {}))

	assert.Equal(t, []string{"a", "b", "c"}, s.JobNames())
}

func TestScheduler_RunsAddedJob(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("tick", "* * * * * *", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	s.Start()
	defer func() { <-s.Stop().Done() }()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run within 3s")
	}
}
