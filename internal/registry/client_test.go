package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-deployment")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testRun(createdAt time.Time) *Run {
	return &Run{
		ID:          uuid.New().String(),
		Deployment:  "test-deployment",
		Status:      StatusPrepared,
		Mechanisms:  []string{"posix", "hdf5"},
		Root:        "/opt/dtio",
		ConfigPath:  "/shared/dtio_config.yaml",
		PolicyPath:  "/shared/dtio_paths.yaml",
		Command:     []string{"dtio_simple_write_posix", "/home/u/DTIO/test.txt"},
		Launcher:    "exec",
		CreatedAtMs: createdAt.UnixMilli(),
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.Equal(t, "test-deployment", client.deployment)
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("rejects empty deployment name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deployment name cannot be empty")
	})

	t.Run("rejects malformed URL", func(t *testing.T) {
		_, err := NewClientFromURL("http://nope", "demo")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid Redis URL")
	})
}

func TestRecordPrepared(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()
	run := testRun(time.Now())

	require.NoError(t, client.RecordPrepared(ctx, run))

	assert.True(t, mr.Exists(RunKey("test-deployment", run.ID)))
	assert.Equal(t, run.ID, mr.HGet(RunKey("test-deployment", run.ID), "id"))
	assert.Equal(t, "prepared", mr.HGet(RunKey("test-deployment", run.ID), "status"))

	members, err := mr.ZMembers(RunsIndexKey("test-deployment"))
	require.NoError(t, err)
	assert.Equal(t, []string{run.ID}, members)

	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestRecordPrepared_Validation(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		run := testRun(time.Now())
		run.ID = ""
		err := client.RecordPrepared(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run id is required")
	})

	t.Run("wrong deployment", func(t *testing.T) {
		run := testRun(time.Now())
		run.Deployment = "other"
		err := client.RecordPrepared(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scoped to 'test-deployment'")
	})

	t.Run("invalid status", func(t *testing.T) {
		run := testRun(time.Now())
		run.Status = "running"
		err := client.RecordPrepared(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid run status")
	})
}

func TestRecordOutcome(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	run := testRun(time.Now())
	require.NoError(t, client.RecordPrepared(ctx, run))

	finished := time.Now()
	updated, err := client.RecordOutcome(ctx, run.ID, Outcome{
		Status:     StatusFailed,
		ExitCode:   2,
		Duration:   1500 * time.Millisecond,
		FinishedAt: finished,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, updated.Status)

	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 2, got.ExitCode)
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.Equal(t, finished.UnixMilli(), got.FinishedAtMs)
	assert.Equal(t, run.ConfigPath, got.ConfigPath)
}

func TestRecordOutcome_Errors(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, err := client.RecordOutcome(ctx, "missing", Outcome{Status: StatusSucceeded})
	assert.True(t, IsNotFound(err))

	_, err = client.RecordOutcome(ctx, "missing", Outcome{Status: StatusPrepared})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be terminal")
}

func TestGetRun_NotFound(t *testing.T) {
	client, _ := setupTestClient(t)

	run, err := client.GetRun(context.Background(), "nope")
	assert.Nil(t, run)
	assert.True(t, IsNotFound(err))
}

func TestListRuns(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var runs []*Run
	for i := 0; i < 3; i++ {
		run := testRun(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, client.RecordPrepared(ctx, run))
		runs = append(runs, run)
	}

	t.Run("unbounded returns all oldest first", func(t *testing.T) {
		got, err := client.ListRuns(ctx, time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := range runs {
			assert.Equal(t, runs[i].ID, got[i].ID)
		}
	})

	t.Run("since is inclusive", func(t *testing.T) {
		got, err := client.ListRuns(ctx, base.Add(time.Hour), time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, runs[1].ID, got[0].ID)
	})

	t.Run("until bounds the range", func(t *testing.T) {
		got, err := client.ListRuns(ctx, time.Time{}, base.Add(30*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, runs[0].ID, got[0].ID)
	})

	t.Run("empty range", func(t *testing.T) {
		got, err := client.ListRuns(ctx, base.Add(10*time.Hour), time.Time{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestListRuns_SkipsDanglingIndexEntries(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	run := testRun(time.Now())
	require.NoError(t, client.RecordPrepared(ctx, run))
	_, err := mr.ZAdd(RunsIndexKey("test-deployment"), float64(time.Now().UnixMilli()), "ghost")
	require.NoError(t, err)

	got, err := client.ListRuns(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, run.ID, got[0].ID)
}

func TestDeploymentNamespacing(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "alpha")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewClient(&redis.Options{Addr: mr.Addr()}, "beta")
	require.NoError(t, err)
	defer b.Close()

	run := testRun(time.Now())
	run.Deployment = "alpha"
	require.NoError(t, a.RecordPrepared(ctx, run))

	_, err = b.GetRun(ctx, run.ID)
	assert.True(t, IsNotFound(err))

	runs, err := b.ListRuns(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSubscribeRunEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.SubscribeRunEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	run := testRun(time.Now())
	require.NoError(t, client.RecordPrepared(ctx, run))
	_, err = client.RecordOutcome(ctx, run.ID, Outcome{Status: StatusSucceeded})
	require.NoError(t, err)

	for _, want := range []Status{StatusPrepared, StatusSucceeded} {
		select {
		case got := <-sub.Events():
			require.NotNil(t, got)
			assert.Equal(t, run.ID, got.ID)
			assert.Equal(t, want, got.Status)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s event", want)
		}
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestStatus(t *testing.T) {
	assert.NoError(t, StatusPrepared.Validate())
	assert.Error(t, Status("running").Validate())
	assert.False(t, StatusPrepared.Terminal())
	assert.True(t, StatusError.Terminal())
}
