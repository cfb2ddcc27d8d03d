package supervisor

import (
	"context"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrangler-run/wrangler/internal/catalog"
)

func newTestRecord(t *testing.T, command string, args ...string) *catalog.Record {
	t.Helper()
	def := catalog.Definition{
		ID:      "test-proc",
		Command: command,
		Args:    args,
	}
	return catalog.NewRecord(def, 100)
}

func TestSpawnHappyPathEcho(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "echo hello; echo world 1>&2")

	pid, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	require.Eventually(t, func() bool {
		return rec.State().Kind == catalog.Stopped
	}, 2*time.Second, 10*time.Millisecond)

	st := rec.State()
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)

	out := rec.StdoutBuffer.Last(0)
	require.Len(t, out, 1)
	assert.Equal(t, "hello", out[0].Text)

	errLines := rec.StderrBuffer.Last(0)
	require.Len(t, errLines, 1)
	assert.Equal(t, "world", errLines[0].Text)
}

func TestStopGracefulExitsWithinGracePeriod(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "trap 'exit 0' TERM; while true; do sleep 0.05; done")

	_, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.State().Kind == catalog.Running
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err = sup.Stop(ctx, rec, 2*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second, "should exit on SIGTERM before the grace period elapses")
	assert.Equal(t, catalog.Stopped, rec.State().Kind)
}

func TestStopEscalatesToForceKillWhenGraceExpires(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "trap '' TERM; while true; do sleep 0.05; done")

	_, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.State().Kind == catalog.Running
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = sup.Stop(ctx, rec, 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, catalog.Stopped, rec.State().Kind)
}

func TestStopKillsProcessGroupDescendants(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "sleep 30 & echo $! > child.pid; wait")

	_, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.State().Kind == catalog.Running
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = sup.Stop(ctx, rec, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, catalog.Stopped, rec.State().Kind)
}

func TestConcurrentStopCallsJoinSingleFlight(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "trap 'exit 0' TERM; while true; do sleep 0.05; done")

	_, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.State().Kind == catalog.Running
	}, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	results := make(chan error, 2)
	go func() { _, err := sup.Stop(ctx, rec, time.Second); results <- err }()
	go func() { _, err := sup.Stop(ctx, rec, time.Second); results <- err }()

	for i := 0; i < 2; i++ {
		require.NoError(t, <-results)
	}
	assert.Equal(t, catalog.Stopped, rec.State().Kind)
}

func TestSpawnInvalidCommandFails(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/nonexistent/binary-that-does-not-exist")

	_, err := sup.Spawn(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, catalog.Failed, rec.State().Kind)
}

func TestNonZeroExitStatusMarksStopped(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "exit 7")

	_, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.State().Kind != catalog.NotStarted && rec.State().Kind != catalog.Running
	}, time.Second, 10*time.Millisecond)

	st := rec.State()
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 7, *st.ExitCode)
	assert.Equal(t, catalog.Stopped, st.Kind)
}

func TestExternallySignalKilledMarksFailedWithSignalMessage(t *testing.T) {
	sup := New(t.TempDir(), nil)
	rec := newTestRecord(t, "/bin/sh", "-c", "while true; do sleep 0.05; done")

	_, err := sup.Spawn(context.Background(), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.State().Kind == catalog.Running
	}, time.Second, 10*time.Millisecond)

	// Kill the child directly, bypassing Stop, so stopRequested is never
	// set: the reaper must see this as an unrequested termination.
	pid := rec.ChildHandle().PID()
	require.NoError(t, syscall.Kill(pid, syscall.SIGKILL))

	require.Eventually(t, func() bool {
		return rec.State().Kind != catalog.NotStarted && rec.State().Kind != catalog.Running
	}, time.Second, 10*time.Millisecond)

	st := rec.State()
	assert.Equal(t, catalog.Failed, st.Kind)
	assert.True(t, strings.Contains(st.ErrorMessage, "terminated by signal"), "got %q", st.ErrorMessage)
}
