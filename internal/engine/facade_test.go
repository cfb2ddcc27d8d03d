package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/engine/errdefs"
	"github.com/wrangler-run/wrangler/internal/persistence"
	"github.com/wrangler-run/wrangler/internal/supervisor"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("IMPORT_FILE", "")
	t.Setenv("EXPORT_FILE", "")

	storage, err := persistence.NewStorage(dir)
	require.NoError(t, err)

	cat := catalog.New(100)
	sup := supervisor.New(dir, nil)
	return New(cat, sup, storage)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/true"})
	require.NoError(t, err)

	_, err = e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/true"})
	require.Error(t, err)
	assert.True(t, errdefs.IsAlreadyExists(err))
}

func TestCreateValidatesCommand(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Create(context.Background(), catalog.Definition{ID: "a", Command: ""})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestCreateValidatesCwdTraversal(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Create(context.Background(), catalog.Definition{ID: "a", Command: "/bin/true", Cwd: "../etc"})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestCreateThenRemoveLeavesCatalogUnchanged(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/true"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.catalog.Len())

	require.NoError(t, e.Remove("a"))
	assert.Equal(t, 0, e.catalog.Len())
}

func TestStartStopLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)

	pid, err := e.Start(ctx, "a")
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	_, err = e.Start(ctx, "a")
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidState(err))

	_, err = e.Stop(ctx, "a", 500*time.Millisecond)
	require.NoError(t, err)

	snap, err := e.Get("a")
	require.NoError(t, err)
	assert.Equal(t, catalog.Stopped, snap.State)
}

func TestRemoveWhileRunningRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)
	_, err = e.Start(ctx, "a")
	require.NoError(t, err)

	err = e.Remove("a")
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidState(err))

	_, _ = e.Stop(ctx, "a", 500*time.Millisecond)
}

func TestListFiltersByStateAndGlob(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _ = e.Create(ctx, catalog.Definition{ID: "web-1", Command: "/bin/true"})
	_, _ = e.Create(ctx, catalog.Definition{ID: "web-2", Command: "/bin/true"})
	_, _ = e.Create(ctx, catalog.Definition{ID: "worker", Command: "/bin/true"})

	webs := e.List(Filter{StateCategory: Any, IDGlob: "web-*"})
	assert.Len(t, webs, 2)

	notStarted := e.List(Filter{StateCategory: CategoryNotStarted})
	assert.Len(t, notStarted, 3)
}

func TestStatsCountsByCategory(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, _ = e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/true"})
	_, _ = e.Create(ctx, catalog.Definition{ID: "b", Command: "/bin/true"})

	stats := e.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.NotStarted)
}

func TestGetOutputBothInterleavesByIndex(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, catalog.Definition{
		ID:      "a",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo out1; echo err1 1>&2; echo out2"},
	})
	require.NoError(t, err)

	_, err = e.Start(ctx, "a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := e.Get("a")
		return snap.State == catalog.Stopped
	}, 2*time.Second, 10*time.Millisecond)

	lines, err := e.GetOutput("a", Both, 0)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "out1", lines[0].Text)
	assert.Equal(t, "err1", lines[1].Text)
	assert.Equal(t, "out2", lines[2].Text)
}

func TestUpdateRejectedWhileRunning(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Create(ctx, catalog.Definition{ID: "a", Command: "/bin/sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)
	_, err = e.Start(ctx, "a")
	require.NoError(t, err)

	newCmd := "/bin/false"
	_, err = e.Update("a", UpdateFields{Command: &newCmd})
	require.Error(t, err)
	assert.True(t, errdefs.IsInvalidState(err))

	_, _ = e.Stop(ctx, "a", 500*time.Millisecond)
}
