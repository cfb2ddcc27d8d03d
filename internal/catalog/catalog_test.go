package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	c := New(100)

	rec, ok := c.Insert(Definition{ID: "a", Command: "echo"})
	require.True(t, ok)
	require.NotNil(t, rec)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, rec, got)
	assert.Equal(t, NotStarted, got.State().Kind)
}

func TestInsertDuplicateRejected(t *testing.T) {
	c := New(10)
	_, ok := c.Insert(Definition{ID: "a"})
	require.True(t, ok)

	_, ok = c.Insert(Definition{ID: "a"})
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	c := New(10)
	c.Insert(Definition{ID: "a"})

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestAllSortedByID(t *testing.T) {
	c := New(10)
	c.Insert(Definition{ID: "b"})
	c.Insert(Definition{ID: "a"})
	c.Insert(Definition{ID: "c"})

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Definition().ID)
	assert.Equal(t, "b", all[1].Definition().ID)
	assert.Equal(t, "c", all[2].Definition().ID)
}

func TestSingleFlightStop(t *testing.T) {
	c := New(10)
	rec, _ := c.Insert(Definition{ID: "a"})

	ch1, leader1 := rec.BeginStop()
	ch2, leader2 := rec.BeginStop()

	assert.True(t, leader1)
	assert.False(t, leader2)
	assert.True(t, rec.StopRequested())

	done := make(chan struct{})
	go func() {
		<-ch1
		<-ch2
		close(done)
	}()

	rec.EndStop()
	<-done
}

func TestMatchGlob(t *testing.T) {
	assert.True(t, MatchGlob("", "anything"))
	assert.True(t, MatchGlob("web-*", "web-api"))
	assert.False(t, MatchGlob("web-*", "batch-job"))
}

func TestLastKnownDoesNotPromoteLiveState(t *testing.T) {
	c := New(10)
	rec, _ := c.Insert(Definition{ID: "a"})

	code := 3
	rec.SetLastKnown(&LastKnownInfo{Kind: Stopped, ExitCode: &code})

	assert.Equal(t, NotStarted, rec.State().Kind, "attaching last-known info must not change the live state")
	last := rec.LastKnown()
	require.NotNil(t, last)
	assert.Equal(t, Stopped, last.Kind)
	require.NotNil(t, last.ExitCode)
	assert.Equal(t, 3, *last.ExitCode)
}

func TestLastKnownClearedOnceRecordRuns(t *testing.T) {
	c := New(10)
	rec, _ := c.Insert(Definition{ID: "a"})
	rec.SetLastKnown(&LastKnownInfo{Kind: Failed, ErrorMessage: "terminated by signal 9"})

	rec.SetState(State{Kind: Running, PID: 123})

	assert.Nil(t, rec.LastKnown(), "a fresh run should supersede restored last-known info")
}
