package engine

import (
	"sort"
	"time"

	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/ringbuffer"
)

// Snapshot is the read-only view of a process record returned by Get
// and List: state, pid, and timing information, with no live handles.
type Snapshot struct {
	Definition   catalog.Definition
	State        catalog.StateKind
	PID          int
	StartedAt    time.Time
	StoppedAt    time.Time
	FailedAt     time.Time
	ExitCode     *int
	ErrorMessage string
	RunID        string

	// LastKnown carries the outcome of the process's previous run,
	// restored from a snapshot, when the live State is NotStarted
	// because the process hasn't run again this session. Nil when
	// there is nothing to report.
	LastKnown *catalog.LastKnownInfo
}

func snapshotOf(rec *catalog.Record) Snapshot {
	def := rec.Definition()
	st := rec.State()
	return Snapshot{
		Definition:   def,
		State:        st.Kind,
		PID:          st.PID,
		StartedAt:    st.StartedAt,
		StoppedAt:    st.StoppedAt,
		FailedAt:     st.FailedAt,
		ExitCode:     st.ExitCode,
		ErrorMessage: st.ErrorMessage,
		RunID:        rec.RunID,
		LastKnown:    rec.LastKnown(),
	}
}

// StateCategory filters List results by lifecycle state.
type StateCategory int

const (
	Any StateCategory = iota
	CategoryRunning
	CategoryStopped
	CategoryFailed
	CategoryNotStarted
)

func (c StateCategory) matches(kind catalog.StateKind) bool {
	switch c {
	case Any:
		return true
	case CategoryRunning:
		return kind == catalog.Running
	case CategoryStopped:
		return kind == catalog.Stopped
	case CategoryFailed:
		return kind == catalog.Failed
	case CategoryNotStarted:
		return kind == catalog.NotStarted
	default:
		return false
	}
}

// Filter narrows List to a state category and/or a shell-style glob over
// ids. An empty IDGlob matches every id.
type Filter struct {
	StateCategory StateCategory
	IDGlob        string
}

// Stream selects which ring buffer(s) GetOutput reads from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
	Both
)

// OutputLine is one line returned by GetOutput, tagged with its source
// stream so a "Both" read can be attributed after interleaving.
type OutputLine struct {
	Stream Stream
	Index  int64
	Text   string
}

// interleave merges stdout and stderr lines by line index, breaking ties
// in favor of stdout, per the "Both" read contract.
func interleave(stdout, stderr []ringbuffer.Line) []OutputLine {
	out := make([]OutputLine, 0, len(stdout)+len(stderr))
	for _, l := range stdout {
		out = append(out, OutputLine{Stream: Stdout, Index: l.Index, Text: l.Text})
	}
	for _, l := range stderr {
		out = append(out, OutputLine{Stream: Stderr, Index: l.Index, Text: l.Text})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Stream == Stdout && out[j].Stream != Stdout
	})
	return out
}

// Stats summarizes the catalog's lifecycle distribution.
type Stats struct {
	Total      int
	Running    int
	Stopped    int
	Failed     int
	NotStarted int
}

// UpdateFields carries the subset of a definition's fields update may
// change; nil pointers leave the corresponding field untouched.
type UpdateFields struct {
	Command            *string
	Args               []string
	Env                map[string]string
	Cwd                *string
	AutoStartOnRestore *bool
}
