// Package engine is the wire-agnostic facade (create/update/start/stop/
// remove/get/list/get_output/stats/export/import) that every transport
// sits behind. It owns the catalog, the supervisor, and the persistence
// adapter, and serializes the operations that touch the on-disk
// definitions file.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/engine/errdefs"
	"github.com/wrangler-run/wrangler/internal/persistence"
	"github.com/wrangler-run/wrangler/internal/ringbuffer"
	"github.com/wrangler-run/wrangler/internal/supervisor"
	"github.com/wrangler-run/wrangler/pkg/logging"
)

const subsystem = "Engine"

// Engine wires the catalog, supervisor, and persistence adapter behind
// the operations collaborators actually call.
type Engine struct {
	catalog    *catalog.Catalog
	supervisor *supervisor.Supervisor
	storage    *persistence.Storage

	// defMu serializes definitions-file mutations so concurrent
	// create/update/remove calls don't interleave writes.
	defMu sync.Mutex
}

// New wires an Engine from its three collaborators.
func New(cat *catalog.Catalog, sup *supervisor.Supervisor, storage *persistence.Storage) *Engine {
	return &Engine{catalog: cat, supervisor: sup, storage: storage}
}

// Create registers a new process definition.
func (e *Engine) Create(ctx context.Context, def catalog.Definition) (Snapshot, error) {
	if err := validateDefinition(def); err != nil {
		return Snapshot{}, err
	}

	def.CreatedAt = time.Now()

	e.defMu.Lock()
	rec, ok := e.catalog.Insert(def)
	if !ok {
		e.defMu.Unlock()
		return Snapshot{}, errdefs.NewAlreadyExistsError(def.ID)
	}
	err := e.persistDefinitions()
	e.defMu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	if def.AutoStartOnCreate {
		if _, startErr := e.supervisor.Spawn(ctx, rec); startErr != nil {
			logging.Warn(subsystem, "auto_start_on_create failed for %q: %v", def.ID, startErr)
		}
	}

	return snapshotOf(rec), nil
}

// Update changes the mutable fields of an existing definition. Allowed
// only outside the Running state.
func (e *Engine) Update(id string, fields UpdateFields) (Snapshot, error) {
	rec, ok := e.catalog.Get(id)
	if !ok {
		return Snapshot{}, errdefs.NewNotFoundError(id)
	}

	st := rec.State()
	if st.Kind == catalog.Running {
		return Snapshot{}, errdefs.NewInvalidStateError(id, "not Running", st.Kind.String())
	}

	def := rec.Definition()
	if fields.Command != nil {
		def.Command = *fields.Command
	}
	if fields.Args != nil {
		def.Args = fields.Args
	}
	if fields.Env != nil {
		def.Env = fields.Env
	}
	if fields.Cwd != nil {
		def.Cwd = *fields.Cwd
	}
	if fields.AutoStartOnRestore != nil {
		def.AutoStartOnRestore = *fields.AutoStartOnRestore
	}

	if err := validateDefinition(def); err != nil {
		return Snapshot{}, err
	}

	e.defMu.Lock()
	rec.SetDefinition(def)
	err := e.persistDefinitions()
	e.defMu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	return snapshotOf(rec), nil
}

// Start launches id's process. Idempotent refusal if already Running.
func (e *Engine) Start(ctx context.Context, id string) (int, error) {
	rec, ok := e.catalog.Get(id)
	if !ok {
		return 0, errdefs.NewNotFoundError(id)
	}
	if rec.State().Kind == catalog.Running {
		return 0, errdefs.NewInvalidStateError(id, "not Running", "Running")
	}
	return e.supervisor.Spawn(ctx, rec)
}

// Stop terminates id's running process, graceful then forceful.
func (e *Engine) Stop(ctx context.Context, id string, gracePeriod time.Duration) (*int, error) {
	rec, ok := e.catalog.Get(id)
	if !ok {
		return nil, errdefs.NewNotFoundError(id)
	}
	if rec.State().Kind != catalog.Running {
		return nil, errdefs.NewInvalidStateError(id, "Running", rec.State().Kind.String())
	}
	return e.supervisor.Stop(ctx, rec, gracePeriod)
}

// Remove deletes id's definition and record. Forbidden while Running.
func (e *Engine) Remove(id string) error {
	rec, ok := e.catalog.Get(id)
	if !ok {
		return errdefs.NewNotFoundError(id)
	}
	if rec.State().Kind == catalog.Running {
		return errdefs.NewInvalidStateError(id, "not Running", "Running")
	}

	e.defMu.Lock()
	defer e.defMu.Unlock()
	e.catalog.Remove(id)
	return e.persistDefinitions()
}

// Get returns a read-only snapshot of id's record.
func (e *Engine) Get(id string) (Snapshot, error) {
	rec, ok := e.catalog.Get(id)
	if !ok {
		return Snapshot{}, errdefs.NewNotFoundError(id)
	}
	return snapshotOf(rec), nil
}

// List returns snapshots matching filter, sorted by id.
func (e *Engine) List(filter Filter) []Snapshot {
	all := e.catalog.All()
	out := make([]Snapshot, 0, len(all))
	for _, rec := range all {
		def := rec.Definition()
		st := rec.State()
		if !filter.StateCategory.matches(st.Kind) {
			continue
		}
		if !catalog.MatchGlob(filter.IDGlob, def.ID) {
			continue
		}
		out = append(out, snapshotOf(rec))
	}
	return out
}

// GetOutput reads up to maxLines of captured output without mutating the
// underlying ring buffers. maxLines <= 0 returns everything currently
// stored.
func (e *Engine) GetOutput(id string, stream Stream, maxLines int) ([]OutputLine, error) {
	rec, ok := e.catalog.Get(id)
	if !ok {
		return nil, errdefs.NewNotFoundError(id)
	}

	switch stream {
	case Stdout:
		lines := rec.StdoutBuffer.Last(maxLines)
		return toOutputLines(Stdout, lines), nil
	case Stderr:
		lines := rec.StderrBuffer.Last(maxLines)
		return toOutputLines(Stderr, lines), nil
	default:
		out := rec.StdoutBuffer.Last(maxLines)
		errLines := rec.StderrBuffer.Last(maxLines)
		merged := interleave(out, errLines)
		if maxLines > 0 && len(merged) > maxLines {
			merged = merged[len(merged)-maxLines:]
		}
		return merged, nil
	}
}

func toOutputLines(stream Stream, lines []ringbuffer.Line) []OutputLine {
	out := make([]OutputLine, len(lines))
	for i, l := range lines {
		out[i] = OutputLine{Stream: stream, Index: l.Index, Text: l.Text}
	}
	return out
}

// Stats summarizes the catalog's lifecycle distribution.
func (e *Engine) Stats() Stats {
	var s Stats
	for _, rec := range e.catalog.All() {
		s.Total++
		switch rec.State().Kind {
		case catalog.Running:
			s.Running++
		case catalog.Stopped:
			s.Stopped++
		case catalog.Failed:
			s.Failed++
		case catalog.NotStarted:
			s.NotStarted++
		}
	}
	return s
}

// Export writes the current catalog as a snapshot document to path, or
// to the configured default if path is empty. Running records are
// written as NotStarted; Stopped and Failed records keep their outcome.
func (e *Engine) Export(path string) error {
	doc := &persistence.Document{}
	for _, rec := range e.catalog.All() {
		doc.Processes = append(doc.Processes, persistence.RecordToSnapshotEntry(rec))
	}
	if path == "" {
		return e.storage.SaveSnapshot(doc)
	}
	return persistence.WriteTo(path, doc)
}

// Import loads a snapshot document from path (or the configured
// default) and upserts its definitions into the catalog, without
// starting anything: new ids are inserted as NotStarted records, and
// existing ids have their definition replaced while keeping their state.
func (e *Engine) Import(path string) error {
	var doc *persistence.Document
	var err error
	if path == "" {
		doc, err = e.storage.LoadSnapshot()
	} else {
		doc, err = persistence.ReadFrom(path)
	}
	if err != nil {
		return err
	}

	e.defMu.Lock()
	defer e.defMu.Unlock()
	for _, entry := range doc.Processes {
		def := persistence.EntryToDefinition(entry)
		if rec, ok := e.catalog.Get(def.ID); ok {
			rec.SetDefinition(def)
			continue
		}
		e.catalog.Insert(def)
	}
	return e.persistDefinitions()
}

// persistDefinitions rewrites the definitions file from the current
// catalog contents. Callers must hold defMu.
func (e *Engine) persistDefinitions() error {
	doc := &persistence.Document{}
	ids := make([]string, 0)
	for _, rec := range e.catalog.All() {
		ids = append(ids, rec.Definition().ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec, _ := e.catalog.Get(id)
		doc.Processes = append(doc.Processes, persistence.DefinitionToEntry(rec.Definition()))
	}
	return e.storage.SaveDefinitions(doc)
}
