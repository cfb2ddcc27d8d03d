// Package app bootstraps the supervisor process: loads configuration,
// wires the catalog, supervisor, persistence adapter, and engine facade
// together, restores persisted definitions, and runs the shutdown
// coordinator.
package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/engine"
	"github.com/wrangler-run/wrangler/internal/persistence"
	"github.com/wrangler-run/wrangler/internal/shutdown"
	"github.com/wrangler-run/wrangler/internal/supervisor"
	"github.com/wrangler-run/wrangler/pkg/logging"
)

const subsystem = "Application"

// Application owns every long-lived collaborator and the background
// tasks started at startup (restore, optional definitions watch,
// optional periodic export).
type Application struct {
	Config  Config
	Catalog *catalog.Catalog
	Engine  *engine.Engine
	Storage *persistence.Storage

	coordinator *shutdown.Coordinator
	stopWatch   chan struct{}
}

// NewApplication wires the collaborators from cfg but does not yet
// restore persisted state or start background tasks; call Run for that.
func NewApplication(cfg Config, workDir string) (*Application, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = persistence.DefaultDataDir()
	}

	storage, err := persistence.NewStorage(dataDir)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(cfg.RingBufferCapacity)

	notify := func() {
		doc := &persistence.Document{}
		for _, rec := range cat.All() {
			doc.Processes = append(doc.Processes, persistence.RecordToSnapshotEntry(rec))
		}
		if err := storage.SaveSnapshot(doc); err != nil {
			logging.Debug(subsystem, "opportunistic snapshot export failed: %v", err)
		}
	}
	sup := supervisor.New(workDir, notify)
	eng := engine.New(cat, sup, storage)

	coord := shutdown.New(eng, cat, cfg.StopOnShutdown)

	return &Application{
		Config:      cfg,
		Catalog:     cat,
		Engine:      eng,
		Storage:     storage,
		coordinator: coord,
		stopWatch:   make(chan struct{}),
	}, nil
}

// Run restores persisted definitions, starts any auto-start-on-restore
// processes concurrently, optionally starts the definitions watcher and
// periodic export, signals readiness to systemd, then blocks until a
// shutdown signal arrives.
func (a *Application) Run(ctx context.Context) error {
	if err := a.restore(ctx); err != nil {
		logging.Warn(subsystem, "startup restore encountered errors: %v", err)
	}

	if a.Config.WatchDefinitions {
		go persistence.WatchDefinitions(a.Storage.DefinitionsPath, func(doc *persistence.Document) {
			a.reconcileDefinitions(doc)
		}, a.stopWatch)
	}

	var exportTicker *time.Ticker
	if a.Config.AutoExportInterval > 0 {
		exportTicker = time.NewTicker(a.Config.AutoExportInterval)
		go a.runPeriodicExport(exportTicker.C)
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Debug(subsystem, "systemd notify (READY) skipped: %v", err)
	} else if sent {
		logging.Info(subsystem, "signaled readiness to systemd")
	}

	code := a.coordinator.Wait(ctx)
	close(a.stopWatch)
	if exportTicker != nil {
		exportTicker.Stop()
	}
	if code != 0 {
		logging.Warn(subsystem, "shutdown completed with exit code %d", code)
	}
	return nil
}

// restore loads the definitions file, authoritative for which processes
// exist, seeds last-known state from the snapshot, inserts every
// definition as NotStarted, then fans out auto_start_on_restore starts
// concurrently without failing the whole restore on individual errors.
func (a *Application) restore(ctx context.Context) error {
	defs, err := a.Storage.LoadDefinitions()
	if err != nil {
		return err
	}
	snap, err := a.Storage.LoadSnapshot()
	if err != nil {
		logging.Warn(subsystem, "snapshot load failed, continuing without last-known state: %v", err)
		snap = &persistence.Document{}
	}

	lastKnown := make(map[string]persistence.ProcessEntry, len(snap.Processes))
	for _, e := range snap.Processes {
		lastKnown[e.ID] = e
	}

	autoStart := make([]string, 0)
	for _, entry := range defs.Processes {
		def := persistence.EntryToDefinition(entry)
		rec, inserted := a.Catalog.Insert(def)
		if !inserted {
			continue
		}
		// rec starts NotStarted (catalog.Insert's default); last-known
		// exit/timestamp metadata from the snapshot is attached as
		// auxiliary information only, never promoted to the live state.
		if known, ok := lastKnown[def.ID]; ok {
			if info := persistence.SnapshotEntryLastKnown(known); info != nil {
				rec.SetLastKnown(info)
			}
		}
		if def.AutoStartOnRestore {
			autoStart = append(autoStart, def.ID)
		}
	}

	logging.Info(subsystem, "restored %d process definitions, %d queued for auto-start", len(defs.Processes), len(autoStart))

	group, gctx := errgroup.WithContext(ctx)
	for _, id := range autoStart {
		id := id
		group.Go(func() error {
			if _, err := a.Engine.Start(gctx, id); err != nil {
				logging.Warn(subsystem, "auto_start_on_restore failed for %q: %v", id, err)
			}
			return nil
		})
	}
	return group.Wait()
}

func (a *Application) runPeriodicExport(tick <-chan time.Time) {
	for range tick {
		if err := a.Engine.Export(""); err != nil {
			logging.Warn(subsystem, "periodic snapshot export failed: %v", err)
		}
	}
}

// reconcileDefinitions applies a live-reloaded definitions document: new
// ids are inserted as NotStarted, existing ids have their definition
// replaced. It never removes ids or touches runtime state, since a
// concurrent edit of the definitions file should not kill a running
// process out from under an operator.
func (a *Application) reconcileDefinitions(doc *persistence.Document) {
	for _, entry := range doc.Processes {
		def := persistence.EntryToDefinition(entry)
		if rec, ok := a.Catalog.Get(def.ID); ok {
			rec.SetDefinition(def)
			continue
		}
		a.Catalog.Insert(def)
	}
}
