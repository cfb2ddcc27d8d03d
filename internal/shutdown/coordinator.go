// Package shutdown installs the supervisor's interrupt/termination
// handlers and runs the shutdown choreography: snapshot, optional
// stop-on-shutdown fan-out, then exit.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/engine"
	"github.com/wrangler-run/wrangler/internal/supervisor"
	"github.com/wrangler-run/wrangler/pkg/logging"
)

const subsystem = "Shutdown"

// fanOutDeadline bounds how long the stop-on-shutdown fan-out waits for
// every running child to terminate before the process exits anyway.
const fanOutDeadline = 30 * time.Second

// Coordinator installs signal handlers and runs the shutdown sequence
// exactly once.
type Coordinator struct {
	engine         *engine.Engine
	catalog        *catalog.Catalog
	stopOnShutdown bool

	once sync.Once
	done chan struct{}
}

// New creates a Coordinator. stopOnShutdown mirrors the STOP_ON_SHUTDOWN
// environment variable (default false: children are left running and
// orphaned to the host's init reaper).
func New(eng *engine.Engine, cat *catalog.Catalog, stopOnShutdown bool) *Coordinator {
	return &Coordinator{
		engine:         eng,
		catalog:        cat,
		stopOnShutdown: stopOnShutdown,
		done:           make(chan struct{}),
	}
}

// Wait installs signal handlers and blocks until a shutdown has run to
// completion, returning the exit code to use.
func (c *Coordinator) Wait(ctx context.Context) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logging.Info(subsystem, "shutdown signal received")
	case <-ctx.Done():
		logging.Info(subsystem, "shutdown requested by context cancellation")
	}

	// The handler stays registered until the sequence has finished, so a
	// second signal is absorbed by sigCh instead of falling back to the
	// default (terminating) action and cannot interrupt the snapshot write.
	c.run()
	signal.Stop(sigCh)
	return 0
}

// Shutdown triggers the sequence directly, for callers that detect a
// fatal condition outside the signal path. Safe to call concurrently
// with Wait; the sequence still runs exactly once.
func (c *Coordinator) Shutdown() {
	c.run()
}

func (c *Coordinator) run() {
	c.once.Do(func() {
		defer close(c.done)
		c.sequence()
	})
	<-c.done
}

func (c *Coordinator) sequence() {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logging.Debug(subsystem, "systemd notify (STOPPING) skipped: %v", err)
	}

	if err := c.engine.Export(""); err != nil {
		logging.Warn(subsystem, "snapshot export failed during shutdown: %v", err)
		logging.Audit(logging.AuditEvent{Action: "snapshot_write", Outcome: "failure", Error: err.Error()})
	} else {
		logging.Info(subsystem, "snapshot written")
		logging.Audit(logging.AuditEvent{Action: "snapshot_write", Outcome: "success"})
	}

	if c.stopOnShutdown {
		c.stopAllRunning()
	} else {
		logging.Info(subsystem, "stop-on-shutdown disabled; managed children left running")
	}
}

func (c *Coordinator) stopAllRunning() {
	ctx, cancel := context.WithTimeout(context.Background(), fanOutDeadline)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	for _, rec := range c.catalog.All() {
		rec := rec
		if rec.State().Kind != catalog.Running {
			continue
		}
		id := rec.Definition().ID
		group.Go(func() error {
			if _, err := c.engine.Stop(gctx, id, supervisor.DefaultGracePeriod); err != nil {
				logging.Warn(subsystem, "stop-on-shutdown failed for %q: %v", id, err)
			}
			return nil
		})
	}
	_ = group.Wait()
}
