// Package supervisor spawns child processes into a fresh process group,
// owns the background reaper that observes their exit, and delivers
// graceful-then-forceful termination to the whole group.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wrangler-run/wrangler/internal/catalog"
	"github.com/wrangler-run/wrangler/internal/engine/errdefs"
	"github.com/wrangler-run/wrangler/internal/pump"
	"github.com/wrangler-run/wrangler/pkg/logging"
)

const subsystem = "Supervisor"

// DefaultGracePeriod is used when a caller does not specify one.
const DefaultGracePeriod = 5 * time.Second

// HardKillCap bounds how long Stop waits for the reaper after SIGKILL
// before surfacing TerminationTimeout.
const HardKillCap = 10 * time.Second

// NotifyFunc is called opportunistically by the supervisor after a
// state-changing event (spawn, reap) so the caller can persist a
// best-effort snapshot.
type NotifyFunc func()

// Supervisor spawns and terminates the child processes backing catalog
// records. It holds no state of its own beyond configuration; all
// mutable state lives in the catalog.Record passed to each call.
type Supervisor struct {
	WorkDir string // resolved against relative definition Cwd values
	Notify  NotifyFunc
}

// New creates a Supervisor rooted at workDir (typically the process's
// own working directory at startup).
func New(workDir string, notify NotifyFunc) *Supervisor {
	if notify == nil {
		notify = func() {}
	}
	return &Supervisor{WorkDir: workDir, Notify: notify}
}

// Spawn launches rec's definition as a fresh child process. The caller
// must have already verified rec is not Running.
func (s *Supervisor) Spawn(ctx context.Context, rec *catalog.Record) (int, error) {
	def := rec.Definition()

	cmd := exec.CommandContext(context.Background(), def.Command, def.Args...)
	cmd.Env = mergeEnv(os.Environ(), def.Env)

	cwd, err := resolveCwd(s.WorkDir, def.Cwd)
	if err != nil {
		rec.SetState(catalog.State{Kind: catalog.Failed, ErrorMessage: err.Error(), FailedAt: time.Now()})
		return 0, errdefs.NewSpawnError(def.ID, err.Error())
	}
	cmd.Dir = cwd

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		rec.SetState(catalog.State{Kind: catalog.Failed, ErrorMessage: err.Error(), FailedAt: time.Now()})
		return 0, errdefs.NewSpawnError(def.ID, err.Error())
	}
	cmd.Stdin = devnull

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		devnull.Close()
		rec.SetState(catalog.State{Kind: catalog.Failed, ErrorMessage: err.Error(), FailedAt: time.Now()})
		return 0, errdefs.NewSpawnError(def.ID, err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		devnull.Close()
		rec.SetState(catalog.State{Kind: catalog.Failed, ErrorMessage: err.Error(), FailedAt: time.Now()})
		return 0, errdefs.NewSpawnError(def.ID, err.Error())
	}

	configureProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		devnull.Close()
		rec.SetState(catalog.State{Kind: catalog.Failed, ErrorMessage: err.Error(), FailedAt: time.Now()})
		logging.Audit(logging.AuditEvent{Action: "spawn", Outcome: "failure", Target: def.ID, Error: err.Error()})
		return 0, errdefs.NewSpawnError(def.ID, err.Error())
	}

	pid := cmd.Process.Pid
	runID := uuid.NewString()

	rec.StdoutBuffer.Clear()
	rec.StderrBuffer.Clear()
	rec.ResetRunState(runID)
	rec.SetChildHandle(&handle{cmd: cmd, pid: pid})
	rec.SetState(catalog.State{Kind: catalog.Running, PID: pid, StartedAt: time.Now()})

	logging.Info(subsystem, "process %q started: pid=%d run=%s", def.ID, pid, runID)
	logging.Audit(logging.AuditEvent{Action: "spawn", Outcome: "success", Target: def.ID, Details: fmt.Sprintf("pid=%d", pid)})

	pair := pump.StartPair(stdout, stderr, rec.StdoutBuffer, rec.StderrBuffer)

	go s.reap(rec, cmd, pair, devnull)

	s.Notify()
	return pid, nil
}

// reap awaits the child's termination and records its final state. It
// runs for the lifetime of exactly one run.
func (s *Supervisor) reap(rec *catalog.Record, cmd *exec.Cmd, pair *pump.Pair, devnull *os.File) {
	pair.Wait()
	waitErr := cmd.Wait()
	devnull.Close()

	def := rec.Definition()
	stopRequested := rec.StopRequested()
	now := time.Now()

	switch {
	case waitErr == nil:
		code := 0
		rec.SetState(catalog.State{Kind: catalog.Stopped, ExitCode: &code, StoppedAt: now})
		logging.Info(subsystem, "process %q exited cleanly", def.ID)

	case exitedWithStatus(waitErr) || stopRequested:
		// A numeric exit status is always a normal termination, even a
		// non-zero one. A signal-kill only counts as normal if we asked
		// for it; otherwise the child died on its own.
		code := exitCodeFrom(waitErr)
		var codePtr *int
		if code >= 0 {
			codePtr = &code
		}
		rec.SetState(catalog.State{Kind: catalog.Stopped, ExitCode: codePtr, StoppedAt: now})
		logging.Info(subsystem, "process %q stopped", def.ID)

	default:
		msg := describeAbnormalExit(waitErr)
		rec.SetState(catalog.State{Kind: catalog.Failed, ErrorMessage: msg, FailedAt: now})
		logging.Warn(subsystem, "process %q terminated abnormally: %s", def.ID, msg)
	}

	rec.SetChildHandle(nil)
	s.Notify()
}

// Stop delivers graceful SIGTERM (or platform equivalent) to the whole
// group, waits out a grace window, then escalates to SIGKILL (or
// platform equivalent), with a hard cap on the final wait.
func (s *Supervisor) Stop(ctx context.Context, rec *catalog.Record, gracePeriod time.Duration) (*int, error) {
	def := rec.Definition()

	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}

	wait, isLeader := rec.BeginStop()
	if !isLeader {
		// A stop is already in flight for this record; join it rather
		// than issue a second signal.
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		st := rec.State()
		return st.ExitCode, nil
	}
	defer rec.EndStop()

	ch := rec.ChildHandle()
	if ch == nil {
		// Already reaped between the caller's state check and here.
		st := rec.State()
		return st.ExitCode, nil
	}
	pid := ch.PID()

	if err := sendGraceful(pid); err != nil {
		logging.Warn(subsystem, "graceful signal to %q (pid=%d) failed: %v", def.ID, pid, err)
	}
	logging.Audit(logging.AuditEvent{Action: "graceful_stop", Outcome: "success", Target: def.ID})

	if reaped := s.awaitReap(rec, gracePeriod); reaped {
		st := rec.State()
		return st.ExitCode, nil
	}

	if err := sendForce(pid); err != nil {
		logging.Warn(subsystem, "force signal to %q (pid=%d) failed: %v", def.ID, pid, err)
	}
	logging.Audit(logging.AuditEvent{Action: "force_kill", Outcome: "success", Target: def.ID})

	if reaped := s.awaitReap(rec, HardKillCap); reaped {
		st := rec.State()
		return st.ExitCode, nil
	}

	logging.Audit(logging.AuditEvent{Action: "force_kill", Outcome: "failure", Target: def.ID, Details: "hard cap exceeded"})
	return nil, errdefs.NewTerminationTimeoutError(def.ID)
}

// awaitReap polls for the record leaving Running, up to timeout. The
// reaper is solely responsible for the state transition; this only
// observes it.
func (s *Supervisor) awaitReap(rec *catalog.Record, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	const pollInterval = 25 * time.Millisecond
	for time.Now().Before(deadline) {
		if rec.State().Kind != catalog.Running {
			return true
		}
		time.Sleep(pollInterval)
	}
	return rec.State().Kind != catalog.Running
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	merged = append(merged, base...)
	for k, v := range overrides {
		merged = append(merged, k+"="+v)
	}
	return merged
}

func resolveCwd(workDir, cwd string) (string, error) {
	if cwd == "" {
		return workDir, nil
	}
	if filepath.IsAbs(cwd) {
		return cwd, nil
	}
	return filepath.Join(workDir, cwd), nil
}
