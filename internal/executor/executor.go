package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/eta"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/privilege"
	"github.com/tys-asm/asmctl/internal/security"
	"github.com/tys-asm/asmctl/internal/toolprobe"
)

const (
	killNone int32 = iota
	killCancelled
	killStalled
	killAuthTimeout
)

// Options tunes executor behavior; zero values pick sensible defaults
type Options struct {
	AURHelper string        // AUR helper binary, default "paru"
	MoveDir   string        // destination for Move and AppImage installs
	Authorize time.Duration // response window for the polkit prompt, default 120s
	Stall     time.Duration // kill after this much output silence, default 10m
	KillGrace time.Duration // SIGTERM to SIGKILL escalation delay, default 5s
}

// Executor runs one operation as external subprocesses, streaming their
// output as structured progress events and yielding exactly one Result.
type Executor struct {
	runner    helpers.CommandRunner
	probe     *toolprobe.Probe
	tracker   *eta.Tracker
	log       *zerolog.Logger
	aurHelper string
	moveDir   string
	authorize time.Duration
	stall     time.Duration
	killGrace time.Duration
}

// New creates an Executor
func New(runner helpers.CommandRunner, probe *toolprobe.Probe, tracker *eta.Tracker, log *zerolog.Logger, opts Options) *Executor {
	if opts.AURHelper == "" {
		opts.AURHelper = "paru"
	}
	if opts.MoveDir == "" {
		home, _ := os.UserHomeDir()
		opts.MoveDir = filepath.Join(home, "Applications")
	}
	if opts.Authorize <= 0 {
		opts.Authorize = 120 * time.Second
	}
	if opts.Stall <= 0 {
		opts.Stall = 10 * time.Minute
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 5 * time.Second
	}
	return &Executor{
		runner:    runner,
		probe:     probe,
		tracker:   tracker,
		log:       log,
		aurHelper: opts.AURHelper,
		moveDir:   opts.MoveDir,
		authorize: opts.Authorize,
		stall:     opts.Stall,
		killGrace: opts.KillGrace,
	}
}

// Execute runs a single operation to completion. It never spawns the
// primary tool when a required helper is missing, terminates the
// subprocess tree on cancellation, and always returns exactly one
// terminal Result. Not restartable; retry means a new submission.
func (e *Executor) Execute(ctx context.Context, id string, desc core.Descriptor, auth privilege.Authorization, events chan<- core.Progress) core.Result {
	start := time.Now()
	e.emit(events, id, core.PhaseStarting, -1, fmt.Sprintf("%s %s", desc.Kind, desc.Target), 0)

	if desc.Backend == core.BackendFile {
		if err := security.ValidatePackagePath(desc.Target); err != nil {
			return e.finish(id, start, core.Result{
				Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
				ExitCode: -1, Detail: err.Error(),
			})
		}
	}

	if desc.Kind == core.KindConvert {
		return e.executeConvert(ctx, id, desc, auth, events, start)
	}

	requires, st, err := e.resolve(desc)
	if err != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: err.Error(),
		})
	}

	if res, ok := e.precheck(ctx, id, start, requires...); !ok {
		return res
	}

	if auth.Mode == privilege.ModeTerminal {
		st.interactive = true
		e.emit(events, id, core.PhaseStarting, -1, "opened terminal, complete the operation there", 0)
	}

	out := e.runStep(ctx, id, st, auth, events)
	if res, done := e.stepFailure(id, auth, out, start); done {
		return res
	}
	return e.succeed(id, start, events, fmt.Sprintf("%s %s completed", desc.Kind, desc.Target))
}

// stepOutcome is what one subprocess run produced
type stepOutcome struct {
	exitCode int
	reason   core.FailureReason // empty, cancelled, timeout or authorization-timeout
	detail   string
	startErr error
	tail     []string // last output lines, for error detail
}

// stepFailure translates a bad step outcome into a terminal result.
// done=false means the step succeeded and the operation continues.
func (e *Executor) stepFailure(id string, auth privilege.Authorization, out stepOutcome, start time.Time) (core.Result, bool) {
	if out.startErr != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: out.startErr.Error(),
		}), true
	}

	switch out.reason {
	case core.ReasonCancelled:
		return e.finish(id, start, core.Result{
			Status: core.StatusCancelled, Reason: core.ReasonCancelled,
			ExitCode: out.exitCode, Detail: "cancelled",
		}), true
	case core.ReasonTimeout:
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonTimeout,
			ExitCode: out.exitCode, Detail: out.detail,
		}), true
	case core.ReasonAuthorizationTimeout:
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonAuthorizationTimeout,
			ExitCode: out.exitCode, Detail: out.detail,
		}), true
	}

	if out.exitCode == 0 {
		return core.Result{}, false
	}

	reason := core.ReasonExecutionFailed
	detail := fmt.Sprintf("exited with code %d", out.exitCode)
	if auth.Mode == privilege.ModeAgent || auth.Mode == privilege.ModeAgentUser {
		// pkexec: 126 = dialog dismissed, 127 = not authorized
		switch out.exitCode {
		case 126:
			reason = core.ReasonAuthorizationDenied
			detail = "authorization dialog dismissed"
		case 127:
			reason = core.ReasonAuthorizationDenied
			detail = "authorization denied by polkit"
		}
	}
	if len(out.tail) > 0 {
		detail += ": " + strings.Join(out.tail, " | ")
	}
	return e.finish(id, start, core.Result{
		Status: core.StatusFailed, Reason: reason,
		ExitCode: out.exitCode, Detail: detail,
	}), true
}

// runStep spawns one external command in its own process group and
// streams merged stdout/stderr line by line into progress events.
func (e *Executor) runStep(ctx context.Context, id string, st step, auth privilege.Authorization, events chan<- core.Progress) stepOutcome {
	argv := st.argv
	if st.wrap {
		argv = auth.Wrap(argv)
	}

	totalLines := e.tracker.EstimateLines(st.argv)
	predicted := e.tracker.EstimateDuration(st.argv)

	// The context is handled manually so cancellation can be graceful;
	// CommandContext would SIGKILL the direct child immediately.
	cmd := e.runner.PrepareCommand(context.Background(), argv[0], argv[1:]...)
	cmd.Dir = st.dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return stepOutcome{exitCode: -1, startErr: fmt.Errorf("pipe: %w", err)}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	e.log.Info().Str("operation", id).Strs("argv", argv).Msg("spawning")
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return stepOutcome{exitCode: -1, startErr: fmt.Errorf("failed to start %s: %w", argv[0], err)}
	}
	pw.Close()

	var killed int32
	waitDone := make(chan struct{})
	activity := make(chan struct{}, 1)

	// Under an agent, silence before the first output line means the
	// polkit prompt is still unanswered; that gets the authorize window
	// rather than the stall one.
	authPending := st.wrap && !st.interactive &&
		(auth.Mode == privilege.ModeAgent || auth.Mode == privilege.ModeAgentUser)

	go func() {
		window := e.stall
		if authPending {
			window = e.authorize
		}
		stall := time.NewTimer(window)
		defer stall.Stop()
		for {
			select {
			case <-waitDone:
				return
			case <-activity:
				authPending = false
				if !stall.Stop() {
					select {
					case <-stall.C:
					default:
					}
				}
				stall.Reset(e.stall)
			case <-ctx.Done():
				atomic.StoreInt32(&killed, killCancelled)
				e.terminate(cmd, waitDone)
				return
			case <-stall.C:
				if st.interactive {
					// The user is authenticating in a terminal; output
					// silence is expected, not a hang.
					stall.Reset(e.stall)
					continue
				}
				if authPending {
					atomic.StoreInt32(&killed, killAuthTimeout)
				} else {
					atomic.StoreInt32(&killed, killStalled)
				}
				e.terminate(cmd, waitDone)
				return
			}
		}
	}()

	stepStart := time.Now()
	linesSeen := 0
	var tail []string

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case activity <- struct{}{}:
		default:
		}

		line := strings.TrimSpace(stripANSI(scanner.Text()))
		if line == "" {
			continue
		}
		linesSeen++
		tail = append(tail, line)
		if len(tail) > 5 {
			tail = tail[1:]
		}

		pct := extractPercent(line)
		if pct < 0 {
			pct = min(linesSeen*100/max(totalLines, 1), 99)
		}
		remaining := estimateRemaining(time.Since(stepStart), pct, predicted)
		e.emit(events, id, classifyLine(line), pct, line, remaining)
	}
	pr.Close()

	waitErr := cmd.Wait()
	close(waitDone)

	e.tracker.Record(st.argv, linesSeen, time.Since(stepStart))

	exit := 0
	if waitErr != nil {
		exit = e.runner.GetExitCode(waitErr)
	}

	switch atomic.LoadInt32(&killed) {
	case killCancelled:
		return stepOutcome{exitCode: exit, reason: core.ReasonCancelled, tail: tail}
	case killStalled:
		return stepOutcome{
			exitCode: exit, reason: core.ReasonTimeout,
			detail: fmt.Sprintf("no output for %s, assuming hung", e.stall),
			tail:   tail,
		}
	case killAuthTimeout:
		return stepOutcome{
			exitCode: exit, reason: core.ReasonAuthorizationTimeout,
			detail: fmt.Sprintf("no response to the authorization prompt within %s", e.authorize),
			tail:   tail,
		}
	}
	return stepOutcome{exitCode: exit, tail: tail}
}

// terminate asks the whole process group to exit, escalating to SIGKILL
// after the grace period.
func (e *Executor) terminate(cmd *exec.Cmd, waitDone <-chan struct{}) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-waitDone:
	case <-time.After(e.killGrace):
		e.log.Warn().Int("pid", pid).Msg("grace period elapsed, killing process group")
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

// precheck verifies required helper tools before anything is spawned
func (e *Executor) precheck(ctx context.Context, id string, start time.Time, tools ...string) (core.Result, bool) {
	var missing []string
	for _, tool := range tools {
		av := e.probe.Probe(ctx, tool)
		if av.Installed {
			continue
		}
		if av.Hint != "" {
			missing = append(missing, fmt.Sprintf("%s (install with: %s)", tool, av.Hint))
		} else {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonToolMissing,
			ExitCode: -1,
			Detail:   "missing required tools: " + strings.Join(missing, ", "),
		}), false
	}
	return core.Result{}, true
}

func (e *Executor) succeed(id string, start time.Time, events chan<- core.Progress, detail string) core.Result {
	e.emit(events, id, core.PhaseInstalling, 100, detail, 0)
	return e.finish(id, start, core.Result{Status: core.StatusSuccess, Detail: detail})
}

func (e *Executor) finish(id string, start time.Time, res core.Result) core.Result {
	res.OperationID = id
	res.Duration = time.Since(start)
	if res.Status == core.StatusSuccess {
		e.log.Info().Str("operation", id).Dur("duration", res.Duration).Msg("operation succeeded")
	} else {
		e.log.Warn().Str("operation", id).Str("status", string(res.Status)).
			Str("reason", string(res.Reason)).Str("detail", res.Detail).Msg("operation did not succeed")
	}
	return res
}

// emit sends a progress event without ever blocking the pipeline; a
// slow consumer loses intermediate events, never the terminal result.
func (e *Executor) emit(events chan<- core.Progress, id, phase string, pct int, msg string, remaining time.Duration) {
	if events == nil {
		return
	}
	select {
	case events <- core.Progress{
		OperationID: id,
		Phase:       phase,
		Percent:     pct,
		Message:     msg,
		ETA:         remaining,
		At:          time.Now(),
	}:
	default:
	}
}

// estimateRemaining blends the learned duration estimate with a
// line-rate extrapolation, weighting duration more once past 10%.
func estimateRemaining(elapsed time.Duration, pct int, predicted time.Duration) time.Duration {
	var sum, weight float64

	if predicted > 0 && elapsed > 500*time.Millisecond {
		rem := predicted - elapsed
		if rem < 0 {
			rem = 0
		}
		w := 1.0
		if pct >= 10 {
			w = 2.0
		}
		sum += rem.Seconds() * w
		weight += w
	}
	if pct > 2 && pct < 100 {
		sum += elapsed.Seconds() / float64(pct) * float64(100-pct)
		weight += 1.0
	}
	if weight == 0 {
		return 0
	}
	return time.Duration(sum / weight * float64(time.Second))
}
