package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/privilege"
)

// Executor runs one operation to a single terminal result
type Executor interface {
	Execute(ctx context.Context, id string, desc core.Descriptor, auth privilege.Authorization, events chan<- core.Progress) core.Result
}

// Broker resolves the privilege mechanism for a descriptor
type Broker interface {
	Authorize(ctx context.Context, desc core.Descriptor) (privilege.Authorization, error)
}

// Journal records accepted operations and their outcomes. Recording is
// best-effort: a journal failure never blocks an operation.
type Journal interface {
	Record(ctx context.Context, id string, desc core.Descriptor) error
	Finish(ctx context.Context, res core.Result) error
}

// Ticket is what a submitter holds while its operation runs. Result
// delivers exactly one value; Progress closes when the operation retires.
type Ticket struct {
	ID       string
	Progress <-chan core.Progress
	Result   <-chan core.Result
}

type slot struct {
	id       string
	desc     core.Descriptor
	phase    core.SlotPhase
	progress chan core.Progress
	result   chan core.Result
	cancel   context.CancelFunc
	res      *core.Result

	// exclusive: privileged + mutating, must hold the single slot.
	// holding: it actually acquired the slot (queued ones have not).
	exclusive bool
	holding   bool
}

// Queue serializes operations. Privileged mutating operations hold a
// single exclusive slot in FIFO admission order, which removes pacman
// database-lock races by construction; everything else dispatches
// immediately. Every accepted descriptor yields exactly one Result.
type Queue struct {
	exec    Executor
	broker  Broker
	journal Journal // may be nil
	log     *zerolog.Logger

	mu            sync.Mutex
	slots         map[string]*slot
	pending       []*slot
	exclusiveBusy bool
	closed        bool
	wg            sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates a Queue; journal may be nil to disable the audit trail
func New(exec Executor, broker Broker, journal Journal, log *zerolog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		exec:       exec,
		broker:     broker,
		journal:    journal,
		log:        log,
		slots:      make(map[string]*slot),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Submit accepts a descriptor and returns its ticket. Submissions while
// the exclusive slot is held are queued, never rejected.
func (q *Queue) Submit(desc core.Descriptor) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, core.ErrQueueClosed
	}

	s := &slot{
		id:        uuid.NewString(),
		desc:      desc,
		phase:     core.SlotQueued,
		progress:  make(chan core.Progress, 128),
		result:    make(chan core.Result, 1),
		exclusive: desc.Privileged && desc.Kind.Mutating(),
	}
	q.slots[s.id] = s

	if q.journal != nil {
		if err := q.journal.Record(q.baseCtx, s.id, desc); err != nil {
			q.log.Warn().Err(err).Str("operation", s.id).Msg("journal record failed")
		}
	}

	q.log.Info().Str("operation", s.id).Str("kind", string(desc.Kind)).
		Str("backend", string(desc.Backend)).Str("target", desc.Target).
		Bool("exclusive", s.exclusive).Msg("operation accepted")

	if s.exclusive && q.exclusiveBusy {
		q.pending = append(q.pending, s)
	} else {
		q.startLocked(s)
	}

	return &Ticket{ID: s.id, Progress: s.progress, Result: s.result}, nil
}

// Cancel cancels a queued or running operation
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()

	s, ok := q.slots[id]
	if !ok {
		q.mu.Unlock()
		return core.ErrNotFound
	}

	switch s.phase {
	case core.SlotFinished:
		q.mu.Unlock()
		return core.ErrNotCancellable

	case core.SlotQueued:
		for i, p := range q.pending {
			if p == s {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
		q.retireLocked(s, core.Result{
			OperationID: s.id,
			Status:      core.StatusCancelled,
			Reason:      core.ReasonCancelled,
			ExitCode:    -1,
			Detail:      "cancelled before execution started",
		})
		q.mu.Unlock()
		return nil

	default: // running: executor turns the cancel into StatusCancelled
		cancel := s.cancel
		q.mu.Unlock()
		cancel()
		return nil
	}
}

// Status returns a point-in-time snapshot of an operation's slot
func (q *Queue) Status(id string) (core.SlotState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.slots[id]
	if !ok {
		return core.SlotState{}, core.ErrNotFound
	}
	return core.SlotState{
		OperationID: s.id,
		Descriptor:  s.desc,
		Phase:       s.phase,
		Result:      s.res,
	}, nil
}

// Close cancels everything in flight, rejects new submissions and
// waits for running operations to retire.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true

	queued := q.pending
	q.pending = nil
	for _, s := range queued {
		q.retireLocked(s, core.Result{
			OperationID: s.id,
			Status:      core.StatusCancelled,
			Reason:      core.ReasonCancelled,
			ExitCode:    -1,
			Detail:      "queue shut down",
		})
	}
	q.mu.Unlock()

	q.baseCancel()
	q.wg.Wait()
}

// startLocked transitions a slot to running; q.mu must be held
func (q *Queue) startLocked(s *slot) {
	if s.exclusive {
		q.exclusiveBusy = true
		s.holding = true
	}
	s.phase = core.SlotRunning

	ctx, cancel := context.WithCancel(q.baseCtx)
	s.cancel = cancel

	q.wg.Add(1)
	go q.run(ctx, s)
}

func (q *Queue) run(ctx context.Context, s *slot) {
	defer q.wg.Done()

	var res core.Result
	auth, err := q.broker.Authorize(ctx, s.desc)
	if err != nil {
		res = authFailure(s.id, ctx, err)
	} else {
		res = q.exec.Execute(ctx, s.id, s.desc, auth, s.progress)
	}

	q.mu.Lock()
	q.retireLocked(s, res)
	q.mu.Unlock()
}

// retireLocked delivers the terminal result, releases the exclusive
// slot if held, and starts the next pending operation; q.mu must be held.
func (q *Queue) retireLocked(s *slot, res core.Result) {
	s.phase = core.SlotFinished
	s.res = &res
	s.result <- res
	close(s.result)
	close(s.progress)

	if q.journal != nil {
		if err := q.journal.Finish(context.Background(), res); err != nil {
			q.log.Warn().Err(err).Str("operation", s.id).Msg("journal finish failed")
		}
	}

	q.log.Info().Str("operation", s.id).Str("status", string(res.Status)).Msg("operation retired")

	if s.holding {
		s.holding = false
		q.exclusiveBusy = false
		if len(q.pending) > 0 && !q.closed {
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.startLocked(next)
		}
	}
}

// authFailure maps an authorization error to a terminal result; the
// slot is never left reserved.
func authFailure(id string, ctx context.Context, err error) core.Result {
	res := core.Result{
		OperationID: id,
		Status:      core.StatusFailed,
		ExitCode:    -1,
		Detail:      err.Error(),
	}
	switch {
	case ctx.Err() != nil:
		res.Status = core.StatusCancelled
		res.Reason = core.ReasonCancelled
		res.Detail = "cancelled during authorization"
	case errors.Is(err, core.ErrNoPrivilegeMechanism):
		res.Reason = core.ReasonNoPrivilegeMechanism
	case errors.Is(err, core.ErrAuthorizationTimeout):
		res.Reason = core.ReasonAuthorizationTimeout
	case errors.Is(err, core.ErrAuthorizationDenied):
		res.Reason = core.ReasonAuthorizationDenied
	default:
		res.Reason = core.ReasonAuthorizationDenied
	}
	return res
}
