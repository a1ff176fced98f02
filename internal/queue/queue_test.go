package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/logging"
	"github.com/tys-asm/asmctl/internal/privilege"
)

// fakeExecutor blocks each operation until released, recording the
// order operations actually started in.
type fakeExecutor struct {
	mu      sync.Mutex
	started []string
	release map[string]chan core.Result
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{release: make(map[string]chan core.Result)}
}

func (f *fakeExecutor) Execute(ctx context.Context, id string, desc core.Descriptor, _ privilege.Authorization, events chan<- core.Progress) core.Result {
	ch := make(chan core.Result, 1)
	f.mu.Lock()
	f.started = append(f.started, desc.Target)
	f.release[desc.Target] = ch
	f.mu.Unlock()

	select {
	case res := <-ch:
		res.OperationID = id
		return res
	case <-ctx.Done():
		return core.Result{OperationID: id, Status: core.StatusCancelled, Reason: core.ReasonCancelled, ExitCode: -1}
	}
}

func (f *fakeExecutor) finish(target string, res core.Result) {
	for {
		f.mu.Lock()
		ch, ok := f.release[target]
		f.mu.Unlock()
		if ok {
			ch <- res
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeExecutor) startedTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.started...)
}

type fakeBroker struct {
	err error
}

func (b *fakeBroker) Authorize(context.Context, core.Descriptor) (privilege.Authorization, error) {
	if b.err != nil {
		return privilege.Authorization{}, b.err
	}
	return privilege.Authorization{Mode: privilege.ModeNone}, nil
}

type fakeJournal struct {
	mu       sync.Mutex
	recorded []string
	finished []core.Result
}

func (j *fakeJournal) Record(_ context.Context, id string, _ core.Descriptor) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recorded = append(j.recorded, id)
	return nil
}

func (j *fakeJournal) Finish(_ context.Context, res core.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, res)
	return nil
}

func privilegedInstall(target string) core.Descriptor {
	return core.Descriptor{Kind: core.KindInstall, Backend: core.BackendRepo, Target: target, Privileged: true}
}

func newTestQueue(exec Executor, broker Broker, journal Journal) *Queue {
	return New(exec, broker, journal, logging.NewTestLogger(io.Discard))
}

func waitStarted(t *testing.T, exec *fakeExecutor, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(exec.startedTargets()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d started operations, got %v", want, exec.startedTargets())
}

func TestSubmit_DeliversExactlyOneResult(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	ticket, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	require.NotEmpty(t, ticket.ID)

	waitStarted(t, exec, 1)
	exec.finish("firefox", core.Result{Status: core.StatusSuccess})

	res, ok := <-ticket.Result
	require.True(t, ok)
	assert.Equal(t, core.StatusSuccess, res.Status)
	assert.Equal(t, ticket.ID, res.OperationID)

	// Channel closed after the single result
	_, ok = <-ticket.Result
	assert.False(t, ok)

	// Progress closed too
	for range ticket.Progress {
	}
}

func TestSubmit_PrivilegedMutatingOpsAreExclusive(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	first, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)

	// Queued, not rejected, while the slot is held
	second, err := q.Submit(privilegedInstall("vim"))
	require.NoError(t, err)

	st, err := q.Status(second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SlotQueued, st.Phase)
	assert.Equal(t, []string{"firefox"}, exec.startedTargets())

	exec.finish("firefox", core.Result{Status: core.StatusSuccess})
	<-first.Result

	waitStarted(t, exec, 2)
	assert.Equal(t, []string{"firefox", "vim"}, exec.startedTargets())

	exec.finish("vim", core.Result{Status: core.StatusSuccess})
	res := <-second.Result
	assert.Equal(t, core.StatusSuccess, res.Status)
}

func TestSubmit_QueuedOpsStartInFIFOOrder(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	tickets := make([]*Ticket, 0, 3)
	for _, target := range []string{"a", "b", "c"} {
		tk, err := q.Submit(privilegedInstall(target))
		require.NoError(t, err)
		tickets = append(tickets, tk)
	}

	waitStarted(t, exec, 1)
	for i, target := range []string{"a", "b", "c"} {
		exec.finish(target, core.Result{Status: core.StatusSuccess})
		<-tickets[i].Result
		if i < 2 {
			waitStarted(t, exec, i+2)
		}
	}

	assert.Equal(t, []string{"a", "b", "c"}, exec.startedTargets())
}

func TestSubmit_UnprivilegedOpsRunConcurrently(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	excl, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)

	// A user-scoped flatpak install does not need the exclusive slot
	flat, err := q.Submit(core.Descriptor{Kind: core.KindInstall, Backend: core.BackendFlatpak, Target: "org.gimp.GIMP"})
	require.NoError(t, err)

	waitStarted(t, exec, 2)
	assert.ElementsMatch(t, []string{"firefox", "org.gimp.GIMP"}, exec.startedTargets())

	exec.finish("org.gimp.GIMP", core.Result{Status: core.StatusSuccess})
	<-flat.Result
	exec.finish("firefox", core.Result{Status: core.StatusSuccess})
	<-excl.Result
}

func TestCancel_QueuedOperation(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	running, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)

	queued, err := q.Submit(privilegedInstall("vim"))
	require.NoError(t, err)

	require.NoError(t, q.Cancel(queued.ID))

	res := <-queued.Result
	assert.Equal(t, core.StatusCancelled, res.Status)
	assert.Equal(t, core.ReasonCancelled, res.Reason)

	// The running op is untouched and the slot hands over to nobody
	exec.finish("firefox", core.Result{Status: core.StatusSuccess})
	res = <-running.Result
	assert.Equal(t, core.StatusSuccess, res.Status)
	assert.Equal(t, []string{"firefox"}, exec.startedTargets())
}

func TestCancel_RunningOperation(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	ticket, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)

	require.NoError(t, q.Cancel(ticket.ID))

	res := <-ticket.Result
	assert.Equal(t, core.StatusCancelled, res.Status)
}

func TestCancel_FinishedOperation(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	ticket, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)
	exec.finish("firefox", core.Result{Status: core.StatusSuccess})
	<-ticket.Result

	assert.ErrorIs(t, q.Cancel(ticket.ID), core.ErrNotCancellable)
}

func TestCancel_UnknownOperation(t *testing.T) {
	q := newTestQueue(newFakeExecutor(), &fakeBroker{}, nil)
	defer q.Close()

	assert.ErrorIs(t, q.Cancel("no-such-id"), core.ErrNotFound)
}

func TestSubmit_AuthorizationFailureRetiresSlot(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{err: core.ErrNoPrivilegeMechanism}, nil)
	defer q.Close()

	first, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)

	res := <-first.Result
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.ReasonNoPrivilegeMechanism, res.Reason)

	// The exclusive slot must be free again
	second, err := q.Submit(privilegedInstall("vim"))
	require.NoError(t, err)
	res = <-second.Result
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Empty(t, exec.startedTargets())
}

func TestSubmit_JournalsLifecycles(t *testing.T) {
	exec := newFakeExecutor()
	journal := &fakeJournal{}
	q := newTestQueue(exec, &fakeBroker{}, journal)
	defer q.Close()

	ticket, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)
	exec.finish("firefox", core.Result{Status: core.StatusSuccess})
	<-ticket.Result

	journal.mu.Lock()
	defer journal.mu.Unlock()
	assert.Equal(t, []string{ticket.ID}, journal.recorded)
	require.Len(t, journal.finished, 1)
	assert.Equal(t, core.StatusSuccess, journal.finished[0].Status)
}

func TestClose_CancelsQueuedAndRejectsNew(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)

	running, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)

	queued, err := q.Submit(privilegedInstall("vim"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	res := <-queued.Result
	assert.Equal(t, core.StatusCancelled, res.Status)

	res = <-running.Result
	assert.Equal(t, core.StatusCancelled, res.Status)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	_, err = q.Submit(privilegedInstall("vim"))
	assert.ErrorIs(t, err, core.ErrQueueClosed)
}

func TestStatus_Snapshots(t *testing.T) {
	exec := newFakeExecutor()
	q := newTestQueue(exec, &fakeBroker{}, nil)
	defer q.Close()

	ticket, err := q.Submit(privilegedInstall("firefox"))
	require.NoError(t, err)
	waitStarted(t, exec, 1)

	st, err := q.Status(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SlotRunning, st.Phase)
	assert.Nil(t, st.Result)
	assert.Equal(t, "firefox", st.Descriptor.Target)

	exec.finish("firefox", core.Result{Status: core.StatusSuccess})
	<-ticket.Result

	st, err = q.Status(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SlotFinished, st.Phase)
	require.NotNil(t, st.Result)
	assert.Equal(t, core.StatusSuccess, st.Result.Status)

	_, err = q.Status("unknown")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAuthFailureMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		err    error
		reason core.FailureReason
	}{
		{core.ErrNoPrivilegeMechanism, core.ReasonNoPrivilegeMechanism},
		{core.ErrAuthorizationTimeout, core.ReasonAuthorizationTimeout},
		{core.ErrAuthorizationDenied, core.ReasonAuthorizationDenied},
		{errors.New("anything else"), core.ReasonAuthorizationDenied},
	}

	for _, tt := range tests {
		res := authFailure("id", ctx, tt.err)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, tt.reason, res.Reason)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res := authFailure("id", cancelled, errors.New("interrupted"))
	assert.Equal(t, core.StatusCancelled, res.Status)
}
