package core

import (
	"errors"
	"time"
)

// OperationKind identifies what an operation does to the system
type OperationKind string

const (
	KindInstall       OperationKind = "install"
	KindRemove        OperationKind = "remove"
	KindConvert       OperationKind = "convert"
	KindMove          OperationKind = "move"
	KindDiagnosticFix OperationKind = "diagnostic-fix"
)

// Mutating reports whether this kind changes package state on disk.
// Every kind currently defined mutates; read-only queries (search, list)
// go through the query layer and never become operations.
func (k OperationKind) Mutating() bool {
	switch k {
	case KindInstall, KindRemove, KindConvert, KindMove, KindDiagnosticFix:
		return true
	}
	return false
}

// Backend identifies the origin/mechanism of a package operation
type Backend string

const (
	BackendRepo    Backend = "repo"
	BackendAUR     Backend = "aur"
	BackendFlatpak Backend = "flatpak"
	BackendSnap    Backend = "snap"
	BackendFile    Backend = "file"
)

// Descriptor is an immutable description of one requested operation.
// The UI layer constructs it; the queue consumes it exactly once.
type Descriptor struct {
	Kind       OperationKind
	Backend    Backend
	Target     string // package name, app id, or file path
	Privileged bool

	// FixArgv is the remediation command for KindDiagnosticFix descriptors.
	// Empty for every other kind.
	FixArgv []string
}

// Status is the terminal state of an operation
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FailureReason classifies why an operation failed
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonToolMissing          FailureReason = "tool-missing"
	ReasonAuthorizationDenied  FailureReason = "authorization-denied"
	ReasonAuthorizationTimeout FailureReason = "authorization-timeout"
	ReasonNoPrivilegeMechanism FailureReason = "no-privilege-mechanism"
	ReasonExecutionFailed      FailureReason = "execution-failed"
	ReasonCancelled            FailureReason = "cancelled"
	ReasonTimeout              FailureReason = "timeout"
)

// Progress is one progress event for an in-flight operation.
// Percent is -1 when no estimate is available.
type Progress struct {
	OperationID string
	Phase       string
	Percent     int
	Message     string
	ETA         time.Duration // 0 when unknown
	At          time.Time
}

// Recognized progress phases. Unrecognized tool output is forwarded
// with PhaseOutput so no information is lost.
const (
	PhaseStarting    = "starting"
	PhaseResolving   = "resolving dependencies"
	PhaseDownloading = "downloading"
	PhaseBuilding    = "building"
	PhaseInstalling  = "installing"
	PhaseRemoving    = "removing"
	PhaseConverting  = "converting"
	PhaseChecking    = "checking"
	PhaseOutput      = "output"
)

// Result is the single terminal outcome of an accepted operation
type Result struct {
	OperationID string
	Status      Status
	Reason      FailureReason
	ExitCode    int
	Detail      string
	Duration    time.Duration
}

// SlotPhase describes where an operation currently is in the queue
type SlotPhase string

const (
	SlotQueued   SlotPhase = "queued"
	SlotRunning  SlotPhase = "running"
	SlotFinished SlotPhase = "finished"
)

// SlotState is a point-in-time snapshot of a queued operation
type SlotState struct {
	OperationID string
	Descriptor  Descriptor
	Phase       SlotPhase
	Result      *Result // set once Phase == SlotFinished
}

// Sentinel errors shared across the orchestration core
var (
	ErrToolMissing          = errors.New("required tool not installed")
	ErrAuthorizationDenied  = errors.New("authorization denied")
	ErrAuthorizationTimeout = errors.New("authorization timed out")
	ErrNoPrivilegeMechanism = errors.New("no privilege mechanism available")
	ErrNotFound             = errors.New("operation not found")
	ErrNotCancellable       = errors.New("operation not cancellable")
	ErrQueueClosed          = errors.New("queue closed")
)
