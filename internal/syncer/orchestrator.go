// Package syncer drives one queue synchronisation run from the AMI
// connection through to the committed database changes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"queuesync/internal/ami"
	"queuesync/internal/apperr"
	"queuesync/internal/logger"
	"queuesync/internal/queue"
)

// Stage is where a run currently is
type Stage string

const (
	StageIdle        Stage = "idle"
	StageConnecting  Stage = "connecting"
	StageEnumerating Stage = "enumerating"
	StageReconciling Stage = "reconciling"
	StageCommitting  Stage = "committing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

const defaultCommitTimeout = 30 * time.Second

// Session is an open AMI session
type Session interface {
	ami.Requester
	Close() error
}

// Dialer opens an authenticated session
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialFunc adapts a function to Dialer
type DialFunc func(ctx context.Context) (Session, error)

func (f DialFunc) Dial(ctx context.Context) (Session, error) { return f(ctx) }

// AMIDialer wraps an ami.Dialer so it can be handed to the orchestrator
func AMIDialer(d *ami.Dialer) Dialer {
	return DialFunc(func(ctx context.Context) (Session, error) {
		s, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Enumerator lists the live queues over a session
type Enumerator interface {
	ListQueues(ctx context.Context, r ami.Requester) ([]queue.LiveQueue, error)
}

// Reconciler computes the plan. It must not do I/O.
type Reconciler interface {
	Diff(live []queue.LiveQueue, persisted []queue.Record, now time.Time) queue.Plan
}

// Store is the persisted side of the sync
type Store interface {
	ListQueues(ctx context.Context) ([]queue.Record, error)
	Apply(ctx context.Context, plan queue.Plan) (queue.SyncResult, error)
}

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

// Notifier receives every stage transition
type Notifier interface {
	Publish(ev Event)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}

// Event describes a stage transition of a run
type Event struct {
	RunID  string            `json:"run_id"`
	Stage  Stage             `json:"stage"`
	Kind   apperr.Kind       `json:"kind,omitempty"`
	Error  string            `json:"error,omitempty"`
	Result *queue.SyncResult `json:"result,omitempty"`
	At     time.Time         `json:"at"`
}

// StageError is returned when a run fails. Stage is the stage that was
// executing when the failure happened.
type StageError struct {
	Stage Stage
	Kind  apperr.Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("sync failed at %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Deps are the collaborators of an Orchestrator. Clock and Notifier are
// optional.
type Deps struct {
	Dialer     Dialer
	Enumerator Enumerator
	Reconciler Reconciler
	Store      Store
	Clock      Clock
	Notifier   Notifier

	// CommitTimeout bounds reading the persisted records and applying the
	// plan. The caller's cancellation no longer applies at that point.
	CommitTimeout time.Duration
}

// Orchestrator runs syncs one at a time
type Orchestrator struct {
	deps    Deps
	running sync.Mutex

	mu     sync.Mutex
	status Status
}

// New creates an orchestrator
func New(d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.CommitTimeout <= 0 {
		d.CommitTimeout = defaultCommitTimeout
	}
	return &Orchestrator{deps: d, status: Status{Stage: StageIdle}}
}

type run struct {
	id      string
	started time.Time
}

// Run performs one sync. A call made while another run is in progress fails
// immediately with kind sync_in_progress.
func (o *Orchestrator) Run(ctx context.Context) (*queue.SyncResult, error) {
	if !o.running.TryLock() {
		current := o.Status()
		return nil, &StageError{
			Stage: current.Stage,
			Kind:  apperr.KindSyncInProgress,
			Err:   apperr.Newf(apperr.KindSyncInProgress, "syncer.Run", "sync %s already running", current.RunID),
		}
	}
	defer o.running.Unlock()

	r := run{id: uuid.NewString(), started: o.deps.Clock.Now()}
	o.begin(r)

	o.transition(r, StageConnecting)
	sess, err := o.deps.Dialer.Dial(ctx)
	if err != nil {
		return nil, o.fail(r, StageConnecting, err, nil)
	}
	closeSession := sync.OnceValue(sess.Close)
	defer closeSession()

	o.transition(r, StageEnumerating)
	live, err := o.deps.Enumerator.ListQueues(ctx, sess)
	if err != nil {
		return nil, o.fail(r, StageEnumerating, err, closeSession)
	}

	// desde aquí solo CommitTimeout puede abortar la corrida
	o.transition(r, StageReconciling)
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.CommitTimeout)
	defer cancel()

	persisted, err := o.deps.Store.ListQueues(dbCtx)
	if err != nil {
		return nil, o.fail(r, StageReconciling, err, closeSession)
	}
	plan := o.deps.Reconciler.Diff(live, persisted, o.deps.Clock.Now())

	o.transition(r, StageCommitting)
	res, err := o.deps.Store.Apply(dbCtx, plan)
	if err != nil {
		return nil, o.fail(r, StageCommitting, err, closeSession)
	}
	res.Errors = plan.Errors
	res.StartedAt = r.started
	res.FinishedAt = o.deps.Clock.Now()

	o.finish(r, &res)
	return &res, nil
}

func (o *Orchestrator) begin(r run) {
	o.mu.Lock()
	o.status = Status{RunID: r.id, Stage: StageIdle, Running: true, StartedAt: r.started}
	o.mu.Unlock()
}

func (o *Orchestrator) transition(r run, stage Stage) {
	o.mu.Lock()
	o.status.Stage = stage
	o.mu.Unlock()

	logger.For("syncer").Info("etapa", "run", r.id, "stage", stage)
	o.deps.Notifier.Publish(Event{RunID: r.id, Stage: stage, At: o.deps.Clock.Now()})
}

// fail cierra la sesión AMI antes de publicar el estado failed
func (o *Orchestrator) fail(r run, stage Stage, err error, closeSession func() error) error {
	if closeSession != nil {
		closeSession()
	}

	kind := failureKind(stage, err)
	serr := &StageError{Stage: stage, Kind: kind, Err: err}
	now := o.deps.Clock.Now()

	o.mu.Lock()
	o.status.Stage = StageFailed
	o.status.Running = false
	o.status.FinishedAt = now
	o.status.FailedStage = stage
	o.status.Kind = kind
	o.status.Error = err.Error()
	o.status.Result = nil
	o.mu.Unlock()

	logger.For("syncer").Error("sincronización fallida", "run", r.id, "stage", stage, "kind", kind, "error", err)
	o.deps.Notifier.Publish(Event{RunID: r.id, Stage: StageFailed, Kind: kind, Error: err.Error(), At: now})
	return serr
}

// failureKind clasifica errores sin tipo según la etapa donde ocurrieron
func failureKind(stage Stage, err error) apperr.Kind {
	kind := apperr.KindOf(err)
	if kind != apperr.KindInternal {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.KindTimeout
	}
	switch stage {
	case StageConnecting, StageEnumerating:
		return apperr.KindConnection
	case StageReconciling, StageCommitting:
		return apperr.KindPersistence
	}
	return kind
}

func (o *Orchestrator) finish(r run, res *queue.SyncResult) {
	o.mu.Lock()
	o.status.Stage = StageDone
	o.status.Running = false
	o.status.FinishedAt = res.FinishedAt
	o.status.Result = res
	o.mu.Unlock()

	logger.For("syncer").Info("sincronización completada", "run", r.id,
		"created", res.Created, "reactivated", res.Reactivated,
		"deactivated", res.Deactivated, "unchanged", res.Unchanged,
		"errors", len(res.Errors), "took", res.FinishedAt.Sub(res.StartedAt))
	o.deps.Notifier.Publish(Event{RunID: r.id, Stage: StageDone, Result: res, At: res.FinishedAt})
}
