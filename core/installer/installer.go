// Package installer is the install orchestrator: a single goroutine that
// takes install, move, measure and delete work items in submission order
// and drives each through its phases to exactly one observer callback.
//
// Blocking helper, daemon and filesystem calls run inline on the queue
// goroutine. An item waiting on the storage helper or on verification
// parks the queue and is resumed by a message posted back to it.
package installer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/installer/hooks"
	"github.com/vadiminshakov/installd/core/journal"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
	"github.com/vadiminshakov/installd/core/verify"
	"github.com/vadiminshakov/installd/io/daemon"
)

const (
	// MaxBindAttempts bounds how often a work item tries to reach the
	// storage helper before giving up.
	MaxBindAttempts = 4

	DefaultBindRetryDelay = 10 * time.Second
	DefaultBindTimeout    = 5 * time.Second
)

// Helper is the storage-helper service as the installer uses it.
//
//go:generate mockgen -destination=../../mocks/mock_installer_helper.go -package=mocks -mock_names=Helper=MockInstallHelper . Helper
type Helper interface {
	storage.Helper
	Ping(ctx context.Context) error
	GetMinimalPackageInfo(ctx context.Context, path string, flags dto.InstallFlags, threshold int64) (*dto.PackageInfoLite, error)
	CalculateDirectorySize(ctx context.Context, path string) (int64, error)
}

// Daemon is the storage daemon command set the installer uses.
//
//go:generate mockgen -destination=../../mocks/mock_installer_daemon.go -package=mocks -mock_names=Daemon=MockInstallDaemon . Daemon
type Daemon interface {
	storage.Daemon
	Install(ctx context.Context, pkg string, uid, gid int) error
	Remove(ctx context.Context, pkg string) error
	Dexopt(ctx context.Context, path string, uid int, public bool) error
	MoveDex(ctx context.Context, src, dst string) error
	FreeCache(ctx context.Context, size int64) error
	GetSize(ctx context.Context, pkg, codePath, fwdLockResPath string) (daemon.Sizes, error)
	LinkLib(ctx context.Context, pkg, dir string) error
}

// Recorder receives installer measurements.
type Recorder interface {
	ItemFinished(kind string, status dto.Status, d time.Duration)
	PhaseFinished(kind string, phase Phase, d time.Duration)
	BindRetry()
	VerificationFinished(result verify.Result)
}

type nopRecorder struct{}

func (nopRecorder) ItemFinished(string, dto.Status, time.Duration) {}
func (nopRecorder) PhaseFinished(string, Phase, time.Duration)     {}
func (nopRecorder) BindRetry()                                     {}
func (nopRecorder) VerificationFinished(verify.Result)             {}

// Config tunes the orchestrator.
type Config struct {
	VerificationEnabled bool
	VerificationTimeout time.Duration
	BindRetryDelay      time.Duration
	BindTimeout         time.Duration
}

// Deps are the collaborators of the orchestrator. Journal, Agents, Hooks
// and Recorder are optional.
type Deps struct {
	Env      *storage.Env
	Helper   Helper
	Daemon   Daemon
	Registry *registry.Registry
	Journal  *journal.Journal
	Agents   verify.AgentDirectory
	Hooks    *hooks.Registry
	Recorder Recorder
}

type itemKind string

const (
	kindInstall itemKind = "install"
	kindMove    itemKind = "move"
	kindMeasure itemKind = "measure"
	kindDelete  itemKind = "delete"
)

// operation is the kind-specific part of a work item.
type operation interface {
	// subject names the package for logs and duplicate checks.
	subject() string
	needsHelper() bool
	// run executes the item after binding. It returns false when the
	// item parked waiting for a message.
	run(ctx context.Context, w *workItem) bool
	// report delivers the terminal status to the observer.
	report(status dto.Status)
}

// verifiable is an operation that can wait on verification.
type verifiable interface {
	verified(ctx context.Context, w *workItem, res verify.Result)
}

type workItem struct {
	id       uuid.UUID
	kind     itemKind
	op       operation
	fsm      *stateMachine
	attempts int
	token    uint32
	status   dto.Status
	reported bool
	seq      uint64
	logged   bool
	// claimed is set while a move holds its package in Installer.moving
	claimed bool

	submitted  time.Time
	phaseStart time.Time
	log        *log.Entry
}

type (
	submitMsg    struct{ w *workItem }
	bindRetryMsg struct{ w *workItem }
	verifiedMsg  struct{ outcome verify.Outcome }
)

// Installer is the work queue.
type Installer struct {
	cfg      Config
	env      *storage.Env
	helper   Helper
	daemon   Daemon
	registry *registry.Registry
	journal  *journal.Journal
	verifier *verify.Engine
	hooks    *hooks.Registry
	rec      Recorder

	ctx      context.Context
	cancel   context.CancelFunc
	inflight atomic.Int64

	mu     sync.Mutex
	inbox  []interface{}
	closed bool
	wake   chan struct{}
	done   chan struct{}

	// owned by the loop goroutine
	queue   []*workItem
	current *workItem
	moving  map[string]struct{}
}

// New builds the orchestrator and starts its loop.
func New(cfg Config, deps Deps) *Installer {
	if cfg.BindRetryDelay <= 0 {
		cfg.BindRetryDelay = DefaultBindRetryDelay
	}
	if cfg.BindTimeout <= 0 {
		cfg.BindTimeout = DefaultBindTimeout
	}
	if deps.Hooks == nil {
		deps.Hooks = hooks.NewRegistry()
		deps.Hooks.Register("default", hooks.NewDefaultHook())
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Env.Helper == nil {
		deps.Env.Helper = deps.Helper
	}
	if deps.Env.Daemon == nil {
		deps.Env.Daemon = deps.Daemon
	}

	ctx, cancel := context.WithCancel(context.Background())
	in := &Installer{
		cfg:      cfg,
		env:      deps.Env,
		helper:   deps.Helper,
		daemon:   deps.Daemon,
		registry: deps.Registry,
		journal:  deps.Journal,
		hooks:    deps.Hooks,
		rec:      deps.Recorder,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		moving:   make(map[string]struct{}),
	}
	if cfg.VerificationEnabled && deps.Agents != nil {
		in.verifier = verify.NewEngine(deps.Agents, cfg.VerificationTimeout, func(o verify.Outcome) {
			in.post(verifiedMsg{outcome: o})
		})
	}

	go in.loop()
	return in
}

// Install queues an install of req.Source.
func (in *Installer) Install(req *dto.InstallRequest) uuid.UUID {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return in.submit(req.ID, kindInstall, &installOp{in: in, req: req})
}

// Move queues a relocation of an installed package.
func (in *Installer) Move(req *dto.MoveRequest) uuid.UUID {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return in.submit(req.ID, kindMove, &moveOp{in: in, req: req})
}

// Measure queues a storage footprint measurement.
func (in *Installer) Measure(req *dto.MeasureRequest) uuid.UUID {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return in.submit(req.ID, kindMeasure, &measureOp{in: in, req: req})
}

// Delete queues removal of an installed package.
func (in *Installer) Delete(req *dto.DeleteRequest) uuid.UUID {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return in.submit(req.ID, kindDelete, &deleteOp{in: in, req: req})
}

// Vote delivers a verification agent's vote.
func (in *Installer) Vote(token uint32, uid int, vote verify.Vote) bool {
	if in.verifier == nil {
		return false
	}
	return in.verifier.Vote(token, uid, vote)
}

// Stop fails every queued item and waits for the loop to exit.
func (in *Installer) Stop() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		<-in.done
		return
	}
	in.closed = true
	in.mu.Unlock()

	if in.verifier != nil {
		in.verifier.Stop()
	}
	in.cancel()
	in.signal()
	<-in.done
}

func (in *Installer) submit(id uuid.UUID, kind itemKind, op operation) uuid.UUID {
	w := &workItem{
		id:        id,
		kind:      kind,
		op:        op,
		fsm:       newStateMachine(),
		submitted: time.Now(),
		log: log.WithFields(log.Fields{
			"item": id,
			"kind": kind,
			"pkg":  op.subject(),
		}),
	}
	in.inflight.Add(1)
	if !in.post(submitMsg{w: w}) {
		in.inflight.Add(-1)
		w.log.Warn("installer stopped, rejecting item")
		op.report(dto.FailedInternalError)
	}
	return id
}

// post appends m to the inbox. It returns false once the installer stopped.
func (in *Installer) post(m interface{}) bool {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return false
	}
	in.inbox = append(in.inbox, m)
	in.mu.Unlock()
	in.signal()
	return true
}

func (in *Installer) signal() {
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

func (in *Installer) takeInbox() ([]interface{}, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	msgs := in.inbox
	in.inbox = nil
	return msgs, in.closed
}

func (in *Installer) loop() {
	defer close(in.done)

	for range in.wake {
		msgs, closed := in.takeInbox()
		for _, m := range msgs {
			in.handle(m)
		}
		if closed {
			in.abandonAll()
			return
		}
		in.schedule()
	}
}

func (in *Installer) handle(m interface{}) {
	switch msg := m.(type) {
	case submitMsg:
		w := msg.w
		if w.kind == kindMove {
			if _, busy := in.moving[w.op.subject()]; busy {
				w.log.Warn("move already pending")
				in.fail(w, dto.FailedOperationPending)
				in.finish(w)
				return
			}
			in.moving[w.op.subject()] = struct{}{}
			w.claimed = true
		}
		in.queue = append(in.queue, w)
	case bindRetryMsg:
		if in.current == msg.w {
			in.bind(msg.w)
		}
	case verifiedMsg:
		w := in.current
		if w == nil || w.fsm.Current() != PhaseVerifying || w.token != msg.outcome.Token {
			log.WithField("token", msg.outcome.Token).Debug("installer: stale verification outcome")
			return
		}
		in.rec.VerificationFinished(msg.outcome.Result)
		if v, ok := w.op.(verifiable); ok {
			v.verified(in.ctx, w, msg.outcome.Result)
		}
		if w.fsm.Terminal() {
			in.finish(w)
		}
	}
}

// schedule starts queued items while nothing is parked.
func (in *Installer) schedule() {
	for in.current == nil && len(in.queue) > 0 {
		w := in.queue[0]
		in.queue[0] = nil
		in.queue = in.queue[1:]

		in.current = w
		w.phaseStart = time.Now()
		w.log.Info("installer: starting item")

		if !w.op.needsHelper() {
			if w.op.run(in.ctx, w) {
				in.finish(w)
			}
			continue
		}
		in.bind(w)
	}
}

// bind reaches the storage helper, retrying on a timer up to
// MaxBindAttempts times before giving up on the item.
func (in *Installer) bind(w *workItem) {
	if err := in.enter(w, PhaseBinding); err != nil {
		in.finish(w)
		return
	}
	w.attempts++

	ctx, cancel := context.WithTimeout(in.ctx, in.cfg.BindTimeout)
	err := in.helper.Ping(ctx)
	cancel()

	if err == nil {
		if w.op.run(in.ctx, w) {
			in.finish(w)
		}
		return
	}

	in.rec.BindRetry()
	w.log.WithField("attempt", w.attempts).Warnf("installer: storage helper unavailable: %v", err)
	if w.attempts >= MaxBindAttempts {
		w.log.Error("installer: giving up on storage helper")
		in.fail(w, dto.FailedHelperUnavailable)
		in.finish(w)
		return
	}
	time.AfterFunc(in.cfg.BindRetryDelay, func() {
		in.post(bindRetryMsg{w: w})
	})
}

// enter moves w to phase p, recording how long the previous phase took.
// An invalid transition fails the item.
func (in *Installer) enter(w *workItem, p Phase) error {
	prev := w.fsm.Current()
	if err := w.fsm.Transition(p); err != nil {
		w.log.Errorf("installer: %v", err)
		in.fail(w, dto.FailedInternalError)
		return err
	}
	if prev != p {
		now := time.Now()
		in.rec.PhaseFinished(string(w.kind), prev, now.Sub(w.phaseStart))
		w.phaseStart = now
		w.log = w.log.WithField("phase", p)
	}
	return nil
}

// fail marks w failed with status. The observer is told in finish.
func (in *Installer) fail(w *workItem, status dto.Status) {
	if w.fsm.Terminal() {
		return
	}
	w.fsm.Fail()
	w.status = status
	w.log.WithField("status", status).Warnf("installer: failed at %s", w.fsm.FailedAt())
}

// succeed marks w done.
func (in *Installer) succeed(w *workItem) {
	if err := in.enter(w, PhaseDone); err != nil {
		return
	}
	w.status = dto.Succeeded
}

// finish reports a terminal item exactly once and frees the queue.
func (in *Installer) finish(w *workItem) {
	if !w.fsm.Terminal() {
		in.fail(w, dto.FailedInternalError)
	}
	if in.current == w {
		in.current = nil
	}
	if w.claimed {
		delete(in.moving, w.op.subject())
		w.claimed = false
	}
	in.endJournal(w)
	if !w.reported {
		w.reported = true
		w.op.report(w.status)
	}
	in.inflight.Add(-1)
	in.rec.ItemFinished(string(w.kind), w.status, time.Since(w.submitted))
	w.log.WithField("status", w.status).Info("installer: item finished")
}

// abandonAll fails everything still queued or parked on shutdown.
func (in *Installer) abandonAll() {
	pending := in.queue
	in.queue = nil
	if in.current != nil {
		pending = append([]*workItem{in.current}, pending...)
	}
	for _, w := range pending {
		in.fail(w, dto.FailedInternalError)
		in.finish(w)
	}
}

// beginJournal records the artifacts w created, and the registry entry it
// may replace, so a crash before finish leaves them for Recover.
func (in *Installer) beginJournal(w *workItem, prev *registry.Entry, artifacts ...storage.Args) {
	if in.journal == nil || w.logged {
		return
	}
	rec := journal.Record{Item: w.id, Kind: string(w.kind), Package: w.op.subject(), Previous: prev}
	for _, a := range artifacts {
		rec.Storage = append(rec.Storage, a.Descriptor())
	}
	seq, err := in.journal.Begin(rec)
	if err != nil {
		w.log.Warnf("installer: journal: %v", err)
		return
	}
	w.seq, w.logged = seq, true
}

// placedJournal replaces the journaled artifacts of w with their final
// names.
func (in *Installer) placedJournal(w *workItem, artifacts ...storage.Args) {
	if !w.logged {
		return
	}
	descs := make([]storage.Descriptor, 0, len(artifacts))
	for _, a := range artifacts {
		descs = append(descs, a.Descriptor())
	}
	if err := in.journal.Placed(w.seq, descs); err != nil {
		w.log.Warnf("installer: journal: %v", err)
	}
}

// commitJournal marks w as past its last failure point. retire lists what
// finalize still removes.
func (in *Installer) commitJournal(w *workItem, retire ...storage.Descriptor) {
	if !w.logged {
		return
	}
	if err := in.journal.Committed(w.seq, retire); err != nil {
		w.log.Warnf("installer: journal: %v", err)
	}
}

func (in *Installer) endJournal(w *workItem) {
	if !w.logged {
		return
	}
	if err := in.journal.Done(w.seq, w.status); err != nil {
		w.log.Warnf("installer: journal: %v", err)
	}
	w.logged = false
}

// locked runs fn under the install lock.
func (in *Installer) locked(fn func() error) error {
	in.env.InstallLock.Lock()
	defer in.env.InstallLock.Unlock()
	return fn()
}

// Pending returns the number of items submitted and not yet finished.
func (in *Installer) Pending() int {
	return int(in.inflight.Load())
}
