package installer

import (
	"context"

	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
)

// moveOp relocates an installed package. The source stays the installed
// copy until the target is complete and recorded; a failed copy leaves it
// untouched.
type moveOp struct {
	in  *Installer
	req *dto.MoveRequest

	entry  registry.Entry
	src    storage.Args
	target storage.Args

	openedSource bool
	updated      bool
}

func (op *moveOp) subject() string   { return op.req.Package }
func (op *moveOp) needsHelper() bool { return true }

func (op *moveOp) report(status dto.Status) {
	if op.req.Observer != nil {
		op.req.Observer.OnMoved(op.req.Package, status)
	}
}

func (op *moveOp) run(ctx context.Context, w *workItem) bool {
	in := op.in

	entry, ok := in.registry.Get(op.req.Package)
	if !ok {
		in.fail(w, dto.FailedDoesntExist)
		return true
	}
	op.entry = entry

	flags := op.req.Flags
	if flags.Has(dto.FlagInternal) == flags.Has(dto.FlagExternal) {
		in.fail(w, dto.FailedInvalidLocation)
		return true
	}
	location := dto.LocationInternal
	if flags.Has(dto.FlagExternal) {
		location = dto.LocationExternal
	}
	if entry.Storage.External == (location == dto.LocationExternal) {
		w.log.Warnf("installer: already on %s storage", location)
		in.fail(w, dto.FailedInvalidLocation)
		return true
	}

	src, err := storage.FromDescriptor(in.env, entry.Storage)
	if err != nil {
		w.log.Errorf("installer: source placement: %v", err)
		in.fail(w, dto.FailedInternalError)
		return true
	}
	op.src = src
	op.target = storage.NewMoveTargetArgs(in.env, src, location)

	ok, err = op.target.CheckFreeSpace(ctx)
	if err != nil {
		w.log.Errorf("installer: free space: %v", err)
		in.fail(w, dto.FailedInternalError)
		return true
	}
	if !ok {
		in.fail(w, dto.FailedInsufficientStorage)
		return true
	}

	for _, step := range []struct {
		phase Phase
		do    func(context.Context, *workItem) dto.Status
	}{
		{PhaseCopying, op.copy},
		{PhaseCommitting, op.commit},
		{PhaseFinalizing, op.finalize},
	} {
		if err := in.enter(w, step.phase); err != nil {
			op.rollback(ctx, w)
			return true
		}
		if status := step.do(ctx, w); !status.OK() {
			in.fail(w, status)
			op.rollback(ctx, w)
			return true
		}
	}
	in.succeed(w)
	return true
}

func (op *moveOp) copy(ctx context.Context, w *workItem) dto.Status {
	in := op.in

	status := dto.Succeeded
	_ = in.locked(func() error {
		// the source must be readable for the copy
		if status = op.src.PreInstall(dto.Succeeded); status.OK() {
			status = op.src.DoPreCopy()
		}
		return nil
	})
	if !status.OK() {
		return status
	}
	op.openedSource = true

	status = op.target.Copy(ctx, false)
	in.beginJournal(w, &op.entry, op.target)

	_ = in.locked(func() error {
		if post := op.src.DoPostCopy(op.entry.UID); !post.OK() && status.OK() {
			status = post
		}
		return nil
	})
	op.openedSource = false
	if !status.OK() {
		return status
	}

	_ = in.locked(func() error {
		status = op.target.PreInstall(status)
		return nil
	})
	return status
}

func (op *moveOp) commit(ctx context.Context, w *workItem) dto.Status {
	in := op.in

	err := in.locked(func() error {
		if err := in.daemon.MoveDex(ctx, op.src.CodePath(), op.target.CodePath()); err != nil {
			w.log.Warnf("installer: move optimized code: %v, optimizing again", err)
			return in.daemon.Dexopt(ctx, op.target.CodePath(), storage.SystemUID, !op.target.ForwardLocked())
		}
		return nil
	})
	if err != nil {
		w.log.Errorf("installer: dexopt: %v", err)
		return dto.FailedDexopt
	}

	if _, err := in.registry.Update(op.entry.Name, func(e *registry.Entry) error {
		e.Storage = op.target.Descriptor()
		e.Flags &^= dto.FlagInternal | dto.FlagExternal
		if op.target.External() {
			e.Flags |= dto.FlagExternal
		}
		return nil
	}); err != nil {
		w.log.Errorf("installer: record new placement: %v", err)
		return dto.FailedInternalError
	}
	op.updated = true

	status := dto.Succeeded
	_ = in.locked(func() error {
		if err := in.daemon.LinkLib(ctx, op.entry.Name, op.target.NativeLibraryDir()); err != nil {
			w.log.Warnf("installer: link native libraries: %v", err)
		}
		status = op.target.PostInstall(dto.Succeeded, op.entry.UID)
		return nil
	})
	if status.OK() {
		in.commitJournal(w, op.entry.Storage)
	}
	return status
}

func (op *moveOp) finalize(ctx context.Context, w *workItem) dto.Status {
	w.log.WithField("artifact", op.entry.Storage.Name()).Info("installer: removing moved-from copy")
	op.src.Cleanup(ctx)
	return dto.Succeeded
}

// rollback drops the target and puts the source back in charge.
func (op *moveOp) rollback(ctx context.Context, w *workItem) {
	in := op.in
	if op.openedSource {
		_ = in.locked(func() error {
			op.src.DoPostCopy(op.entry.UID)
			return nil
		})
	}
	if op.target == nil || w.fsm.FailedAt() == PhaseFinalizing {
		return
	}
	if op.updated {
		if err := in.registry.Restore(op.entry.Name, &op.entry); err != nil {
			w.log.Errorf("installer: restore registry: %v", err)
		}
		_ = in.locked(func() error {
			if err := in.daemon.MoveDex(ctx, op.target.CodePath(), op.src.CodePath()); err != nil {
				w.log.Warnf("installer: restore optimized code: %v", err)
			}
			if err := in.daemon.LinkLib(ctx, op.entry.Name, op.src.NativeLibraryDir()); err != nil {
				w.log.Warnf("installer: relink native libraries: %v", err)
			}
			return nil
		})
	}
	op.target.Cleanup(ctx)
	w.log.Info("installer: move rolled back, source kept")
}
