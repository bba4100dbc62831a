package installer

import (
	"context"
	stdErrors "errors"

	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
)

type deleteOp struct {
	in  *Installer
	req *dto.DeleteRequest
}

func (op *deleteOp) subject() string   { return op.req.Package }
func (op *deleteOp) needsHelper() bool { return false }

func (op *deleteOp) report(status dto.Status) {
	if op.req.Observer != nil {
		op.req.Observer.OnDeleted(op.req.Package, status)
	}
}

// run drops the registry entry first, then the artifacts it owned. Once
// the entry is gone the package is uninstalled even if some artifact
// cannot be removed.
func (op *deleteOp) run(ctx context.Context, w *workItem) bool {
	in := op.in

	if err := in.enter(w, PhaseCommitting); err != nil {
		return true
	}
	entry, err := in.registry.Remove(op.req.Package)
	if err != nil {
		if stdErrors.Is(err, registry.ErrNotFound) {
			in.fail(w, dto.FailedDoesntExist)
		} else {
			w.log.Errorf("installer: remove: %v", err)
			in.fail(w, dto.FailedInternalError)
		}
		return true
	}

	if err := in.enter(w, PhaseFinalizing); err != nil {
		return true
	}
	if args, err := storage.FromDescriptor(in.env, entry.Storage); err != nil {
		w.log.Warnf("installer: placement of %s: %v", entry.Name, err)
	} else {
		args.Cleanup(ctx)
	}

	if !op.req.KeepData {
		if err := in.locked(func() error {
			return in.daemon.Remove(ctx, entry.Name)
		}); err != nil {
			w.log.Warnf("installer: remove data: %v", err)
		}
	}

	in.succeed(w)
	return true
}
