package installer

import (
	"context"
	"path/filepath"

	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/storage"
	"golang.org/x/sync/errgroup"
)

type measureOp struct {
	in  *Installer
	req *dto.MeasureRequest

	stats dto.PackageStats
}

func (op *measureOp) subject() string   { return op.req.Package }
func (op *measureOp) needsHelper() bool { return true }

func (op *measureOp) report(status dto.Status) {
	if op.req.Observer == nil {
		return
	}
	stats := op.stats
	stats.Package = op.req.Package
	op.req.Observer.OnMeasured(stats, status.OK())
}

// run sizes the package: the daemon reports code, data and cache, and for
// a container the helper sizes the whole volume, both at once.
func (op *measureOp) run(ctx context.Context, w *workItem) bool {
	in := op.in

	entry, ok := in.registry.Get(op.req.Package)
	if !ok {
		in.fail(w, dto.FailedDoesntExist)
		return true
	}
	if err := in.enter(w, PhaseFinalizing); err != nil {
		return true
	}

	resPath := ""
	if entry.Storage.ForwardLocked {
		resPath = entry.Storage.ResourcePath
	}

	var containerSize int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return in.locked(func() error {
			sizes, err := in.daemon.GetSize(gctx, entry.Name, entry.Storage.CodePath, resPath)
			if err != nil {
				return err
			}
			op.stats.CodeSize = sizes.Code
			op.stats.DataSize = sizes.Data
			op.stats.CacheSize = sizes.Cache
			return nil
		})
	})
	if entry.Storage.Kind == storage.KindContainer && entry.Storage.CodePath != "" {
		g.Go(func() error {
			size, err := in.helper.CalculateDirectorySize(gctx, filepath.Dir(entry.Storage.CodePath))
			if err != nil {
				return err
			}
			containerSize = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.log.Errorf("installer: measure: %v", err)
		in.fail(w, dto.FailedInternalError)
		return true
	}
	if containerSize > op.stats.CodeSize {
		op.stats.CodeSize = containerSize
	}

	in.succeed(w)
	return true
}
