package installer

import (
	"context"
	stdErrors "errors"

	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
	"github.com/vadiminshakov/installd/core/verify"
	"github.com/vadiminshakov/installd/io/archive"
)

type installOp struct {
	in  *Installer
	req *dto.InstallRequest

	info    *dto.PackageInfoLite
	scanned *archive.Info
	args    storage.Args
	// old is the entry being replaced, nil for a fresh install.
	old *registry.Entry

	committed   bool
	createdData bool
	linked      bool
}

func (op *installOp) subject() string {
	if op.info != nil && op.info.Package != "" {
		return op.info.Package
	}
	return op.req.Source
}

func (op *installOp) needsHelper() bool { return true }

func (op *installOp) report(status dto.Status) {
	if op.req.Observer != nil {
		op.req.Observer.OnInstalled(op.subject(), status)
	}
}

func (op *installOp) run(ctx context.Context, w *workItem) bool {
	if status := op.resolve(ctx, w); !status.OK() {
		op.in.fail(w, status)
		return true
	}

	if op.in.verifier != nil {
		token, started := op.in.verifier.Start(verify.Request{
			Package:   op.info.Package,
			Source:    op.req.Source,
			Installer: op.req.Installer,
			Flags:     op.req.Flags,
		}, op.info.Verifiers)
		if started {
			if err := op.in.enter(w, PhaseVerifying); err != nil {
				return true
			}
			w.token = token
			w.log = w.log.WithField("token", token)
			w.log.Info("installer: waiting for verification")
			return false
		}
	}

	op.install(ctx, w)
	return true
}

func (op *installOp) verified(ctx context.Context, w *workItem, res verify.Result) {
	w.log.WithField("result", res).Info("installer: verification finished")
	if res != verify.Allowed {
		op.in.fail(w, res.Status())
		return
	}
	op.install(ctx, w)
}

// resolve learns the package from the helper and picks its placement.
// Nothing is written yet, so failures here need no rollback.
func (op *installOp) resolve(ctx context.Context, w *workItem) dto.Status {
	in := op.in
	flags := op.req.Flags
	if flags.Has(dto.FlagInternal) && flags.Has(dto.FlagExternal) {
		return dto.FailedInvalidInstallLocation
	}

	info, err := in.helper.GetMinimalPackageInfo(ctx, op.req.Source, flags, in.env.LowStorageThreshold)
	if err != nil {
		w.log.Errorf("installer: package info: %v", err)
		return dto.FailedInternalError
	}
	if info.RecommendedLocation == dto.RecommendFailedInsufficientStorage {
		// evicting caches may make room
		if err := in.locked(func() error {
			return in.daemon.FreeCache(ctx, info.Size+in.env.LowStorageThreshold)
		}); err != nil {
			w.log.Warnf("installer: free cache: %v", err)
		}
		if info, err = in.helper.GetMinimalPackageInfo(ctx, op.req.Source, flags, in.env.LowStorageThreshold); err != nil {
			w.log.Errorf("installer: package info: %v", err)
			return dto.FailedInternalError
		}
	}
	if status := info.RecommendedLocation.Status(); !status.OK() {
		return status
	}
	op.info = info
	w.log = w.log.WithField("pkg", info.Package)

	location := dto.LocationInternal
	if info.RecommendedLocation == dto.RecommendInstallExternal {
		location = dto.LocationExternal
	}

	if existing, ok := in.registry.Get(info.Package); ok {
		if !flags.Has(dto.FlagReplace) {
			w.log.Warn("installer: package already installed")
			return dto.FailedAlreadyExists
		}
		op.old = &existing
		// a replacement stays where the installed version lives unless
		// the caller asked otherwise
		if !flags.Has(dto.FlagInternal) && !flags.Has(dto.FlagExternal) {
			location = dto.LocationInternal
			if existing.Storage.External {
				location = dto.LocationExternal
			}
		}
	}

	op.args = storage.NewInstallArgs(in.env, op.req.Source, flags, location)
	return dto.Succeeded
}

// install runs copy through finalize. Any failure from copy onwards rolls
// back what was written.
func (op *installOp) install(ctx context.Context, w *workItem) {
	for _, step := range []struct {
		phase Phase
		do    func(context.Context, *workItem) dto.Status
	}{
		{PhaseCopying, op.copy},
		{PhaseScanning, op.scan},
		{PhaseCommitting, op.commit},
		{PhaseRenaming, op.rename},
		{PhaseFinalizing, op.finalize},
	} {
		if err := op.in.enter(w, step.phase); err != nil {
			op.rollback(ctx, w)
			return
		}
		if status := step.do(ctx, w); !status.OK() {
			failedAt := w.fsm.Current()
			op.in.fail(w, status)
			if failedAt.NeedsRollback() {
				op.rollback(ctx, w)
			}
			return
		}
	}
	op.in.succeed(w)
}

func (op *installOp) copy(ctx context.Context, w *workItem) dto.Status {
	in := op.in

	ok, err := op.args.CheckFreeSpace(ctx)
	if err != nil {
		w.log.Errorf("installer: free space: %v", err)
		return dto.FailedInternalError
	}
	if !ok && !op.args.External() {
		if err := in.locked(func() error {
			return in.daemon.FreeCache(ctx, op.info.Size+in.env.LowStorageThreshold)
		}); err != nil {
			w.log.Warnf("installer: free cache: %v", err)
		}
		if ok, err = op.args.CheckFreeSpace(ctx); err != nil {
			w.log.Errorf("installer: free space: %v", err)
			return dto.FailedInternalError
		}
	}
	if !ok {
		return dto.FailedInsufficientStorage
	}

	status := op.args.Copy(ctx, true)
	if op.args.CodePath() != "" {
		var prev *registry.Entry
		if existing, ok := in.registry.Get(op.info.Package); ok {
			prev = &existing
		}
		in.beginJournal(w, prev, op.args)
	}
	if !status.OK() {
		return status
	}

	_ = in.locked(func() error {
		status = op.args.PreInstall(status)
		return nil
	})
	return status
}

func (op *installOp) scan(ctx context.Context, w *workItem) dto.Status {
	in := op.in

	scanned, err := archive.Open(op.args.CodePath())
	if err != nil {
		w.log.Errorf("installer: scan: %v", err)
		return dto.FailedInvalidArchive
	}
	if scanned.Package != op.info.Package {
		w.log.Errorf("installer: archive now holds %s", scanned.Package)
		return dto.FailedPackageChanged
	}
	if op.req.ExpectedDigest != "" && op.req.ExpectedDigest != scanned.ManifestDigest {
		w.log.Errorf("installer: manifest digest %s, expected %s", scanned.ManifestDigest, op.req.ExpectedDigest)
		return dto.FailedPackageChanged
	}
	if scanned.TestOnly && !op.req.Flags.Has(dto.FlagAllowTest) {
		w.log.Error("installer: test-only package")
		return dto.FailedInvalidArchive
	}

	// the registry may have changed while the item waited on verification
	existing, exists := in.registry.Get(scanned.Package)
	switch {
	case exists && !op.req.Flags.Has(dto.FlagReplace):
		return dto.FailedAlreadyExists
	case exists && existing.CertDigest != scanned.CertDigest:
		w.log.Errorf("installer: signature %s does not match installed %s", scanned.CertDigest, existing.CertDigest)
		return dto.FailedUpdateIncompatible
	case exists:
		op.old = &existing
	default:
		op.old = nil
	}

	if err := in.hooks.ExecuteScan(scanned); err != nil {
		w.log.Errorf("installer: %v", err)
		return dto.FailedInternalError
	}
	op.scanned = scanned

	if err := in.locked(func() error {
		return in.daemon.Dexopt(ctx, op.args.CodePath(), storage.SystemUID, !op.args.ForwardLocked())
	}); err != nil {
		w.log.Errorf("installer: dexopt: %v", err)
		return dto.FailedDexopt
	}
	return dto.Succeeded
}

func (op *installOp) commit(_ context.Context, w *workItem) dto.Status {
	in := op.in

	entry, err := in.registry.Commit(registry.Entry{
		Name:           op.scanned.Package,
		Version:        op.scanned.Version,
		CertDigest:     op.scanned.CertDigest,
		ManifestDigest: op.scanned.ManifestDigest,
		Installer:      op.req.Installer,
		Flags:          op.req.Flags,
		Storage:        op.args.Descriptor(),
	}, op.old != nil)
	if err != nil {
		w.log.Errorf("installer: commit: %v", err)
		if stdErrors.Is(err, registry.ErrAlreadyExists) {
			return dto.FailedAlreadyExists
		}
		return dto.FailedInternalError
	}
	op.committed = true
	w.log = w.log.WithField("uid", entry.UID)

	if err := in.hooks.ExecuteCommit(&entry); err != nil {
		w.log.Errorf("installer: %v", err)
		return dto.FailedInternalError
	}
	return dto.Succeeded
}

func (op *installOp) rename(ctx context.Context, w *workItem) dto.Status {
	in := op.in
	pkg := op.scanned.Package
	oldName := ""
	if op.old != nil {
		oldName = op.old.Storage.Name()
	}

	entry, ok := in.registry.Get(pkg)
	if !ok {
		return dto.FailedInternalError
	}

	status := dto.Succeeded
	err := in.locked(func() error {
		scratch := op.args.CodePath()
		if err := op.args.Rename(dto.Succeeded, pkg, oldName); err != nil {
			return err
		}
		in.placedJournal(w, op.args)
		if err := in.daemon.MoveDex(ctx, scratch, op.args.CodePath()); err != nil {
			w.log.Warnf("installer: move optimized code: %v", err)
		}

		if op.old == nil {
			if err := in.daemon.Install(ctx, pkg, entry.UID, entry.UID); err != nil {
				status = dto.FailedInsufficientStorage
				return err
			}
			op.createdData = true
		}
		if err := in.daemon.LinkLib(ctx, pkg, op.args.NativeLibraryDir()); err != nil {
			w.log.Warnf("installer: link native libraries: %v", err)
		} else {
			op.linked = true
		}

		status = op.args.PostInstall(dto.Succeeded, entry.UID)
		return nil
	})
	if err != nil {
		w.log.Errorf("installer: rename: %v", err)
		if status.OK() {
			status = renameStatus(err)
		}
		return status
	}
	if !status.OK() {
		return status
	}

	if _, err := in.registry.Update(pkg, func(e *registry.Entry) error {
		e.Storage = op.args.Descriptor()
		return nil
	}); err != nil {
		w.log.Errorf("installer: record final placement: %v", err)
		return dto.FailedInternalError
	}

	var retire []storage.Descriptor
	if op.old != nil {
		retire = append(retire, op.old.Storage)
	}
	in.commitJournal(w, retire...)
	return dto.Succeeded
}

func renameStatus(err error) dto.Status {
	switch {
	case stdErrors.Is(err, storage.ErrInsufficientStorage):
		return dto.FailedInsufficientStorage
	case stdErrors.Is(err, storage.ErrContainer):
		return dto.FailedContainerError
	default:
		return dto.FailedInternalError
	}
}

// finalize tells the observer, then retires the replaced version. The old
// artifacts go only after the callback so a crash in between still leaves
// a working version.
func (op *installOp) finalize(ctx context.Context, w *workItem) dto.Status {
	w.status = dto.Succeeded
	w.reported = true
	op.report(dto.Succeeded)

	if op.old == nil {
		return dto.Succeeded
	}
	prev, err := storage.FromDescriptor(op.in.env, op.old.Storage)
	if err != nil {
		w.log.Warnf("installer: previous version: %v", err)
		return dto.Succeeded
	}
	w.log.WithField("artifact", op.old.Storage.Name()).Info("installer: removing previous version")
	prev.Cleanup(ctx)
	return dto.Succeeded
}

// rollback removes every artifact and registry change the item made.
func (op *installOp) rollback(ctx context.Context, w *workItem) {
	in := op.in
	if op.args != nil {
		op.args.Cleanup(ctx)
	}
	if op.committed {
		if err := in.registry.Restore(op.scanned.Package, op.old); err != nil {
			w.log.Errorf("installer: restore registry: %v", err)
		}
	}
	switch {
	case op.createdData:
		if err := in.locked(func() error {
			return in.daemon.Remove(ctx, op.scanned.Package)
		}); err != nil {
			w.log.Warnf("installer: remove data: %v", err)
		}
	case op.linked && op.old != nil:
		if err := in.locked(func() error {
			return in.daemon.LinkLib(ctx, op.scanned.Package, op.old.Storage.LibDir)
		}); err != nil {
			w.log.Warnf("installer: relink native libraries: %v", err)
		}
	}
	w.log.Info("installer: rolled back")
}
