package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/io/archive"
)

// LooseFileArgs places a package as plain files: the archive in the app
// directory (the private one when forward-locked), a public resource copy
// for forward-locked packages, and a native library directory.
type LooseFileArgs struct {
	env           *Env
	uri           string
	pkg           string
	forwardLocked bool

	codePath     string
	resourcePath string
	libDir       string
}

func newLooseFileArgs(env *Env, uri string, forwardLocked bool) *LooseFileArgs {
	return &LooseFileArgs{env: env, uri: uri, forwardLocked: forwardLocked}
}

func (a *LooseFileArgs) Kind() Kind          { return KindLooseFile }
func (a *LooseFileArgs) Package() string     { return a.pkg }
func (a *LooseFileArgs) ForwardLocked() bool { return a.forwardLocked }
func (a *LooseFileArgs) External() bool      { return false }

func (a *LooseFileArgs) CodePath() string         { return a.codePath }
func (a *LooseFileArgs) ResourcePath() string     { return a.resourcePath }
func (a *LooseFileArgs) NativeLibraryDir() string { return a.libDir }

func (a *LooseFileArgs) installDir() string {
	if a.forwardLocked {
		return a.env.PrivateAppDir
	}
	return a.env.AppDir
}

// setCodePath derives the resource and library locations from the code file.
func (a *LooseFileArgs) setCodePath(p string) {
	a.codePath = p
	base := baseName(p)
	if a.forwardLocked {
		a.resourcePath = filepath.Join(a.env.AppDir, base+publicSuffix)
	} else {
		a.resourcePath = p
	}
	a.libDir = filepath.Join(a.env.LibDir, base)
}

func (a *LooseFileArgs) CheckFreeSpace(ctx context.Context) (bool, error) {
	a.env.InstallLock.Lock()
	defer a.env.InstallLock.Unlock()
	return a.env.Helper.CheckInternalFreeSpace(ctx, a.uri, a.forwardLocked, a.env.LowStorageThreshold)
}

func (a *LooseFileArgs) Copy(ctx context.Context, temp bool) dto.Status {
	for _, dir := range []string{a.env.AppDir, a.installDir()} {
		if err := os.MkdirAll(dir, 0o771); err != nil {
			log.Errorf("storage: create %s: %v", dir, err)
			return dto.FailedInsufficientStorage
		}
	}
	if temp {
		f, err := os.CreateTemp(a.installDir(), tempPrefix+"*"+tempSuffix)
		if err != nil {
			log.Errorf("storage: create scratch file: %v", err)
			return dto.FailedInsufficientStorage
		}
		f.Close()
		a.setCodePath(f.Name())
	}
	if a.codePath == "" {
		return dto.FailedInternalError
	}

	mode := os.FileMode(0o644)
	if a.forwardLocked {
		mode = 0o640
	}
	status, err := a.env.Helper.CopyResource(ctx, a.uri, a.codePath, mode)
	if err != nil {
		log.Errorf("storage: copy %s: %v", a.uri, err)
		return dto.FailedInternalError
	}
	if !status.OK() {
		log.Warnf("storage: helper could not copy %s: %s", a.uri, status)
		return status
	}

	if a.forwardLocked {
		status, err = a.env.Helper.CopyPublicResources(ctx, a.uri, a.resourcePath)
		if err != nil {
			log.Errorf("storage: public resources of %s: %v", a.uri, err)
			return dto.FailedInternalError
		}
		if !status.OK() {
			return status
		}
	}

	if _, err := archive.ExtractNativeLibs(a.codePath, a.libDir); err != nil {
		log.Errorf("storage: native libraries of %s: %v", a.codePath, err)
		return dto.FailedInternalError
	}
	return dto.Succeeded
}

func (a *LooseFileArgs) PreInstall(status dto.Status) dto.Status {
	if !status.OK() {
		a.cleanUp()
	}
	return status
}

func (a *LooseFileArgs) Rename(status dto.Status, pkg, oldName string) error {
	if !status.OK() {
		a.cleanUp()
		return errors.Wrapf(ErrRenameFailed, "install of %s already failed: %s", pkg, status)
	}

	next := NextCodeName(oldName, pkg)
	newCode := filepath.Join(a.installDir(), next+codeSuffix)
	oldCode, oldRes, oldLib := a.codePath, a.resourcePath, a.libDir

	if err := os.Rename(oldCode, newCode); err != nil {
		return errors.Wrapf(ErrRenameFailed, "%s -> %s: %v", oldCode, newCode, err)
	}
	a.setCodePath(newCode)

	if a.forwardLocked {
		if err := os.Rename(oldRes, a.resourcePath); err != nil {
			_ = os.Rename(newCode, oldCode)
			a.setCodePath(oldCode)
			return errors.Wrapf(ErrRenameFailed, "%s -> %s: %v", oldRes, a.resourcePath, err)
		}
	}

	if _, err := os.Stat(oldLib); err == nil {
		_ = os.RemoveAll(a.libDir)
		if err := os.Rename(oldLib, a.libDir); err != nil {
			log.Warnf("storage: rename native libraries %s: %v", oldLib, err)
		}
	}

	a.pkg = pkg
	if err := a.setPermissions(); err != nil {
		return errors.Wrap(ErrRenameFailed, err.Error())
	}
	return nil
}

func (a *LooseFileArgs) setPermissions() error {
	if a.forwardLocked {
		if err := os.Chmod(a.codePath, 0o640); err != nil {
			return err
		}
		return os.Chmod(a.resourcePath, 0o644)
	}
	return os.Chmod(a.codePath, 0o644)
}

func (a *LooseFileArgs) PostInstall(status dto.Status, _ int) dto.Status {
	if !status.OK() {
		a.cleanUp()
	}
	return status
}

func (a *LooseFileArgs) Cleanup(ctx context.Context) {
	a.env.InstallLock.Lock()
	defer a.env.InstallLock.Unlock()

	if a.codePath != "" && a.env.Daemon != nil {
		if err := a.env.Daemon.RmDex(ctx, a.codePath); err != nil {
			log.Warnf("storage: remove optimized code of %s: %v", a.codePath, err)
		}
	}
	a.cleanUp()
}

func (a *LooseFileArgs) cleanUp() {
	if a.codePath == "" {
		return
	}
	removeLogged(a.codePath)
	if a.resourcePath != a.codePath {
		removeLogged(a.resourcePath)
	}
	if a.libDir != "" {
		if err := os.RemoveAll(a.libDir); err != nil {
			log.Warnf("storage: remove %s: %v", a.libDir, err)
		}
	}
}

func (a *LooseFileArgs) DoPreCopy() dto.Status       { return dto.Succeeded }
func (a *LooseFileArgs) DoPostCopy(_ int) dto.Status { return dto.Succeeded }

func (a *LooseFileArgs) Descriptor() Descriptor {
	return Descriptor{
		Kind:          KindLooseFile,
		Package:       a.pkg,
		SourceURI:     a.uri,
		CodePath:      a.codePath,
		ResourcePath:  a.resourcePath,
		LibDir:        a.libDir,
		ForwardLocked: a.forwardLocked,
	}
}

func baseName(p string) string {
	base := filepath.Base(p)
	for _, suffix := range []string{codeSuffix, tempSuffix} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}

func removeLogged(p string) {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		log.Warnf("storage: remove %s: %v", p, err)
	}
}
