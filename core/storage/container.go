package storage

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
)

// ContainerArgs places a package inside a container volume: the archive as
// pkg.apk, native libraries under lib/ and, when forward-locked, a public
// resource copy readable by the package's shared group.
type ContainerArgs struct {
	env           *Env
	uri           string
	pkg           string
	cid           string
	forwardLocked bool
	external      bool

	packagePath string
}

func (a *ContainerArgs) Kind() Kind          { return KindContainer }
func (a *ContainerArgs) Package() string     { return a.pkg }
func (a *ContainerArgs) ForwardLocked() bool { return a.forwardLocked }
func (a *ContainerArgs) External() bool      { return a.external }

// ContainerID returns the current container id.
func (a *ContainerArgs) ContainerID() string { return a.cid }

func (a *ContainerArgs) setCachePath(p string) {
	a.packagePath = p
}

func (a *ContainerArgs) CodePath() string {
	if a.packagePath == "" {
		return ""
	}
	return filepath.Join(a.packagePath, ResFileName)
}

func (a *ContainerArgs) ResourcePath() string {
	if a.packagePath == "" {
		return ""
	}
	if a.forwardLocked {
		return filepath.Join(a.packagePath, PublicResFileName)
	}
	return a.CodePath()
}

func (a *ContainerArgs) NativeLibraryDir() string {
	if a.packagePath == "" {
		return ""
	}
	return filepath.Join(a.packagePath, nativeLibDir)
}

func (a *ContainerArgs) CheckFreeSpace(ctx context.Context) (bool, error) {
	a.env.InstallLock.Lock()
	defer a.env.InstallLock.Unlock()
	return a.env.Helper.CheckExternalFreeSpace(ctx, a.uri, a.forwardLocked)
}

func (a *ContainerArgs) Copy(ctx context.Context, temp bool) dto.Status {
	if temp {
		cid, err := a.tempContainerID()
		if err != nil {
			log.Errorf("storage: %v", err)
			return dto.FailedContainerError
		}
		a.cid = cid
	} else {
		// a stale container under the target name is replaced
		if err := a.env.Containers.Destroy(a.cid, true); err != nil {
			log.Warnf("storage: destroy stale container %s: %v", a.cid, err)
		}
	}

	path, err := a.env.Helper.CopyResourceToContainer(ctx, dto.ContainerCopyRequest{
		URI:               a.uri,
		ContainerID:       a.cid,
		Key:               a.env.ContainerKey,
		ResFileName:       ResFileName,
		PublicResFileName: PublicResFileName,
		OwnerUID:          SystemUID,
		External:          a.external,
		ForwardLocked:     a.forwardLocked,
	})
	if err != nil || path == "" {
		log.Errorf("storage: copy %s into container %s: %v", a.uri, a.cid, err)
		return dto.FailedContainerError
	}
	a.setCachePath(path)
	return dto.Succeeded
}

// tempContainerID returns the first unused scratch container id.
func (a *ContainerArgs) tempContainerID() (string, error) {
	ids, err := a.env.Containers.List()
	if err != nil {
		return "", errors.Wrap(err, "list containers")
	}
	used := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		used[id] = struct{}{}
	}
	for i := 1; ; i++ {
		id := tempCIDPrefix + strconv.Itoa(i)
		if _, ok := used[id]; !ok {
			return id, nil
		}
	}
}

func (a *ContainerArgs) PreInstall(status dto.Status) dto.Status {
	if !status.OK() {
		a.cleanUp()
		return status
	}
	if !a.env.Containers.IsMounted(a.cid) {
		path, err := a.env.Containers.Mount(a.cid, a.env.ContainerKey, SystemUID)
		if err != nil {
			log.Errorf("storage: mount %s: %v", a.cid, err)
			return dto.FailedContainerError
		}
		a.setCachePath(path)
	}
	return status
}

func (a *ContainerArgs) Rename(status dto.Status, pkg, oldName string) error {
	if !status.OK() {
		a.cleanUp()
		return errors.Wrapf(ErrRenameFailed, "install of %s already failed: %s", pkg, status)
	}

	newCid := NextCodeName(oldName, pkg)
	if newCid != a.cid && newCid != oldName {
		if err := a.env.Containers.Destroy(newCid, true); err != nil {
			return errors.Wrapf(ErrRenameFailed, "clear stale container %s: %v", newCid, err)
		}
	}

	if a.env.Containers.IsMounted(a.cid) {
		if err := a.env.Containers.Unmount(a.cid, true); err != nil {
			return errors.Wrapf(ErrRenameFailed, "unmount %s: %v", a.cid, err)
		}
	}
	if err := a.env.Containers.Rename(a.cid, newCid); err != nil {
		return errors.Wrapf(ErrRenameFailed, "%s -> %s: %v", a.cid, newCid, err)
	}
	a.cid = newCid

	path, err := a.env.Containers.Mount(newCid, a.env.ContainerKey, SystemUID)
	if err != nil {
		return errors.Wrapf(ErrRenameFailed, "mount %s: %v", newCid, err)
	}
	a.pkg = pkg
	a.setCachePath(path)
	return nil
}

func (a *ContainerArgs) PostInstall(status dto.Status, uid int) dto.Status {
	if !status.OK() {
		a.cleanUp()
		return status
	}

	gid, publicFile := -1, ""
	if a.forwardLocked {
		gid, publicFile = SharedGID(uid), PublicResFileName
	}
	if uid < FirstApplicationUID {
		log.Errorf("storage: refusing container %s for system uid %d", a.cid, uid)
		a.cleanUp()
		return dto.FailedContainerError
	}
	if err := a.env.Containers.FixPermissions(a.cid, gid, publicFile); err != nil {
		log.Errorf("storage: fix permissions of %s: %v", a.cid, err)
		a.cleanUp()
		return dto.FailedContainerError
	}
	if !a.env.Containers.IsMounted(a.cid) {
		path, err := a.env.Containers.Mount(a.cid, a.env.ContainerKey, SystemUID)
		if err != nil {
			log.Errorf("storage: mount %s: %v", a.cid, err)
			return dto.FailedContainerError
		}
		a.setCachePath(path)
	}
	return status
}

func (a *ContainerArgs) Cleanup(ctx context.Context) {
	a.env.InstallLock.Lock()
	defer a.env.InstallLock.Unlock()

	if code := a.CodePath(); code != "" && a.env.Daemon != nil {
		if err := a.env.Daemon.RmDex(ctx, code); err != nil {
			log.Warnf("storage: remove optimized code of %s: %v", code, err)
		}
	}
	a.cleanUp()
}

func (a *ContainerArgs) cleanUp() {
	if a.cid == "" {
		return
	}
	if err := a.env.Containers.Destroy(a.cid, true); err != nil {
		log.Warnf("storage: destroy container %s: %v", a.cid, err)
	}
}

// DoPreCopy lets the helper read a forward-locked archive before a move.
func (a *ContainerArgs) DoPreCopy() dto.Status {
	if !a.forwardLocked {
		return dto.Succeeded
	}
	if err := a.env.Containers.FixPermissions(a.cid, SystemUID, ResFileName); err != nil {
		log.Errorf("storage: open %s for copy: %v", a.cid, err)
		return dto.FailedContainerError
	}
	return dto.Succeeded
}

// DoPostCopy restores the forward-lock restrictions after a move's copy.
func (a *ContainerArgs) DoPostCopy(uid int) dto.Status {
	if !a.forwardLocked {
		return dto.Succeeded
	}
	if uid < FirstApplicationUID {
		return dto.FailedContainerError
	}
	if err := a.env.Containers.FixPermissions(a.cid, SharedGID(uid), PublicResFileName); err != nil {
		log.Errorf("storage: restore permissions of %s: %v", a.cid, err)
		return dto.FailedContainerError
	}
	return dto.Succeeded
}

func (a *ContainerArgs) Descriptor() Descriptor {
	return Descriptor{
		Kind:          KindContainer,
		Package:       a.pkg,
		SourceURI:     a.uri,
		CodePath:      a.CodePath(),
		ResourcePath:  a.ResourcePath(),
		LibDir:        a.NativeLibraryDir(),
		ContainerID:   a.cid,
		ForwardLocked: a.forwardLocked,
		External:      a.external,
	}
}
