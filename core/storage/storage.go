// Package storage resolves where a package's bytes live and moves them
// there. Two placements exist: loose files in an app directory, and
// container volumes. Both expose the same Args contract to the installer.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/installd/core/dto"
)

const (
	// ResFileName is the package archive inside a container.
	ResFileName = "pkg.apk"
	// PublicResFileName is the code-free copy of a forward-locked archive.
	PublicResFileName = "res.zip"

	codeSuffix    = ".pkg"
	publicSuffix  = ".zip"
	nativeLibDir  = "lib"
	tempPrefix    = "vmdl"
	tempSuffix    = ".tmp"
	tempCIDPrefix = "smdl2tmp"

	SystemUID           = 1000
	FirstApplicationUID = 10000
	sharedAppGID        = 50000
)

var (
	ErrInsufficientStorage = errors.New("insufficient storage")
	ErrRenameFailed        = errors.New("rename failed")
	ErrContainer           = errors.New("container operation failed")
)

// Kind names a placement.
type Kind string

const (
	KindLooseFile Kind = "file"
	KindContainer Kind = "container"
)

// Helper is the part of the storage-helper service placements use.
//
//go:generate mockgen -destination=../../mocks/mock_storage_helper.go -package=mocks . Helper
type Helper interface {
	CheckInternalFreeSpace(ctx context.Context, uri string, forwardLocked bool, threshold int64) (bool, error)
	CheckExternalFreeSpace(ctx context.Context, uri string, forwardLocked bool) (bool, error)
	CopyResource(ctx context.Context, uri, dest string, mode os.FileMode) (dto.Status, error)
	CopyPublicResources(ctx context.Context, uri, dest string) (dto.Status, error)
	CopyResourceToContainer(ctx context.Context, req dto.ContainerCopyRequest) (string, error)
}

// Daemon is the part of the storage daemon placements use.
//
//go:generate mockgen -destination=../../mocks/mock_storage_daemon.go -package=mocks . Daemon
type Daemon interface {
	RmDex(ctx context.Context, path string) error
}

// Containers manages container volumes.
//
//go:generate mockgen -destination=../../mocks/mock_containers.go -package=mocks . Containers
type Containers interface {
	Mount(cid, key string, ownerUID int) (string, error)
	Unmount(cid string, force bool) error
	Destroy(cid string, force bool) error
	Rename(oldCid, newCid string) error
	Path(cid string) (string, error)
	IsMounted(cid string) bool
	FixPermissions(cid string, gid int, publicFile string) error
	List() ([]string, error)
}

// Env is what every placement needs.
type Env struct {
	AppDir              string
	PrivateAppDir       string
	LibDir              string
	ContainerKey        string
	LowStorageThreshold int64

	Helper     Helper
	Daemon     Daemon
	Containers Containers

	// InstallLock serializes daemon interaction and package directory
	// mutation. Registry access may hold it, never the reverse.
	InstallLock *sync.Mutex
}

// Args is a resolved placement. It owns its artifacts until they are
// committed to the registry or cleaned up.
type Args interface {
	Kind() Kind
	Package() string
	ForwardLocked() bool
	External() bool

	// CheckFreeSpace asks the helper whether the package fits.
	CheckFreeSpace(ctx context.Context) (bool, error)
	// Copy materializes the package; temp copies get a scratch name first.
	Copy(ctx context.Context, temp bool) dto.Status
	PreInstall(status dto.Status) dto.Status
	// Rename moves the scratch artifact to its permanent name, chosen so it
	// differs from oldName, the name of the version being replaced. On a
	// failed status it cleans up and returns an error.
	Rename(status dto.Status, pkg, oldName string) error
	PostInstall(status dto.Status, uid int) dto.Status
	// Cleanup deletes every artifact, optimized code included, under the
	// install lock.
	Cleanup(ctx context.Context)

	// DoPreCopy and DoPostCopy bracket a move's copy of this placement.
	DoPreCopy() dto.Status
	DoPostCopy(uid int) dto.Status

	CodePath() string
	ResourcePath() string
	NativeLibraryDir() string
	Descriptor() Descriptor
}

// Descriptor is the serializable form of an Args, kept in the registry and
// the install journal.
type Descriptor struct {
	Kind          Kind   `json:"kind"`
	Package       string `json:"package,omitempty"`
	SourceURI     string `json:"sourceUri,omitempty"`
	CodePath      string `json:"codePath,omitempty"`
	ResourcePath  string `json:"resourcePath,omitempty"`
	LibDir        string `json:"libDir,omitempty"`
	ContainerID   string `json:"containerId,omitempty"`
	ForwardLocked bool   `json:"forwardLocked,omitempty"`
	External      bool   `json:"external,omitempty"`
}

// Name is the permanent name of the placement: its container id, or its
// code file.
func (d Descriptor) Name() string {
	if d.Kind == KindContainer {
		return d.ContainerID
	}
	return d.CodePath
}

// NewInstallArgs resolves the placement for a fresh install of the archive
// at uri into location.
func NewInstallArgs(env *Env, uri string, flags dto.InstallFlags, location dto.Location) Args {
	fwd := flags.Has(dto.FlagForwardLock)
	if location == dto.LocationExternal {
		return &ContainerArgs{env: env, uri: uri, forwardLocked: fwd, external: true}
	}
	return newLooseFileArgs(env, uri, fwd)
}

// NewMoveTargetArgs resolves the placement a package moves into. The
// target gets its permanent name up front since moves do not copy to a
// scratch location.
func NewMoveTargetArgs(env *Env, src Args, location dto.Location) Args {
	pkg := src.Package()
	uri := "file://" + src.CodePath()
	if location == dto.LocationExternal {
		a := &ContainerArgs{env: env, uri: uri, pkg: pkg, forwardLocked: src.ForwardLocked(), external: true}
		a.cid = NextCodeName(currentName(src), pkg)
		return a
	}
	a := newLooseFileArgs(env, uri, src.ForwardLocked())
	a.pkg = pkg
	a.setCodePath(filepath.Join(a.installDir(), NextCodeName(currentName(src), pkg)+codeSuffix))
	return a
}

// FromDescriptor rebuilds the Args of an installed package.
func FromDescriptor(env *Env, d Descriptor) (Args, error) {
	switch d.Kind {
	case KindLooseFile:
		a := newLooseFileArgs(env, d.SourceURI, d.ForwardLocked)
		a.pkg = d.Package
		a.codePath = d.CodePath
		a.resourcePath = d.ResourcePath
		a.libDir = d.LibDir
		return a, nil
	case KindContainer:
		a := &ContainerArgs{
			env:           env,
			uri:           d.SourceURI,
			pkg:           d.Package,
			cid:           d.ContainerID,
			forwardLocked: d.ForwardLocked,
			external:      d.External,
		}
		if d.CodePath != "" {
			a.setCachePath(filepath.Dir(d.CodePath))
		}
		return a, nil
	default:
		return nil, errors.Errorf("unknown placement kind %q", d.Kind)
	}
}

// NextCodeName returns the permanent base name for pkg, alternating the
// suffix between -1 and -2 relative to oldCodePath so a replacement never
// lands on the name still used by the installed version.
func NextCodeName(oldCodePath, pkg string) string {
	idx := 1
	if oldCodePath != "" {
		base := strings.TrimSuffix(filepath.Base(oldCodePath), codeSuffix)
		if rest, ok := strings.CutPrefix(base, pkg+"-"); ok {
			if n, err := strconv.Atoi(rest); err == nil {
				if n <= 1 {
					idx = 2
				}
			}
		}
	}
	return pkg + "-" + strconv.Itoa(idx)
}

// SharedGID is the group granted read access to a forward-locked package's
// public resources.
func SharedGID(uid int) int {
	return uid - FirstApplicationUID + sharedAppGID
}

func currentName(a Args) string {
	return a.Descriptor().Name()
}
