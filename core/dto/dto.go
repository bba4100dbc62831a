// Package dto provides data transfer objects shared by the installer layers.
//
// This package defines the requests callers submit to the install engine,
// the status codes delivered back to them and the observer contracts used
// to report completion.
package dto

import (
	"strings"

	"github.com/google/uuid"
)

// InstallFlags are the placement and policy bits requested by the caller.
type InstallFlags uint32

const (
	// FlagReplace allows an already installed package to be replaced.
	FlagReplace InstallFlags = 1 << iota
	// FlagForwardLock keeps the package code readable only by the package itself.
	FlagForwardLock
	// FlagExternal forces placement on external (container) storage.
	FlagExternal
	// FlagInternal forces placement in the internal app directory.
	FlagInternal
	// FlagAllowTest permits installing packages marked as test-only.
	FlagAllowTest
)

// Has reports whether all bits of f are set.
func (fl InstallFlags) Has(f InstallFlags) bool {
	return fl&f == f
}

func (fl InstallFlags) String() string {
	var parts []string
	for _, f := range []struct {
		flag InstallFlags
		name string
	}{
		{FlagReplace, "replace"},
		{FlagForwardLock, "forward-lock"},
		{FlagExternal, "external"},
		{FlagInternal, "internal"},
		{FlagAllowTest, "allow-test"},
	} {
		if fl.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Location is where a package's bytes physically live.
type Location int

const (
	LocationInternal Location = iota
	LocationExternal
)

func (l Location) String() string {
	if l == LocationExternal {
		return "external"
	}
	return "internal"
}

// InstallRequest is an immutable description of a pending install.
type InstallRequest struct {
	ID uuid.UUID
	// Source is a path or file:// URI of the package archive.
	Source    string
	Flags     InstallFlags
	Installer string
	// ExpectedDigest is the hex manifest digest the caller expects, empty if unchecked.
	ExpectedDigest string
	Observer       InstallObserver
}

// NewInstallRequest builds a request with a fresh id.
func NewInstallRequest(source string, flags InstallFlags, installer string, observer InstallObserver) *InstallRequest {
	return &InstallRequest{
		ID:        uuid.New(),
		Source:    source,
		Flags:     flags,
		Installer: installer,
		Observer:  observer,
	}
}

// MoveRequest relocates an installed package between placements.
type MoveRequest struct {
	ID       uuid.UUID
	Package  string
	Flags    InstallFlags
	Observer MoveObserver
}

// DeleteRequest removes an installed package.
type DeleteRequest struct {
	ID       uuid.UUID
	Package  string
	KeepData bool
	Observer DeleteObserver
}

// MeasureRequest asks for the storage footprint of an installed package.
type MeasureRequest struct {
	ID       uuid.UUID
	Package  string
	Observer MeasureObserver
}

// PackageStats is the storage footprint of a package in bytes.
type PackageStats struct {
	Package   string
	CodeSize  int64
	DataSize  int64
	CacheSize int64
}

// InstallObserver receives exactly one install completion.
type InstallObserver interface {
	OnInstalled(name string, status Status)
}

// MoveObserver receives exactly one move completion.
type MoveObserver interface {
	OnMoved(name string, status Status)
}

// DeleteObserver receives exactly one delete completion.
type DeleteObserver interface {
	OnDeleted(name string, status Status)
}

// MeasureObserver receives exactly one measure completion.
type MeasureObserver interface {
	OnMeasured(stats PackageStats, ok bool)
}

// InstallObserverFunc adapts a function to InstallObserver.
type InstallObserverFunc func(name string, status Status)

func (f InstallObserverFunc) OnInstalled(name string, status Status) { f(name, status) }

// MoveObserverFunc adapts a function to MoveObserver.
type MoveObserverFunc func(name string, status Status)

func (f MoveObserverFunc) OnMoved(name string, status Status) { f(name, status) }

// DeleteObserverFunc adapts a function to DeleteObserver.
type DeleteObserverFunc func(name string, status Status)

func (f DeleteObserverFunc) OnDeleted(name string, status Status) { f(name, status) }

// MeasureObserverFunc adapts a function to MeasureObserver.
type MeasureObserverFunc func(stats PackageStats, ok bool)

func (f MeasureObserverFunc) OnMeasured(stats PackageStats, ok bool) { f(stats, ok) }
