// Package hooks provides an extensible hook system for the installer.
//
// Hooks allow custom validation, metrics collection, and business logic
// to be executed when a package is scanned and when it is committed to
// the registry without modifying the install sequence.
package hooks

import (
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/io/archive"
)

// DefaultHook provides the default logging behavior
type DefaultHook struct{}

// NewDefaultHook creates a new default hook instance
func NewDefaultHook() *DefaultHook {
	return &DefaultHook{}
}

// OnScan implements the Hook interface for scanned packages
func (h *DefaultHook) OnScan(pkg *archive.Info) bool {
	log.Infof("scan hook on %s version %d is OK", pkg.Package, pkg.Version)
	return true
}

// OnCommit implements the Hook interface for registry commits
func (h *DefaultHook) OnCommit(entry *registry.Entry) bool {
	log.Infof("commit hook on %s uid %d is OK", entry.Name, entry.UID)
	return true
}
