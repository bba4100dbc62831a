package hooks

import (
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
	"github.com/vadiminshakov/installd/io/archive"
)

// MetricsHook counts scanned and committed packages
type MetricsHook struct {
	scanCount   atomic.Uint64
	commitCount atomic.Uint64
	startTime   time.Time
}

// NewMetricsHook creates a new metrics hook
func NewMetricsHook() *MetricsHook {
	return &MetricsHook{
		startTime: time.Now(),
	}
}

// OnScan increments scan counter and logs metrics
func (m *MetricsHook) OnScan(pkg *archive.Info) bool {
	n := m.scanCount.Add(1)
	log.WithFields(log.Fields{
		"pkg":        pkg.Package,
		"scan_count": n,
		"uptime":     time.Since(m.startTime),
	}).Info("Metrics: scan operation")
	return true
}

// OnCommit increments commit counter and logs metrics
func (m *MetricsHook) OnCommit(entry *registry.Entry) bool {
	n := m.commitCount.Add(1)
	log.WithFields(log.Fields{
		"pkg":          entry.Name,
		"commit_count": n,
		"uptime":       time.Since(m.startTime),
	}).Info("Metrics: commit operation")
	return true
}

// GetStats returns current statistics
func (m *MetricsHook) GetStats() (uint64, uint64, time.Duration) {
	return m.scanCount.Load(), m.commitCount.Load(), time.Since(m.startTime)
}

// ValidationHook rejects packages outside configured limits
type ValidationHook struct {
	maxNameLength int
	maxSize       int64
}

// NewValidationHook creates a new validation hook. A zero maxSize
// disables the size check.
func NewValidationHook(maxNameLength int, maxSize int64) *ValidationHook {
	return &ValidationHook{
		maxNameLength: maxNameLength,
		maxSize:       maxSize,
	}
}

// OnScan validates the scanned package
func (v *ValidationHook) OnScan(pkg *archive.Info) bool {
	if len(pkg.Package) > v.maxNameLength {
		log.Errorf("Package name too long: %d > %d", len(pkg.Package), v.maxNameLength)
		return false
	}

	if v.maxSize > 0 && pkg.Size > v.maxSize {
		log.Errorf("Package too large: %d > %d", pkg.Size, v.maxSize)
		return false
	}

	log.Debugf("Validation passed for package: %s", pkg.Package)
	return true
}

// OnCommit validates the registry entry
func (v *ValidationHook) OnCommit(entry *registry.Entry) bool {
	if entry.UID < storage.FirstApplicationUID {
		log.Errorf("Invalid uid %d for %s", entry.UID, entry.Name)
		return false
	}

	log.Debugf("Commit validation passed for package: %s", entry.Name)
	return true
}

// AuditHook logs all operations for audit purposes
type AuditHook struct {
	logFile string
}

// NewAuditHook creates a new audit hook
func NewAuditHook(logFile string) *AuditHook {
	return &AuditHook{
		logFile: logFile,
	}
}

// OnScan logs scanned packages
func (a *AuditHook) OnScan(pkg *archive.Info) bool {
	auditMsg := fmt.Sprintf("[AUDIT] SCAN - Package: %s, Version: %d, Cert: %s, Time: %s",
		pkg.Package, pkg.Version, pkg.CertDigest, time.Now().Format(time.RFC3339))

	log.WithField("audit", true).Info(auditMsg)
	return true
}

// OnCommit logs registry commits
func (a *AuditHook) OnCommit(entry *registry.Entry) bool {
	auditMsg := fmt.Sprintf("[AUDIT] COMMIT - Package: %s, UID: %d, Installer: %s, Time: %s",
		entry.Name, entry.UID, entry.Installer, time.Now().Format(time.RFC3339))

	log.WithField("audit", true).Info(auditMsg)
	return true
}
