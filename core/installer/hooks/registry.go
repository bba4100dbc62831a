package hooks

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/io/archive"
)

// ErrRejected is matched by every Rejection.
var ErrRejected = errors.New("rejected by hook")

// Stage is the point of the install sequence a hook runs at.
type Stage string

const (
	StageScan   Stage = "scan"
	StageCommit Stage = "commit"
)

// Hook is run once a package has been scanned and again once it has been
// committed to the registry. Returning false aborts the install.
type Hook interface {
	OnScan(pkg *archive.Info) bool
	OnCommit(entry *registry.Entry) bool
}

// Rejection names the hook that aborted an install.
type Rejection struct {
	Hook    string
	Stage   Stage
	Package string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s hook %q rejected %s", r.Stage, r.Hook, r.Package)
}

func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

type namedHook struct {
	name string
	hook Hook
}

// Registry runs hooks in registration order and stops at the first
// rejection.
type Registry struct {
	hooks []namedHook
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds hook under name. Names appear in rejections and need not be
// unique.
func (r *Registry) Register(name string, hook Hook) {
	r.hooks = append(r.hooks, namedHook{name: name, hook: hook})
}

// ExecuteScan runs the scan hooks for pkg. It returns a *Rejection naming
// the first hook that refused the package.
func (r *Registry) ExecuteScan(pkg *archive.Info) error {
	for _, h := range r.hooks {
		if !h.hook.OnScan(pkg) {
			return &Rejection{Hook: h.name, Stage: StageScan, Package: pkg.Package}
		}
	}
	return nil
}

// ExecuteCommit runs the commit hooks for entry.
func (r *Registry) ExecuteCommit(entry *registry.Entry) error {
	for _, h := range r.hooks {
		if !h.hook.OnCommit(entry) {
			return &Rejection{Hook: h.name, Stage: StageCommit, Package: entry.Name}
		}
	}
	return nil
}

// Names returns the registered hook names in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.hooks))
	for i, h := range r.hooks {
		names[i] = h.name
	}
	return names
}
