// Package registry holds the installed packages. A single owner goroutine
// holds the map; callers reach it only through messages, so no lock on the
// map can ever be ordered against the install lock.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/storage"
)

var (
	ErrNotFound      = errors.New("package not installed")
	ErrAlreadyExists = errors.New("package already installed")
	ErrClosed        = errors.New("registry closed")
)

// Entry is an installed package.
type Entry struct {
	Name           string             `json:"name"`
	Version        int64              `json:"version"`
	UID            int                `json:"uid"`
	CertDigest     string             `json:"certDigest"`
	ManifestDigest string             `json:"manifestDigest"`
	Installer      string             `json:"installer,omitempty"`
	Flags          dto.InstallFlags   `json:"flags"`
	Storage        storage.Descriptor `json:"storage"`
	InstalledAt    time.Time          `json:"installedAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Persister stores registry entries. The registry calls it from its owner
// goroutine only.
//
//go:generate mockgen -destination=../../mocks/mock_persister.go -package=mocks . Persister
type Persister interface {
	Save(e Entry) error
	Delete(name string) error
	LoadAll() ([]Entry, error)
}

type state struct {
	entries   map[string]Entry
	nextUID   int
	persister Persister
}

// Registry is the package map actor.
type Registry struct {
	reqs     chan func(*state)
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New loads persisted entries and starts the owner goroutine. A nil
// persister keeps the registry in memory only.
func New(p Persister) (*Registry, error) {
	st := &state{
		entries:   make(map[string]Entry),
		nextUID:   storage.FirstApplicationUID,
		persister: p,
	}
	if p != nil {
		entries, err := p.LoadAll()
		if err != nil {
			return nil, errors.Wrap(err, "load registry")
		}
		for _, e := range entries {
			st.entries[e.Name] = e
			if e.UID >= st.nextUID {
				st.nextUID = e.UID + 1
			}
		}
		log.Infof("registry: loaded %d packages", len(entries))
	}

	r := &Registry{
		reqs: make(chan func(*state)),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.run(st)
	return r, nil
}

func (r *Registry) run(st *state) {
	defer close(r.done)
	for {
		select {
		case fn := <-r.reqs:
			fn(st)
		case <-r.stop:
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it.
func (r *Registry) do(fn func(*state)) error {
	finished := make(chan struct{})
	select {
	case r.reqs <- func(st *state) {
		defer close(finished)
		fn(st)
	}:
	case <-r.stop:
		return ErrClosed
	}
	<-finished
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	var (
		e  Entry
		ok bool
	)
	_ = r.do(func(st *state) {
		e, ok = st.entries[name]
	})
	return e, ok
}

// List returns all entries ordered by name.
func (r *Registry) List() []Entry {
	var out []Entry
	_ = r.do(func(st *state) {
		out = make([]Entry, 0, len(st.entries))
		for _, e := range st.entries {
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Commit stores e. A replacement keeps the installed package's uid and
// install time; a new package gets the next free uid. Without replace an
// existing entry is ErrAlreadyExists.
func (r *Registry) Commit(e Entry, replace bool) (Entry, error) {
	var err error
	if doErr := r.do(func(st *state) {
		now := time.Now()
		old, exists := st.entries[e.Name]
		switch {
		case exists && !replace:
			err = errors.Wrap(ErrAlreadyExists, e.Name)
			return
		case exists:
			e.UID = old.UID
			e.InstalledAt = old.InstalledAt
		default:
			if e.UID == 0 {
				e.UID = st.nextUID
			}
			e.InstalledAt = now
		}
		e.UpdatedAt = now

		if st.persister != nil {
			if err = st.persister.Save(e); err != nil {
				err = errors.Wrapf(err, "persist %s", e.Name)
				return
			}
		}
		st.entries[e.Name] = e
		if e.UID >= st.nextUID {
			st.nextUID = e.UID + 1
		}
	}); doErr != nil {
		return Entry{}, doErr
	}
	return e, err
}

// Restore puts back a previous entry, or removes name when prev is nil.
// Used to undo a commit whose follow-up step failed.
func (r *Registry) Restore(name string, prev *Entry) error {
	var err error
	if doErr := r.do(func(st *state) {
		if prev == nil {
			delete(st.entries, name)
			if st.persister != nil {
				err = st.persister.Delete(name)
			}
			return
		}
		st.entries[name] = *prev
		if st.persister != nil {
			err = st.persister.Save(*prev)
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Update applies fn to the entry for name and persists the result.
func (r *Registry) Update(name string, fn func(*Entry) error) (Entry, error) {
	var (
		out Entry
		err error
	)
	if doErr := r.do(func(st *state) {
		e, ok := st.entries[name]
		if !ok {
			err = errors.Wrap(ErrNotFound, name)
			return
		}
		if err = fn(&e); err != nil {
			return
		}
		e.UpdatedAt = time.Now()
		if st.persister != nil {
			if err = st.persister.Save(e); err != nil {
				err = errors.Wrapf(err, "persist %s", name)
				return
			}
		}
		st.entries[name] = e
		out = e
	}); doErr != nil {
		return Entry{}, doErr
	}
	return out, err
}

// Remove deletes and returns the entry for name.
func (r *Registry) Remove(name string) (Entry, error) {
	var (
		out Entry
		err error
	)
	if doErr := r.do(func(st *state) {
		e, ok := st.entries[name]
		if !ok {
			err = errors.Wrap(ErrNotFound, name)
			return
		}
		if st.persister != nil {
			if err = st.persister.Delete(name); err != nil {
				err = errors.Wrapf(err, "persist removal of %s", name)
				return
			}
		}
		delete(st.entries, name)
		out = e
	}); doErr != nil {
		return Entry{}, doErr
	}
	return out, err
}

// Close stops the owner goroutine. Calls after Close return ErrClosed.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
