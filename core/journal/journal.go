// Package journal records install work items in a write-ahead log so the
// artifacts of an item interrupted by a crash can be removed on restart.
//
// Every item that produced storage artifacts owns four log slots. The begin
// record is written once the artifacts exist and carries the registry entry
// the item may replace. A placed record follows when the artifacts take
// their final names, a committed record once the item can no longer fail,
// and a done record when it reaches a terminal state. Recover rolls back
// items that never committed and rolls forward the ones that did.
package journal

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
)

const (
	// system keys for item phases
	KeyBegin     = "__item:begin"
	KeyPlaced    = "__item:placed"
	KeyCommitted = "__item:committed"
	KeyDone      = "__item:done"
	KeyRecovered = "__item:recovered"

	// Stride is the number of log slots owned by one sequence number.
	Stride = 4

	// KindMove marks items that relocate an installed package.
	KindMove = "move"
)

// BeginSlot returns the WAL index of the begin record for seq.
func BeginSlot(seq uint64) uint64 {
	return seq*Stride + 0
}

// PlacedSlot returns the WAL index of the placed record for seq.
func PlacedSlot(seq uint64) uint64 {
	return seq*Stride + 1
}

// CommittedSlot returns the WAL index of the committed record for seq.
func CommittedSlot(seq uint64) uint64 {
	return seq*Stride + 2
}

// DoneSlot returns the WAL index of the done record for seq.
func DoneSlot(seq uint64) uint64 {
	return seq*Stride + 3
}

// Record is the payload stored in the log.
type Record struct {
	Item    uuid.UUID `json:"item"`
	Kind    string    `json:"kind,omitempty"`
	Package string    `json:"package,omitempty"`
	// Storage lists the artifacts to remove if the item never commits.
	Storage []storage.Descriptor `json:"storage,omitempty"`
	// Previous is the registry entry for Package when the item began, nil
	// if there was none.
	Previous *registry.Entry `json:"previous,omitempty"`
	// Retire lists the artifacts a committed item still has to remove.
	Retire    []storage.Descriptor `json:"retire,omitempty"`
	Committed bool                 `json:"committed,omitempty"`
	Status    dto.Status           `json:"status,omitempty"`
	Recovered []uint64             `json:"recovered,omitempty"`
}

// Encode serializes a Record into bytes.
func Encode(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// Decode deserializes bytes into a Record.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.Wrap(err, "failed to decode journal record")
	}
	return r, nil
}

// Config configures the underlying log.
type Config struct {
	Dir              string
	SegmentThreshold int
	MaxSegments      int
	Sync             bool
}

// Journal is the install work item log.
type Journal struct {
	wal *gowal.Wal

	mu      sync.Mutex
	next    uint64
	pending map[uint64]Record
}

// Open opens the log in cfg.Dir and scans it for unfinished items.
func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal dir is empty")
	}
	if cfg.SegmentThreshold <= 0 {
		cfg.SegmentThreshold = 1000
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 100
	}

	w, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           "journal",
		SegmentThreshold: cfg.SegmentThreshold,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: cfg.Sync,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open journal wal")
	}

	j := &Journal{wal: w, pending: make(map[uint64]Record)}
	if err := j.scan(); err != nil {
		_ = w.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) scan() error {
	var (
		maxIndex   uint64
		hasEntries bool
	)

	for msg := range j.wal.Iterator() {
		hasEntries = true
		if msg.Idx > maxIndex {
			maxIndex = msg.Idx
		}

		seq := msg.Idx / Stride
		switch msg.Key {
		case KeyBegin:
			rec, err := Decode(msg.Value)
			if err != nil {
				return errors.Wrapf(err, "journal slot %d", msg.Idx)
			}
			j.pending[seq] = rec
		case KeyPlaced, KeyCommitted:
			rec, err := Decode(msg.Value)
			if err != nil {
				return errors.Wrapf(err, "journal slot %d", msg.Idx)
			}
			if p, ok := j.pending[seq]; ok {
				j.pending[seq] = amend(p, msg.Key, rec)
			}
		case KeyDone:
			delete(j.pending, seq)
		case KeyRecovered:
			rec, err := Decode(msg.Value)
			if err != nil {
				return errors.Wrapf(err, "journal slot %d", msg.Idx)
			}
			for _, s := range rec.Recovered {
				delete(j.pending, s)
			}
		}
	}

	if hasEntries {
		j.next = maxIndex/Stride + 1
	}
	return nil
}

// Begin logs the start of an item and returns its sequence number.
func (j *Journal) Begin(rec Record) (uint64, error) {
	raw, err := Encode(rec)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.next
	if err := j.wal.Write(BeginSlot(seq), KeyBegin, raw); err != nil {
		return 0, errors.Wrapf(err, "journal begin %d", seq)
	}
	j.next++
	j.pending[seq] = rec
	return seq, nil
}

// amend applies a placed or committed record to the begin record p.
func amend(p Record, key string, rec Record) Record {
	switch key {
	case KeyPlaced:
		p.Storage = rec.Storage
	case KeyCommitted:
		p.Committed = true
		p.Retire = rec.Retire
	}
	return p
}

// Placed logs that the artifacts of seq now live under their final names.
// They replace the artifacts given to Begin.
func (j *Journal) Placed(seq uint64, artifacts []storage.Descriptor) error {
	return j.amendPending(seq, PlacedSlot(seq), KeyPlaced, Record{Storage: artifacts})
}

// Committed logs that seq passed its last failure point. Recover keeps the
// work of a committed item and removes only retire.
func (j *Journal) Committed(seq uint64, retire []storage.Descriptor) error {
	return j.amendPending(seq, CommittedSlot(seq), KeyCommitted, Record{Committed: true, Retire: retire})
}

func (j *Journal) amendPending(seq, slot uint64, key string, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	p, ok := j.pending[seq]
	if !ok {
		return errors.Errorf("journal: item %d not pending", seq)
	}
	rec.Item = p.Item
	raw, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := j.wal.Write(slot, key, raw); err != nil {
		return errors.Wrapf(err, "journal %s %d", key, seq)
	}
	j.pending[seq] = amend(p, key, rec)
	return nil
}

// Done logs the terminal status of the item begun as seq.
func (j *Journal) Done(seq uint64, status dto.Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, ok := j.pending[seq]
	if !ok {
		return errors.Errorf("journal: item %d not pending", seq)
	}
	raw, err := Encode(Record{Item: rec.Item, Status: status})
	if err != nil {
		return err
	}
	if err := j.wal.Write(DoneSlot(seq), KeyDone, raw); err != nil {
		return errors.Wrapf(err, "journal done %d", seq)
	}
	delete(j.pending, seq)
	return nil
}

// Pending returns the unfinished items by sequence number.
func (j *Journal) Pending() map[uint64]Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[uint64]Record, len(j.pending))
	for seq, rec := range j.pending {
		out[seq] = rec
	}
	return out
}

// Registry is the part of the package registry Recover repairs.
type Registry interface {
	Get(name string) (registry.Entry, bool)
	Restore(name string, prev *registry.Entry) error
}

// Daemon undoes the daemon side of an item rolled back at startup.
type Daemon interface {
	Remove(ctx context.Context, pkg string) error
	Dexopt(ctx context.Context, path string, uid int, public bool) error
	LinkLib(ctx context.Context, pkg, dir string) error
}

// Recover finishes every unfinished item and marks it done. An item that
// never committed gets its registry entry put back before its artifacts are
// removed. A committed item keeps its placement and loses only the
// artifacts it was retiring. d may be nil. Recover must run before the
// first Begin of this process.
func (j *Journal) Recover(ctx context.Context, env *storage.Env, reg Registry, d Daemon) ([]Record, error) {
	pending := j.Pending()
	if len(pending) == 0 {
		return nil, nil
	}

	seqs := make([]uint64, 0, len(pending))
	for seq := range pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(a, b int) bool { return seqs[a] < seqs[b] })

	recovered := make([]Record, 0, len(seqs))
	for _, seq := range seqs {
		rec := pending[seq]
		if err := recoverItem(ctx, env, reg, d, rec); err != nil {
			return nil, errors.Wrapf(err, "recover item %s", rec.Item)
		}
		recovered = append(recovered, rec)
	}

	raw, err := Encode(Record{Item: uuid.New(), Recovered: seqs})
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.next
	if err := j.wal.Write(BeginSlot(seq), KeyRecovered, raw); err != nil {
		return nil, errors.Wrap(err, "journal recover")
	}
	j.next++
	for _, s := range seqs {
		delete(j.pending, s)
	}
	return recovered, nil
}

func recoverItem(ctx context.Context, env *storage.Env, reg Registry, d Daemon, rec Record) error {
	logger := log.WithFields(log.Fields{"item": rec.Item, "kind": rec.Kind, "pkg": rec.Package})

	if rec.Committed {
		logger.Info("journal: finishing committed item")
		removeArtifacts(ctx, env, logger, rec.Retire)
		return nil
	}

	restored, err := restoreEntry(reg, rec)
	if err != nil {
		return err
	}
	logger.Info("journal: rolling back interrupted item")
	removeArtifacts(ctx, env, logger, rec.Storage)
	if !restored || d == nil {
		return nil
	}

	prev := rec.Previous
	if prev == nil {
		if err := d.Remove(ctx, rec.Package); err != nil {
			logger.Warnf("journal: remove data: %v", err)
		}
		return nil
	}
	if rec.Kind == KindMove {
		if err := d.Dexopt(ctx, prev.Storage.CodePath, storage.SystemUID, !prev.Storage.ForwardLocked); err != nil {
			logger.Warnf("journal: optimize restored code: %v", err)
		}
	}
	if err := d.LinkLib(ctx, rec.Package, prev.Storage.LibDir); err != nil {
		logger.Warnf("journal: relink native libraries: %v", err)
	}
	return nil
}

// restoreEntry puts back the entry rec replaced if the registry no longer
// holds it. It reports whether the registry changed.
func restoreEntry(reg Registry, rec Record) (bool, error) {
	if reg == nil || rec.Package == "" {
		return false, nil
	}
	current, ok := reg.Get(rec.Package)
	switch {
	case rec.Previous == nil && !ok:
		return false, nil
	case rec.Previous != nil && ok && current.Storage == rec.Previous.Storage:
		return false, nil
	}
	if err := reg.Restore(rec.Package, rec.Previous); err != nil {
		return false, errors.Wrap(err, "restore registry")
	}
	return true, nil
}

func removeArtifacts(ctx context.Context, env *storage.Env, logger *log.Entry, artifacts []storage.Descriptor) {
	for _, d := range artifacts {
		args, err := storage.FromDescriptor(env, d)
		if err != nil {
			logger.Warnf("journal: %v", err)
			continue
		}
		logger.WithField("artifact", d.Name()).Info("journal: removing artifact")
		args.Cleanup(ctx)
	}
}

// Close closes the log.
func (j *Journal) Close() error {
	return j.wal.Close()
}
