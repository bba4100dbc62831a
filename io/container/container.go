// Package container manages container volumes: named, keyed storage units
// holding one package's code and resources. Volumes are directories with a
// metadata file next to them so every process sharing the root sees the same
// mount state.
package container

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/io/fsutil"
	"gopkg.in/yaml.v3"
)

const (
	metaFile  = "meta.yaml"
	volumeDir = "vol"
)

var (
	ErrContainerNotFound = errors.New("container not found")
	ErrContainerExists   = errors.New("container already exists")
	ErrNotMounted        = errors.New("container not mounted")
	ErrMounted           = errors.New("container is mounted")
	ErrBadKey            = errors.New("container key mismatch")
	ErrFinalized         = errors.New("container is finalized")
)

type meta struct {
	ID        string         `yaml:"id"`
	KeyDigest string         `yaml:"keyDigest"`
	OwnerUID  int            `yaml:"ownerUid"`
	SizeMB    int            `yaml:"sizeMb"`
	External  bool           `yaml:"external"`
	Finalized bool           `yaml:"finalized"`
	Mounted   bool           `yaml:"mounted"`
	Groups    map[string]int `yaml:"groups,omitempty"`
}

// Manager owns the container volumes under one root directory.
type Manager struct {
	root string
	mu   sync.Mutex
}

// New opens (creating if needed) a container root.
func New(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, errors.Wrap(err, "create container root")
	}
	return &Manager{root: root}, nil
}

// Create makes a new mounted, writable container and returns its mount path.
func (m *Manager) Create(cid string, sizeMB int, key string, ownerUID int, external bool) (string, error) {
	if !validID(cid) {
		return "", errors.Errorf("bad container id %q", cid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.dir(cid)
	if _, err := os.Stat(dir); err == nil {
		return "", errors.Wrap(ErrContainerExists, cid)
	}
	if err := os.MkdirAll(filepath.Join(dir, volumeDir), 0o755); err != nil {
		return "", errors.Wrap(err, "create container")
	}

	md := &meta{
		ID:        cid,
		KeyDigest: keyDigest(key),
		OwnerUID:  ownerUID,
		SizeMB:    sizeMB,
		External:  external,
		Mounted:   true,
	}
	if err := m.writeMeta(md); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	log.Infof("created container %s (%d MB)", cid, sizeMB)
	return m.volume(cid), nil
}

// Finalize seals a container; its content can no longer change size.
func (m *Manager) Finalize(cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return err
	}
	md.Finalized = true
	return m.writeMeta(md)
}

// Mount makes the container readable and returns its mount path.
func (m *Manager) Mount(cid, key string, ownerUID int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return "", err
	}
	if md.KeyDigest != keyDigest(key) {
		return "", errors.Wrap(ErrBadKey, cid)
	}
	if !md.Mounted {
		md.Mounted = true
		md.OwnerUID = ownerUID
		if err := m.writeMeta(md); err != nil {
			return "", err
		}
	}
	return m.volume(cid), nil
}

// Unmount detaches the container.
func (m *Manager) Unmount(cid string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return err
	}
	if !md.Mounted {
		if force {
			return nil
		}
		return errors.Wrap(ErrNotMounted, cid)
	}
	md.Mounted = false
	return m.writeMeta(md)
}

// Destroy deletes the container. A mounted container is only destroyed with force.
func (m *Manager) Destroy(cid string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return nil
		}
		return err
	}
	if md.Mounted && !force {
		return errors.Wrap(ErrMounted, cid)
	}

	log.Infof("destroying container %s", cid)
	return errors.Wrap(os.RemoveAll(m.dir(cid)), "destroy container")
}

// Rename changes a container's id. The container must be unmounted.
func (m *Manager) Rename(oldCid, newCid string) error {
	if !validID(newCid) {
		return errors.Errorf("bad container id %q", newCid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(oldCid)
	if err != nil {
		return err
	}
	if md.Mounted {
		return errors.Wrap(ErrMounted, oldCid)
	}
	if _, err := os.Stat(m.dir(newCid)); err == nil {
		return errors.Wrap(ErrContainerExists, newCid)
	}
	if err := os.Rename(m.dir(oldCid), m.dir(newCid)); err != nil {
		return errors.Wrap(err, "rename container")
	}

	md.ID = newCid
	return m.writeMeta(md)
}

// Path returns the mount path of a mounted container.
func (m *Manager) Path(cid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return "", err
	}
	if !md.Mounted {
		return "", errors.Wrap(ErrNotMounted, cid)
	}
	return m.volume(cid), nil
}

// IsMounted reports whether cid exists and is mounted.
func (m *Manager) IsMounted(cid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	return err == nil && md.Mounted
}

// List returns all container ids, sorted.
func (m *Manager) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, errors.Wrap(err, "list containers")
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.dir(e.Name()), metaFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// FixPermissions restricts the container content to its owner and gid,
// leaving publicFile world readable.
func (m *Manager) FixPermissions(cid string, gid int, publicFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return err
	}
	if !md.Mounted {
		return errors.Wrap(ErrNotMounted, cid)
	}

	vol := m.volume(cid)
	err = filepath.Walk(vol, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return os.Chmod(p, 0o755)
		}
		mode := os.FileMode(0o640)
		if publicFile != "" && filepath.Base(p) == publicFile {
			mode = 0o644
		}
		if os.Geteuid() == 0 {
			if err := os.Lchown(p, md.OwnerUID, gid); err != nil {
				return err
			}
		}
		return os.Chmod(p, mode)
	})
	if err != nil {
		return errors.Wrap(err, "fix container permissions")
	}

	if md.Groups == nil {
		md.Groups = make(map[string]int)
	}
	md.Groups[publicFile] = gid
	return m.writeMeta(md)
}

// Group returns the gid last set for file by FixPermissions.
func (m *Manager) Group(cid, file string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return 0, false
	}
	gid, ok := md.Groups[file]
	return gid, ok
}

// Size returns the bytes stored in a container.
func (m *Manager) Size(cid string) (int64, error) {
	return fsutil.DirSize(m.volume(cid))
}

// SizeLimit returns the declared size of a container in bytes.
func (m *Manager) SizeLimit(cid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	if err != nil {
		return 0, err
	}
	return int64(md.SizeMB) << 20, nil
}

// IsFinalized reports whether cid has been sealed.
func (m *Manager) IsFinalized(cid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, err := m.readMeta(cid)
	return err == nil && md.Finalized
}

func (m *Manager) dir(cid string) string {
	return filepath.Join(m.root, cid)
}

func (m *Manager) volume(cid string) string {
	return filepath.Join(m.root, cid, volumeDir)
}

func (m *Manager) readMeta(cid string) (*meta, error) {
	if !validID(cid) {
		return nil, errors.Wrapf(ErrContainerNotFound, "bad id %q", cid)
	}
	raw, err := os.ReadFile(filepath.Join(m.dir(cid), metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrContainerNotFound, cid)
		}
		return nil, errors.Wrap(err, "read container metadata")
	}

	var md meta
	if err := yaml.Unmarshal(raw, &md); err != nil {
		return nil, errors.Wrapf(err, "decode metadata of %s", cid)
	}
	return &md, nil
}

func (m *Manager) writeMeta(md *meta) error {
	raw, err := yaml.Marshal(md)
	if err != nil {
		return errors.Wrap(err, "encode container metadata")
	}

	path := filepath.Join(m.dir(md.ID), metaFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write container metadata")
	}
	return errors.Wrap(os.Rename(tmp, path), "commit container metadata")
}

func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func validID(cid string) bool {
	return cid != "" && cid != "." && cid != ".." && !strings.ContainsAny(cid, "/\\ ")
}
