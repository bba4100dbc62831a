package daemon

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/io/fsutil"
)

const (
	statusOK    = 0
	statusError = -1

	cacheDirName = "cache"
	libDirName   = "lib"
	dexSuffix    = "@classes.dex"
)

type handler func(args []string) (int, []string)

// Server is the daemon side of the protocol: it owns package data
// directories and optimized-code artifacts and mutates them on request.
type Server struct {
	socket  string
	dataDir string
	dexDir  string

	// mu serializes command execution across connections.
	mu       sync.Mutex
	handlers map[string]handler
	nargs    map[string]int

	listener net.Listener
	wg       sync.WaitGroup
	connsMu  sync.Mutex
	conns    map[net.Conn]struct{}
}

// NewServer creates a daemon server rooted at dataDir and dexDir.
func NewServer(socket, dataDir, dexDir string) (*Server, error) {
	for _, dir := range []string{dataDir, dexDir} {
		if err := os.MkdirAll(dir, 0o771); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	s := &Server{
		socket:  socket,
		dataDir: dataDir,
		dexDir:  dexDir,
		conns:   make(map[net.Conn]struct{}),
	}
	s.handlers = map[string]handler{
		"ping":      s.ping,
		"install":   s.install,
		"remove":    s.remove,
		"rename":    s.rename,
		"dexopt":    s.dexopt,
		"movedex":   s.movedex,
		"rmdex":     s.rmdex,
		"freecache": s.freecache,
		"getsize":   s.getsize,
		"fixuid":    s.fixuid,
		"linklib":   s.linklib,
		"unlinklib": s.unlinklib,
	}
	s.nargs = map[string]int{
		"ping": 0, "install": 3, "remove": 1, "rename": 2, "dexopt": 3, "movedex": 2,
		"rmdex": 1, "freecache": 1, "getsize": 3, "fixuid": 3, "linklib": 2, "unlinklib": 1,
	}
	return s, nil
}

// Run starts accepting connections in the background.
func (s *Server) Run() error {
	_ = os.Remove(s.socket)
	l, err := net.Listen("unix", s.socket)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = l
	log.Infof("daemon listening on unix://%s", s.socket)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			s.connsMu.Lock()
			s.conns[conn] = struct{}{}
			s.connsMu.Unlock()

			s.wg.Add(1)
			go s.serve(conn)
		}
	}()
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() {
	log.Info("stopping daemon")
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connsMu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.socket)
	log.Info("daemon stopped")
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		_ = conn.Close()
	}()

	for {
		f, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warnf("daemon: dropping client: %v", err)
			}
			return
		}

		status, fields := s.Dispatch(context.Background(), string(f.body))
		if err := writeFrame(conn, f.id, formatReply(status, fields...)); err != nil {
			log.Warnf("daemon: reply %d failed: %v", f.id, err)
			return
		}
	}
}

// Dispatch executes one command line and returns its status and fields.
func (s *Server) Dispatch(_ context.Context, cmd string) (int, []string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return statusError, nil
	}

	verb, args := parts[0], parts[1:]
	h, ok := s.handlers[verb]
	if !ok {
		log.Errorf("daemon: unknown command %q", verb)
		return statusError, nil
	}
	if len(args) != s.nargs[verb] {
		log.Errorf("daemon: %s expects %d arguments, got %d", verb, s.nargs[verb], len(args))
		return statusError, nil
	}
	for i, a := range args {
		if a == nullArg {
			args[i] = ""
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	status, fields := h(args)
	log.WithFields(log.Fields{"cmd": verb, "status": status}).Debug("daemon command")
	return status, fields
}

func (s *Server) ping(_ []string) (int, []string) {
	return statusOK, nil
}

func (s *Server) install(args []string) (int, []string) {
	pkg := args[0]
	uid, gid, err := parseIDs(args[1], args[2])
	if err != nil || !validPackage(pkg) {
		return statusError, nil
	}

	dir := s.packageDir(pkg)
	if err := os.MkdirAll(filepath.Join(dir, cacheDirName), 0o771); err != nil {
		log.Errorf("daemon: install %s: %v", pkg, err)
		return statusError, nil
	}
	if err := os.MkdirAll(filepath.Join(dir, libDirName), 0o755); err != nil {
		log.Errorf("daemon: install %s: %v", pkg, err)
		return statusError, nil
	}
	if err := chownTree(dir, uid, gid); err != nil {
		log.Errorf("daemon: chown %s: %v", pkg, err)
		_ = os.RemoveAll(dir)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) remove(args []string) (int, []string) {
	if !validPackage(args[0]) {
		return statusError, nil
	}
	if err := os.RemoveAll(s.packageDir(args[0])); err != nil {
		log.Errorf("daemon: remove %s: %v", args[0], err)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) rename(args []string) (int, []string) {
	if !validPackage(args[0]) || !validPackage(args[1]) {
		return statusError, nil
	}
	if err := os.Rename(s.packageDir(args[0]), s.packageDir(args[1])); err != nil {
		log.Errorf("daemon: rename %s -> %s: %v", args[0], args[1], err)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) dexopt(args []string) (int, []string) {
	path := args[0]
	if !filepath.IsAbs(path) {
		return statusError, nil
	}
	mode := os.FileMode(0o640)
	if args[2] == "1" {
		mode = 0o644
	}
	if _, err := fsutil.CopyFile(path, s.dexPath(path), mode); err != nil {
		log.Errorf("daemon: dexopt %s: %v", path, err)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) movedex(args []string) (int, []string) {
	if !filepath.IsAbs(args[0]) || !filepath.IsAbs(args[1]) {
		return statusError, nil
	}
	if err := os.Rename(s.dexPath(args[0]), s.dexPath(args[1])); err != nil {
		log.Errorf("daemon: movedex: %v", err)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) rmdex(args []string) (int, []string) {
	if !filepath.IsAbs(args[0]) {
		return statusError, nil
	}
	if err := os.Remove(s.dexPath(args[0])); err != nil && !os.IsNotExist(err) {
		log.Errorf("daemon: rmdex: %v", err)
		return statusError, nil
	}
	return statusOK, nil
}

// freecache deletes cache files, largest packages first, until want bytes
// have been released.
func (s *Server) freecache(args []string) (int, []string) {
	want, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || want < 0 {
		return statusError, nil
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return statusError, nil
	}

	type cache struct {
		dir  string
		size int64
	}
	var caches []cache
	for _, e := range entries {
		dir := filepath.Join(s.dataDir, e.Name(), cacheDirName)
		size, err := fsutil.DirSize(dir)
		if err != nil || size == 0 {
			continue
		}
		caches = append(caches, cache{dir: dir, size: size})
	}
	sort.Slice(caches, func(i, j int) bool { return caches[i].size > caches[j].size })

	var freed int64
	for _, c := range caches {
		if freed >= want {
			break
		}
		children, err := os.ReadDir(c.dir)
		if err != nil {
			continue
		}
		for _, child := range children {
			_ = os.RemoveAll(filepath.Join(c.dir, child.Name()))
		}
		freed += c.size
	}
	return statusOK, []string{strconv.FormatInt(freed, 10)}
}

func (s *Server) getsize(args []string) (int, []string) {
	pkg, codePath, resPath := args[0], args[1], args[2]
	if !validPackage(pkg) {
		return statusError, nil
	}

	var code int64
	if codePath != "" {
		info, err := os.Stat(codePath)
		switch {
		case err != nil:
		case info.IsDir():
			code, _ = fsutil.DirSize(codePath)
		default:
			code = info.Size()
		}
		code += fsutil.FileSize(s.dexPath(codePath))
	}
	if resPath != "" && resPath != codePath {
		code += fsutil.FileSize(resPath)
	}

	dir := s.packageDir(pkg)
	total, err := fsutil.DirSize(dir)
	if err != nil {
		return statusError, nil
	}
	cacheSize, _ := fsutil.DirSize(filepath.Join(dir, cacheDirName))
	libSize, _ := fsutil.DirSize(filepath.Join(dir, libDirName))

	return statusOK, []string{
		strconv.FormatInt(code+libSize, 10),
		strconv.FormatInt(total-cacheSize-libSize, 10),
		strconv.FormatInt(cacheSize, 10),
	}
}

func (s *Server) fixuid(args []string) (int, []string) {
	uid, gid, err := parseIDs(args[1], args[2])
	if err != nil || !validPackage(args[0]) {
		return statusError, nil
	}
	if err := chownTree(s.packageDir(args[0]), uid, gid); err != nil {
		log.Errorf("daemon: fixuid %s: %v", args[0], err)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) linklib(args []string) (int, []string) {
	pkg, target := args[0], args[1]
	if !validPackage(pkg) || !filepath.IsAbs(target) {
		return statusError, nil
	}

	lib := filepath.Join(s.packageDir(pkg), libDirName)
	if err := os.RemoveAll(lib); err != nil {
		return statusError, nil
	}
	if err := os.Symlink(target, lib); err != nil {
		log.Errorf("daemon: linklib %s: %v", pkg, err)
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) unlinklib(args []string) (int, []string) {
	if !validPackage(args[0]) {
		return statusError, nil
	}

	lib := filepath.Join(s.packageDir(args[0]), libDirName)
	if info, err := os.Lstat(lib); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(lib); err != nil {
			return statusError, nil
		}
	}
	if err := os.MkdirAll(lib, 0o755); err != nil {
		return statusError, nil
	}
	return statusOK, nil
}

func (s *Server) packageDir(pkg string) string {
	return filepath.Join(s.dataDir, pkg)
}

// DexPath is where the optimized-code artifact for codePath lives.
func (s *Server) DexPath(codePath string) string {
	return s.dexPath(codePath)
}

func (s *Server) dexPath(codePath string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(filepath.Clean(codePath), "/"), "/", "@")
	return filepath.Join(s.dexDir, name+dexSuffix)
}

func validPackage(pkg string) bool {
	return pkg != "" && pkg != "." && pkg != ".." && !strings.ContainsAny(pkg, "/\\")
}

func parseIDs(uidArg, gidArg string) (int, int, error) {
	uid, err := strconv.Atoi(uidArg)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.Atoi(gidArg)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

// chownTree changes ownership when running privileged; unprivileged
// daemons (tests, development) leave ownership untouched.
func chownTree(root string, uid, gid int) error {
	if os.Geteuid() != 0 || uid < 0 {
		return nil
	}
	return filepath.Walk(root, func(p string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(p, uid, gid)
	})
}
