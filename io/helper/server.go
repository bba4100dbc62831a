package helper

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/io/archive"
	"github.com/vadiminshakov/installd/io/container"
	"github.com/vadiminshakov/installd/io/fsutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// NativeLibDir is the directory inside a container holding native libraries.
const NativeLibDir = "lib"

// FreeSpaceFunc reports free bytes on the filesystem holding path.
type FreeSpaceFunc func(path string) (int64, error)

// Service implements StorageHelperServer on the local filesystem.
type Service struct {
	internalDir       string
	containers        *container.Manager
	containerRoot     string
	freeSpace         FreeSpaceFunc
	externalAvailable func() bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFreeSpace overrides how free space is measured.
func WithFreeSpace(f FreeSpaceFunc) ServiceOption {
	return func(s *Service) {
		s.freeSpace = f
	}
}

// WithExternalAvailable overrides the external media availability check.
func WithExternalAvailable(f func() bool) ServiceOption {
	return func(s *Service) {
		s.externalAvailable = f
	}
}

// NewService creates the helper service for an internal app dir and a
// container root.
func NewService(internalDir, containerRoot string, containers *container.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		internalDir:   internalDir,
		containers:    containers,
		containerRoot: containerRoot,
		freeSpace:     fsutil.FreeBytes,
	}
	s.externalAvailable = func() bool {
		info, err := os.Stat(s.containerRoot)
		return err == nil && info.IsDir()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

func (s *Service) CheckInternalFreeSpace(_ context.Context, req *FreeSpaceRequest) (*FreeSpaceResponse, error) {
	path, err := resolveURI(req.URI)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	fits, err := s.fitsInternal(path, req.ForwardLocked, req.Threshold)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &FreeSpaceResponse{Fits: fits}, nil
}

func (s *Service) CheckExternalFreeSpace(_ context.Context, req *FreeSpaceRequest) (*FreeSpaceResponse, error) {
	path, err := resolveURI(req.URI)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	fits, err := s.fitsExternal(path)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &FreeSpaceResponse{Fits: fits}, nil
}

func (s *Service) CopyResource(_ context.Context, req *CopyRequest) (*CopyResponse, error) {
	src, err := resolveURI(req.URI)
	if err != nil {
		return &CopyResponse{Status: dto.FailedInvalidURI}, nil
	}
	if _, err := os.Stat(src); err != nil {
		return &CopyResponse{Status: dto.FailedInvalidURI}, nil
	}

	mode := os.FileMode(req.Mode)
	if mode == 0 {
		mode = 0o644
	}
	if _, err := fsutil.CopyFile(src, req.Dest, mode); err != nil {
		log.Errorf("helper: copy %s -> %s: %v", src, req.Dest, err)
		_ = os.Remove(req.Dest)
		return &CopyResponse{Status: copyFailure(err)}, nil
	}
	return &CopyResponse{Status: dto.Succeeded}, nil
}

func (s *Service) CopyPublicResources(_ context.Context, req *CopyRequest) (*CopyResponse, error) {
	src, err := resolveURI(req.URI)
	if err != nil {
		return &CopyResponse{Status: dto.FailedInvalidURI}, nil
	}
	if err := archive.WritePublicResources(src, req.Dest); err != nil {
		log.Errorf("helper: public resources of %s: %v", src, err)
		_ = os.Remove(req.Dest)
		if errors.Is(err, archive.ErrInvalidArchive) {
			return &CopyResponse{Status: dto.FailedInvalidArchive}, nil
		}
		return &CopyResponse{Status: copyFailure(err)}, nil
	}
	return &CopyResponse{Status: dto.Succeeded}, nil
}

// CopyResourceToContainer creates a container sized for the archive, copies
// the archive (and for forward-locked packages its public resources) into
// it, finalizes and unmounts it.
func (s *Service) CopyResourceToContainer(_ context.Context, req *dto.ContainerCopyRequest) (*ContainerCopyResponse, error) {
	src, err := resolveURI(req.URI)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "source %s: %v", src, err)
	}
	if req.ResFileName == "" {
		return nil, status.Error(codes.InvalidArgument, "resource file name is empty")
	}

	sizeMB := containerSizeMB(info.Size(), req.ForwardLocked)
	path, err := s.containers.Create(req.ContainerID, sizeMB, req.Key, req.OwnerUID, req.External)
	if err != nil {
		return nil, status.Errorf(codes.FailedPrecondition, "create container %s: %v", req.ContainerID, err)
	}

	fail := func(format string, args ...interface{}) (*ContainerCopyResponse, error) {
		_ = s.containers.Destroy(req.ContainerID, true)
		return nil, status.Errorf(codes.Internal, format, args...)
	}

	if _, err := fsutil.CopyFile(src, filepath.Join(path, req.ResFileName), 0o644); err != nil {
		return fail("copy into container %s: %v", req.ContainerID, err)
	}
	if _, err := archive.ExtractNativeLibs(src, filepath.Join(path, NativeLibDir)); err != nil {
		return fail("native libraries into container %s: %v", req.ContainerID, err)
	}
	if req.ForwardLocked && req.PublicResFileName != "" {
		if err := archive.WritePublicResources(src, filepath.Join(path, req.PublicResFileName)); err != nil {
			return fail("public resources into container %s: %v", req.ContainerID, err)
		}
	}

	used, err := s.containers.Size(req.ContainerID)
	if err != nil {
		return fail("measure container %s: %v", req.ContainerID, err)
	}
	if used > int64(sizeMB)<<20 {
		return fail("container %s overflow: %d bytes in %d MB", req.ContainerID, used, sizeMB)
	}

	if err := s.containers.Finalize(req.ContainerID); err != nil {
		return fail("finalize container %s: %v", req.ContainerID, err)
	}
	if err := s.containers.Unmount(req.ContainerID, false); err != nil {
		return fail("unmount container %s: %v", req.ContainerID, err)
	}

	log.Infof("helper: populated container %s (%d MB)", req.ContainerID, sizeMB)
	return &ContainerCopyResponse{Path: path}, nil
}

func (s *Service) CalculateDirectorySize(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	if !filepath.IsAbs(req.GetValue()) {
		return nil, status.Errorf(codes.InvalidArgument, "path %q is not absolute", req.GetValue())
	}
	size, err := fsutil.DirSize(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Int64(size), nil
}

func (s *Service) GetMinimalPackageInfo(_ context.Context, req *MinimalInfoRequest) (*dto.PackageInfoLite, error) {
	path, err := resolveURI(req.Path)
	if err != nil {
		return &dto.PackageInfoLite{RecommendedLocation: dto.RecommendFailedInvalidURI}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return &dto.PackageInfoLite{RecommendedLocation: dto.RecommendFailedInvalidURI}, nil
	}

	info, err := archive.Open(path)
	if err != nil {
		log.Warnf("helper: %v", err)
		return &dto.PackageInfoLite{RecommendedLocation: dto.RecommendFailedInvalidArchive}, nil
	}

	lite := &dto.PackageInfoLite{
		Package:         info.Package,
		Version:         info.Version,
		InstallLocation: info.InstallLocation,
		Size:            info.Size,
	}
	for _, v := range info.Verifiers {
		lite.Verifiers = append(lite.Verifiers, dto.VerifierInfo{Package: v.Package, PublicKey: v.PublicKey})
	}

	lite.RecommendedLocation, err = s.recommendLocation(info.InstallLocation, path, req.Flags, req.Threshold)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return lite, nil
}

// recommendLocation applies the placement policy: explicit flags win, then
// the manifest's preference, falling back to whichever placement has room.
func (s *Service) recommendLocation(installLocation, path string, flags dto.InstallFlags, threshold int64) (dto.RecommendedLocation, error) {
	if flags.Has(dto.FlagInternal) && flags.Has(dto.FlagExternal) {
		return dto.RecommendFailedInvalidLocation, nil
	}

	var (
		preferExternal bool
		checkBoth      bool
	)
	switch {
	case flags.Has(dto.FlagInternal):
	case flags.Has(dto.FlagExternal):
		preferExternal = true
	case installLocation == archive.LocationInternalOnly:
	case installLocation == archive.LocationPreferExternal:
		preferExternal = true
		checkBoth = true
	default:
		checkBoth = true
	}

	forwardLocked := flags.Has(dto.FlagForwardLock)
	var fitsInternal, fitsExternal bool
	var err error
	if checkBoth || !preferExternal {
		if fitsInternal, err = s.fitsInternal(path, forwardLocked, threshold); err != nil {
			return 0, err
		}
	}
	mediaAvailable := s.externalAvailable()
	if mediaAvailable && (checkBoth || preferExternal) {
		if fitsExternal, err = s.fitsExternal(path); err != nil {
			return 0, err
		}
	}

	if !preferExternal && fitsInternal {
		return dto.RecommendInstallInternal, nil
	}
	if preferExternal && fitsExternal {
		return dto.RecommendInstallExternal, nil
	}
	if checkBoth {
		if fitsInternal {
			return dto.RecommendInstallInternal, nil
		}
		if fitsExternal {
			return dto.RecommendInstallExternal, nil
		}
	}
	if preferExternal && !mediaAvailable {
		return dto.RecommendMediaUnavailable, nil
	}
	return dto.RecommendFailedInsufficientStorage, nil
}

func (s *Service) fitsInternal(path string, forwardLocked bool, threshold int64) (bool, error) {
	size := fsutil.FileSize(path)
	if forwardLocked {
		// code stays private; a public copy of the resources goes next to it
		size *= 2
	}
	free, err := s.freeSpace(s.internalDir)
	if err != nil {
		return false, err
	}
	return free-size > threshold, nil
}

func (s *Service) fitsExternal(path string) (bool, error) {
	need := int64(containerSizeMB(fsutil.FileSize(path), true)) << 20
	free, err := s.freeSpace(s.containerRoot)
	if err != nil {
		return false, err
	}
	return free > need, nil
}

// containerSizeMB sizes a container for an archive: the archive, a public
// copy when forward-locked, plus one MB of filesystem slack.
func containerSizeMB(size int64, forwardLocked bool) int {
	if forwardLocked {
		size *= 2
	}
	mb := (size + (1<<20 - 1)) >> 20
	return int(mb) + 1
}

func resolveURI(uri string) (string, error) {
	path := strings.TrimPrefix(uri, "file://")
	if path == "" || !filepath.IsAbs(path) {
		return "", errors.Errorf("unsupported uri %q", uri)
	}
	return filepath.Clean(path), nil
}

func copyFailure(err error) dto.Status {
	if errors.Is(err, syscall.ENOSPC) {
		return dto.FailedInsufficientStorage
	}
	return dto.FailedContainerError
}

// Server serves a Service over gRPC.
type Server struct {
	addr       string
	service    *Service
	GRPCServer *grpc.Server
	listener   net.Listener
}

// NewServer creates a gRPC server for service listening on addr
// (host:port or unix:///path).
func NewServer(addr string, service *Service) *Server {
	return &Server{addr: addr, service: service}
}

// Run starts the non-blocking gRPC server.
func (s *Server) Run(interceptors ...grpc.UnaryServerInterceptor) error {
	interceptors = append([]grpc.UnaryServerInterceptor{LoggingInterceptor}, interceptors...)
	s.GRPCServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.ForceServerCodec(codec{}),
	)
	RegisterStorageHelperServer(s.GRPCServer, s.service)

	network, address := "tcp", s.addr
	if strings.HasPrefix(s.addr, "unix://") {
		network, address = "unix", strings.TrimPrefix(s.addr, "unix://")
		_ = os.Remove(address)
	}
	l, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = l
	log.Infof("storage helper listening on %s://%s", network, address)

	go s.GRPCServer.Serve(l)
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server.
func (s *Server) Stop() {
	log.Info("stopping storage helper")
	if s.GRPCServer != nil {
		s.GRPCServer.GracefulStop()
	}
	log.Info("storage helper stopped")
}

// LoggingInterceptor logs each helper call with its duration and outcome.
func LoggingInterceptor(ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := log.WithFields(log.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("helper call failed")
	} else {
		entry.Debug("helper call")
	}
	return resp, err
}
