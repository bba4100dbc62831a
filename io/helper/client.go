package helper

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/installd/core/dto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to the storage-helper service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the helper at addr (host:port or unix:///path).
// The connection is established lazily; Ping forces it.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	connParams := grpc.ConnectParams{
		Backoff: backoff.Config{
			BaseDelay:  100 * time.Millisecond,
			Multiplier: backoff.DefaultConfig.Multiplier,
			Jitter:     backoff.DefaultConfig.Jitter,
			MaxDelay:   10 * time.Second,
		},
		MinConnectTimeout: 200 * time.Millisecond,
	}

	opts = append([]grpc.DialOption{
		grpc.WithConnectParams(connParams),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect")
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return errors.Wrapf(err, "helper %s", method)
	}
	return nil
}

// Ping checks the helper is reachable. Used as the bind step.
func (c *Client) Ping(ctx context.Context) error {
	return c.invoke(ctx, "Ping", &emptypb.Empty{}, &emptypb.Empty{})
}

// CheckInternalFreeSpace reports whether the archive fits internally,
// leaving threshold bytes free.
func (c *Client) CheckInternalFreeSpace(ctx context.Context, uri string, forwardLocked bool, threshold int64) (bool, error) {
	var resp FreeSpaceResponse
	err := c.invoke(ctx, "CheckInternalFreeSpace", &FreeSpaceRequest{URI: uri, ForwardLocked: forwardLocked, Threshold: threshold}, &resp)
	return resp.Fits, err
}

// CheckExternalFreeSpace reports whether the archive fits in a new container.
func (c *Client) CheckExternalFreeSpace(ctx context.Context, uri string, forwardLocked bool) (bool, error) {
	var resp FreeSpaceResponse
	err := c.invoke(ctx, "CheckExternalFreeSpace", &FreeSpaceRequest{URI: uri, ForwardLocked: forwardLocked}, &resp)
	return resp.Fits, err
}

// CopyResource copies the archive at uri to dest with mode.
func (c *Client) CopyResource(ctx context.Context, uri, dest string, mode os.FileMode) (dto.Status, error) {
	var resp CopyResponse
	if err := c.invoke(ctx, "CopyResource", &CopyRequest{URI: uri, Dest: dest, Mode: uint32(mode)}, &resp); err != nil {
		return dto.FailedInternalError, err
	}
	return resp.Status, nil
}

// CopyPublicResources writes the code-free part of the archive to dest.
func (c *Client) CopyPublicResources(ctx context.Context, uri, dest string) (dto.Status, error) {
	var resp CopyResponse
	if err := c.invoke(ctx, "CopyPublicResources", &CopyRequest{URI: uri, Dest: dest}, &resp); err != nil {
		return dto.FailedInternalError, err
	}
	return resp.Status, nil
}

// CopyResourceToContainer creates and fills a container, returning its path.
func (c *Client) CopyResourceToContainer(ctx context.Context, req dto.ContainerCopyRequest) (string, error) {
	var resp ContainerCopyResponse
	if err := c.invoke(ctx, "CopyResourceToContainer", &req, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

// CalculateDirectorySize returns the bytes stored under path.
func (c *Client) CalculateDirectorySize(ctx context.Context, path string) (int64, error) {
	out := &wrapperspb.Int64Value{}
	if err := c.invoke(ctx, "CalculateDirectorySize", wrapperspb.String(path), out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// GetMinimalPackageInfo inspects the archive at path and recommends a placement.
func (c *Client) GetMinimalPackageInfo(ctx context.Context, path string, flags dto.InstallFlags, threshold int64) (*dto.PackageInfoLite, error) {
	var info dto.PackageInfoLite
	if err := c.invoke(ctx, "GetMinimalPackageInfo", &MinimalInfoRequest{Path: path, Flags: flags, Threshold: threshold}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
