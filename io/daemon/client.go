package daemon

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrRejected is returned when the daemon answered with a non-zero status.
var ErrRejected = errors.New("daemon rejected command")

// ErrInvalidArgument is returned for arguments that cannot be framed.
var ErrInvalidArgument = errors.New("invalid daemon command argument")

// nullArg stands for an absent optional argument on the wire.
const nullArg = "!"

type executor interface {
	Execute(ctx context.Context, cmd string) (Reply, error)
}

// Sizes is the storage footprint reported by getsize.
type Sizes struct {
	Code  int64
	Data  int64
	Cache int64
}

// Client is the typed command set of the storage daemon.
type Client struct {
	conn executor
}

// NewClient wraps a connector.
func NewClient(conn executor) *Client {
	return &Client{conn: conn}
}

func (c *Client) execute(ctx context.Context, verb string, args ...string) (Reply, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, verb)
	for _, a := range args {
		if a == "" {
			a = nullArg
		}
		if strings.ContainsAny(a, " \t") {
			return failedReply, errors.Wrapf(ErrInvalidArgument, "%s: %q", verb, a)
		}
		parts = append(parts, a)
	}

	reply, err := c.conn.Execute(ctx, strings.Join(parts, " "))
	if err != nil {
		return reply, errors.Wrapf(err, "daemon %s", verb)
	}
	if reply.Status != 0 {
		return reply, errors.Wrapf(ErrRejected, "%s returned %d", verb, reply.Status)
	}
	return reply, nil
}

// Ping checks the daemon is alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.execute(ctx, "ping")
	return err
}

// Install creates the data directory of pkg owned by uid:gid.
func (c *Client) Install(ctx context.Context, pkg string, uid, gid int) error {
	_, err := c.execute(ctx, "install", pkg, strconv.Itoa(uid), strconv.Itoa(gid))
	return err
}

// Remove deletes the data directory of pkg.
func (c *Client) Remove(ctx context.Context, pkg string) error {
	_, err := c.execute(ctx, "remove", pkg)
	return err
}

// Rename moves the data directory of oldPkg to newPkg.
func (c *Client) Rename(ctx context.Context, oldPkg, newPkg string) error {
	_, err := c.execute(ctx, "rename", oldPkg, newPkg)
	return err
}

// Dexopt produces the optimized-code artifact for the package at path.
func (c *Client) Dexopt(ctx context.Context, path string, uid int, public bool) error {
	_, err := c.execute(ctx, "dexopt", path, strconv.Itoa(uid), boolArg(public))
	return err
}

// MoveDex renames the optimized-code artifact of src to dst.
func (c *Client) MoveDex(ctx context.Context, src, dst string) error {
	_, err := c.execute(ctx, "movedex", src, dst)
	return err
}

// RmDex removes the optimized-code artifact for the package at path.
func (c *Client) RmDex(ctx context.Context, path string) error {
	_, err := c.execute(ctx, "rmdex", path)
	return err
}

// FreeCache evicts cache files until at least size bytes are free.
func (c *Client) FreeCache(ctx context.Context, size int64) error {
	_, err := c.execute(ctx, "freecache", strconv.FormatInt(size, 10))
	return err
}

// GetSize measures a package's code, data and cache.
func (c *Client) GetSize(ctx context.Context, pkg, codePath, fwdLockResPath string) (Sizes, error) {
	reply, err := c.execute(ctx, "getsize", pkg, codePath, fwdLockResPath)
	if err != nil {
		return Sizes{}, err
	}
	if len(reply.Fields) != 3 {
		return Sizes{}, errors.Wrapf(ErrProtocol, "getsize returned %d fields", len(reply.Fields))
	}

	var sizes [3]int64
	for i, f := range reply.Fields {
		sizes[i], err = strconv.ParseInt(f, 10, 64)
		if err != nil {
			return Sizes{}, errors.Wrapf(ErrProtocol, "getsize field %q", f)
		}
	}
	return Sizes{Code: sizes[0], Data: sizes[1], Cache: sizes[2]}, nil
}

// FixUID changes ownership of the data directory of pkg.
func (c *Client) FixUID(ctx context.Context, pkg string, uid, gid int) error {
	_, err := c.execute(ctx, "fixuid", pkg, strconv.Itoa(uid), strconv.Itoa(gid))
	return err
}

// LinkLib points the native library directory of pkg at dir.
func (c *Client) LinkLib(ctx context.Context, pkg, dir string) error {
	_, err := c.execute(ctx, "linklib", pkg, dir)
	return err
}

// UnlinkLib restores a private native library directory for pkg.
func (c *Client) UnlinkLib(ctx context.Context, pkg string) error {
	_, err := c.execute(ctx, "unlinklib", pkg)
	return err
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
