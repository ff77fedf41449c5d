package fs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"chfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// MountOptions are the launcher-level mount switches.
type MountOptions struct {
	AllowOther bool
	Debug      bool
}

// ChFS is the FUSE filesystem. Each node carries its path and forwards
// the call to the adapter.
type ChFS struct {
	adapter *Adapter
	uid     uint32 // User ID reported for every node
	gid     uint32 // Group ID reported for every node

	mu   sync.Mutex
	conn *fuse.Conn
}

// NewChFS creates the filesystem around an adapter.
func NewChFS(adapter *Adapter) *ChFS {
	uid, gid := ownerFromEnv()
	vfsLogger.Debug("Creating filesystem (uid=%d, gid=%d)", uid, gid)
	return &ChFS{
		adapter: adapter,
		uid:     uid,
		gid:     gid,
	}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (vfs *ChFS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return &Dir{fs: vfs, path: "/"}, nil
}

// Statfs implements fusefs.FSStatfser with the adapter's fixed values.
func (vfs *ChFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	s := vfs.adapter.Statfs()
	resp.Bsize = s.BlockSize
	resp.Frsize = s.FragSize
	resp.Blocks = s.Blocks
	resp.Bfree = s.BlocksFree
	resp.Bavail = s.BlocksAvail
	resp.Files = s.Files
	resp.Ffree = s.FilesFree
	resp.Namelen = s.NameMax
	return nil
}

// Destroy implements fusefs.FSDestroyer. Linux only sends it for fuseblk
// mounts, so Unmount also announces shutdown.
func (vfs *ChFS) Destroy() {
	vfsLogger.Debug("Destroy received")
	vfs.adapter.OnUnmount()
}

// Mount mounts the filesystem at mountPoint and serves it until the
// kernel connection closes. The returned channel receives the serve
// error (nil on clean unmount) and is then closed.
func (vfs *ChFS) Mount(mountPoint string, opts MountOptions) (<-chan error, error) {
	vfsLogger.Info("Mounting filesystem")
	vfsLogger.Debug("Mount point: %s", mountPoint)

	info, err := os.Stat(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("mount point not usable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mount point %s is not a directory", mountPoint)
	}

	if opts.Debug {
		fuse.Debug = func(msg interface{}) {
			vfsLogger.Debug("fuse: %v", msg)
		}
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("chfs"),
		fuse.Subtype("chfs"),
		fuse.ReadOnly(),
		fuse.AsyncRead(),
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	vfsLogger.Debug("Mounting with options: %+v", mountOpts)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return nil, fmt.Errorf("mount failed: %w", err)
	}
	vfs.mu.Lock()
	vfs.conn = c
	vfs.mu.Unlock()

	vfs.adapter.OnMount(mountPoint)

	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := fusefs.Serve(c, vfs)
		if err != nil {
			vfsLogger.Error("FUSE server error: %v", err)
		}
		c.Close()
		vfs.adapter.OnUnmount()
		done <- err
	}()
	return done, nil
}

// Unmount cleanly unmounts the filesystem.
func (vfs *ChFS) Unmount(mountPoint string) error {
	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	vfs.mu.Lock()
	mounted := vfs.conn != nil
	vfs.mu.Unlock()
	if !mounted {
		return nil
	}

	if err := fuse.Unmount(mountPoint); err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	vfsLogger.Info("Unmount completed successfully")
	return nil
}
