package fs

import (
	"context"

	"chfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory in the virtual filesystem: the root, a
// grouping level of the view, or a document.
type Dir struct {
	fs   *ChFS
	path string
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path)
	attr, err := d.fs.adapter.Getattr(ctx, d.path)
	if err != nil {
		return ToFuseError(err)
	}
	d.fs.fillAttr(a, attr)
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	childPath := joinPath(d.path, name)
	dirLogger.Debug("Looking up %q in directory %q", name, d.path)

	attr, err := d.fs.adapter.Getattr(ctx, childPath)
	if err != nil {
		dirLogger.Debug("Path not found: %q", childPath)
		return nil, ToFuseError(err)
	}
	if attr.Mode.IsDir() {
		return &Dir{fs: d.fs, path: childPath}, nil
	}
	return &File{fs: d.fs, path: childPath}, nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path)
	names, err := d.fs.adapter.Readdir(ctx, d.path)
	if err != nil {
		dirLogger.Debug("Listing %q failed: %v", d.path, err)
		return nil, ToFuseError(err)
	}

	entries := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		entryType := fuse.DT_Dir
		if IsAttachmentPath(joinPath(d.path, name)) {
			entryType = fuse.DT_File
		}
		entries = append(entries, fuse.Dirent{Name: name, Type: entryType})
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path, len(entries))
	return entries, nil
}

func (vfs *ChFS) fillAttr(a *fuse.Attr, attr Attr) {
	a.Mode = attr.Mode
	a.Size = attr.Size
	a.Uid = vfs.uid
	a.Gid = vfs.gid
	a.BlockSize = 4096
	a.Blocks = (attr.Size + 511) / 512
}
