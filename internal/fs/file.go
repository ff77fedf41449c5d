package fs

import (
	"context"

	"chfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents dataset.json or a stored attachment. It is stateless
// and serves as its own handle.
type File struct {
	fs   *ChFS
	path string
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file: %q", f.path)
	attr, err := f.fs.adapter.Getattr(ctx, f.path)
	if err != nil {
		fileLogger.Debug("Attributes for %q unavailable: %v", f.path, err)
		return ToFuseError(err)
	}
	f.fs.fillAttr(a, attr)

	fileLogger.Trace("File attributes: mode=%v, size=%d", a.Mode, a.Size)
	return nil
}

// Open implements the NodeOpener interface.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	fileLogger.Debug("Opening file %q with flags %v", f.path, req.Flags)
	if err := f.fs.adapter.Open(ctx, f.path, int(req.Flags)); err != nil {
		return nil, ToFuseError(err)
	}

	// Sizes of stored attachments come from metadata; read through.
	resp.Flags |= fuse.OpenDirectIO
	return f, nil
}

// Read implements the HandleReader interface, reading data from the file.
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fileLogger.Trace("Reading %d bytes from file %q at offset %d", req.Size, f.path, req.Offset)

	buf := make([]byte, req.Size)
	n, err := f.fs.adapter.Read(ctx, f.path, req.Offset, buf)
	if err != nil {
		fileLogger.Debug("Read of %q failed: %v", f.path, err)
		return ToFuseError(err)
	}

	resp.Data = buf[:n]
	fileLogger.Trace("Successfully read %d bytes", n)
	return nil
}
