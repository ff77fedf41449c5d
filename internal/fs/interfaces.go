// internal/fs/interfaces.go

package fs

import (
	"bazil.org/fuse/fs"
)

// Directory represents a directory in the virtual filesystem
type Directory interface {
	fs.Node
	fs.NodeStringLookuper
	fs.HandleReadDirAller
}

// FileInterface represents a file in the virtual filesystem. Files are
// their own handles.
type FileInterface interface {
	fs.Node
	fs.NodeOpener
	fs.HandleReader
}

var (
	_ fs.FS          = (*ChFS)(nil)
	_ fs.FSStatfser  = (*ChFS)(nil)
	_ fs.FSDestroyer = (*ChFS)(nil)
	_ Directory      = (*Dir)(nil)
	_ FileInterface  = (*File)(nil)
)
