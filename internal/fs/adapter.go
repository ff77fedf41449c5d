package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"chfs/internal/config"
	"chfs/internal/hierkey"
	"chfs/internal/logging"
	"chfs/internal/store"
)

var (
	adapterLogger = logging.GetLogger().WithPrefix("adapter")
)

// Attr is the attribute set the adapter reports for a path.
type Attr struct {
	Mode os.FileMode
	Size uint64
}

// Statfs is the capacity descriptor reported by statfs.
type Statfs struct {
	BlockSize   uint32
	FragSize    uint32
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
	Files       uint64
	FilesFree   uint64
	NameMax     uint32
}

// Options configures an Adapter.
type Options struct {
	View       string
	Stale      store.Stale
	Attributes config.AttributesConfig
	Statfs     config.StatfsConfig
}

// OptionsFromConfig extracts adapter options from the configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		View:       cfg.Store.View,
		Stale:      cfg.Store.Stale,
		Attributes: cfg.Attributes,
		Statfs:     cfg.Statfs,
	}
}

// Adapter answers filesystem calls by path. It keeps no state between
// calls; every answer comes from the store.
type Adapter struct {
	store       store.Store
	opts        Options
	mountPoint  string
	unmountOnce sync.Once
}

// NewAdapter returns an adapter reading from st.
func NewAdapter(st store.Store, opts Options) *Adapter {
	return &Adapter{store: st, opts: opts}
}

// Getattr reports the attributes of path. Attachment sizes come from the
// owning document. Document directories exist only when the document
// does; virtual directories are reported without consulting the store.
func (a *Adapter) Getattr(ctx context.Context, path string) (Attr, error) {
	adapterLogger.Trace("getattr %q", path)
	dirAttr := Attr{
		Mode: os.ModeDir | os.FileMode(a.opts.Attributes.DirectoryMode),
		Size: a.opts.Attributes.DirectorySize,
	}
	switch Classify(path) {
	case NodeVirtualDir:
		return dirAttr, nil
	case NodeDocument:
		if _, err := a.document(ctx, OpGetattr, path); err != nil {
			return Attr{}, err
		}
		return dirAttr, nil
	}

	doc, err := a.document(ctx, OpGetattr, path)
	if err != nil {
		return Attr{}, err
	}
	size, err := attachmentSize(doc, AttachmentName(path))
	if err != nil {
		return Attr{}, newError(OpGetattr, path, err)
	}
	return Attr{Mode: os.FileMode(a.opts.Attributes.FileMode), Size: size}, nil
}

// Readdir lists the entry names of path. Documents list dataset.json
// (when they have a dataset) followed by their attachments; virtual
// directories list the next level of the view.
func (a *Adapter) Readdir(ctx context.Context, path string) ([]string, error) {
	adapterLogger.Debug("readdir %q", path)
	switch Classify(path) {
	case NodeDocument:
		doc, err := a.document(ctx, OpReadDir, path)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(doc.Attachments)+1)
		if doc.HasDataset() {
			names = append(names, DatasetFile)
		}
		for _, att := range doc.Attachments {
			names = append(names, SegmentName(hierkey.Leaf(att.Name)))
		}
		return names, nil
	}

	q := PathToViewQuery(path, a.opts.Stale)
	rows, err := a.store.QueryView(ctx, a.opts.View, q)
	if err != nil {
		adapterLogger.Debug("View query for %q failed: %v", path, err)
		return nil, newError(OpReadDir, path, ErrNotFound)
	}

	prefix := len(q.StartKey)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row.Key) <= prefix {
			continue
		}
		names = append(names, SegmentName(row.Key[prefix]))
	}
	adapterLogger.Trace("readdir %q: %d entries", path, len(names))
	return names, nil
}

// Open checks that path can be opened for reading. The filesystem is
// stateless, so no handle is allocated.
func (a *Adapter) Open(_ context.Context, path string, flags int) error {
	adapterLogger.Debug("open %q flags=%#x", path, flags)
	if !IsAttachmentPath(path) {
		return newError(OpOpen, path, ErrNotFound)
	}
	if flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		adapterLogger.Warn("Attempted write access to read-only file: %q", path)
		return newError(OpOpen, path, ErrNotPermitted)
	}
	return nil
}

// Read copies the window [offset, offset+len(buf)) of the file at path
// into buf and returns the number of bytes copied. Reading at or past
// the end returns 0 and no error.
func (a *Adapter) Read(ctx context.Context, path string, offset int64, buf []byte) (int, error) {
	adapterLogger.Trace("read %q offset=%d len=%d", path, offset, len(buf))
	if !IsAttachmentPath(path) {
		return 0, newError(OpRead, path, ErrNotPermitted)
	}
	if offset < 0 {
		offset = 0
	}

	name := AttachmentName(path)
	if name == DatasetFile {
		doc, err := a.document(ctx, OpRead, path)
		if err != nil {
			return 0, err
		}
		if !doc.HasDataset() {
			return 0, newError(OpRead, path, ErrNotFound)
		}
		data, err := datasetBytes(doc)
		if err != nil {
			adapterLogger.Debug("Dataset of %q does not serialize: %v", doc.ID, err)
			return 0, newError(OpRead, path, ErrNotFound)
		}
		if offset >= int64(len(data)) {
			return 0, nil
		}
		return copy(buf, data[offset:]), nil
	}

	body, err := a.store.GetAttachment(ctx, DocumentID(path), name)
	if err != nil {
		adapterLogger.Debug("Attachment fetch for %q failed: %v", path, err)
		return 0, newError(OpRead, path, ErrNotFound)
	}
	defer body.Close()

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, body, offset); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			adapterLogger.Debug("Skipping to offset %d of %q failed: %v", offset, path, err)
			return 0, newError(OpRead, path, ErrNotFound)
		}
	}
	n, err := io.ReadFull(body, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		adapterLogger.Debug("Reading %q failed: %v", path, err)
		return 0, newError(OpRead, path, ErrNotFound)
	}
	return n, nil
}

// OnMount announces that the filesystem is serving.
func (a *Adapter) OnMount(mountPoint string) {
	a.mountPoint = mountPoint
	adapterLogger.Info("File system started at %s", mountPoint)
	adapterLogger.Info("To stop it, type this in another shell: fusermount -u %s", mountPoint)
}

// OnUnmount announces shutdown. Only the first call logs.
func (a *Adapter) OnUnmount() {
	a.unmountOnce.Do(func() {
		adapterLogger.Info("File system stopped at %s", a.mountPoint)
	})
}

// Statfs returns the configured placeholder capacity.
func (a *Adapter) Statfs() Statfs {
	s := a.opts.Statfs
	return Statfs{
		BlockSize:   s.BlockSize,
		FragSize:    s.FragSize,
		Blocks:      s.Blocks,
		BlocksFree:  s.BlocksFree,
		BlocksAvail: s.BlocksAvail,
		Files:       s.Files,
		FilesFree:   s.FilesFree,
		NameMax:     s.NameMax,
	}
}

// document fetches the document path addresses or lies below. Every
// store failure becomes ErrNotFound.
func (a *Adapter) document(ctx context.Context, op, path string) (*store.Document, error) {
	id := DocumentID(path)
	doc, err := a.store.Get(ctx, id)
	if err != nil {
		adapterLogger.Debug("Document lookup %q for %s %q failed: %v", id, op, path, err)
		return nil, newError(op, path, ErrNotFound)
	}
	return doc, nil
}

func attachmentSize(doc *store.Document, name string) (uint64, error) {
	if name == DatasetFile {
		if !doc.HasDataset() {
			return 0, ErrNotFound
		}
		data, err := datasetBytes(doc)
		if err != nil {
			return 0, ErrNotFound
		}
		return uint64(len(data)), nil
	}
	att, ok := doc.Attachment(name)
	if !ok {
		return 0, ErrNotFound
	}
	return safeInt64ToUint64(att.Length), nil
}

// datasetBytes is the content of dataset.json: the dataset indented with
// two spaces and terminated by a newline.
func datasetBytes(doc *store.Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc.Dataset, "", "  "); err != nil {
		return nil, fmt.Errorf("dataset of %q: %w", doc.ID, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
