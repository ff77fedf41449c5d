package fs

import (
	"strings"

	"chfs/internal/hierkey"
	"chfs/internal/logging"
	"chfs/internal/store"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// DatasetFile is the synthetic file holding a document's dataset.
const DatasetFile = "dataset.json"

// NodeKind is what a path addresses.
type NodeKind int

const (
	// NodeVirtualDir is a grouping level of the view (or the root).
	NodeVirtualDir NodeKind = iota
	// NodeDocument is a stored document, shown as a directory.
	NodeDocument
	// NodeAttachment is a file below a document: dataset.json or a
	// stored attachment.
	NodeAttachment
)

func (k NodeKind) String() string {
	switch k {
	case NodeVirtualDir:
		return "virtual-directory"
	case NodeDocument:
		return "document-directory"
	case NodeAttachment:
		return "attachment-file"
	}
	return "unknown"
}

// Characters escaped inside a segment member. '%' comes first so that
// escaping is reversible.
var escaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	",", "%2C",
	"[", "%5B",
	"]", "%5D",
)

func escapeMember(s string) string {
	return escaper.Replace(s)
}

// unescapeMember expands well-formed %XX sequences and keeps anything
// else literally.
func unescapeMember(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// splitPath returns the non-empty segments of path.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// parseSegment decodes one path segment. A segment opening with '[' is
// a group; its closing ']' is optional.
func parseSegment(seg string) hierkey.Level {
	if !strings.HasPrefix(seg, "[") {
		return hierkey.Leaf(unescapeMember(seg))
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(seg, "["), "]")
	if inner == "" {
		return hierkey.Group{}
	}
	members := strings.Split(inner, ",")
	for i, m := range members {
		members[i] = unescapeMember(m)
	}
	return hierkey.Group(members)
}

// SegmentName renders one key level as a directory entry name. The Max
// sentinel has no rendering.
func SegmentName(level hierkey.Level) string {
	switch v := level.(type) {
	case hierkey.Leaf:
		return escapeMember(string(v))
	case hierkey.Group:
		members := make([]string, len(v))
		for i, m := range v {
			members[i] = escapeMember(m)
		}
		return "[" + strings.Join(members, ",") + "]"
	case hierkey.Max:
		return ""
	}
	return ""
}

// PathToKey decodes a filesystem path into a key. It never fails:
// malformed segments are parsed best-effort.
func PathToKey(path string) hierkey.Key {
	segments := splitPath(path)
	key := make(hierkey.Key, len(segments))
	for i, seg := range segments {
		key[i] = parseSegment(seg)
	}
	pathLogger.Trace("Decoded path %q -> %v", path, key)
	return key
}

// KeyToPath renders a key as a filesystem path. The empty key is "/".
func KeyToPath(key hierkey.Key) string {
	var b strings.Builder
	for _, level := range key {
		if _, ok := level.(hierkey.Max); ok {
			continue
		}
		b.WriteByte('/')
		b.WriteString(SegmentName(level))
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// PathToViewQuery builds the grouped query listing the children of a
// virtual directory. The group level is the path depth plus one; below
// the root the range covers every key starting with the path's key.
func PathToViewQuery(path string, stale store.Stale) store.ViewQuery {
	key := PathToKey(path)
	q := store.ViewQuery{
		GroupLevel: len(key) + 1,
		Reduce:     true,
		Stale:      stale,
	}
	if len(key) > 0 {
		q.StartKey = key
		q.EndKey = key.Append(hierkey.Max{})
	}
	return q
}

// classifyKey: a document key ends in one leaf after only groups, an
// attachment key ends in two leaves after only groups.
func classifyKey(key hierkey.Key) NodeKind {
	leaves := 0
	for i := len(key) - 1; i >= 0; i-- {
		if _, ok := key[i].(hierkey.Leaf); !ok {
			break
		}
		leaves++
	}
	for _, level := range key[:len(key)-leaves] {
		if _, ok := level.(hierkey.Group); !ok {
			return NodeVirtualDir
		}
	}
	switch leaves {
	case 1:
		return NodeDocument
	case 2:
		return NodeAttachment
	}
	return NodeVirtualDir
}

// Classify reports what path addresses. Exactly one kind applies to
// every path.
func Classify(path string) NodeKind {
	return classifyKey(PathToKey(path))
}

// IsDocumentPath reports whether path addresses a stored document.
func IsDocumentPath(path string) bool {
	return Classify(path) == NodeDocument
}

// IsAttachmentPath reports whether path addresses a file below a document.
func IsAttachmentPath(path string) bool {
	return Classify(path) == NodeAttachment
}

// DocumentID returns the id of the document path addresses or lies
// below, or "" for virtual directories.
func DocumentID(path string) string {
	key := PathToKey(path)
	switch classifyKey(key) {
	case NodeDocument:
		return string(key[len(key)-1].(hierkey.Leaf))
	case NodeAttachment:
		return string(key[len(key)-2].(hierkey.Leaf))
	}
	return ""
}

// AttachmentName returns the file name of an attachment path, or "".
func AttachmentName(path string) string {
	key := PathToKey(path)
	if classifyKey(key) != NodeAttachment {
		return ""
	}
	return string(key[len(key)-1].(hierkey.Leaf))
}

// joinPath appends a child entry name to a directory path.
func joinPath(dir, name string) string {
	if dir == "" || dir == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}
