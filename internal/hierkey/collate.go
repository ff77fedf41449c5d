package hierkey

import "strings"

// Type ranks follow CouchDB view collation: strings sort before arrays,
// arrays before objects.
const (
	rankLeaf = iota
	rankGroup
	rankMax
)

func rank(l Level) int {
	switch l.(type) {
	case Leaf:
		return rankLeaf
	case Group:
		return rankGroup
	case Max:
		return rankMax
	}
	return rankMax
}

// CompareLevels orders two levels. Strings compare by byte value, which
// is coarser than CouchDB's ICU collation but agrees on ASCII data.
func CompareLevels(a, b Level) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Leaf:
		return strings.Compare(string(av), string(b.(Leaf)))
	case Group:
		return compareStrings(av, b.(Group))
	}
	return 0
}

// Compare orders two keys element by element; a key sorts before any
// longer key it is a prefix of.
func Compare(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareLevels(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func compareStrings(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
