// Package hierkey models the hierarchical keys emitted by the Chronicle
// views: an ordered sequence of levels, each a plain string (a document
// identifier) or a tuple of strings (grouping values such as
// institution and patient id).
package hierkey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Level is one component of a Key. It is implemented by Leaf, Group and
// Max only.
type Level interface {
	isLevel()
	String() string
}

// Leaf is a plain string level.
type Leaf string

// Group is a tuple level.
type Group []string

// Max is the high sentinel used to close a view range. It sorts after
// every string and tuple and never appears in stored keys.
type Max struct{}

func (Leaf) isLevel()  {}
func (Group) isLevel() {}
func (Max) isLevel()   {}

func (l Leaf) String() string  { return string(l) }
func (g Group) String() string { return strings.Join(g, ",") }
func (Max) String() string     { return "{}" }

// Key is an ordered list of levels addressing one node of the tree.
type Key []Level

// Append returns a copy of k with the given levels added.
func (k Key) Append(levels ...Level) Key {
	out := make(Key, 0, len(k)+len(levels))
	out = append(out, k...)
	return append(out, levels...)
}

// Truncate returns the first n levels of k, or k itself when it is
// already that short.
func (k Key) Truncate(n int) Key {
	if n < 0 || n >= len(k) {
		return k
	}
	return k[:n]
}

// HasPrefix reports whether the first len(prefix) levels of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if CompareLevels(k[i], prefix[i]) != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both keys hold the same levels.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, level := range k {
		switch v := level.(type) {
		case Leaf:
			parts[i] = string(v)
		case Group:
			parts[i] = "[" + v.String() + "]"
		case Max:
			parts[i] = v.String()
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalJSON encodes leaves as strings, groups as arrays and Max as {}.
func (k Key) MarshalJSON() ([]byte, error) {
	values := make([]interface{}, len(k))
	for i, level := range k {
		switch v := level.(type) {
		case Leaf:
			values[i] = string(v)
		case Group:
			members := []string(v)
			if members == nil {
				members = []string{}
			}
			values[i] = members
		case Max:
			values[i] = struct{}{}
		default:
			return nil, fmt.Errorf("hierkey: unknown level type %T", level)
		}
	}
	return json.Marshal(values)
}

// UnmarshalJSON decodes a JSON array into a Key. A scalar JSON value is
// accepted as a single-level key.
func (k *Key) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("hierkey: decode key: %w", err)
	}
	key, err := FromValue(raw)
	if err != nil {
		return err
	}
	*k = key
	return nil
}

// FromValue converts a generically decoded JSON or YAML value into a
// Key. Arrays become keys level by level; anything else becomes a
// one-level key.
func FromValue(v interface{}) (Key, error) {
	switch t := v.(type) {
	case nil:
		return Key{}, nil
	case []interface{}:
		key := make(Key, 0, len(t))
		for _, item := range t {
			level, err := LevelFromValue(item)
			if err != nil {
				return nil, err
			}
			key = append(key, level)
		}
		return key, nil
	case []string:
		key := make(Key, len(t))
		for i, s := range t {
			key[i] = Leaf(s)
		}
		return key, nil
	default:
		level, err := LevelFromValue(v)
		if err != nil {
			return nil, err
		}
		return Key{level}, nil
	}
}

// LevelFromValue converts one generically decoded value into a Level.
// Strings are leaves, arrays are groups whose non-string members are
// rendered as JSON text, objects are the Max sentinel and any other
// scalar is a leaf holding its JSON text.
func LevelFromValue(v interface{}) (Level, error) {
	switch t := v.(type) {
	case string:
		return Leaf(t), nil
	case []string:
		return Group(append([]string{}, t...)), nil
	case []interface{}:
		members := make([]string, len(t))
		for i, item := range t {
			s, err := scalarText(item)
			if err != nil {
				return nil, err
			}
			members[i] = s
		}
		return Group(members), nil
	case map[string]interface{}, map[interface{}]interface{}:
		return Max{}, nil
	default:
		s, err := scalarText(v)
		if err != nil {
			return nil, err
		}
		return Leaf(s), nil
	}
}

func scalarText(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case nil:
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hierkey: cannot render %T: %w", v, err)
	}
	return string(b), nil
}
