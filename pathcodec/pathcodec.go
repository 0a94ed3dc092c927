// Package pathcodec parses dotted document paths and converts between field
// paths and nested maps.
//
// A path has the form
//
//	collection.id.field.subfield...
//
// It is split into at most three pieces: the collection name, the document id
// and the remaining field path, which keeps its dots. Only [Assemble] and
// [Lookup] split a field path on every dot.
package pathcodec

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/jacentio/pathstore/internal/nested"
)

// Separator separates path segments.
const Separator = "."

// Path addressing depths.
const (
	DepthCollection = 1
	DepthDocument   = 2
	DepthField      = 3
)

// ErrInvalidPath is returned when a path has fewer segments than an operation requires.
var ErrInvalidPath = errors.New("pathstore: invalid path")

// Path is a parsed dotted path.
type Path struct {
	// Collection is the first segment.
	Collection string

	// ID is the document id: string, int64 or *big.Int. Nil when Depth is 1.
	ID any

	// Field is everything after the id, dots preserved. Empty when Depth < 3.
	Field string

	// Depth is the number of addressed levels (1 collection, 2 document, 3 field).
	Depth int
}

// String reassembles the path.
func (p Path) String() string {
	switch p.Depth {
	case DepthCollection:
		return p.Collection
	case DepthDocument:
		return Join(p.Collection, p.ID, "")
	default:
		return Join(p.Collection, p.ID, p.Field)
	}
}

// Parse splits path into collection, id and field path. minDepth is clamped
// to [1, 3]; paths addressing fewer levels fail with ErrInvalidPath.
//
// A trailing separator after the id ("coll.id.") names an empty field and
// fails with ErrInvalidPath rather than being read as the document path
// "coll.id".
func Parse(path string, minDepth int) (Path, error) {
	if minDepth < DepthCollection {
		minDepth = DepthCollection
	}
	if minDepth > DepthField {
		minDepth = DepthField
	}
	if path == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	pieces := strings.SplitN(path, Separator, 3)
	p := Path{Collection: pieces[0], Depth: len(pieces)}
	if len(pieces) > 1 {
		p.ID = ParseID(pieces[1])
	}
	if len(pieces) > 2 {
		if pieces[2] == "" {
			return Path{}, fmt.Errorf("%w: empty field path in %q", ErrInvalidPath, path)
		}
		p.Field = pieces[2]
	}

	if p.Depth < minDepth {
		return Path{}, fmt.Errorf("%w: %q has %d segment(s), need at least %d",
			ErrInvalidPath, path, p.Depth, minDepth)
	}
	return p, nil
}

// ParseID converts an id segment to an integer when the whole segment is a
// base-10 integer literal. Values that overflow int64 are returned as *big.Int.
// Anything else is returned unchanged as a string.
func ParseID(segment string) any {
	if n, err := strconv.ParseInt(segment, 10, 64); err == nil {
		return n
	}
	if !isIntegerLiteral(segment) {
		return segment
	}
	n, ok := new(big.Int).SetString(segment, 10)
	if !ok {
		return segment
	}
	return n
}

func isIntegerLiteral(s string) bool {
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatID renders an id the way it appears in a path.
func FormatID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case *big.Int:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Join builds a path string from its parts. An empty field yields a
// document path.
func Join(collection string, id any, field string) string {
	s := collection + Separator + FormatID(id)
	if field != "" {
		s += Separator + field
	}
	return s
}

// Split splits a field path on every dot.
func Split(field string) []string {
	return strings.Split(field, Separator)
}

// Assemble wraps value in nested single-key maps following field.
// "a.b.c" with v yields {a: {b: {c: v}}}. An empty field returns value as is.
func Assemble(field string, value any) any {
	if field == "" {
		return value
	}
	keys := Split(field)
	out := value
	for i := len(keys) - 1; i >= 0; i-- {
		out = map[string]any{keys[i]: out}
	}
	return out
}

// Lookup walks doc following field and returns the value found there, or def
// when a key is missing or an intermediate value is not a map. An empty field
// returns doc itself, or def when doc is nil.
func Lookup(doc any, field string, def any) any {
	if field == "" {
		if doc == nil {
			return def
		}
		return doc
	}

	cur := doc
	for _, key := range Split(field) {
		m, ok := nested.AsMap(cur)
		if !ok {
			return def
		}
		next, ok := m[key]
		if !ok {
			return def
		}
		cur = next
	}
	return cur
}
