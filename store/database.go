package store

import (
	"context"
	"fmt"

	"github.com/jacentio/pathstore/internal/nested"
)

// IDField is the mandatory document key holding the document id.
const IDField = "_id"

// Document is a decoded document: nested maps, []any lists and scalars.
type Document = map[string]any

// Database is a connection to a logical database of a document store.
type Database interface {
	// Collection returns a handle for the named collection. It does not
	// perform I/O; collections come into existence on first insert.
	Collection(name string) Collection

	// Ping runs a lightweight liveness command and reports whether the store
	// acknowledged it.
	Ping(ctx context.Context) (bool, error)
}

// Collection is the set of single-document primitives the Store needs.
// All ids are string, int64 or *big.Int as produced by pathcodec.ParseID.
type Collection interface {
	// FindOne returns the document with the given id, or nil, nil if it does
	// not exist. A non-empty field limits the result to that field path (the
	// id may or may not be included); an existing document always yields a
	// non-nil, possibly empty, map.
	FindOne(ctx context.Context, id any, field string) (Document, error)

	// InsertOne stores a new document. doc always carries IDField.
	InsertOne(ctx context.Context, doc Document) error

	// UpdateOne applies u to the document with the given id.
	UpdateOne(ctx context.Context, id any, u Update) error

	// DeleteOne removes the document with the given id. Missing ids are not an error.
	DeleteOne(ctx context.Context, id any) error

	// Drop removes the collection and every document in it.
	Drop(ctx context.Context) error
}

// UpdateOp identifies a single-document update operator.
type UpdateOp int

const (
	// OpSet sets Field to Value, creating intermediate maps.
	OpSet UpdateOp = iota + 1

	// OpReplace replaces the whole document body with Value (a map), keeping the id.
	OpReplace

	// OpPush appends Value to the list at Field, creating the list when missing.
	OpPush

	// OpPull removes every element equal to Value from the list at Field.
	OpPull

	// OpUnset removes Field.
	OpUnset
)

func (op UpdateOp) String() string {
	switch op {
	case OpSet:
		return "set"
	case OpReplace:
		return "replace"
	case OpPush:
		return "push"
	case OpPull:
		return "pull"
	case OpUnset:
		return "unset"
	default:
		return fmt.Sprintf("UpdateOp(%d)", int(op))
	}
}

// Update describes a single-document update.
type Update struct {
	Op    UpdateOp
	Field string
	Value any
}

// ApplyUpdate applies u to doc in place. Backends without native update
// operators use it for read-modify-write.
func ApplyUpdate(doc Document, u Update) error {
	switch u.Op {
	case OpSet:
		return nested.Set(doc, u.Field, nested.Normalize(u.Value))
	case OpReplace:
		body, ok := nested.AsMap(u.Value)
		if !ok {
			return fmt.Errorf("%w: replacement must be a map, got %T", ErrInvalidArgument, u.Value)
		}
		body = nested.Copy(body)
		id := doc[IDField]
		for k := range doc {
			delete(doc, k)
		}
		for k, v := range body {
			if k != IDField {
				doc[k] = v
			}
		}
		doc[IDField] = id
		return nil
	case OpPush:
		return nested.Push(doc, u.Field, u.Value)
	case OpPull:
		return nested.Pull(doc, u.Field, u.Value)
	case OpUnset:
		nested.Unset(doc, u.Field)
		return nil
	default:
		return fmt.Errorf("%w: unknown update operator %s", ErrInvalidArgument, u.Op)
	}
}
