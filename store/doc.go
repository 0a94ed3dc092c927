// Package store provides dotted-path access to a document database.
//
// Every operation is addressed by a path string:
//
//	collection.id.field.subfield
//
// The first segment names the collection, the second the document id (an
// integer when the segment is numeric, a string otherwise) and the rest is a
// field path inside the document. See package pathcodec for the exact rules.
//
// # Operations
//
//   - [Store.Get] reads a document or a nested field, returning a default when missing
//   - [Store.Set] writes a field or replaces a document body, creating documents on demand
//   - [Store.Push] and [Store.Pull] append to and remove from nested lists
//   - [Store.Remove] drops a collection, deletes a document or unsets a field
//   - [Store.Ping] measures a liveness round trip
//
// # Backends
//
// Store talks to a [Database], a small interface over single-document
// primitives (find, insert, update, delete, drop). Implementations live in
// the subpackages memory, mongodb, dynamodb and sqlite.
//
//	db, err := mongodb.Connect(ctx, mongodb.Config{URI: uri, Database: "app"})
//	s := store.New(db, store.DefaultConfig())
//	err = s.Set(ctx, "users.42.profile.name", "Ada")
//	name, err := s.Get(ctx, "users.42.profile.name", "")
//
// # Errors
//
//   - [ErrInvalidPath] - path too short for the operation
//   - [ErrInvalidArgument] - value cannot be applied (e.g. non-map document body)
//
// Missing documents and fields are never errors. Backend failures are
// returned wrapped and are not retried.
package store
