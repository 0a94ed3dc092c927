package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/pathcodec"
)

// Accessor is the path-addressed operation surface shared by Store and the
// read-through cache.
type Accessor interface {
	Ping(ctx context.Context) (PingResult, error)
	Get(ctx context.Context, path string, def any) (any, error)
	Set(ctx context.Context, path string, value any) error
	Push(ctx context.Context, path string, value any, opts PushOptions) (bool, error)
	Pull(ctx context.Context, path string, value any) (bool, error)
	Remove(ctx context.Context, path string) error
}

var _ Accessor = (*Store)(nil)

// PingResult reports the outcome of a liveness check.
type PingResult struct {
	// Elapsed is the wall-clock round trip, measured even when the ping failed.
	Elapsed time.Duration

	// Alive is true when the store acknowledged the ping.
	Alive bool
}

// PushOptions configures Push.
type PushOptions struct {
	// Unique suppresses the push when the list already holds an equal value.
	Unique bool
}

// Store provides dotted-path operations over a document database.
// It holds no per-call state and is safe for concurrent use if the
// underlying Database is.
type Store struct {
	db     Database
	config Config
	logger *slog.Logger
}

// New creates a new Store instance.
func New(db Database, config Config) *Store {
	config.validate()
	return &Store{
		db:     db,
		config: config,
		logger: config.Logger,
	}
}

// Database returns the underlying database handle.
func (s *Store) Database() Database {
	return s.db
}

// Ping issues a liveness command and measures its round trip. A failed
// command reports Alive=false together with the error.
func (s *Store) Ping(ctx context.Context) (PingResult, error) {
	start := time.Now()
	alive, err := s.db.Ping(ctx)
	res := PingResult{Elapsed: time.Since(start), Alive: alive && err == nil}
	if err != nil {
		s.logger.WarnContext(ctx, "ping failed", "elapsed", res.Elapsed, "error", err)
		return res, fmt.Errorf("ping: %w", err)
	}
	return res, nil
}

// Get returns the value at path, or def when the document or field is missing.
// A two-segment path returns the whole document.
func (s *Store) Get(ctx context.Context, path string, def any) (any, error) {
	p, err := pathcodec.Parse(path, pathcodec.DepthDocument)
	if err != nil {
		return nil, err
	}

	projection := p.Field
	if s.config.FetchWholeDocument {
		projection = ""
	}

	doc, err := s.db.Collection(p.Collection).FindOne(ctx, p.ID, projection)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	if doc == nil {
		s.logger.DebugContext(ctx, "get", "path", path, "found", false)
		return def, nil
	}

	s.logger.DebugContext(ctx, "get", "path", path, "found", true)
	return pathcodec.Lookup(doc, p.Field, def), nil
}

// Set stores value at path. A two-segment path replaces the document body and
// requires value to be a map. Missing documents are created.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	p, err := pathcodec.Parse(path, pathcodec.DepthDocument)
	if err != nil {
		return err
	}
	if p.Field == "" {
		if _, ok := nested.AsMap(value); !ok {
			return fmt.Errorf("%w: replacing document %q needs a map, got %T", ErrInvalidArgument, path, value)
		}
	}

	coll := s.db.Collection(p.Collection)
	existing, err := coll.FindOne(ctx, p.ID, IDField)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}

	if existing == nil {
		if err := coll.InsertOne(ctx, newDocument(p.ID, p.Field, value)); err != nil {
			return fmt.Errorf("set %q: %w", path, err)
		}
		s.logger.DebugContext(ctx, "set", "path", path, "created", true)
		return nil
	}

	u := Update{Op: OpSet, Field: p.Field, Value: value}
	if p.Field == "" {
		u = Update{Op: OpReplace, Value: value}
	}
	if err := coll.UpdateOne(ctx, p.ID, u); err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	s.logger.DebugContext(ctx, "set", "path", path, "created", false)
	return nil
}

// Push appends value to the list at path. Missing documents are created with
// a single-element list. With opts.Unique the push is skipped when the list
// already holds value. Reports whether the value was pushed.
func (s *Store) Push(ctx context.Context, path string, value any, opts PushOptions) (bool, error) {
	p, err := parseListPath(path)
	if err != nil {
		return false, err
	}

	coll := s.db.Collection(p.Collection)
	doc, err := coll.FindOne(ctx, p.ID, p.Field)
	if err != nil {
		return false, fmt.Errorf("push %q: %w", path, err)
	}

	if doc == nil {
		if err := coll.InsertOne(ctx, newDocument(p.ID, p.Field, []any{value})); err != nil {
			return false, fmt.Errorf("push %q: %w", path, err)
		}
		s.logger.DebugContext(ctx, "push", "path", path, "created", true)
		return true, nil
	}

	if opts.Unique {
		if list, ok := nested.AsList(pathcodec.Lookup(doc, p.Field, nil)); ok && nested.Contains(list, value) {
			s.logger.DebugContext(ctx, "push skipped duplicate", "path", path)
			return false, nil
		}
	}

	if err := coll.UpdateOne(ctx, p.ID, Update{Op: OpPush, Field: p.Field, Value: value}); err != nil {
		return false, fmt.Errorf("push %q: %w", path, err)
	}
	s.logger.DebugContext(ctx, "push", "path", path, "created", false)
	return true, nil
}

// Pull removes every occurrence of value from the list at path. Reports
// whether anything was removed; nothing is written when value is absent.
func (s *Store) Pull(ctx context.Context, path string, value any) (bool, error) {
	p, err := parseListPath(path)
	if err != nil {
		return false, err
	}

	coll := s.db.Collection(p.Collection)
	doc, err := coll.FindOne(ctx, p.ID, p.Field)
	if err != nil {
		return false, fmt.Errorf("pull %q: %w", path, err)
	}

	var current any
	if doc != nil {
		current = pathcodec.Lookup(doc, p.Field, nil)
	}
	list, ok := nested.AsList(current)
	if !ok || !nested.Contains(list, value) {
		s.logger.DebugContext(ctx, "pull found nothing", "path", path)
		return false, nil
	}

	if err := coll.UpdateOne(ctx, p.ID, Update{Op: OpPull, Field: p.Field, Value: value}); err != nil {
		return false, fmt.Errorf("pull %q: %w", path, err)
	}
	s.logger.DebugContext(ctx, "pull", "path", path)
	return true, nil
}

// Remove deletes whatever path addresses: a whole collection (one segment),
// a document (two) or a field (three or more). An empty path is rejected.
func (s *Store) Remove(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %w: refusing to remove with an empty path", ErrInvalidArgument, ErrInvalidPath)
	}
	p, err := pathcodec.Parse(path, pathcodec.DepthCollection)
	if err != nil {
		return err
	}

	coll := s.db.Collection(p.Collection)
	switch p.Depth {
	case pathcodec.DepthCollection:
		err = coll.Drop(ctx)
	case pathcodec.DepthDocument:
		err = coll.DeleteOne(ctx, p.ID)
	default:
		err = coll.UpdateOne(ctx, p.ID, Update{Op: OpUnset, Field: p.Field})
	}
	if err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}

	s.logger.DebugContext(ctx, "remove", "path", path, "depth", p.Depth)
	return nil
}

// parseListPath parses a push/pull path, which must address a field.
func parseListPath(path string) (pathcodec.Path, error) {
	p, err := pathcodec.Parse(path, pathcodec.DepthField)
	if err != nil {
		return pathcodec.Path{}, fmt.Errorf("%w: path too short for list operation: %w", ErrInvalidArgument, err)
	}
	return p, nil
}

// newDocument builds a document for an insert: the id plus value assembled
// under field.
func newDocument(id any, field string, value any) Document {
	doc := Document{}
	if body, ok := nested.AsMap(pathcodec.Assemble(field, value)); ok {
		for k, v := range body {
			doc[k] = nested.Normalize(v)
		}
	}
	doc[IDField] = id
	return doc
}
