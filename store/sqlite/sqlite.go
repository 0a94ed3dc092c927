// Package sqlite implements store.Database on a single SQLite file.
//
// Tables:
//
//	documents(collection, key, data)  PRIMARY KEY (collection, key)
//
// key is the id prefixed by its kind ("s:" or "i:") so that 1 and "1" stay
// distinct; data is the JSON-encoded document including "_id". Updates are
// read-modify-write inside a transaction.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// Database stores every collection in one SQLite database.
type Database struct {
	mu sync.RWMutex
	db *sql.DB
}

var _ store.Database = (*Database)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Database, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Database{db: db}, nil
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

// Collection returns a handle for the named collection.
func (d *Database) Collection(name string) store.Collection {
	return &Collection{db: d, name: name}
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) (bool, error) {
	if err := d.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Collections lists collections holding at least one document.
func (d *Database) Collections(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Collection is one logical collection inside the documents table.
type Collection struct {
	db   *Database
	name string
}

func idKey(id any) string {
	if s, ok := id.(string); ok {
		return "s:" + s
	}
	return "i:" + pathcodec.FormatID(id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Collection) load(ctx context.Context, q querier, id any) (store.Document, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND key = ?",
		c.name, idKey(id),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

// FindOne loads the document, projecting to field when set.
func (c *Collection) FindOne(ctx context.Context, id any, field string) (store.Document, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	doc, err := c.load(ctx, c.db.db, id)
	if err != nil || doc == nil {
		return nil, err
	}
	if field == "" {
		return doc, nil
	}
	return nested.Project(doc, field), nil
}

// InsertOne stores doc; the id must be new.
func (c *Collection) InsertOne(ctx context.Context, doc store.Document) error {
	id, ok := doc[store.IDField]
	if !ok {
		return fmt.Errorf("sqlite: insert into %q: document has no %s", c.name, store.IDField)
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	_, err = c.db.db.ExecContext(ctx,
		"INSERT INTO documents (collection, key, data) VALUES (?, ?, ?)",
		c.name, idKey(id), data,
	)
	return err
}

// UpdateOne applies u inside a transaction. Updates to missing documents are ignored.
func (c *Collection) UpdateOne(ctx context.Context, id any, u store.Update) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	tx, err := c.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	doc, err := c.load(ctx, tx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	if err := store.ApplyUpdate(doc, u); err != nil {
		return fmt.Errorf("sqlite: %s on %q: %w", u.Op, c.name, err)
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET data = ? WHERE collection = ? AND key = ?",
		data, c.name, idKey(id),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteOne removes the document if present.
func (c *Collection) DeleteOne(ctx context.Context, id any) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	_, err := c.db.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND key = ?",
		c.name, idKey(id),
	)
	return err
}

// Drop removes every document of the collection.
func (c *Collection) Drop(ctx context.Context) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	_, err := c.db.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", c.name)
	return err
}

// encodeDocument writes doc as JSON. *big.Int marshals as a bare number.
func encodeDocument(doc store.Document) (string, error) {
	b, err := json.Marshal(nested.Normalize(doc))
	if err != nil {
		return "", fmt.Errorf("%w: %w", store.ErrInvalidArgument, err)
	}
	return string(b), nil
}

func decodeDocument(raw string) (store.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	doc, ok := decodeNumbers(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sqlite: stored document is %T, not an object", v)
	}
	return doc, nil
}

func decodeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if n, ok := new(big.Int).SetString(s, 10); ok {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return s
	case map[string]any:
		for k, e := range t {
			t[k] = decodeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = decodeNumbers(e)
		}
		return t
	default:
		return t
	}
}
