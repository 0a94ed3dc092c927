// Package memory provides an in-process store.Database. Data is lost on
// restart. Safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// Database keeps every collection in memory.
type Database struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
	down        error
}

var _ store.Database = (*Database)(nil)

// New creates an empty Database.
func New() *Database {
	return &Database{
		collections: make(map[string]map[string]store.Document),
	}
}

// Collection returns a handle for the named collection.
func (d *Database) Collection(name string) store.Collection {
	return &Collection{db: d, name: name}
}

// Ping reports the database as alive unless SetDown was called.
func (d *Database) Ping(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.down != nil {
		return false, d.down
	}
	return true, nil
}

// SetDown makes every subsequent operation fail with err. A nil err brings
// the database back.
func (d *Database) SetDown(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = err
}

// Collections returns the names of collections holding documents.
func (d *Database) Collections() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var names []string
	for name, docs := range d.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Collection is a handle for one in-memory collection.
type Collection struct {
	db   *Database
	name string
}

// idKey keys documents by id kind and text so that 1 and "1" never collide.
func idKey(id any) string {
	if s, ok := id.(string); ok {
		return "s:" + s
	}
	return "i:" + pathcodec.FormatID(id)
}

func (c *Collection) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.down
}

// FindOne returns a copy of the document, projected to field when set.
func (c *Collection) FindOne(ctx context.Context, id any, field string) (store.Document, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	doc, ok := c.db.collections[c.name][idKey(id)]
	if !ok {
		return nil, nil
	}
	if field == "" {
		return nested.Copy(doc), nil
	}
	return nested.Project(doc, field), nil
}

// InsertOne stores a copy of doc.
func (c *Collection) InsertOne(ctx context.Context, doc store.Document) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return err
	}

	id, ok := doc[store.IDField]
	if !ok {
		return fmt.Errorf("memory: insert into %q: document has no %s", c.name, store.IDField)
	}
	key := idKey(id)
	docs, ok := c.db.collections[c.name]
	if !ok {
		docs = make(map[string]store.Document)
		c.db.collections[c.name] = docs
	}
	if _, exists := docs[key]; exists {
		return fmt.Errorf("memory: insert into %q: duplicate %s %v", c.name, store.IDField, id)
	}
	docs[key] = nested.Copy(doc)
	return nil
}

// UpdateOne applies u to a copy of the document and stores it. Updates to
// missing documents are ignored.
func (c *Collection) UpdateOne(ctx context.Context, id any, u store.Update) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return err
	}

	key := idKey(id)
	doc, ok := c.db.collections[c.name][key]
	if !ok {
		return nil
	}
	updated := nested.Copy(doc)
	if err := store.ApplyUpdate(updated, u); err != nil {
		return fmt.Errorf("memory: %s on %q: %w", u.Op, c.name, err)
	}
	c.db.collections[c.name][key] = updated
	return nil
}

// DeleteOne removes the document if present.
func (c *Collection) DeleteOne(ctx context.Context, id any) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return err
	}
	delete(c.db.collections[c.name], idKey(id))
	return nil
}

// Drop removes the collection.
func (c *Collection) Drop(ctx context.Context) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return err
	}
	delete(c.db.collections, c.name)
	return nil
}
