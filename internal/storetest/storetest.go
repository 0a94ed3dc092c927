// Package storetest holds the behaviour every store.Database backend must
// share, runnable against any implementation.
package storetest

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// Collections lists the collection names the suite writes to. Backends that
// need collections provisioned up front (DynamoDB tables) create these.
var Collections = []string{"users", "orders"}

// Factory returns an empty database. It is called once per subtest.
type Factory func(t *testing.T) store.Database

// Run exercises the collection primitives and the path accessor on top of
// databases produced by newDB.
func Run(t *testing.T, newDB Factory) {
	t.Helper()

	t.Run("Collection", func(t *testing.T) { runCollection(t, newDB) })
	t.Run("Store", func(t *testing.T) { runStore(t, newDB) })
}

func runCollection(t *testing.T, newDB Factory) {
	ctx := context.Background()

	t.Run("FindOneMissing", func(t *testing.T) {
		coll := newDB(t).Collection("users")
		doc, err := coll.FindOne(ctx, int64(404), "")
		require.NoError(t, err)
		assert.Nil(t, doc)

		doc, err = coll.FindOne(ctx, "ghost", "name")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("InsertAndFind", func(t *testing.T) {
		coll := newDB(t).Collection("users")
		require.NoError(t, coll.InsertOne(ctx, store.Document{
			store.IDField: int64(1),
			"name":        "alice",
			"profile":     map[string]any{"age": int64(30), "active": true},
			"tags":        []any{"a", "b"},
			"score":       2.5,
		}))

		doc, err := coll.FindOne(ctx, int64(1), "")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, int64(1), doc[store.IDField])
		assert.Equal(t, "alice", doc["name"])
		assert.Equal(t, int64(30), pathcodec.Lookup(doc, "profile.age", nil))
		assert.Equal(t, true, pathcodec.Lookup(doc, "profile.active", nil))
		assert.Equal(t, []any{"a", "b"}, doc["tags"])
		assert.Equal(t, 2.5, doc["score"])
	})

	t.Run("FindOneProjection", func(t *testing.T) {
		coll := newDB(t).Collection("users")
		require.NoError(t, coll.InsertOne(ctx, store.Document{
			store.IDField: "bob",
			"name":        "bob",
			"profile":     map[string]any{"age": int64(41), "city": "Oslo"},
		}))

		doc, err := coll.FindOne(ctx, "bob", "profile.city")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "Oslo", pathcodec.Lookup(doc, "profile.city", nil))
		assert.Nil(t, pathcodec.Lookup(doc, "name", nil), "projection should drop other fields")
		assert.Nil(t, pathcodec.Lookup(doc, "profile.age", nil), "projection should drop sibling fields")

		doc, err = coll.FindOne(ctx, "bob", "missing")
		require.NoError(t, err)
		assert.NotNil(t, doc, "an existing document yields a non-nil map")

		doc, err = coll.FindOne(ctx, "bob", store.IDField)
		require.NoError(t, err)
		assert.NotNil(t, doc)
	})

	t.Run("UpdateOne", func(t *testing.T) {
		coll := newDB(t).Collection("users")
		require.NoError(t, coll.InsertOne(ctx, store.Document{
			store.IDField: int64(7),
			"name":        "carol",
			"tags":        []any{"x", "y", "x"},
		}))

		require.NoError(t, coll.UpdateOne(ctx, int64(7), store.Update{Op: store.OpSet, Field: "profile.city", Value: "Rome"}))
		require.NoError(t, coll.UpdateOne(ctx, int64(7), store.Update{Op: store.OpPush, Field: "tags", Value: "z"}))
		require.NoError(t, coll.UpdateOne(ctx, int64(7), store.Update{Op: store.OpPush, Field: "new.list", Value: int64(1)}))
		require.NoError(t, coll.UpdateOne(ctx, int64(7), store.Update{Op: store.OpPull, Field: "tags", Value: "x"}))
		require.NoError(t, coll.UpdateOne(ctx, int64(7), store.Update{Op: store.OpUnset, Field: "name"}))

		doc, err := coll.FindOne(ctx, int64(7), "")
		require.NoError(t, err)
		assert.Equal(t, "Rome", pathcodec.Lookup(doc, "profile.city", nil))
		assert.Equal(t, []any{"y", "z"}, doc["tags"])
		assert.Equal(t, []any{int64(1)}, pathcodec.Lookup(doc, "new.list", nil))
		assert.NotContains(t, doc, "name")

		require.NoError(t, coll.UpdateOne(ctx, int64(7), store.Update{Op: store.OpReplace, Value: map[string]any{"fresh": true}}))
		doc, err = coll.FindOne(ctx, int64(7), "")
		require.NoError(t, err)
		assert.Equal(t, store.Document{store.IDField: int64(7), "fresh": true}, doc)
	})

	t.Run("UpdateMissingIsNoop", func(t *testing.T) {
		coll := newDB(t).Collection("users")
		for _, u := range []store.Update{
			{Op: store.OpSet, Field: "a", Value: 1},
			{Op: store.OpPush, Field: "l", Value: 1},
			{Op: store.OpPull, Field: "l", Value: 1},
			{Op: store.OpUnset, Field: "a"},
			{Op: store.OpReplace, Value: map[string]any{"a": 1}},
		} {
			require.NoError(t, coll.UpdateOne(ctx, "ghost", u), "op %s", u.Op)
		}
		doc, err := coll.FindOne(ctx, "ghost", "")
		require.NoError(t, err)
		assert.Nil(t, doc, "updates must not create documents")
	})

	t.Run("DeleteAndDrop", func(t *testing.T) {
		db := newDB(t)
		users, orders := db.Collection("users"), db.Collection("orders")
		for i := int64(1); i <= 3; i++ {
			require.NoError(t, users.InsertOne(ctx, store.Document{store.IDField: i}))
		}
		require.NoError(t, orders.InsertOne(ctx, store.Document{store.IDField: "o1"}))

		require.NoError(t, users.DeleteOne(ctx, int64(2)))
		require.NoError(t, users.DeleteOne(ctx, int64(99)), "deleting a missing id is not an error")
		doc, err := users.FindOne(ctx, int64(2), "")
		require.NoError(t, err)
		assert.Nil(t, doc)

		require.NoError(t, users.Drop(ctx))
		for _, id := range []int64{1, 3} {
			doc, err := users.FindOne(ctx, id, "")
			require.NoError(t, err)
			assert.Nil(t, doc, "id %d should be gone after drop", id)
		}
		doc, err = orders.FindOne(ctx, "o1", "")
		require.NoError(t, err)
		assert.NotNil(t, doc, "drop must not touch other collections")
	})

	t.Run("Ping", func(t *testing.T) {
		alive, err := newDB(t).Ping(ctx)
		require.NoError(t, err)
		assert.True(t, alive)
	})
}

func runStore(t *testing.T, newDB Factory) {
	ctx := context.Background()
	newStore := func(t *testing.T) *store.Store {
		return store.New(newDB(t), store.DefaultConfig())
	}

	t.Run("SetCreatesDocument", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users.1", map[string]any{"k": 1}))

		got, err := s.Get(ctx, "users.1.k", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)

		got, err = s.Get(ctx, "users.1", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{store.IDField: int64(1), "k": int64(1)}, got)
	})

	t.Run("SetFieldCreatesDocument", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users.alice.profile.city", "Paris"))

		got, err := s.Get(ctx, "users.alice", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			store.IDField: "alice",
			"profile":     map[string]any{"city": "Paris"},
		}, got)
	})

	t.Run("SetMergesIntoExisting", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users.1.name", "alice"))
		require.NoError(t, s.Set(ctx, "users.1.profile.address.city", "Lyon"))
		require.NoError(t, s.Set(ctx, "users.1.name", "alicia"))

		got, err := s.Get(ctx, "users.1", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			store.IDField: int64(1),
			"name":        "alicia",
			"profile":     map[string]any{"address": map[string]any{"city": "Lyon"}},
		}, got)
	})

	t.Run("SetReplacesDocumentBody", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users.1", map[string]any{"a": 1, "b": 2}))
		require.NoError(t, s.Set(ctx, "users.1", map[string]any{"c": 3, store.IDField: int64(99)}))

		got, err := s.Get(ctx, "users.1", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{store.IDField: int64(1), "c": int64(3)}, got)
	})

	t.Run("SetScalarDocumentFails", func(t *testing.T) {
		s := newStore(t)
		err := s.Set(ctx, "users.1", 5)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)

		got, err := s.Get(ctx, "users.1", "none")
		require.NoError(t, err)
		assert.Equal(t, "none", got)
	})

	t.Run("GetDefaults", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(ctx, "users.404.name", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", got)

		require.NoError(t, s.Set(ctx, "users.1.name", "alice"))
		got, err = s.Get(ctx, "users.1.email", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", got)

		got, err = s.Get(ctx, "users.1.name.first", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", got, "walking through a string yields the default")
	})

	t.Run("PushUnique", func(t *testing.T) {
		s := newStore(t)
		pushed, err := s.Push(ctx, "users.1.list", "x", store.PushOptions{Unique: true})
		require.NoError(t, err)
		assert.True(t, pushed)

		pushed, err = s.Push(ctx, "users.1.list", "x", store.PushOptions{Unique: true})
		require.NoError(t, err)
		assert.False(t, pushed)

		got, err := s.Get(ctx, "users.1.list", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"x"}, got)
	})

	t.Run("PushAllowsDuplicates", func(t *testing.T) {
		s := newStore(t)
		for range 2 {
			pushed, err := s.Push(ctx, "users.1.list", int64(5), store.PushOptions{})
			require.NoError(t, err)
			assert.True(t, pushed)
		}
		got, err := s.Get(ctx, "users.1.list", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{int64(5), int64(5)}, got)
	})

	t.Run("PushIntoExistingDocument", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users.1.name", "alice"))
		pushed, err := s.Push(ctx, "users.1.groups.admin", "root", store.PushOptions{Unique: true})
		require.NoError(t, err)
		assert.True(t, pushed)

		got, err := s.Get(ctx, "users.1", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			store.IDField: int64(1),
			"name":        "alice",
			"groups":      map[string]any{"admin": []any{"root"}},
		}, got)
	})

	t.Run("Pull", func(t *testing.T) {
		s := newStore(t)
		for _, v := range []string{"a", "b", "a"} {
			_, err := s.Push(ctx, "users.1.list", v, store.PushOptions{})
			require.NoError(t, err)
		}

		removed, err := s.Pull(ctx, "users.1.list", "zzz")
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = s.Pull(ctx, "users.1.list", "a")
		require.NoError(t, err)
		assert.True(t, removed)

		got, err := s.Get(ctx, "users.1.list", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"b"}, got)

		removed, err = s.Pull(ctx, "users.404.list", "a")
		require.NoError(t, err)
		assert.False(t, removed)
		got, err = s.Get(ctx, "users.404", nil)
		require.NoError(t, err)
		assert.Nil(t, got, "pull must not create documents")
	})

	t.Run("NumbersCompareByValue", func(t *testing.T) {
		s := newStore(t)
		pushed, err := s.Push(ctx, "users.1.list", 1.0, store.PushOptions{})
		require.NoError(t, err)
		assert.True(t, pushed)

		pushed, err = s.Push(ctx, "users.1.list", 1.0, store.PushOptions{Unique: true})
		require.NoError(t, err)
		assert.False(t, pushed, "1.0 is already in the list")

		pushed, err = s.Push(ctx, "users.1.list", int64(1), store.PushOptions{Unique: true})
		require.NoError(t, err)
		assert.False(t, pushed, "1 equals the stored 1.0")

		got, err := s.Get(ctx, "users.1.list", nil)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		removed, err := s.Pull(ctx, "users.1.list", 1.0)
		require.NoError(t, err)
		assert.True(t, removed)

		got, err = s.Get(ctx, "users.1.list", nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users.1", map[string]any{"a": 1, "b": map[string]any{"c": 2, "d": 3}}))
		require.NoError(t, s.Set(ctx, "users.2.name", "bob"))
		require.NoError(t, s.Set(ctx, "orders.1.total", 10))

		require.NoError(t, s.Remove(ctx, "users.1.b.c"))
		got, err := s.Get(ctx, "users.1", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{store.IDField: int64(1), "a": int64(1), "b": map[string]any{"d": int64(3)}}, got)

		require.NoError(t, s.Remove(ctx, "users.1.missing.deep"))
		require.NoError(t, s.Remove(ctx, "users.404.name"))

		require.NoError(t, s.Remove(ctx, "users.1"))
		got, err = s.Get(ctx, "users.1", "gone")
		require.NoError(t, err)
		assert.Equal(t, "gone", got)

		require.NoError(t, s.Remove(ctx, "users"))
		got, err = s.Get(ctx, "users.2.name", "gone")
		require.NoError(t, err)
		assert.Equal(t, "gone", got)

		got, err = s.Get(ctx, "orders.1.total", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got, "dropping users must keep orders")
	})

	t.Run("BigIntegerID", func(t *testing.T) {
		s := newStore(t)
		const path = "users.123456789123456789123456789"
		require.NoError(t, s.Set(ctx, path+".name", "huge"))

		got, err := s.Get(ctx, path+".name", nil)
		require.NoError(t, err)
		assert.Equal(t, "huge", got)

		doc, err := s.Get(ctx, path, nil)
		require.NoError(t, err)
		id, ok := doc.(map[string]any)[store.IDField].(*big.Int)
		require.True(t, ok, "expected *big.Int id, got %T", doc.(map[string]any)[store.IDField])
		assert.Equal(t, "123456789123456789123456789", id.String())

		got, err = s.Get(ctx, "users.123456789123456789123456788.name", "other")
		require.NoError(t, err)
		assert.Equal(t, "other", got, "neighbouring big ids must not collide")
	})

	t.Run("ShortPaths", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "users", nil)
		assert.ErrorIs(t, err, store.ErrInvalidPath)
		assert.ErrorIs(t, s.Set(ctx, "users", map[string]any{}), store.ErrInvalidPath)

		_, err = s.Push(ctx, "users.1", "x", store.PushOptions{})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
		assert.ErrorIs(t, err, store.ErrInvalidPath)

		_, err = s.Pull(ctx, "users.1", "x")
		assert.ErrorIs(t, err, store.ErrInvalidArgument)

		err = s.Remove(ctx, "")
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
		assert.ErrorIs(t, err, store.ErrInvalidPath)
	})

	t.Run("Ping", func(t *testing.T) {
		res, err := newStore(t).Ping(ctx)
		require.NoError(t, err)
		assert.True(t, res.Alive)
		assert.GreaterOrEqual(t, res.Elapsed.Nanoseconds(), int64(0))
	})
}
