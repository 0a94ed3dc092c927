package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/pathstore/internal/storetest"
	"github.com/jacentio/pathstore/store"
	"github.com/jacentio/pathstore/store/memory"
)

func TestDatabase_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Database {
		return memory.New()
	})
}

func TestDatabase_SetDown(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	down := errors.New("connection refused")
	db.SetDown(down)

	alive, err := db.Ping(ctx)
	if alive || !errors.Is(err, down) {
		t.Errorf("expected dead ping with %v, got %v, %v", down, alive, err)
	}
	if _, err := db.Collection("users").FindOne(ctx, int64(1), ""); !errors.Is(err, down) {
		t.Errorf("expected FindOne to fail with %v, got %v", down, err)
	}
	if err := db.Collection("users").InsertOne(ctx, store.Document{store.IDField: int64(1)}); !errors.Is(err, down) {
		t.Errorf("expected InsertOne to fail with %v, got %v", down, err)
	}

	db.SetDown(nil)
	if alive, err := db.Ping(ctx); !alive || err != nil {
		t.Errorf("expected recovery, got %v, %v", alive, err)
	}
}

func TestDatabase_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := memory.New()
	if _, err := db.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := db.Collection("users").Drop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCollection_IntegerAndStringIDsDiffer(t *testing.T) {
	ctx := context.Background()
	coll := memory.New().Collection("users")

	if err := coll.InsertOne(ctx, store.Document{store.IDField: int64(1), "kind": "int"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := coll.InsertOne(ctx, store.Document{store.IDField: "1", "kind": "string"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := coll.FindOne(ctx, "1", "kind")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["kind"] != "string" {
		t.Errorf("expected the string-keyed document, got %v", doc)
	}
}

func TestCollection_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	coll := memory.New().Collection("users")
	doc := store.Document{store.IDField: "a"}

	if err := coll.InsertOne(ctx, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := coll.InsertOne(ctx, doc); err == nil {
		t.Error("expected duplicate id error")
	}
	if err := coll.InsertOne(ctx, store.Document{"name": "no id"}); err == nil {
		t.Error("expected error for document without id")
	}
}

func TestCollection_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	coll := memory.New().Collection("users")

	in := store.Document{store.IDField: int64(1), "tags": []any{"a"}}
	if err := coll.InsertOne(ctx, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in["tags"] = []any{"mutated"}

	out, err := coll.FindOne(ctx, int64(1), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out["tags"].([]any)[0] = "mutated again"

	again, err := coll.FindOne(ctx, int64(1), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{"a"}, again["tags"]); diff != "" {
		t.Errorf("stored document changed (-want +got):\n%s", diff)
	}
}

func TestCollection_FailedUpdateLeavesDocument(t *testing.T) {
	ctx := context.Background()
	coll := memory.New().Collection("users")
	if err := coll.InsertOne(ctx, store.Document{store.IDField: int64(1), "name": "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := coll.UpdateOne(ctx, int64(1), store.Update{Op: store.OpPush, Field: "name", Value: "x"})
	if !errors.Is(err, store.ErrNotList) {
		t.Errorf("expected ErrNotList, got %v", err)
	}
	err = coll.UpdateOne(ctx, int64(1), store.Update{Op: store.OpSet, Field: "name.first", Value: "x"})
	if !errors.Is(err, store.ErrNotMap) {
		t.Errorf("expected ErrNotMap, got %v", err)
	}

	doc, _ := coll.FindOne(ctx, int64(1), "")
	if doc["name"] != "alice" {
		t.Errorf("expected name untouched, got %v", doc["name"])
	}
}

func TestDatabase_Collections(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	for _, name := range []string{"users", "orders"} {
		if err := db.Collection(name).InsertOne(ctx, store.Document{store.IDField: int64(1)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := db.Collection("users").DeleteOne(ctx, int64(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"orders"}, db.Collections()); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}
}
