package mongodb

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jacentio/pathstore/store"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.URI != "mongodb://localhost" {
		t.Errorf("expected URI 'mongodb://localhost', got %q", cfg.URI)
	}
	if cfg.Timeout.Seconds() != 10 {
		t.Errorf("expected 10s timeout, got %v", cfg.Timeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing database", Config{}, true},
		{"port too high", Config{Database: "app", Port: 70000}, true},
		{"negative port", Config{Database: "app", Port: -1}, true},
		{"defaults URI", Config{Database: "app"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err == nil && cfg.URI != "mongodb://localhost" {
				t.Errorf("expected default URI, got %q", cfg.URI)
			}
		})
	}
}

func TestWithPort(t *testing.T) {
	tests := []struct {
		uri      string
		port     int
		expected string
	}{
		{"mongodb://localhost", 0, "mongodb://localhost"},
		{"mongodb://localhost", 27018, "mongodb://localhost:27018"},
		{"mongodb://localhost/app?w=1", 27018, "mongodb://localhost:27018/app?w=1"},
		{"mongodb://user:pw@db.internal", 27018, "mongodb://user:pw@db.internal:27018"},
		{"mongodb://localhost:27017", 27018, "mongodb://localhost:27017"},
		{"mongodb://a,b", 27018, "mongodb://a,b"},
		{"mongodb+srv://cluster.example.net", 27018, "mongodb+srv://cluster.example.net"},
		{"localhost", 27018, "mongodb://localhost:27018"},
	}
	for _, tt := range tests {
		if got := withPort(tt.uri, tt.port); got != tt.expected {
			t.Errorf("withPort(%q, %d): expected %q, got %q", tt.uri, tt.port, tt.expected, got)
		}
	}
}

func TestProjection(t *testing.T) {
	if diff := cmp.Diff(bson.D{{Key: "_id", Value: 1}}, projection(store.IDField)); diff != "" {
		t.Errorf("id projection mismatch (-want +got):\n%s", diff)
	}
	want := bson.D{{Key: "_id", Value: 0}, {Key: "a.b", Value: 1}}
	if diff := cmp.Diff(want, projection("a.b")); diff != "" {
		t.Errorf("field projection mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeValue(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789123456789123456789", 10)
	got, err := encodeValue(map[string]any{
		"id":   huge,
		"n":    7,
		"list": []string{"a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, ok := got.(bson.M)
	if !ok {
		t.Fatalf("expected bson.M, got %T", got)
	}
	if _, ok := m["id"].(primitive.Decimal128); !ok {
		t.Errorf("expected Decimal128 for big integer, got %T", m["id"])
	}
	if m["n"] != int64(7) {
		t.Errorf("expected int64 7, got %#v", m["n"])
	}
	if _, ok := m["list"].(bson.A); !ok {
		t.Errorf("expected bson.A, got %T", m["list"])
	}
}

func TestEncodeValue_TooLarge(t *testing.T) {
	tooBig := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	if _, err := encodeValue(tooBig); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDecodeValue(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789123456789123456789", 10)
	dec, ok := primitive.ParseDecimal128FromBigInt(huge, 0)
	if !ok {
		t.Fatal("failed to build Decimal128")
	}
	small, _ := primitive.ParseDecimal128FromBigInt(big.NewInt(5), 0)
	frac, _ := primitive.ParseDecimal128("1.5")

	got := decodeValue(bson.M{
		"d":    bson.D{{Key: "n", Value: int32(3)}},
		"list": bson.A{int32(1), "x"},
		"huge": dec,
		"five": small,
		"frac": frac,
	}).(map[string]any)

	if diff := cmp.Diff(map[string]any{"n": int64(3)}, got["d"]); diff != "" {
		t.Errorf("nested document mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{int64(1), "x"}, got["list"]); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
	if n, ok := got["huge"].(*big.Int); !ok || n.Cmp(huge) != 0 {
		t.Errorf("expected big integer, got %v", got["huge"])
	}
	if got["five"] != int64(5) {
		t.Errorf("expected small Decimal128 as int64, got %#v", got["five"])
	}
	if _, ok := got["frac"].(primitive.Decimal128); !ok {
		t.Errorf("expected fractional Decimal128 kept, got %T", got["frac"])
	}
}

func TestIDFilter(t *testing.T) {
	filter, err := idFilter(int64(9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(bson.D{{Key: "_id", Value: int64(9)}}, filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Info(0, "connected", "host", "localhost")
	sink.Info(1, "command started", "command", "find")
	sink.Error(errors.New("boom"), "heartbeat failed")

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	levels := []zapcore.Level{zapcore.InfoLevel, zapcore.DebugLevel, zapcore.ErrorLevel}
	for i, want := range levels {
		if entries[i].Level != want {
			t.Errorf("entry %d: expected level %v, got %v", i, want, entries[i].Level)
		}
		if entries[i].LoggerName != "mongo" {
			t.Errorf("entry %d: expected logger 'mongo', got %q", i, entries[i].LoggerName)
		}
	}
	if entries[2].ContextMap()["error"] != "boom" {
		t.Errorf("expected error field, got %v", entries[2].ContextMap())
	}
}
