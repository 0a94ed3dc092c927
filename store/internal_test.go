package store

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpdateOp_String(t *testing.T) {
	tests := []struct {
		op       UpdateOp
		expected string
	}{
		{OpSet, "set"},
		{OpReplace, "replace"},
		{OpPush, "push"},
		{OpPull, "pull"},
		{OpUnset, "unset"},
		{UpdateOp(42), "UpdateOp(42)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}

func TestApplyUpdate(t *testing.T) {
	tests := []struct {
		name     string
		update   Update
		expected Document
	}{
		{
			name:     "set nested",
			update:   Update{Op: OpSet, Field: "a.b", Value: 2},
			expected: Document{IDField: "x", "a": map[string]any{"b": int64(2)}, "tags": []any{"t", "u", "t"}},
		},
		{
			name:     "replace keeps id",
			update:   Update{Op: OpReplace, Value: map[string]any{IDField: "other", "z": true}},
			expected: Document{IDField: "x", "z": true},
		},
		{
			name:     "push",
			update:   Update{Op: OpPush, Field: "tags", Value: "v"},
			expected: Document{IDField: "x", "a": map[string]any{"b": 1}, "tags": []any{"t", "u", "t", "v"}},
		},
		{
			name:     "pull removes all",
			update:   Update{Op: OpPull, Field: "tags", Value: "t"},
			expected: Document{IDField: "x", "a": map[string]any{"b": 1}, "tags": []any{"u"}},
		},
		{
			name:     "unset",
			update:   Update{Op: OpUnset, Field: "a.b"},
			expected: Document{IDField: "x", "a": map[string]any{}, "tags": []any{"t", "u", "t"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{IDField: "x", "a": map[string]any{"b": 1}, "tags": []any{"t", "u", "t"}}
			if err := ApplyUpdate(doc, tt.update); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, doc); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyUpdate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		target error
	}{
		{"replace with scalar", Update{Op: OpReplace, Value: 5}, ErrInvalidArgument},
		{"push onto scalar", Update{Op: OpPush, Field: "name", Value: 1}, ErrNotList},
		{"set through scalar", Update{Op: OpSet, Field: "name.first", Value: 1}, ErrNotMap},
		{"unknown op", Update{Op: UpdateOp(0)}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{IDField: "x", "name": "alice"}
			if err := ApplyUpdate(doc, tt.update); !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestNewDocument(t *testing.T) {
	huge, _ := new(big.Int).SetString("99999999999999999999", 10)
	tests := []struct {
		name     string
		id       any
		field    string
		value    any
		expected Document
	}{
		{"field", int64(1), "a.b", 1, Document{IDField: int64(1), "a": map[string]any{"b": int64(1)}}},
		{"whole body", "x", "", map[string]any{"k": 1, IDField: "ignored"}, Document{IDField: "x", "k": int64(1)}},
		{"list", huge, "tags", []any{"a"}, Document{IDField: huge, "tags": []any{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newDocument(tt.id, tt.field, tt.value)
			if diff := cmp.Diff(tt.expected, got, cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseListPath(t *testing.T) {
	if _, err := parseListPath("users.1.tags"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	_, err := parseListPath("users.1")
	if !errors.Is(err, ErrInvalidArgument) || !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected both ErrInvalidArgument and ErrInvalidPath, got %v", err)
	}
}
