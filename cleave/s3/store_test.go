package s3

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/pithecene-io/cleave/cleave"
)

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{Bucket: "test"})
	if err == nil {
		t.Error("expected error for nil client")
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(newMockClient(), Config{})
	if err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestNew_PrefixNormalization(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", ""},
		{"exports", "exports/"},
		{"exports/", "exports/"},
		{"/exports/ml/", "exports/ml/"},
	}

	for _, tt := range tests {
		store, err := New(newMockClient(), Config{Bucket: "b", Prefix: tt.prefix})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if store.prefix != tt.want {
			t.Errorf("prefix %q: got %q, want %q", tt.prefix, store.prefix, tt.want)
		}
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	ctx := t.Context()
	client := newMockClient()
	store, _ := New(client, Config{Bucket: "b", Prefix: "exp"})

	if err := store.Put(ctx, "runs/r1/manifest.json", bytes.NewReader([]byte("{}"))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := client.objects["exp/runs/r1/manifest.json"]; !ok {
		t.Fatalf("object not stored under prefixed key; have %v", client.objects)
	}

	rc, err := store.Get(ctx, "runs/r1/manifest.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "{}" {
		t.Errorf("Get = %q, want {}", data)
	}
}

func TestStore_Put_ExistingKey_ErrPathExists(t *testing.T) {
	ctx := t.Context()
	store, _ := New(newMockClient(), Config{Bucket: "b"})

	if err := store.Put(ctx, "a.jsonl", bytes.NewReader([]byte("1"))); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	err := store.Put(ctx, "a.jsonl", bytes.NewReader([]byte("2")))
	if !errors.Is(err, cleave.ErrPathExists) {
		t.Errorf("second Put err = %v, want ErrPathExists", err)
	}
}

func TestStore_Put_BackendError_Wrapped(t *testing.T) {
	client := newMockClient()
	client.putErr = &apiError{code: "InternalError"}
	store, _ := New(client, Config{Bucket: "b"})

	err := store.Put(t.Context(), "a", bytes.NewReader(nil))
	if err == nil || errors.Is(err, cleave.ErrPathExists) {
		t.Errorf("err = %v, want wrapped backend error", err)
	}
}

func TestStore_Get_Missing_ErrNotFound(t *testing.T) {
	store, _ := New(newMockClient(), Config{Bucket: "b"})

	_, err := store.Get(t.Context(), "missing")
	if !errors.Is(err, cleave.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Exists(t *testing.T) {
	ctx := t.Context()
	store, _ := New(newMockClient(), Config{Bucket: "b"})
	_ = store.Put(ctx, "present", bytes.NewReader([]byte("x")))

	ok, err := store.Exists(ctx, "present")
	if err != nil || !ok {
		t.Errorf("Exists(present) = %v, %v; want true, nil", ok, err)
	}
	ok, err = store.Exists(ctx, "absent")
	if err != nil || ok {
		t.Errorf("Exists(absent) = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_List_FollowsPagination(t *testing.T) {
	ctx := t.Context()
	client := newMockClient()
	client.pageSize = 2
	store, _ := New(client, Config{Bucket: "b", Prefix: "p"})

	want := []string{"runs/a/1", "runs/a/2", "runs/a/3", "runs/b/1", "runs/b/2"}
	for _, k := range want {
		if err := store.Put(ctx, k, bytes.NewReader(nil)); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	_ = store.Put(ctx, "other/x", bytes.NewReader(nil))

	got, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
	if client.listCalls != 3 {
		t.Errorf("listCalls = %d, want 3 pages", client.listCalls)
	}
}

func TestStore_Delete_Idempotent(t *testing.T) {
	ctx := t.Context()
	store, _ := New(newMockClient(), Config{Bucket: "b"})
	_ = store.Put(ctx, "k", bytes.NewReader([]byte("x")))

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if ok, _ := store.Exists(ctx, "k"); ok {
		t.Error("key still exists after Delete")
	}
}

func TestStore_InvalidKeys(t *testing.T) {
	ctx := t.Context()
	store, _ := New(newMockClient(), Config{Bucket: "b"})

	for _, key := range []string{"", "/", "../escape", "a/../../b"} {
		if err := store.Put(ctx, key, bytes.NewReader(nil)); !errors.Is(err, cleave.ErrInvalidPath) {
			t.Errorf("Put(%q) err = %v, want ErrInvalidPath", key, err)
		}
	}
	if _, err := store.List(ctx, "../x"); !errors.Is(err, cleave.ErrInvalidPath) {
		t.Errorf("List(../x) err = %v, want ErrInvalidPath", err)
	}
}

func TestStore_WithExporter(t *testing.T) {
	ctx := t.Context()
	client := newMockClient()

	exp, err := cleave.NewExporter(Factory(client, Config{Bucket: "b", Prefix: "ml"}),
		cleave.WithCompressor(cleave.NewGzipCompressor()))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	p := cleave.NewPartitions()
	p.Initialize(0, cleave.NewTable([]string{"id"}, cleave.Record{"id": "a"}, cleave.Record{"id": "b"}))
	p.Initialize(1, cleave.NewTable([]string{"id"}, cleave.Record{"id": "c"}))

	m, err := exp.Export(ctx, p, cleave.Metadata{})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	loaded, _, err := exp.Load(ctx, m.RunID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	counts := loaded.Counts()
	if counts[0] != 2 || counts[1] != 1 {
		t.Errorf("counts = %v, want map[0:2 1:1]", counts)
	}

	runs, err := exp.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 || runs[0] != m.RunID {
		t.Errorf("Runs = %v, want [%s]", runs, m.RunID)
	}
}
