package taxrules

import (
	"context"
	"strings"
	"testing"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/storage"
)

func TestObjectSource_PublishedEmbeddedBundle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocal(t.TempDir())

	docs, err := EmbeddedSource{}.Documents()
	if err != nil {
		t.Fatalf("reading embedded documents: %v", err)
	}
	keys, err := Publish(ctx, store, "/rules/current/", docs)
	if err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if len(keys) != len(docs) {
		t.Fatalf("expected %d keys, got %v", len(docs), keys)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "rules/current/") {
			t.Errorf("expected key under rules/current/, got %q", k)
		}
	}

	// Stray objects must not leak into the bundle.
	if err := store.Put(ctx, "rules/current/notes.txt", strings.NewReader("not yaml"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "rules/current/old/extra.yaml", strings.NewReader("version: \"other\""), ""); err != nil {
		t.Fatal(err)
	}

	fromObjects, err := NewObjectSource(store, "rules/current").Load(ctx)
	if err != nil {
		t.Fatalf("loading from object store: %v", err)
	}
	embedded, err := EmbeddedSource{}.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}

	a, err := NewSnapshot(fromObjects)
	if err != nil {
		t.Fatalf("object bundle failed validation: %v", err)
	}
	b, err := NewSnapshot(embedded)
	if err != nil {
		t.Fatal(err)
	}
	if a.Version() != b.Version() {
		t.Errorf("expected the published bundle to keep version %q, got %q", b.Version(), a.Version())
	}
}

func TestObjectSource_EmptyPrefix(t *testing.T) {
	src := NewObjectSource(storage.NewLocal(t.TempDir()), "rules")
	if src.Name() != SourceObject {
		t.Errorf("expected name %q, got %q", SourceObject, src.Name())
	}
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("expected error for a prefix without documents")
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"/":       "",
		"rules":   "rules/",
		"/rules/": "rules/",
		"a/b":     "a/b/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
