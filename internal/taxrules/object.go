package taxrules

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/storage"
)

// ObjectSource reads every YAML document stored under a key prefix, in key
// order, as one bundle.
type ObjectSource struct {
	store  storage.Storage
	prefix string
}

// NewObjectSource creates a source over the documents under prefix.
func NewObjectSource(store storage.Storage, prefix string) *ObjectSource {
	return &ObjectSource{store: store, prefix: normalizePrefix(prefix)}
}

func (o *ObjectSource) Name() string { return SourceObject }

func (o *ObjectSource) Load(ctx context.Context) (*Bundle, error) {
	keys, err := o.store.List(ctx, o.prefix)
	if err != nil {
		return nil, fmt.Errorf("listing rule objects: %w", err)
	}

	var docs []Document
	for _, key := range keys {
		name := strings.TrimPrefix(key, o.prefix)
		// Nested keys belong to other prefixes.
		if strings.Contains(name, "/") || !isRuleFile(name) {
			continue
		}
		data, err := o.read(ctx, key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Name: name, Data: data})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no rule documents under %q", o.prefix)
	}
	return decodeDocuments(docs)
}

func (o *ObjectSource) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := o.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching rule object: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBundleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading rule object %s: %w", key, err)
	}
	if len(data) > maxBundleBytes {
		return nil, fmt.Errorf("rule object %s exceeds %d bytes", key, maxBundleBytes)
	}
	return data, nil
}

// Publish writes docs under prefix and returns the keys written. Existing
// objects with the same names are replaced; others are left in place.
func Publish(ctx context.Context, store storage.Storage, prefix string, docs []Document) ([]string, error) {
	prefix = normalizePrefix(prefix)
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		key := path.Join(prefix, d.Name)
		if err := store.Put(ctx, key, bytes.NewReader(d.Data), "application/yaml"); err != nil {
			return keys, fmt.Errorf("publishing %s: %w", d.Name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
