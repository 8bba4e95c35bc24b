package taxrules

import (
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Source supplies a complete Bundle.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Bundle, error)
}

//go:embed data/*.yaml
var embeddedFS embed.FS

// EmbeddedSource serves the bundle compiled into the binary. It always
// succeeds unless the shipped data itself is broken, which makes it the
// fallback of last resort.
type EmbeddedSource struct{}

func (EmbeddedSource) Name() string { return SourceEmbedded }

func (EmbeddedSource) Load(_ context.Context) (*Bundle, error) {
	docs, err := EmbeddedSource{}.Documents()
	if err != nil {
		return nil, err
	}
	return decodeDocuments(docs)
}

// Documents returns the raw embedded rule files.
func (EmbeddedSource) Documents() ([]Document, error) {
	return readDocuments(embeddedFS, "data")
}

// FileSource reads every YAML document in a directory.
type FileSource struct {
	Dir string
}

func (f FileSource) Name() string { return SourceFile }

func (f FileSource) Load(_ context.Context) (*Bundle, error) {
	docs, err := f.Documents()
	if err != nil {
		return nil, err
	}
	return decodeDocuments(docs)
}

// Documents returns the raw rule files in the directory.
func (f FileSource) Documents() ([]Document, error) {
	if f.Dir == "" {
		return nil, fmt.Errorf("file source: directory not configured")
	}
	return readDocuments(os.DirFS(f.Dir), ".")
}

// maxBundleBytes bounds a remote bundle download.
const maxBundleBytes = 16 << 20

// HTTPSource fetches a single YAML bundle document from a URL.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource with the given request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTPSource) Name() string { return SourceHTTP }

func (h *HTTPSource) Load(ctx context.Context) (*Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating rule bundle request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml, text/yaml")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rule bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching rule bundle: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading rule bundle: %w", err)
	}
	if len(body) > maxBundleBytes {
		return nil, fmt.Errorf("rule bundle exceeds %d bytes", maxBundleBytes)
	}

	return DecodeYAML(body)
}
