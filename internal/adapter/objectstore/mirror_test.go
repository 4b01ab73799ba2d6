package objectstore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putRecorder struct {
	mu       sync.Mutex
	method   string
	path     string
	body     string
	header   http.Header
	requests int
}

func (p *putRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if r.Method == http.MethodPut {
		b, _ := io.ReadAll(r.Body)
		p.method, p.path, p.body, p.header = r.Method, r.URL.Path, string(b), r.Header.Clone()
	}
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestMirror(t *testing.T, h http.Handler) *Mirror {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m, err := NewMirror(Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "wildfire-water",
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
		Prefix:    "lake",
		RunID:     "run-1",
	}, slog.Default())
	require.NoError(t, err)
	return m
}

func TestMirror_Key(t *testing.T) {
	m := &Mirror{opts: Options{Prefix: "river"}}
	assert.Equal(t, "river/77.txt", m.Key("77"))

	m = &Mirror{}
	assert.Equal(t, "77.txt", m.Key("77"))
}

func TestMirror_PutsObject(t *testing.T) {
	rec := &putRecorder{}
	m := newTestMirror(t, rec)
	content := "2021-06-01 2021-06-20 101 2021-06-15 [0.03,0.07,0.05,0.04,0.03,0.02] 0.42\n"

	require.NoError(t, m.Mirror(context.Background(), "101", []byte(content)))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/wildfire-water/lake/101.txt", rec.path)
	assert.Contains(t, rec.body, content)
	assert.Equal(t, "text/plain", rec.header.Get("Content-Type"))
	assert.Equal(t, "101", rec.header.Get("X-Amz-Meta-Feature-Id"))
}

func TestMirror_ServerError(t *testing.T) {
	m := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`) //nolint:errcheck
	}))

	err := m.Mirror(context.Background(), "101", []byte("x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lake/101.txt")
}

func TestMirror_EnsureBucketExisting(t *testing.T) {
	rec := &putRecorder{}
	m := newTestMirror(t, rec)

	require.NoError(t, m.EnsureBucket(context.Background()))
	assert.Empty(t, rec.method)
}
