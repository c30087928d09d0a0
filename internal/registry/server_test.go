package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/Sternrassler/registry-cache/internal/testutil"
	"github.com/Sternrassler/registry-cache/internal/upstream"
	"github.com/Sternrassler/registry-cache/pkg/cache"
	"github.com/Sternrassler/registry-cache/pkg/distribution"
)

const (
	testManifest = `{"schemaVersion":2,"mediaType":"application/vnd.docker.distribution.manifest.v2+json"}`
	testDigest   = "sha256:4f53cda18c2baa0c0354bb5f9a3ecbe5ed12ab4d8e11ba873c2f11161202b945"
)

type testEnv struct {
	server  *Server
	catalog *distribution.Catalog
	mock    *testutil.MockRegistry
	root    string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupServer(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "library", "hello", "manifests", "latest"), testManifest)
	writeFile(t, filepath.Join(root, "library", "hello", "manifests", testDigest), testManifest)
	writeFile(t, filepath.Join(root, "library", "hello", "blobs", testDigest), "0123456789")

	mock := testutil.NewMockRegistry()
	t.Cleanup(mock.Close)

	catalog := distribution.NewCatalog(zerolog.Nop())
	require.NoError(t, catalog.Add(distribution.Distribution{Name: "hello", BasePath: "library/hello"}))
	require.NoError(t, catalog.Add(distribution.Distribution{
		Name:        "docker-cache",
		BasePath:    "docker-cache",
		PullThrough: true,
		Upstream:    mock.URL(),
	}))

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	store := cache.NewLevelDBStore(db)
	t.Cleanup(func() { store.Close() })

	ttl := time.Minute
	opts := Options{ContentRoot: root, TTL: &ttl, Logger: zerolog.Nop()}
	if mutate != nil {
		mutate(&opts)
	}

	client := upstream.New(upstream.Config{
		Timeout: 5 * time.Second,
		Retry: upstream.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 2,
		},
	}, zerolog.Nop())

	return &testEnv{
		server:  New(store, catalog, client, opts),
		catalog: catalog,
		mock:    mock,
		root:    root,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, header ...string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func decodeErrors(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	require.Len(t, body.Errors, 1)
	return body
}

func TestServer_Base(t *testing.T) {
	env := setupServer(t, nil)

	resp := env.do(t, http.MethodGet, "/v2/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "{}", readBody(t, resp))
	assert.Equal(t, cache.StatusMiss, resp.Header.Get(cache.StatusHeader))
	assert.Equal(t, "registry/2.0", resp.Header.Get("Docker-Distribution-API-Version"))

	resp = env.do(t, http.MethodGet, "/v2/")
	assert.Equal(t, "{}", readBody(t, resp))
	assert.Equal(t, cache.StatusHit, resp.Header.Get(cache.StatusHeader))
	assert.Equal(t, "registry/2.0", resp.Header.Get("Docker-Distribution-API-Version"))
}

func TestServer_ManifestMissThenHit(t *testing.T) {
	env := setupServer(t, nil)

	for _, want := range []string{cache.StatusMiss, cache.StatusHit} {
		resp := env.do(t, http.MethodGet, "/v2/library/hello/manifests/latest")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, resp.Header.Get(cache.StatusHeader))
		assert.Equal(t, "application/vnd.docker.distribution.manifest.v2+json", resp.Header.Get("Content-Type"))
		assert.Equal(t, testManifest, readBody(t, resp))
	}

	resp := env.do(t, http.MethodGet, "/v2/library/hello/manifests/"+testDigest)
	assert.Equal(t, testDigest, resp.Header.Get("Docker-Content-Digest"))
	assert.Equal(t, cache.StatusMiss, resp.Header.Get(cache.StatusHeader))
}

func TestServer_BlobRange(t *testing.T) {
	env := setupServer(t, nil)
	target := "/v2/library/hello/blobs/" + testDigest

	resp := env.do(t, http.MethodGet, target)
	assert.Equal(t, "0123456789", readBody(t, resp))

	resp = env.do(t, http.MethodGet, target, "Range", "bytes=2-4")
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, cache.StatusHit, resp.Header.Get(cache.StatusHeader))
	assert.Equal(t, "234", readBody(t, resp))
}

func TestServer_BlobRedirect(t *testing.T) {
	env := setupServer(t, func(o *Options) { o.BlobRedirect = "https://cdn.example/" })
	target := "/v2/library/hello/blobs/" + testDigest

	for _, want := range []string{cache.StatusMiss, cache.StatusHit} {
		resp := env.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "https://cdn.example/library/hello/blobs/"+testDigest, resp.Header.Get("Location"))
		assert.Equal(t, want, resp.Header.Get(cache.StatusHeader))
	}
}

func TestServer_Tags(t *testing.T) {
	env := setupServer(t, nil)

	resp := env.do(t, http.MethodGet, "/v2/library/hello/tags/list")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"name":"library/hello","tags":["latest"]}`, readBody(t, resp))

	resp = env.do(t, http.MethodGet, "/v2/library/hello/tags/list")
	assert.Equal(t, cache.StatusHit, resp.Header.Get(cache.StatusHeader))
	assert.JSONEq(t, `{"name":"library/hello","tags":["latest"]}`, readBody(t, resp))
}

func TestServer_UnknownRepository(t *testing.T) {
	env := setupServer(t, nil)

	resp := env.do(t, http.MethodGet, "/v2/unknown/repo/manifests/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(cache.StatusHeader))

	body := decodeErrors(t, resp)
	assert.Equal(t, codeNameUnknown, body.Errors[0].Code)
	assert.Equal(t, "unknown/repo", body.Errors[0].Detail["name"])
}

func TestServer_MissingManifestNotCached(t *testing.T) {
	env := setupServer(t, nil)

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, "/v2/library/hello/manifests/v9")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, cache.StatusMiss, resp.Header.Get(cache.StatusHeader))
		assert.Equal(t, codeManifestUnknown, decodeErrors(t, resp).Errors[0].Code)
	}
}

func TestServer_PullThrough(t *testing.T) {
	env := setupServer(t, nil)
	env.mock.SetResponse("/v2/library/busybox/manifests/latest", testutil.NewManifestResponse(testManifest))
	target := "/v2/docker-cache/library/busybox/manifests/latest"

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, cache.StatusMiss, resp.Header.Get(cache.StatusHeader))
		assert.Equal(t, digest.FromString(testManifest).String(), resp.Header.Get("Docker-Content-Digest"))
		assert.Equal(t, testManifest, readBody(t, resp))
	}

	// Streamed answers are never stored.
	assert.Equal(t, 2, env.mock.RequestCount("/v2/library/busybox/manifests/latest"))

	children := env.catalog.Children("docker-cache")
	require.Len(t, children, 1)
	assert.Equal(t, "docker-cache/library/busybox", children[0].BasePath)
}

func TestServer_PullThroughUpstreamNotFound(t *testing.T) {
	env := setupServer(t, nil)

	for _, repo := range []string{"a", "b", "c"} {
		resp := env.do(t, http.MethodGet, "/v2/docker-cache/nothing/"+repo+"/blobs/"+testDigest)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, codeBlobUnknown, decodeErrors(t, resp).Errors[0].Code)
	}

	assert.Empty(t, env.catalog.Children("docker-cache"), "failed pulls must not provision distributions")
}

func TestServer_PullThroughBasePathIsNotARepository(t *testing.T) {
	env := setupServer(t, nil)

	resp := env.do(t, http.MethodGet, "/v2/docker-cache/manifests/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNameUnknown, decodeErrors(t, resp).Errors[0].Code)
	assert.Zero(t, env.mock.RequestCount("/v2//manifests/latest"))
	assert.Empty(t, env.catalog.Children("docker-cache"))
}

func TestServer_PullThroughReusesProvisionedDistribution(t *testing.T) {
	env := setupServer(t, nil)
	env.mock.SetResponse("/v2/library/busybox/manifests/latest", testutil.NewManifestResponse(testManifest))

	readBody(t, env.do(t, http.MethodGet, "/v2/docker-cache/library/busybox/manifests/latest"))
	require.Len(t, env.catalog.Children("docker-cache"), 1)

	// Unknown tags of a provisioned repository still go upstream.
	resp := env.do(t, http.MethodGet, "/v2/docker-cache/library/busybox/manifests/v9")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeManifestUnknown, decodeErrors(t, resp).Errors[0].Code)
	assert.Equal(t, 1, env.mock.RequestCount("/v2/library/busybox/manifests/v9"))
	assert.Len(t, env.catalog.Children("docker-cache"), 1)
}

func TestServer_PullThroughUpstreamDown(t *testing.T) {
	env := setupServer(t, nil)
	env.mock.SetResponse("/v2/library/busybox/tags/list", testutil.NewServerErrorResponse())

	resp := env.do(t, http.MethodGet, "/v2/docker-cache/library/busybox/tags/list")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, codeUnavailable, decodeErrors(t, resp).Errors[0].Code)
	assert.Equal(t, 2, env.mock.RequestCount("/v2/library/busybox/tags/list"))
	assert.Empty(t, env.catalog.Children("docker-cache"))
}

func TestServer_RejectsBadRequests(t *testing.T) {
	env := setupServer(t, nil)

	resp := env.do(t, http.MethodDelete, "/v2/library/hello/manifests/latest")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, codeUnsupported, decodeErrors(t, resp).Errors[0].Code)

	resp = env.do(t, http.MethodGet, "/v2/Library/Hello/manifests/latest")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeNameInvalid, decodeErrors(t, resp).Errors[0].Code)

	resp = env.do(t, http.MethodGet, "/v2/library/hello/manifests/.hidden")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeTagInvalid, decodeErrors(t, resp).Errors[0].Code)

	resp = env.do(t, http.MethodGet, "/v2/library/hello/blobs/sha256:x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Docker-Content-Digest"))
	assert.Equal(t, codeDigestInvalid, decodeErrors(t, resp).Errors[0].Code)

	resp = env.do(t, http.MethodGet, "/v2/library/hello/uploads/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeUnsupported, decodeErrors(t, resp).Errors[0].Code)

	resp = env.do(t, http.MethodGet, "/elsewhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RequestID(t *testing.T) {
	env := setupServer(t, nil)

	resp := env.do(t, http.MethodGet, "/v2/")
	_, err := uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	resp = env.do(t, http.MethodGet, "/v2/", RequestIDHeader, id)
	assert.Equal(t, id, resp.Header.Get(RequestIDHeader))

	resp = env.do(t, http.MethodGet, "/v2/", RequestIDHeader, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get(RequestIDHeader))
}

func TestServer_IndexAndRemoval(t *testing.T) {
	env := setupServer(t, nil)
	target := "/index/static?tag=latest"

	resp := env.do(t, http.MethodGet, target)
	assert.Equal(t, cache.StatusMiss, resp.Header.Get(cache.StatusHeader))
	assert.JSONEq(t, `{"Results":[{"Name":"library/hello","Tags":["latest"]}]}`, readBody(t, resp))

	resp = env.do(t, http.MethodGet, target)
	assert.Equal(t, cache.StatusHit, resp.Header.Get(cache.StatusHeader))
	readBody(t, resp)

	resp = env.do(t, http.MethodGet, "/index/static?tag=v2")
	assert.JSONEq(t, `{"Results":[]}`, readBody(t, resp))

	// Warm the repository partition, then drop the distribution.
	readBody(t, env.do(t, http.MethodGet, "/v2/library/hello/manifests/latest"))
	require.NoError(t, env.catalog.Remove(context.Background(), "hello"))

	resp = env.do(t, http.MethodGet, target)
	assert.Equal(t, cache.StatusMiss, resp.Header.Get(cache.StatusHeader))
	assert.JSONEq(t, `{"Results":[]}`, readBody(t, resp))

	resp = env.do(t, http.MethodGet, "/v2/library/hello/manifests/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNameUnknown, decodeErrors(t, resp).Errors[0].Code)
}

func TestServer_ManifestDefaultsToOCIMediaType(t *testing.T) {
	env := setupServer(t, nil)
	writeFile(t, filepath.Join(env.root, "library", "hello", "manifests", "bare"), `{"schemaVersion":2}`)

	resp := env.do(t, http.MethodGet, "/v2/library/hello/manifests/bare")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ocispec.MediaTypeImageManifest, resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Docker-Content-Digest"), "tags carry no digest header")
}
