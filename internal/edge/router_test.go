package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaypad/internal/platform/config"
	"relaypad/internal/registry"
)

type errDomainReader struct {
	err   error
	calls int
}

func (e *errDomainReader) Find(_ context.Context, _ string) (*registry.DomainRecord, error) {
	e.calls++
	return nil, e.err
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testConfig() config.Edge {
	return config.Edge{
		PlatformRootDomain: "relaypad.com",
		RequestTimeout:     5 * time.Second,
		LookupTimeout:      time.Second,
		CacheTTL:           time.Minute,
		ExternalProxies:    map[string]string{"blog": "relaypad-blog.pages.example"},
	}
}

func newTestRouter(t *testing.T, domains registry.DomainReader, projects registry.ProjectReader, cfg config.Edge) *Router {
	t.Helper()
	if domains == nil {
		domains = registry.NewInMemoryDomainStore()
	}
	if projects == nil {
		projects = registry.NewInMemoryProjectStore()
	}
	return New(domains, projects, cfg,
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
}

func doHost(router *Router, host string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://placeholder/some/path", nil)
	req.Host = host
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReservedSubdomainsRejected(t *testing.T) {
	// Even a registry entry colliding with a reserved label must not route.
	projects := registry.NewInMemoryProjectStore()
	require.NoError(t, projects.Create(context.Background(), &registry.Project{
		ID: "p1", OrgID: "org-1", Subdomain: "api", BackendURL: "https://backend.internal", Status: registry.ProjectDeployed,
	}))
	router := newTestRouter(t, nil, projects, testConfig())

	for _, sub := range []string{"www", "api", "app", "admin", "dashboard", "docs"} {
		rec := doHost(router, sub+".relaypad.com")
		assert.Equal(t, http.StatusBadRequest, rec.Code, sub)
		assert.JSONEq(t, `{"error":"bad_request","message":"this subdomain is reserved"}`, rec.Body.String())
	}
}

func TestUnknownCustomDomain(t *testing.T) {
	router := newTestRouter(t, nil, nil, testConfig())

	rec := doHost(router, "custom.example.com")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestActiveDomainIsProxied(t *testing.T) {
	var gotHost, gotForwardedHost, gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, "from backend")
	}))
	defer backend.Close()

	domains := registry.NewInMemoryDomainStore()
	require.NoError(t, domains.Create(context.Background(), &registry.DomainRecord{
		Domain: "custom.example.com", ProjectID: "p1", OrgID: "org-1",
		Status: registry.StatusActive, BackendURL: backend.URL,
	}))
	router := newTestRouter(t, domains, nil, testConfig())

	rec := doHost(router, "custom.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from backend", rec.Body.String())
	assert.Equal(t, strings.TrimPrefix(backend.URL, "http://"), gotHost, "origin host must be rewritten")
	assert.Equal(t, "custom.example.com", gotForwardedHost, "original host must be preserved")
	assert.Equal(t, "/some/path", gotPath)
}

func TestInactiveDomainIsNotRouted(t *testing.T) {
	domains := registry.NewInMemoryDomainStore()
	for _, status := range []registry.DomainStatus{
		registry.StatusPendingVerification,
		registry.StatusProvisioning,
		registry.StatusFailed,
	} {
		require.NoError(t, domains.Create(context.Background(), &registry.DomainRecord{
			Domain: strings.ToLower(string(status)) + ".example.com",
			Status: status, BackendURL: "https://backend.internal",
		}))
	}
	router := newTestRouter(t, domains, nil, testConfig())

	for _, host := range []string{"pending_verification.example.com", "provisioning.example.com", "failed.example.com"} {
		rec := doHost(router, host)
		assert.Equal(t, http.StatusNotFound, rec.Code, host)
	}
}

func TestProjectSubdomainIsProxied(t *testing.T) {
	var gotForwardedHost string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
	}))
	defer backend.Close()

	projects := registry.NewInMemoryProjectStore()
	require.NoError(t, projects.Create(context.Background(), &registry.Project{
		ID: "p1", OrgID: "org-1", Subdomain: "myapp", BackendURL: backend.URL, Status: registry.ProjectDeployed,
	}))
	router := newTestRouter(t, nil, projects, testConfig())

	rec := doHost(router, "myapp.relaypad.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "myapp.relaypad.com", gotForwardedHost)
}

func TestUndeployedProjectIsNotRouted(t *testing.T) {
	projects := registry.NewInMemoryProjectStore()
	require.NoError(t, projects.Create(context.Background(), &registry.Project{
		ID: "p1", OrgID: "org-1", Subdomain: "myapp", BackendURL: "https://backend.internal", Status: registry.ProjectDeploying,
	}))
	router := newTestRouter(t, nil, projects, testConfig())

	rec := doHost(router, "myapp.relaypad.com")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExternalProxySkipsRegistry(t *testing.T) {
	domains := &errDomainReader{err: errors.New("must not be called")}
	router := newTestRouter(t, domains, nil, testConfig())

	var gotHost string
	router.proxy.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotHost = req.URL.Host
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("external")),
			Header:     http.Header{},
		}, nil
	})

	rec := doHost(router, "blog.relaypad.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relaypad-blog.pages.example", gotHost)
	assert.Zero(t, domains.calls)
}

func TestStoreErrorsFailClosed(t *testing.T) {
	domains := &errDomainReader{err: errors.New("connection refused")}
	router := newTestRouter(t, domains, nil, testConfig())

	rec := doHost(router, "custom.example.com")
	assert.Equal(t, http.StatusNotFound, rec.Code, "lookup failures must read as a miss, never a default origin")
	assert.Equal(t, 1, domains.calls)
}

func TestBareRootDomainIsNotRouted(t *testing.T) {
	router := newTestRouter(t, nil, nil, testConfig())

	rec := doHost(router, "relaypad.com")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHostNormalization(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	domains := registry.NewInMemoryDomainStore()
	require.NoError(t, domains.Create(context.Background(), &registry.DomainRecord{
		Domain: "custom.example.com", Status: registry.StatusActive, BackendURL: backend.URL,
	}))
	router := newTestRouter(t, domains, nil, testConfig())

	for _, host := range []string{"Custom.Example.COM", "custom.example.com:443", "custom.example.com."} {
		rec := doHost(router, host)
		assert.Equal(t, http.StatusOK, rec.Code, host)
	}
}

func TestLookupCache(t *testing.T) {
	domains := registry.NewInMemoryDomainStore()
	require.NoError(t, domains.Create(context.Background(), &registry.DomainRecord{
		Domain: "custom.example.com", Status: registry.StatusActive, BackendURL: "http://backend.internal",
	}))
	cfg := testConfig()
	cfg.CacheTTL = 50 * time.Millisecond
	router := newTestRouter(t, domains, nil, cfg)
	router.proxy.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: http.Header{}}, nil
	})

	require.Equal(t, http.StatusOK, doHost(router, "custom.example.com").Code)

	// Within the TTL the deleted record is still served from cache.
	require.NoError(t, domains.Delete(context.Background(), "custom.example.com"))
	assert.Equal(t, http.StatusOK, doHost(router, "custom.example.com").Code)

	// Past the TTL removal takes effect at the edge.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, http.StatusNotFound, doHost(router, "custom.example.com").Code)
}
