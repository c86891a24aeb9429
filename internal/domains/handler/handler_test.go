package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaypad/internal/domains/service"
	"relaypad/internal/platform/middleware"
	"relaypad/internal/registry"
	dErrors "relaypad/pkg/domain-errors"
	"relaypad/pkg/requestcontext"
)

type fakeService struct {
	addResult    *service.AddResult
	addErr       error
	verifyResult *service.VerifyResult
	verifyErr    error
	statusResult *service.StatusResult
	statusErr    error
	listResult   []*registry.DomainRecord
	listErr      error
	removeErr    error

	lastDomain    string
	lastProjectID string
	lastOrgID     string
}

func (f *fakeService) Add(ctx context.Context, domain, projectID string) (*service.AddResult, error) {
	f.lastDomain, f.lastProjectID = domain, projectID
	f.lastOrgID = requestcontext.OrgID(ctx)
	return f.addResult, f.addErr
}

func (f *fakeService) Verify(ctx context.Context, domain string) (*service.VerifyResult, error) {
	f.lastDomain = domain
	f.lastOrgID = requestcontext.OrgID(ctx)
	return f.verifyResult, f.verifyErr
}

func (f *fakeService) Status(ctx context.Context, domain string) (*service.StatusResult, error) {
	f.lastDomain = domain
	return f.statusResult, f.statusErr
}

func (f *fakeService) List(ctx context.Context, projectID string) ([]*registry.DomainRecord, error) {
	f.lastProjectID = projectID
	return f.listResult, f.listErr
}

func (f *fakeService) Remove(ctx context.Context, domain string) error {
	f.lastDomain = domain
	return f.removeErr
}

func newTestRouter(svc Service) chi.Router {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	New(svc, logger, middleware.HeaderOrgResolver{}).Register(r)
	return r
}

func doRequest(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Org-ID", "org-1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAddEndpoint(t *testing.T) {
	svc := &fakeService{addResult: &service.AddResult{
		Domain: "www.example.com",
		Status: registry.StatusPendingVerification,
		Instructions: service.DNSInstructions{
			Type: "CNAME", Name: "www", Value: "edge.relaypad.net",
		},
		Message: "create a CNAME record for www pointing to edge.relaypad.net",
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/domains", `{"domain":"www.example.com","project_id":"proj-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "www.example.com", body["domain"])
	assert.Equal(t, "PENDING_VERIFICATION", body["status"])
	instructions, ok := body["dns_instructions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CNAME", instructions["type"])
	assert.Equal(t, "www", instructions["name"])
	assert.Equal(t, "edge.relaypad.net", instructions["value"])

	assert.Equal(t, "org-1", svc.lastOrgID, "resolved org must reach the service")
	assert.Equal(t, "proj-1", svc.lastProjectID)
}

func TestAddEndpointBadBody(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec := doRequest(t, router, http.MethodPost, "/domains", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/domains", `{"domain":"www.example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "project_id is required")
}

func TestAddEndpointConflict(t *testing.T) {
	svc := &fakeService{addErr: dErrors.New(dErrors.CodeConflict, "domain is already in use")}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/domains", `{"domain":"www.example.com","project_id":"proj-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body["error"])
	assert.Equal(t, "domain is already in use", body["message"])
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/domains?project_id=proj-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	svc := &fakeService{verifyResult: &service.VerifyResult{
		Domain:      "www.example.com",
		DNSVerified: false,
		Status:      registry.StatusPendingVerification,
		Message:     "no DNS records found",
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/domains/www.example.com/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "www.example.com", svc.lastDomain)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["dns_verified"])
	assert.Equal(t, "PENDING_VERIFICATION", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{statusResult: &service.StatusResult{
		Domain:            "www.example.com",
		Status:            registry.StatusActive,
		IsActive:          true,
		CloudStatus:       "Deployed",
		CertificateStatus: "issued",
		Message:           "domain is active",
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/domains/www.example.com/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, "Deployed", body["cloud_status"])
}

func TestStatusEndpointNotFound(t *testing.T) {
	svc := &fakeService{statusErr: dErrors.New(dErrors.CodeNotFound, "domain not found")}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/domains/nope.example.com/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpoint(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{listResult: []*registry.DomainRecord{
		{Domain: "www.example.com", Status: registry.StatusActive, TenantID: "dt_1", CreatedAt: created},
		{Domain: "shop.example.com", Status: registry.StatusPendingVerification, CreatedAt: created},
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/domains?project_id=proj-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "proj-1", svc.lastProjectID)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, true, items[0]["is_active"])
	assert.Equal(t, "dt_1", items[0]["tenant_id"])
	assert.Equal(t, false, items[1]["is_active"])
	_, hasTenant := items[1]["tenant_id"]
	assert.False(t, hasTenant, "pending domains have no tenant id")
}

func TestListEndpointRequiresProjectID(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec := doRequest(t, router, http.MethodGet, "/domains", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveEndpoint(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodDelete, "/domains/WWW.Example.COM", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "www.example.com", svc.lastDomain)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["deleted"])
	assert.Equal(t, "www.example.com", body["domain"], "response echoes the stored key, not the raw path")
}

func TestRemoveEndpointUnavailable(t *testing.T) {
	svc := &fakeService{removeErr: dErrors.New(dErrors.CodeUnavailable, "failed to remove domain from the CDN; try again")}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodDelete, "/domains/www.example.com", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
