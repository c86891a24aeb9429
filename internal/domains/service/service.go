// Package service orchestrates the custom-domain lifecycle:
// PENDING_VERIFICATION → PROVISIONING → ACTIVE, with FAILED recoverable by
// re-verifying. All operations run synchronously inside the request; there is
// no background worker, so client polling of verify/status is part of the
// contract, not an optimization.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"relaypad/internal/cdn"
	"relaypad/internal/dnsverify"
	"relaypad/internal/domains/metrics"
	"relaypad/internal/registry"
	dErrors "relaypad/pkg/domain-errors"
	"relaypad/pkg/hostname"
	"relaypad/pkg/platform/sentinel"
	"relaypad/pkg/requestcontext"
)

// Verifier resolves live DNS for a domain against the expected CNAME target.
type Verifier interface {
	Verify(ctx context.Context, domain, expectedTarget string) dnsverify.Result
}

// Provisioner manages CDN tenants for custom domains.
type Provisioner interface {
	CreateTenant(ctx context.Context, domain, projectID string) (*cdn.TenantResult, error)
	CompleteSetup(ctx context.Context, tenantID, domain string) (*cdn.SetupResult, error)
	TenantStatus(ctx context.Context, tenantID string) (*cdn.HealthResult, error)
	DeleteTenant(ctx context.Context, tenantID string) error
}

// DNSInstructions is the record the customer must create at their registrar.
type DNSInstructions struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AddResult is returned by Add.
type AddResult struct {
	Domain       string                `json:"domain"`
	Status       registry.DomainStatus `json:"status"`
	Instructions DNSInstructions       `json:"dns_instructions"`
	IsApexDomain bool                  `json:"is_apex_domain"`
	Message      string                `json:"message"`
}

// VerifyResult is returned by Verify.
type VerifyResult struct {
	Domain            string                `json:"domain"`
	DNSVerified       bool                  `json:"dns_verified"`
	Status            registry.DomainStatus `json:"status"`
	Message           string                `json:"message"`
	CertificateStatus string                `json:"certificate_status,omitempty"`
	DNS               *dnsverify.Result     `json:"dns_result,omitempty"`
}

// StatusResult is returned by Status.
type StatusResult struct {
	Domain            string                `json:"domain"`
	Status            registry.DomainStatus `json:"status"`
	IsActive          bool                  `json:"is_active"`
	CloudStatus       string                `json:"cloud_status,omitempty"`
	CertificateStatus string                `json:"certificate_status,omitempty"`
	Message           string                `json:"message"`
}

// Service orchestrates domain lifecycle operations. The authenticated
// organization is read from the request context; ownership is checked before
// every operation and unknown/unowned domains answer with one uniform
// not-found message.
type Service struct {
	domains     registry.DomainStore
	projects    registry.ProjectStore
	verifier    Verifier
	provisioner Provisioner
	rootDomain  string
	cnameTarget string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. rootDomain is the platform's own domain, under
// which customers cannot claim hostnames; cnameTarget is the routing endpoint
// customers point their DNS at.
func New(domains registry.DomainStore, projects registry.ProjectStore, verifier Verifier, provisioner Provisioner, rootDomain, cnameTarget string, opts ...Option) *Service {
	s := &Service{
		domains:     domains,
		projects:    projects,
		verifier:    verifier,
		provisioner: provisioner,
		rootDomain:  strings.ToLower(rootDomain),
		cnameTarget: cnameTarget,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add claims a domain for a project and returns the DNS record the customer
// must create. The new record starts in PENDING_VERIFICATION.
func (s *Service) Add(ctx context.Context, domain, projectID string) (*AddResult, error) {
	orgID := requestcontext.OrgID(ctx)
	domain = hostname.Normalize(domain)

	if !hostname.Valid(domain) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid domain name")
	}
	if domain == s.rootDomain || strings.HasSuffix(domain, "."+s.rootDomain) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subdomains of the platform domain are assigned automatically and cannot be added")
	}

	project, err := s.projects.Get(ctx, orgID, projectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}

	// Pre-check for a friendlier conflict message; the store's uniqueness
	// constraint is what actually closes the race.
	if existing, err := s.domains.Find(ctx, domain); err == nil {
		if existing.OrgID == orgID && existing.ProjectID == projectID {
			return nil, dErrors.New(dErrors.CodeConflict, "domain is already added to this project")
		}
		return nil, dErrors.New(dErrors.CodeConflict, "domain is already in use")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check domain availability")
	}

	record := &registry.DomainRecord{
		Domain:      domain,
		ProjectID:   projectID,
		OrgID:       orgID,
		Status:      registry.StatusPendingVerification,
		CNAMETarget: s.cnameTarget,
		BackendURL:  project.BackendURL,
		CreatedAt:   requestcontext.Now(ctx).UTC(),
	}
	if err := s.domains.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "domain is already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save domain")
	}

	s.logger.InfoContext(ctx, "domain added",
		"domain", domain, "project_id", projectID, "org_id", orgID,
		"request_id", requestcontext.RequestID(ctx))
	if s.metrics != nil {
		s.metrics.DomainsAdded.Inc()
	}

	isApex := hostname.IsApex(domain)
	result := &AddResult{
		Domain:       domain,
		Status:       record.Status,
		IsApexDomain: isApex,
		Instructions: DNSInstructions{Type: "CNAME", Name: hostname.FirstLabel(domain), Value: s.cnameTarget},
	}
	if isApex {
		result.Instructions.Name = "@"
		result.Message = "create a CNAME record for @ pointing to " + s.cnameTarget +
			"; apex domains need a DNS provider with CNAME flattening or ALIAS support"
	} else {
		result.Message = "create a CNAME record for " + result.Instructions.Name + " pointing to " + s.cnameTarget
	}
	return result, nil
}

// Verify checks DNS delegation and, once confirmed, drives provisioning as
// far as the external services allow in this single call. Unverified DNS and
// pending certificates are statuses to poll on, not errors.
func (s *Service) Verify(ctx context.Context, domain string) (*VerifyResult, error) {
	start := time.Now()
	record, err := s.owned(ctx, domain)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		defer s.metrics.ObserveVerify(start)
	}

	if record.Status == registry.StatusActive && record.TenantID != "" {
		return &VerifyResult{
			Domain:            record.Domain,
			DNSVerified:       true,
			Status:            registry.StatusActive,
			CertificateStatus: "issued",
			Message:           "domain is active",
		}, nil
	}

	dnsResult := s.verifier.Verify(ctx, record.Domain, record.CNAMETarget)
	if !dnsResult.Verified {
		if s.metrics != nil {
			s.metrics.VerifyFailures.Inc()
		}
		return &VerifyResult{
			Domain:      record.Domain,
			DNSVerified: false,
			Status:      record.Status,
			Message:     dnsResult.Error,
			DNS:         &dnsResult,
		}, nil
	}

	tenantID := record.TenantID
	if tenantID == "" {
		created, err := s.provisioner.CreateTenant(ctx, record.Domain, record.ProjectID)
		if err != nil {
			s.logger.ErrorContext(ctx, "tenant creation failed",
				"domain", record.Domain, "error", err,
				"request_id", requestcontext.RequestID(ctx))
			if _, uerr := s.transition(ctx, record.Domain, registry.StatusFailed); uerr != nil {
				return nil, uerr
			}
			return &VerifyResult{
				Domain:      record.Domain,
				DNSVerified: true,
				Status:      registry.StatusFailed,
				Message:     "CDN provisioning failed: " + err.Error() + "; call verify again to retry",
			}, nil
		}
		tenantID = created.TenantID
		status := registry.StatusProvisioning
		if _, err := s.domains.Update(ctx, record.Domain, registry.DomainUpdate{Status: &status, TenantID: &tenantID}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save domain")
		}
	} else if record.Status != registry.StatusProvisioning {
		// Re-verify after partial progress or a FAILED attempt.
		if _, err := s.transition(ctx, record.Domain, registry.StatusProvisioning); err != nil {
			return nil, err
		}
	}

	return s.attemptSetup(ctx, record.Domain, tenantID, true)
}

// Status reports the current lifecycle state. An ACTIVE record is never
// downgraded here; a provisioning record with a tenant gets an opportunistic
// setup attempt, which is the only path from PROVISIONING to ACTIVE after the
// initial verify call.
func (s *Service) Status(ctx context.Context, domain string) (*StatusResult, error) {
	record, err := s.owned(ctx, domain)
	if err != nil {
		return nil, err
	}

	if record.Status == registry.StatusActive {
		result := &StatusResult{
			Domain:            record.Domain,
			Status:            registry.StatusActive,
			IsActive:          true,
			CertificateStatus: "issued",
			Message:           "domain is active",
		}
		if health, err := s.provisioner.TenantStatus(ctx, record.TenantID); err != nil {
			// Transient misreads must not oscillate a live domain.
			s.logger.WarnContext(ctx, "tenant health check failed",
				"domain", record.Domain, "tenant_id", record.TenantID, "error", err)
		} else {
			result.CloudStatus = health.Status
		}
		return result, nil
	}

	if record.TenantID != "" {
		verifyResult, err := s.attemptSetup(ctx, record.Domain, record.TenantID, false)
		if err != nil {
			return nil, err
		}
		return &StatusResult{
			Domain:            record.Domain,
			Status:            verifyResult.Status,
			IsActive:          verifyResult.Status == registry.StatusActive,
			CertificateStatus: verifyResult.CertificateStatus,
			Message:           verifyResult.Message,
		}, nil
	}

	result := &StatusResult{Domain: record.Domain, Status: record.Status}
	switch record.Status {
	case registry.StatusFailed:
		result.Message = "provisioning failed; call verify to retry"
	default:
		result.Message = "waiting for DNS verification; create the CNAME record and call verify"
	}
	return result, nil
}

// List returns all domains attached to a project the caller owns.
func (s *Service) List(ctx context.Context, projectID string) ([]*registry.DomainRecord, error) {
	orgID := requestcontext.OrgID(ctx)
	if _, err := s.projects.Get(ctx, orgID, projectID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	records, err := s.domains.ListByProject(ctx, orgID, projectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	return records, nil
}

// Remove tears down the CDN tenant if one exists and deletes the record.
func (s *Service) Remove(ctx context.Context, domain string) error {
	record, err := s.owned(ctx, domain)
	if err != nil {
		return err
	}

	if record.TenantID != "" {
		if err := s.provisioner.DeleteTenant(ctx, record.TenantID); err != nil {
			s.logger.ErrorContext(ctx, "tenant teardown failed",
				"domain", record.Domain, "tenant_id", record.TenantID, "error", err)
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to remove domain from the CDN; try again")
		}
	}

	if err := s.domains.Delete(ctx, record.Domain); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete domain")
	}

	s.logger.InfoContext(ctx, "domain removed",
		"domain", record.Domain, "org_id", record.OrgID,
		"request_id", requestcontext.RequestID(ctx))
	if s.metrics != nil {
		s.metrics.DomainsRemoved.Inc()
	}
	return nil
}

// attemptSetup runs one CompleteSetup pass and folds the outcome into the
// stored status. External-service failures degrade to "still provisioning"
// with a diagnostic instead of an error; the client's contract is to poll.
func (s *Service) attemptSetup(ctx context.Context, domain, tenantID string, dnsVerified bool) (*VerifyResult, error) {
	start := time.Now()
	setup, err := s.provisioner.CompleteSetup(ctx, tenantID, domain)
	if s.metrics != nil {
		s.metrics.ObserveProvision(start)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "setup attempt failed",
			"domain", domain, "tenant_id", tenantID, "error", err,
			"request_id", requestcontext.RequestID(ctx))
		return &VerifyResult{
			Domain:      domain,
			DNSVerified: dnsVerified,
			Status:      registry.StatusProvisioning,
			Message:     "provisioning in progress; check status again shortly",
		}, nil
	}

	if setup.Success {
		if _, err := s.transition(ctx, domain, registry.StatusActive); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.DomainsActivated.Inc()
		}
		s.logger.InfoContext(ctx, "domain activated",
			"domain", domain, "tenant_id", tenantID,
			"request_id", requestcontext.RequestID(ctx))
		return &VerifyResult{
			Domain:            domain,
			DNSVerified:       true,
			Status:            registry.StatusActive,
			CertificateStatus: "issued",
			Message:           "domain is active",
		}, nil
	}

	message := "certificate issuance in progress; check status again shortly"
	if setup.Diagnostic != "" {
		message = setup.Diagnostic
	}
	return &VerifyResult{
		Domain:            domain,
		DNSVerified:       dnsVerified,
		Status:            registry.StatusProvisioning,
		CertificateStatus: setup.CertificateStatus,
		Message:           message,
	}, nil
}

// owned loads a domain record and checks it belongs to the caller's org.
// Unknown and unowned domains are indistinguishable to the caller.
func (s *Service) owned(ctx context.Context, domain string) (*registry.DomainRecord, error) {
	record, err := s.domains.Find(ctx, hostname.Normalize(domain))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "domain not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load domain")
	}
	if record.OrgID != requestcontext.OrgID(ctx) {
		return nil, dErrors.New(dErrors.CodeNotFound, "domain not found")
	}
	return record, nil
}

func (s *Service) transition(ctx context.Context, domain string, status registry.DomainStatus) (*registry.DomainRecord, error) {
	record, err := s.domains.Update(ctx, domain, registry.DomainUpdate{Status: &status})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save domain")
	}
	return record, nil
}
