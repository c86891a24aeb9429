package cdn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"relaypad/internal/platform/config"
	"relaypad/pkg/platform/sentinel"
)

// TenantResult is the outcome of tenant creation.
type TenantResult struct {
	TenantID        string
	RoutingEndpoint string
	Status          string
}

// SetupResult is the outcome of one CompleteSetup reconciliation pass.
// Success false with an empty Diagnostic means "not ready yet, poll again".
type SetupResult struct {
	Success           bool
	DNSStatus         string
	DomainStatus      string
	CertificateStatus string
	Diagnostic        string
}

// HealthResult reports the deployment state of an existing tenant.
type HealthResult struct {
	Status  string
	Enabled bool
}

// Provisioner manages per-domain distribution tenants and their managed
// certificates.
//
// Every mutating call fetches the tenant's current ETag immediately
// beforehand and supplies it back. A stale ETag makes CloudFront reject the
// mutation; that surfaces as a failed attempt (sentinel.ErrStaleVersion) and
// is never retried internally.
type Provisioner struct {
	cf             CloudFrontAPI
	acm            ACMAPI
	distributionID string
	routingDomain  string
	logger         *slog.Logger
}

func NewProvisioner(cf CloudFrontAPI, acmClient ACMAPI, cfg config.CloudFrontConfig, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		cf:             cf,
		acm:            acmClient,
		distributionID: cfg.DistributionID,
		routingDomain:  cfg.RoutingEndpoint,
		logger:         logger,
	}
}

// TenantName derives the tenant identifier from the domain: non-alphanumeric
// runes become hyphens and the result is trimmed. Deterministic naming makes
// repeated creation attempts for the same domain recognizable.
func TenantName(domain string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(domain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return "tenant-" + strings.Trim(b.String(), "-")
}

// CreateTenant creates a distribution tenant for domain and requests its
// managed certificate. The customer must already point DNS at the routing
// endpoint: CloudFront validates ownership through that delegation.
func (p *Provisioner) CreateTenant(ctx context.Context, domain, projectID string) (*TenantResult, error) {
	if p.distributionID == "" {
		return nil, errors.New("multi-tenant distribution not configured")
	}

	out, err := p.cf.CreateDistributionTenant(ctx, &cloudfront.CreateDistributionTenantInput{
		DistributionId: aws.String(p.distributionID),
		Name:           aws.String(TenantName(domain)),
		Domains:        []cftypes.DomainItem{{Domain: aws.String(domain)}},
		Enabled:        aws.Bool(true),
		ManagedCertificateRequest: &cftypes.ManagedCertificateRequest{
			ValidationTokenHost:                      cftypes.ValidationTokenHostCloudFront,
			CertificateTransparencyLoggingPreference: cftypes.CertificateTransparencyLoggingPreferenceEnabled,
		},
		Tags: &cftypes.Tags{Items: []cftypes.Tag{
			{Key: aws.String("Service"), Value: aws.String("relaypad")},
			{Key: aws.String("ProjectId"), Value: aws.String(projectID)},
			{Key: aws.String("Domain"), Value: aws.String(domain)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("create distribution tenant for %s: %w", domain, err)
	}

	tenant := out.DistributionTenant
	result := &TenantResult{
		TenantID:        aws.ToString(tenant.Id),
		RoutingEndpoint: p.routingDomain,
		Status:          aws.ToString(tenant.Status),
	}
	p.logger.InfoContext(ctx, "created distribution tenant",
		"domain", domain, "tenant_id", result.TenantID, "status", result.Status)
	return result, nil
}

// CompleteSetup drives the tenant toward serving traffic. Safe to call
// repeatedly; certificate issuance is asynchronous with no callback, so this
// is the polling point:
//
//  1. Re-verify DNS configuration; not valid → pending with diagnostic.
//  2. Domain already active on the tenant → short-circuit success.
//  3. Managed certificate absent or not issued → pending with cert status.
//  4. Associate the issued certificate under a freshly fetched ETag.
//  5. Re-read the tenant and report the per-domain status.
func (p *Provisioner) CompleteSetup(ctx context.Context, tenantID, domain string) (*SetupResult, error) {
	dns, err := p.cf.VerifyDnsConfiguration(ctx, &cloudfront.VerifyDnsConfigurationInput{
		Identifier: aws.String(tenantID),
		Domain:     aws.String(domain),
	})
	if err != nil {
		return nil, fmt.Errorf("verify dns configuration for %s: %w", domain, err)
	}
	dnsStatus, dnsReason := dnsConfigFor(dns.DnsConfigurationList, domain)
	if !strings.HasPrefix(dnsStatus, "valid") {
		return &SetupResult{DNSStatus: dnsStatus, Diagnostic: dnsReason}, nil
	}

	tenant, _, err := p.getTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if status := domainStatusOn(tenant, domain); strings.EqualFold(status, "active") {
		return &SetupResult{Success: true, DNSStatus: dnsStatus, DomainStatus: "active", CertificateStatus: "issued"}, nil
	}

	cert, err := p.cf.GetManagedCertificateDetails(ctx, &cloudfront.GetManagedCertificateDetailsInput{
		Identifier: aws.String(tenantID),
	})
	if err != nil {
		return nil, fmt.Errorf("get managed certificate details for %s: %w", tenantID, err)
	}
	details := cert.ManagedCertificateDetails
	if details == nil || aws.ToString(details.CertificateArn) == "" {
		return &SetupResult{DNSStatus: dnsStatus, CertificateStatus: "pending"}, nil
	}
	certStatus := strings.ToLower(string(details.CertificateStatus))
	if certStatus != "issued" {
		return &SetupResult{DNSStatus: dnsStatus, CertificateStatus: certStatus}, nil
	}

	// Fresh ETag right before the mutation: a concurrent verify that moved
	// the tenant in between makes this attempt fail instead of clobbering.
	tenant, etag, err := p.getTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	_, err = p.cf.UpdateDistributionTenant(ctx, &cloudfront.UpdateDistributionTenantInput{
		Id:             tenant.Id,
		IfMatch:        aws.String(etag),
		DistributionId: tenant.DistributionId,
		Domains:        domainItems(tenant.Domains),
		Enabled:        tenant.Enabled,
		Customizations: &cftypes.Customizations{
			Certificate: &cftypes.Certificate{Arn: details.CertificateArn},
		},
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("associate certificate for %s: %w", domain, sentinel.ErrStaleVersion)
		}
		return nil, fmt.Errorf("associate certificate for %s: %w", domain, err)
	}
	p.logger.InfoContext(ctx, "associated managed certificate",
		"tenant_id", tenantID, "domain", domain, "certificate_arn", aws.ToString(details.CertificateArn))

	tenant, _, err = p.getTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	domainStatus := strings.ToLower(domainStatusOn(tenant, domain))
	return &SetupResult{
		Success:           strings.EqualFold(domainStatus, "active"),
		DNSStatus:         dnsStatus,
		DomainStatus:      domainStatus,
		CertificateStatus: "issued",
	}, nil
}

// TenantStatus reports tenant deployment health without mutating anything.
func (p *Provisioner) TenantStatus(ctx context.Context, tenantID string) (*HealthResult, error) {
	tenant, _, err := p.getTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &HealthResult{
		Status:  aws.ToString(tenant.Status),
		Enabled: aws.ToBool(tenant.Enabled),
	}, nil
}

// DeleteTenant tears a tenant down: disable (a deletion precondition), delete
// the tenant, then delete the orphaned certificate. Certificate deletion is
// best-effort; an "in use" race or an already-deleted certificate is logged
// and tolerated, not propagated.
func (p *Provisioner) DeleteTenant(ctx context.Context, tenantID string) error {
	tenant, etag, err := p.getTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			p.logger.InfoContext(ctx, "tenant already deleted", "tenant_id", tenantID)
			return nil
		}
		return err
	}

	var certArn string
	if tenant.Customizations != nil && tenant.Customizations.Certificate != nil {
		certArn = aws.ToString(tenant.Customizations.Certificate.Arn)
	}
	if certArn == "" {
		// A tenant torn down mid-provisioning may hold an issued managed
		// certificate that was never associated. Best-effort lookup so that
		// certificate is cleaned up too.
		if cert, cerr := p.cf.GetManagedCertificateDetails(ctx, &cloudfront.GetManagedCertificateDetailsInput{
			Identifier: aws.String(tenantID),
		}); cerr == nil && cert.ManagedCertificateDetails != nil {
			certArn = aws.ToString(cert.ManagedCertificateDetails.CertificateArn)
		}
	}

	if aws.ToBool(tenant.Enabled) {
		_, err = p.cf.UpdateDistributionTenant(ctx, &cloudfront.UpdateDistributionTenantInput{
			Id:             tenant.Id,
			IfMatch:        aws.String(etag),
			DistributionId: tenant.DistributionId,
			Domains:        domainItems(tenant.Domains),
			Customizations: tenant.Customizations,
			Enabled:        aws.Bool(false),
		})
		if err != nil {
			if isPreconditionFailed(err) {
				return fmt.Errorf("disable tenant %s: %w", tenantID, sentinel.ErrStaleVersion)
			}
			return fmt.Errorf("disable tenant %s: %w", tenantID, err)
		}
		// Disabling bumps the version; re-fetch before deleting.
		if _, etag, err = p.getTenant(ctx, tenantID); err != nil {
			return err
		}
	}

	_, err = p.cf.DeleteDistributionTenant(ctx, &cloudfront.DeleteDistributionTenantInput{
		Id:      aws.String(tenantID),
		IfMatch: aws.String(etag),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete tenant %s: %w", tenantID, err)
	}
	p.logger.InfoContext(ctx, "deleted distribution tenant", "tenant_id", tenantID)

	if certArn != "" {
		if _, err := p.acm.DeleteCertificate(ctx, &acm.DeleteCertificateInput{CertificateArn: aws.String(certArn)}); err != nil {
			p.logger.WarnContext(ctx, "orphaned certificate not deleted, leaving for async cleanup",
				"tenant_id", tenantID, "certificate_arn", certArn, "error", err)
		}
	}
	return nil
}

func (p *Provisioner) getTenant(ctx context.Context, tenantID string) (*cftypes.DistributionTenant, string, error) {
	out, err := p.cf.GetDistributionTenant(ctx, &cloudfront.GetDistributionTenantInput{
		Identifier: aws.String(tenantID),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
		}
		return nil, "", fmt.Errorf("get tenant %s: %w", tenantID, err)
	}
	return out.DistributionTenant, aws.ToString(out.ETag), nil
}

func domainStatusOn(tenant *cftypes.DistributionTenant, domain string) string {
	if tenant == nil {
		return ""
	}
	for _, d := range tenant.Domains {
		if strings.EqualFold(aws.ToString(d.Domain), domain) {
			return string(d.Status)
		}
	}
	return ""
}

func domainItems(results []cftypes.DomainResult) []cftypes.DomainItem {
	items := make([]cftypes.DomainItem, 0, len(results))
	for _, r := range results {
		items = append(items, cftypes.DomainItem{Domain: r.Domain})
	}
	return items
}

func dnsConfigFor(list []cftypes.DnsConfiguration, domain string) (status, reason string) {
	for _, cfg := range list {
		if strings.EqualFold(aws.ToString(cfg.Domain), domain) {
			return strings.ToLower(string(cfg.Status)), aws.ToString(cfg.Reason)
		}
	}
	return "unknown-configuration", "no dns configuration reported for domain"
}

func isNotFound(err error) bool {
	var nf *cftypes.EntityNotFound
	return errors.As(err, &nf)
}

func isPreconditionFailed(err error) bool {
	var pf *cftypes.PreconditionFailed
	return errors.As(err, &pf)
}
