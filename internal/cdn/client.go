// Package cdn provisions per-domain tenants on a multi-tenant CloudFront
// distribution. CloudFront requests and renews the managed ACM certificate
// through its own HTTP-challenge validation, so activation needs no manual
// certificate upload.
package cdn

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"

	"relaypad/internal/platform/config"
)

// CloudFrontAPI is the slice of the CloudFront client the provisioner uses.
// Tests provide a fake; production wires *cloudfront.Client.
type CloudFrontAPI interface {
	CreateDistributionTenant(ctx context.Context, params *cloudfront.CreateDistributionTenantInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateDistributionTenantOutput, error)
	GetDistributionTenant(ctx context.Context, params *cloudfront.GetDistributionTenantInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionTenantOutput, error)
	UpdateDistributionTenant(ctx context.Context, params *cloudfront.UpdateDistributionTenantInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionTenantOutput, error)
	DeleteDistributionTenant(ctx context.Context, params *cloudfront.DeleteDistributionTenantInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteDistributionTenantOutput, error)
	GetManagedCertificateDetails(ctx context.Context, params *cloudfront.GetManagedCertificateDetailsInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetManagedCertificateDetailsOutput, error)
	VerifyDnsConfiguration(ctx context.Context, params *cloudfront.VerifyDnsConfigurationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.VerifyDnsConfigurationOutput, error)
}

// ACMAPI is the slice of the ACM client used for best-effort certificate
// cleanup after tenant deletion.
type ACMAPI interface {
	DeleteCertificate(ctx context.Context, params *acm.DeleteCertificateInput, optFns ...func(*acm.Options)) (*acm.DeleteCertificateOutput, error)
}

// NewClients builds the CloudFront and ACM clients. Distribution-level
// resources and their certificates live in us-east-1 regardless of where the
// control plane runs.
func NewClients(ctx context.Context, cfg config.CloudFrontConfig) (CloudFrontAPI, ACMAPI, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	return cloudfront.NewFromConfig(awsCfg), acm.NewFromConfig(awsCfg), nil
}
