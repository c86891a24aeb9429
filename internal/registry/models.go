package registry

import "time"

// DomainStatus is the lifecycle state of a custom domain.
//
// Transitions: PENDING_VERIFICATION → PROVISIONING → ACTIVE, with FAILED as a
// terminal-but-recoverable branch (re-verifying a FAILED domain restarts
// provisioning). ACTIVE is never downgraded by status polls.
type DomainStatus string

const (
	StatusPendingVerification DomainStatus = "PENDING_VERIFICATION"
	StatusProvisioning        DomainStatus = "PROVISIONING"
	StatusActive              DomainStatus = "ACTIVE"
	StatusFailed              DomainStatus = "FAILED"
)

// DomainRecord is the persisted state for one custom hostname.
//
// Invariants:
//   - Domain is lowercase and globally unique (prevents cross-project hijack)
//   - TenantID is set only after successful CDN provisioning
//   - Status ACTIVE implies TenantID is set and the certificate is issued
//   - BackendURL is denormalized from the owning project so the edge path
//     never joins
type DomainRecord struct {
	Domain      string       `json:"domain"`
	ProjectID   string       `json:"project_id"`
	OrgID       string       `json:"org_id"`
	Status      DomainStatus `json:"status"`
	CNAMETarget string       `json:"cname_target"`
	TenantID    string       `json:"tenant_id,omitempty"`
	BackendURL  string       `json:"backend_url"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ProjectStatus is the deployment state of a compute unit.
type ProjectStatus string

const (
	ProjectDeploying ProjectStatus = "DEPLOYING"
	ProjectDeployed  ProjectStatus = "DEPLOYED"
	ProjectFailed    ProjectStatus = "FAILED"
)

// Project is the compute unit a domain forwards to. Each project owns one
// platform-assigned subdomain and one backend endpoint.
type Project struct {
	ID         string        `json:"id"`
	OrgID      string        `json:"org_id"`
	Subdomain  string        `json:"subdomain"`
	BackendURL string        `json:"backend_url"`
	Status     ProjectStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Routable reports whether the edge may forward traffic to this project.
func (p *Project) Routable() bool {
	return p.Status == ProjectDeployed && p.BackendURL != ""
}

// DomainUpdate is a partial update applied to a domain record. Nil fields
// are left untouched.
type DomainUpdate struct {
	Status     *DomainStatus
	TenantID   *string
	BackendURL *string
}
