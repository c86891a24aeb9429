package registry

import "context"

// DomainStore persists domain records. Implementations return
// sentinel.ErrNotFound / sentinel.ErrConflict; services translate those into
// domain errors.
type DomainStore interface {
	// Create inserts a new record. Returns sentinel.ErrConflict when the
	// domain is already claimed (by any project; uniqueness is global).
	Create(ctx context.Context, record *DomainRecord) error

	// Find returns the record for an exact, normalized domain. This is the
	// O(1) primary access path the edge router depends on.
	Find(ctx context.Context, domain string) (*DomainRecord, error)

	// Update applies a partial update and returns the resulting record.
	Update(ctx context.Context, domain string, update DomainUpdate) (*DomainRecord, error)

	// Delete removes the record. Deleting an absent domain returns
	// sentinel.ErrNotFound.
	Delete(ctx context.Context, domain string) error

	// ListByProject returns all domains attached to a project.
	ListByProject(ctx context.Context, orgID, projectID string) ([]*DomainRecord, error)
}

// ProjectStore exposes the project records domains attach to. Project
// lifecycle (deploys, backend URL changes) is owned elsewhere; this service
// only reads and seeds them.
type ProjectStore interface {
	Create(ctx context.Context, project *Project) error
	Get(ctx context.Context, orgID, projectID string) (*Project, error)

	// FindBySubdomain resolves a platform subdomain to its project. Served
	// from a secondary index; still bounded by the edge lookup timeout.
	FindBySubdomain(ctx context.Context, subdomain string) (*Project, error)
}

// DomainReader is the read-only slice of DomainStore the edge router needs.
type DomainReader interface {
	Find(ctx context.Context, domain string) (*DomainRecord, error)
}

// ProjectReader is the read-only subdomain lookup the edge router needs.
type ProjectReader interface {
	FindBySubdomain(ctx context.Context, subdomain string) (*Project, error)
}
