package registry

import (
	"context"
	"sync"

	"relaypad/pkg/platform/sentinel"
)

// InMemoryDomainStore keeps domain records in process memory. Used in tests
// and for local development without Postgres.
type InMemoryDomainStore struct {
	mu      sync.RWMutex
	domains map[string]*DomainRecord
}

func NewInMemoryDomainStore() *InMemoryDomainStore {
	return &InMemoryDomainStore{domains: make(map[string]*DomainRecord)}
}

func (s *InMemoryDomainStore) Create(_ context.Context, record *DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.domains[record.Domain]; exists {
		return sentinel.ErrConflict
	}
	cp := *record
	s.domains[record.Domain] = &cp
	return nil
}

func (s *InMemoryDomainStore) Find(_ context.Context, domain string) (*DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.domains[domain]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryDomainStore) Update(_ context.Context, domain string, update DomainUpdate) (*DomainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.domains[domain]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if update.Status != nil {
		record.Status = *update.Status
	}
	if update.TenantID != nil {
		record.TenantID = *update.TenantID
	}
	if update.BackendURL != nil {
		record.BackendURL = *update.BackendURL
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryDomainStore) Delete(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[domain]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.domains, domain)
	return nil
}

func (s *InMemoryDomainStore) ListByProject(_ context.Context, orgID, projectID string) ([]*DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*DomainRecord
	for _, record := range s.domains {
		if record.OrgID == orgID && record.ProjectID == projectID {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

// InMemoryProjectStore keeps project records in process memory.
type InMemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*Project // keyed by orgID/projectID
}

func NewInMemoryProjectStore() *InMemoryProjectStore {
	return &InMemoryProjectStore{projects: make(map[string]*Project)}
}

func projectKey(orgID, projectID string) string {
	return orgID + "/" + projectID
}

func (s *InMemoryProjectStore) Create(_ context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := projectKey(project.OrgID, project.ID)
	if _, exists := s.projects[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *project
	s.projects[key] = &cp
	return nil
}

func (s *InMemoryProjectStore) Get(_ context.Context, orgID, projectID string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[projectKey(orgID, projectID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *project
	return &cp, nil
}

// FindBySubdomain scans; the memory store has no secondary index. The
// Postgres store serves this from an indexed column instead.
func (s *InMemoryProjectStore) FindBySubdomain(_ context.Context, subdomain string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, project := range s.projects {
		if project.Subdomain == subdomain {
			cp := *project
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
