package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"relaypad/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Schema for the registry tables. Domains are keyed by the normalized
// hostname (primary access path); projects carry an indexed subdomain column
// so the edge subdomain lookup does not scan.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    org_id      TEXT NOT NULL,
    id          TEXT NOT NULL,
    subdomain   TEXT NOT NULL,
    backend_url TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (org_id, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS projects_subdomain_idx ON projects (subdomain);

CREATE TABLE IF NOT EXISTS domains (
    domain       TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL,
    org_id       TEXT NOT NULL,
    status       TEXT NOT NULL,
    cname_target TEXT NOT NULL,
    tenant_id    TEXT NOT NULL DEFAULT '',
    backend_url  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS domains_project_idx ON domains (org_id, project_id);
`

// PostgresDomainStore persists domain records in PostgreSQL.
type PostgresDomainStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDomainStore(pool *pgxpool.Pool) *PostgresDomainStore {
	return &PostgresDomainStore{pool: pool}
}

// EnsureSchema creates the registry tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

func (s *PostgresDomainStore) Create(ctx context.Context, record *DomainRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO domains (domain, project_id, org_id, status, cname_target, tenant_id, backend_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.Domain, record.ProjectID, record.OrgID, record.Status,
		record.CNAMETarget, record.TenantID, record.BackendURL, record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create domain: %w", err)
	}
	return nil
}

func (s *PostgresDomainStore) Find(ctx context.Context, domain string) (*DomainRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT domain, project_id, org_id, status, cname_target, tenant_id, backend_url, created_at
		FROM domains WHERE domain = $1`, domain)
	return scanDomain(row)
}

func (s *PostgresDomainStore) Update(ctx context.Context, domain string, update DomainUpdate) (*DomainRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE domains SET
			status      = COALESCE($2, status),
			tenant_id   = COALESCE($3, tenant_id),
			backend_url = COALESCE($4, backend_url)
		WHERE domain = $1
		RETURNING domain, project_id, org_id, status, cname_target, tenant_id, backend_url, created_at`,
		domain, (*string)(update.Status), update.TenantID, update.BackendURL,
	)
	return scanDomain(row)
}

func (s *PostgresDomainStore) Delete(ctx context.Context, domain string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM domains WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresDomainStore) ListByProject(ctx context.Context, orgID, projectID string) ([]*DomainRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT domain, project_id, org_id, status, cname_target, tenant_id, backend_url, created_at
		FROM domains WHERE org_id = $1 AND project_id = $2
		ORDER BY created_at`, orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []*DomainRecord
	for rows.Next() {
		record, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func scanDomain(row pgx.Row) (*DomainRecord, error) {
	var record DomainRecord
	err := row.Scan(
		&record.Domain, &record.ProjectID, &record.OrgID, &record.Status,
		&record.CNAMETarget, &record.TenantID, &record.BackendURL, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	return &record, nil
}

// PostgresProjectStore persists project records in PostgreSQL.
type PostgresProjectStore struct {
	pool *pgxpool.Pool
}

func NewPostgresProjectStore(pool *pgxpool.Pool) *PostgresProjectStore {
	return &PostgresProjectStore{pool: pool}
}

func (s *PostgresProjectStore) Create(ctx context.Context, project *Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (org_id, id, subdomain, backend_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		project.OrgID, project.ID, project.Subdomain, project.BackendURL, project.Status, project.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresProjectStore) Get(ctx context.Context, orgID, projectID string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT org_id, id, subdomain, backend_url, status, created_at
		FROM projects WHERE org_id = $1 AND id = $2`, orgID, projectID)
	return scanProject(row)
}

func (s *PostgresProjectStore) FindBySubdomain(ctx context.Context, subdomain string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT org_id, id, subdomain, backend_url, status, created_at
		FROM projects WHERE subdomain = $1`, subdomain)
	return scanProject(row)
}

func scanProject(row pgx.Row) (*Project, error) {
	var project Project
	err := row.Scan(
		&project.OrgID, &project.ID, &project.Subdomain,
		&project.BackendURL, &project.Status, &project.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &project, nil
}
