package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/db"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// DirectoryRepository reads and grows the owner, dog and groomer directory.
type DirectoryRepository struct {
	pool *db.Pool
}

func NewDirectoryRepository(pool *db.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// nameMatch selects rows whose normalized name equals $2 or starts with $2
// as its first word. $2 must already be normalized.
const nameMatch = `(
	regexp_replace(lower(btrim(%[1]s)), '\s+', ' ', 'g') = $2
	OR split_part(regexp_replace(lower(btrim(%[1]s)), '\s+', ' ', 'g'), ' ', 1) = $2
)`

func (r *DirectoryRepository) FindOwners(ctx context.Context, tenantID, name string) ([]model.Owner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, phone, created_at
		FROM owners
		WHERE tenant_id = $1 AND `+match("name")+`
		ORDER BY created_at, id
	`, tenantID, model.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Owner, error) {
		var o model.Owner
		err := row.Scan(&o.ID, &o.TenantID, &o.Name, &o.Phone, &o.CreatedAt)
		return o, err
	})
}

const dogColumns = `
	d.id::text, d.tenant_id::text, d.owner_id::text, d.name, d.created_at,
	o.id::text, o.tenant_id::text, o.name, o.phone, o.created_at`

func scanDog(row pgx.Row) (model.Dog, error) {
	var d model.Dog
	var o model.Owner
	err := row.Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.Name, &d.CreatedAt,
		&o.ID, &o.TenantID, &o.Name, &o.Phone, &o.CreatedAt)
	if err != nil {
		return model.Dog{}, err
	}
	d.Owner = &o
	return d, nil
}

func (r *DirectoryRepository) FindDogs(ctx context.Context, tenantID, name string) ([]model.Dog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dogColumns+`
		FROM dogs d
		JOIN owners o ON o.id = d.owner_id
		WHERE d.tenant_id = $1 AND `+match("d.name")+`
		ORDER BY d.created_at, d.id
	`, tenantID, model.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Dog, error) {
		return scanDog(row)
	})
}

func (r *DirectoryRepository) FindGroomers(ctx context.Context, tenantID, name string) ([]model.Groomer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, username, created_at
		FROM groomers
		WHERE tenant_id = $1 AND `+match("username")+`
		ORDER BY created_at, id
	`, tenantID, model.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Groomer, error) {
		var g model.Groomer
		err := row.Scan(&g.ID, &g.TenantID, &g.Username, &g.CreatedAt)
		return g, err
	})
}

func (r *DirectoryRepository) CreateOwner(ctx context.Context, o model.Owner) (model.Owner, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO owners (tenant_id, name, phone)
		VALUES ($1, $2, $3)
		RETURNING id::text, created_at
	`, o.TenantID, o.Name, o.Phone).Scan(&o.ID, &o.CreatedAt)
	return o, err
}

func (r *DirectoryRepository) CreateDog(ctx context.Context, d model.Dog) (model.Dog, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO dogs (tenant_id, owner_id, name)
		SELECT $1, id, $3 FROM owners WHERE id = $2 AND tenant_id = $1
		RETURNING id::text, created_at
	`, d.TenantID, d.OwnerID, d.Name).Scan(&d.ID, &d.CreatedAt)
	return d, notFound(err)
}

func (r *DirectoryRepository) GetDog(ctx context.Context, tenantID, dogID string) (model.Dog, error) {
	d, err := scanDog(r.pool.QueryRow(ctx, `
		SELECT `+dogColumns+`
		FROM dogs d
		JOIN owners o ON o.id = d.owner_id
		WHERE d.tenant_id = $1 AND d.id = $2
	`, tenantID, dogID))
	return d, notFound(err)
}

func (r *DirectoryRepository) GetGroomer(ctx context.Context, tenantID, groomerID string) (model.Groomer, error) {
	var g model.Groomer
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, username, created_at
		FROM groomers
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, groomerID).Scan(&g.ID, &g.TenantID, &g.Username, &g.CreatedAt)
	return g, notFound(err)
}

func match(column string) string {
	return fmt.Sprintf(nameMatch, column)
}
