package postgres

import (
	"context"
	"fmt"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreRepository writes the local mirror of upstream stores, keyed by the
// upstream id. Dependent store_expenses rows are removed by FK cascade.
type StoreRepository struct {
	pool *pgxpool.Pool
}

func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

func (r *StoreRepository) Upsert(ctx context.Context, s *store.Store) error {
	const query = `
		INSERT INTO stores (
			id, name, manual_id,
			address_line1, address_line2, city, state, country, postal_code,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			manual_id = EXCLUDED.manual_id,
			address_line1 = EXCLUDED.address_line1,
			address_line2 = EXCLUDED.address_line2,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			country = EXCLUDED.country,
			postal_code = EXCLUDED.postal_code,
			updated_at = NOW()
	`

	_, err := r.exec(ctx).Exec(ctx, query,
		s.ID, s.Name, s.ManualID,
		s.AddressLine1, s.AddressLine2, s.City, s.State, s.Country, s.PostalCode)
	if err != nil {
		return fmt.Errorf("upsert store: %w", err)
	}

	return nil
}

func (r *StoreRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`

	var exists bool
	if err := r.query(ctx).QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check store exists: %w", err)
	}

	return exists, nil
}

func (r *StoreRepository) UpdateName(ctx context.Context, id int64, name string) error {
	const query = `UPDATE stores SET name = $2, updated_at = NOW() WHERE id = $1`

	_, err := r.exec(ctx).Exec(ctx, query, id, name)
	if err != nil {
		return fmt.Errorf("update store name: %w", err)
	}

	return nil
}

// UpdateMetadata rewrites the flattened address columns from the event's
// nested metadata object.
func (r *StoreRepository) UpdateMetadata(ctx context.Context, id int64, manualID string, m store.Metadata) error {
	const query = `
		UPDATE stores
		SET manual_id = $2,
			address_line1 = $3, address_line2 = $4,
			city = $5, state = $6, country = $7, postal_code = $8,
			updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.exec(ctx).Exec(ctx, query, id, manualID,
		m.AddressLine1, m.AddressLine2, m.City, m.State, m.Country, m.PostalCode)
	if err != nil {
		return fmt.Errorf("update store metadata: %w", err)
	}

	return nil
}

// Delete removes the store by id. Conditional delete: a missing id is a
// silent no-op.
func (r *StoreRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM stores WHERE id = $1`

	_, err := r.exec(ctx).Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete store: %w", err)
	}

	return nil
}

func (r *StoreRepository) exec(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
} {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *StoreRepository) query(ctx context.Context) interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}
