package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mhasan-dev/bookline/internal/model"
)

const userColumns = `
	id::text, tenant_id::text, name, email, COALESCE(phone, ''), role, is_active, created_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

func (r *Repository) GetUser(ctx context.Context, tenantID, userID string) (model.User, bool, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND tenant_id = $2
	`, userID, tenantID))
	if IsNotFound(err) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

func (r *Repository) GetProvider(ctx context.Context, tenantID, providerID string) (model.User, bool, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND tenant_id = $2 AND role = 'provider'
	`, providerID, tenantID))
	if IsNotFound(err) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

func (r *Repository) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, bool, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, duration_minutes, price_cents,
			COALESCE(currency, ''), COALESCE(description, ''), COALESCE(image_url, ''), is_active, created_at
		FROM services
		WHERE id = $1 AND tenant_id = $2
	`, serviceID, tenantID).Scan(
		&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMins, &svc.PriceCents,
		&svc.Currency, &svc.Description, &svc.ImageURL, &svc.IsActive, &svc.CreatedAt,
	)
	if IsNotFound(err) {
		return model.Service{}, false, nil
	}
	if err != nil {
		return model.Service{}, false, err
	}
	return svc, true, nil
}

func (r *Repository) GetTenantName(ctx context.Context, tenantID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT name FROM tenants WHERE id = $1
	`, tenantID).Scan(&name)
	if IsNotFound(err) {
		return "", nil
	}
	return name, err
}

// ResolveClient finds or creates the client record, idempotent by
// (tenant, email). A repeat booking refreshes name and phone.
func (t *bookingTx) ResolveClient(ctx context.Context, tenantID, name, email, phone string) (model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `
		INSERT INTO users (tenant_id, name, email, phone, role, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), 'client', true)
		ON CONFLICT (tenant_id, email) DO UPDATE
		SET name = EXCLUDED.name,
			phone = COALESCE(EXCLUDED.phone, users.phone)
		RETURNING `+userColumns+`
	`, tenantID, name, email, phone))
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}
