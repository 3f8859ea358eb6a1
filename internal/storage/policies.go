package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mhasan-dev/bookline/internal/policy"
	"github.com/mhasan-dev/bookline/libs/db"
)

// PolicyRepository stores one policy document per tenant. Get applies
// defaults when no row exists; Save validates at this boundary so callers
// never see a malformed policy.
type PolicyRepository struct {
	pool *db.Pool
}

func NewPolicyRepository(pool *db.Pool) *PolicyRepository {
	return &PolicyRepository{pool: pool}
}

func (r *PolicyRepository) Get(ctx context.Context, tenantID string) (policy.Policy, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `
		SELECT policy FROM tenant_policies WHERE tenant_id = $1
	`, tenantID).Scan(&doc)
	if IsNotFound(err) {
		return policy.Default(), nil
	}
	if err != nil {
		return policy.Policy{}, err
	}

	p := policy.Default()
	if err := json.Unmarshal(doc, &p); err != nil {
		return policy.Policy{}, fmt.Errorf("decode tenant policy: %w", err)
	}
	return p, nil
}

func (r *PolicyRepository) Save(ctx context.Context, tenantID string, p policy.Policy) error {
	if err := policy.Validate(p); err != nil {
		return err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tenant_policies (tenant_id, policy)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE
		SET policy = EXCLUDED.policy,
			updated_at = now()
	`, tenantID, doc)
	return err
}
