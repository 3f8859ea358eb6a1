package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/outbox"
)

func (r *Repository) GetRule(ctx context.Context, tenantID, ruleID string) (model.RecurringRule, bool, error) {
	var rule model.RecurringRule
	var daysOfWeek []int32
	var endDate *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, client_id::text, provider_id::text, service_id::text,
			frequency, interval_count, days_of_week, COALESCE(day_of_month, 0),
			anchor_time, duration_minutes, end_date, COALESCE(max_occurrences, 0),
			payment_method, is_active, created_at
		FROM recurring_rules
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID).Scan(
		&rule.ID, &rule.TenantID, &rule.ClientID, &rule.ProviderID, &rule.ServiceID,
		&rule.Frequency, &rule.Interval, &daysOfWeek, &rule.DayOfMonth,
		&rule.Anchor, &rule.DurationMins, &endDate, &rule.MaxOccurrences,
		&rule.PaymentMethod, &rule.IsActive, &rule.CreatedAt,
	)
	if IsNotFound(err) {
		return model.RecurringRule{}, false, nil
	}
	if err != nil {
		return model.RecurringRule{}, false, err
	}
	for _, d := range daysOfWeek {
		rule.DaysOfWeek = append(rule.DaysOfWeek, int(d))
	}
	rule.EndDate = endDate
	return rule, true, nil
}

func (r *Repository) SaveRule(ctx context.Context, rule *model.RecurringRule) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO recurring_rules
			(id, tenant_id, client_id, provider_id, service_id, frequency, interval_count,
			days_of_week, day_of_month, anchor_time, duration_minutes, end_date,
			max_occurrences, payment_method, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), $10, $11, $12, NULLIF($13, 0), $14, $15)
		RETURNING created_at
	`, rule.ID, rule.TenantID, rule.ClientID, rule.ProviderID, rule.ServiceID,
		rule.Frequency, rule.Interval, rule.DaysOfWeek, rule.DayOfMonth,
		rule.Anchor, rule.DurationMins, rule.EndDate, rule.MaxOccurrences,
		rule.PaymentMethod, rule.IsActive,
	).Scan(&rule.CreatedAt)
}

// DeactivateRule flips the rule off and cancels its future pending or
// confirmed instances in one transaction, a single bounded sweep. The
// deactivation event rides the same transaction through the outbox.
func (r *Repository) DeactivateRule(ctx context.Context, tenantID, ruleID, reason string, after time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE recurring_rules
		SET is_active = false,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID)
	if err != nil {
		return 0, err
	}

	// The filter mirrors model.Appointment.SweptOnDeactivation: only future
	// instances that still block are cancelled.
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3,
			updated_at = now()
		WHERE recurring_rule_id = $1
			AND tenant_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_time > $4
	`, ruleID, tenantID, reason, after)
	if err != nil {
		return 0, err
	}
	cancelled := int(tag.RowsAffected())

	payload, err := json.Marshal(map[string]any{
		"rule_id":             ruleID,
		"tenant_id":           tenantID,
		"cancelled_instances": cancelled,
		"reason":              reason,
	})
	if err != nil {
		return 0, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "recurring_rule",
		AggregateID:   ruleID,
		EventType:     outbox.TopicRecurringDeactivated,
		Payload:       payload,
	}); err != nil {
		return 0, err
	}

	return cancelled, tx.Commit(ctx)
}
