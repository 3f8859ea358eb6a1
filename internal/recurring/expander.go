package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/notify"
)

// DeactivationReason tags cancellations driven by rule deactivation rather
// than an explicit user request.
const DeactivationReason = "recurring rule deactivated"

// Bookings is the slice of the lifecycle manager the expander needs.
type Bookings interface {
	Create(ctx context.Context, req booking.CreateRequest) (booking.CreateResult, error)
}

// Store persists recurring rules and performs the deactivation sweep.
type Store interface {
	GetRule(ctx context.Context, tenantID, ruleID string) (model.RecurringRule, bool, error)
	SaveRule(ctx context.Context, rule *model.RecurringRule) error
	// DeactivateRule marks the rule inactive and cancels its future pending
	// or confirmed instances in one transaction, tagging each with reason.
	// Past and completed instances are untouched. Returns the number of
	// cancelled instances.
	DeactivateRule(ctx context.Context, tenantID, ruleID, reason string, after time.Time) (int, error)
	GetUser(ctx context.Context, tenantID, userID string) (model.User, bool, error)
}

// Expander turns recurring rules into concrete appointments and sweeps them
// away again on deactivation. Each instance goes through the lifecycle
// manager so every policy, conflict, and payment rule applies.
type Expander struct {
	store    Store
	bookings Bookings
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewExpander(store Store, bookings Bookings, notifier notify.Notifier, logger *slog.Logger) *Expander {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Expander{
		store:    store,
		bookings: bookings,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests only.
func (e *Expander) WithClock(now func() time.Time) *Expander {
	e.now = now
	return e
}

type MaterializeResult struct {
	Created int
	Skipped int
}

// CreateRule validates and persists a new rule, then materializes its series.
func (e *Expander) CreateRule(ctx context.Context, rule model.RecurringRule) (model.RecurringRule, MaterializeResult, error) {
	if strings.TrimSpace(rule.TenantID) == "" {
		return model.RecurringRule{}, MaterializeResult{}, booking.ErrTenantRequired
	}
	if err := validateRule(rule); err != nil {
		return model.RecurringRule{}, MaterializeResult{}, err
	}

	rule.ID = uuid.NewString()
	rule.Anchor = rule.Anchor.UTC()
	rule.IsActive = true
	if err := e.store.SaveRule(ctx, &rule); err != nil {
		return model.RecurringRule{}, MaterializeResult{}, fmt.Errorf("save recurring rule: %w", err)
	}

	res, err := e.Materialize(ctx, rule)
	if err != nil {
		return model.RecurringRule{}, MaterializeResult{}, err
	}
	return rule, res, nil
}

func validateRule(rule model.RecurringRule) error {
	switch rule.Frequency {
	case model.FreqDaily, model.FreqWeekly, model.FreqBiweekly,
		model.FreqMonthly, model.FreqQuarterly, model.FreqYearly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", booking.ErrValidation, rule.Frequency)
	}
	if rule.ClientID == "" || rule.ProviderID == "" || rule.ServiceID == "" {
		return fmt.Errorf("%w: client_id, provider_id and service_id are required", booking.ErrValidation)
	}
	if rule.Anchor.IsZero() {
		return fmt.Errorf("%w: anchor start time is required", booking.ErrValidation)
	}
	// Interval 0 means "every period"; Occurrences coerces it to 1.
	if rule.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", booking.ErrValidation)
	}
	if rule.MaxOccurrences < 0 || rule.MaxOccurrences > MaxInstances {
		return fmt.Errorf("%w: max_occurrences must be between 1 and %d", booking.ErrValidation, MaxInstances)
	}
	for _, d := range rule.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: days_of_week values must be 0 (Sunday) through 6 (Saturday)", booking.ErrValidation)
		}
	}
	if rule.DayOfMonth < 0 || rule.DayOfMonth > 31 {
		return fmt.Errorf("%w: day_of_month must be between 1 and 31", booking.ErrValidation)
	}
	return nil
}

// Materialize books every future occurrence of the rule. An occurrence whose
// slot is taken is skipped and logged; the series never aborts on a conflict.
func (e *Expander) Materialize(ctx context.Context, rule model.RecurringRule) (MaterializeResult, error) {
	client, found, err := e.store.GetUser(ctx, rule.TenantID, rule.ClientID)
	if err != nil {
		return MaterializeResult{}, fmt.Errorf("load client: %w", err)
	}
	if !found {
		return MaterializeResult{}, fmt.Errorf("%w: client", booking.ErrNotFound)
	}

	var res MaterializeResult
	for _, start := range Occurrences(rule, e.now()) {
		req := booking.CreateRequest{
			TenantID:      rule.TenantID,
			ServiceID:     rule.ServiceID,
			ProviderID:    rule.ProviderID,
			StartTime:     start,
			ClientName:    client.Name,
			ClientEmail:   client.Email,
			ClientPhone:   client.Phone,
			PaymentMethod: rule.PaymentMethod,
			RecurringRule: rule.ID,
		}
		if rule.DurationMins > 0 {
			end := start.Add(time.Duration(rule.DurationMins) * time.Minute)
			req.EndTime = &end
		}
		_, err := e.bookings.Create(ctx, req)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, booking.ErrSlotUnavailable):
			e.logger.Warn("recurring instance skipped, slot taken",
				"rule_id", rule.ID, "start_time", start)
			res.Skipped++
		case errors.Is(err, booking.ErrValidation):
			// Outside the booking horizon or similar; later occurrences would
			// fail the same way.
			e.logger.Warn("recurring materialization stopped",
				"err", err, "rule_id", rule.ID, "start_time", start)
			return res, nil
		default:
			return res, err
		}
	}
	return res, nil
}

type DeactivateRequest struct {
	TenantID      string
	RuleID        string
	RequesterID   string
	RequesterRole model.UserRole
}

// Deactivate turns the rule off and cancels its future pending or confirmed
// instances in one bounded sweep. The counterparty gets a best-effort
// notification: the provider when the client deactivated, the client
// otherwise.
func (e *Expander) Deactivate(ctx context.Context, req DeactivateRequest) (int, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return 0, booking.ErrTenantRequired
	}
	rule, found, err := e.store.GetRule(ctx, req.TenantID, req.RuleID)
	if err != nil {
		return 0, fmt.Errorf("load recurring rule: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("%w: recurring rule", booking.ErrNotFound)
	}
	if !rule.IsActive {
		return 0, nil
	}
	if req.RequesterRole != model.RoleAdmin &&
		req.RequesterID != rule.ClientID && req.RequesterID != rule.ProviderID {
		return 0, booking.ErrNotAuthorized
	}

	cancelled, err := e.store.DeactivateRule(ctx, req.TenantID, req.RuleID, DeactivationReason, e.now())
	if err != nil {
		return 0, fmt.Errorf("deactivate recurring rule: %w", err)
	}

	counterpartyID := rule.ClientID
	if req.RequesterID == rule.ClientID {
		counterpartyID = rule.ProviderID
	}
	if counterparty, found, err := e.store.GetUser(ctx, req.TenantID, counterpartyID); err == nil && found && counterparty.Email != "" {
		nc := notify.Context{
			ClientName: counterparty.Name,
			StartTime:  rule.Anchor,
			Reason:     DeactivationReason,
		}
		if err := e.notifier.SendCancellation(ctx, counterparty.Email, nc); err != nil {
			e.logger.Warn("deactivation notification failed", "err", err, "rule_id", rule.ID)
		}
	}

	return cancelled, nil
}
