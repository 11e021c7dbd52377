package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity of an alert rule / triggered alert.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering of a severity for minimum-severity filtering.
// Unknown severities rank with "ok", below warning, so any stored minimum
// filters them out.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// Condition compares a reading value against a rule threshold.
type Condition string

const (
	ConditionAbove        Condition = "above"
	ConditionBelow        Condition = "below"
	ConditionOutsideRange Condition = "outside_range"
)

// Threshold is a tagged value: a scalar bound for above/below rules, or a
// min/max pair for outside_range rules. Exactly one form is populated; the
// rule's condition selects which. On the wire a scalar threshold is a bare
// JSON number and a range threshold is a {"min":..,"max":..} object.
type Threshold struct {
	Value *float64 `json:"value,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// ScalarThreshold builds a threshold for above/below rules.
func ScalarThreshold(v float64) Threshold {
	return Threshold{Value: &v}
}

// RangeThreshold builds a threshold for outside_range rules.
func RangeThreshold(min, max float64) Threshold {
	return Threshold{Min: &min, Max: &max}
}

// Validate checks that the threshold shape matches the condition.
func (t Threshold) Validate(condition Condition) error {
	switch condition {
	case ConditionAbove, ConditionBelow:
		if t.Value == nil {
			return fmt.Errorf("condition %q requires a scalar threshold", condition)
		}
	case ConditionOutsideRange:
		if t.Min == nil || t.Max == nil {
			return fmt.Errorf("condition %q requires a threshold with min and max", condition)
		}
	default:
		return fmt.Errorf("unknown condition: %q", condition)
	}
	return nil
}

// MarshalJSON encodes a scalar threshold as a bare number and a range
// threshold as an object.
func (t Threshold) MarshalJSON() ([]byte, error) {
	if t.Value != nil {
		return json.Marshal(*t.Value)
	}
	return json.Marshal(struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}{t.Min, t.Max})
}

// UnmarshalJSON accepts either a bare number or a {min,max} object.
func (t *Threshold) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		*t = ScalarThreshold(scalar)
		return nil
	}
	var rng struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(data, &rng); err != nil {
		return fmt.Errorf("threshold must be a number or a {min,max} object: %w", err)
	}
	*t = Threshold{Min: rng.Min, Max: rng.Max}
	return nil
}

// AlertRule is a user-defined threshold rule evaluated against incoming
// sensor readings. TenantID and SectorID are optional scoping filters; a
// rule with neither applies everywhere.
type AlertRule struct {
	ID         string    `json:"id" db:"rule_id"`
	Name       string    `json:"name" db:"name"`
	Metric     string    `json:"metric" db:"metric"`
	Condition  Condition `json:"condition" db:"condition"`
	Threshold  Threshold `json:"threshold" db:"threshold"`
	Severity   Severity  `json:"severity" db:"severity"`
	CooldownMs int64     `json:"cooldownMs" db:"cooldown_ms"`
	Enabled    bool      `json:"enabled" db:"enabled"`
	TenantID   *string   `json:"tenantId,omitempty" db:"tenant_id"`
	SectorID   *string   `json:"sectorId,omitempty" db:"sector_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Cooldown returns the rule's cooldown window as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMs) * time.Millisecond
}

// Breaches reports whether a measured value violates the rule. Comparisons
// are strict: a value exactly equal to a bound never fires.
func (r *AlertRule) Breaches(value float64) bool {
	switch r.Condition {
	case ConditionAbove:
		return r.Threshold.Value != nil && value > *r.Threshold.Value
	case ConditionBelow:
		return r.Threshold.Value != nil && value < *r.Threshold.Value
	case ConditionOutsideRange:
		if r.Threshold.Min == nil || r.Threshold.Max == nil {
			return false
		}
		return value < *r.Threshold.Min || value > *r.Threshold.Max
	default:
		return false
	}
}

// RuleSpec is the caller-supplied shape for creating a rule. Zero-valued
// fields take documented defaults at creation: severity warning, the
// configured default cooldown, enabled true, a generated id.
type RuleSpec struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	Metric     string    `json:"metric"`
	Condition  Condition `json:"condition"`
	Threshold  Threshold `json:"threshold"`
	Severity   Severity  `json:"severity,omitempty"`
	CooldownMs int64     `json:"cooldownMs,omitempty"`
	Enabled    *bool     `json:"enabled,omitempty"`
	TenantID   *string   `json:"tenantId,omitempty"`
	SectorID   *string   `json:"sectorId,omitempty"`
}

// RuleFilters narrows ListRules results. Tenant and sector filters admit
// globally-scoped rules (no tenant/sector set) in addition to exact matches;
// the enabled filter is an exact match. Filters combine conjunctively.
type RuleFilters struct {
	TenantID *string
	SectorID *string
	Enabled  *bool
}

// Alert is a triggered rule instance. Immutable once created.
type Alert struct {
	ID          string    `json:"id" db:"alert_id"`
	RuleID      string    `json:"ruleId" db:"rule_id"`
	RuleName    string    `json:"ruleName" db:"rule_name"`
	SectorID    string    `json:"sectorId" db:"sector_id"`
	SectorName  string    `json:"sectorName" db:"sector_name"`
	RanchName   *string   `json:"ranchName" db:"ranch_name"`
	Metric      string    `json:"metric" db:"metric"`
	Value       float64   `json:"value" db:"value"`
	Threshold   Threshold `json:"threshold" db:"threshold"`
	Condition   Condition `json:"condition" db:"condition"`
	Severity    Severity  `json:"severity" db:"severity"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Action      *string   `json:"action" db:"action"`
	Timestamp   time.Time `json:"timestamp" db:"triggered_at"`
}

// Insight is a pre-classified observation produced by an external analyzer.
// Insights with severity "ok" are informational and never dispatched.
type Insight struct {
	ID          string    `json:"id"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Action      *string   `json:"action,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
