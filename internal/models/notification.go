package models

import "time"

// Notification channel identifiers registered at startup.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelCall     = "call"
)

// Report delivery frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyNone    = "none"
)

// QuietHours is a time-of-day window during which a user prefers not to be
// notified. Stored and merged with preferences; the dispatcher does not
// enforce it.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Preferences is the per-user notification configuration.
type Preferences struct {
	AlertChannels   []string          `json:"alertChannels"`
	ReportChannels  []string          `json:"reportChannels"`
	AlertSeverity   Severity          `json:"alertSeverity"`
	ReportFrequency string            `json:"reportFrequency"`
	Contacts        map[string]string `json:"contacts"`
	QuietHours      QuietHours        `json:"quietHours"`
}

// DefaultPreferences returns the configuration used when a user has never
// saved preferences. Reads never persist this object; only writes persist.
func DefaultPreferences() Preferences {
	return Preferences{
		AlertChannels:   []string{ChannelEmail},
		ReportChannels:  []string{ChannelEmail},
		AlertSeverity:   SeverityWarning,
		ReportFrequency: FrequencyDaily,
		Contacts:        map[string]string{},
		QuietHours:      QuietHours{Enabled: false, Start: "22:00", End: "07:00"},
	}
}

// QuietHoursPatch is a partial quiet-hours update.
type QuietHoursPatch struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Start   *string `json:"start,omitempty"`
	End     *string `json:"end,omitempty"`
}

// PreferencesPatch is a partial preferences update. Top-level fields
// overwrite wholesale when present; Contacts and QuietHours merge
// key-by-key so a partial update does not clobber unspecified sub-fields.
type PreferencesPatch struct {
	AlertChannels   *[]string         `json:"alertChannels,omitempty"`
	ReportChannels  *[]string         `json:"reportChannels,omitempty"`
	AlertSeverity   *Severity         `json:"alertSeverity,omitempty"`
	ReportFrequency *string           `json:"reportFrequency,omitempty"`
	Contacts        map[string]string `json:"contacts,omitempty"`
	QuietHours      *QuietHoursPatch  `json:"quietHours,omitempty"`
}

// Merge applies a patch onto the current preferences and returns the result.
// The receiver is not modified.
func (p Preferences) Merge(patch PreferencesPatch) Preferences {
	merged := p
	merged.Contacts = make(map[string]string, len(p.Contacts)+len(patch.Contacts))
	for k, v := range p.Contacts {
		merged.Contacts[k] = v
	}

	if patch.AlertChannels != nil {
		merged.AlertChannels = append([]string(nil), (*patch.AlertChannels)...)
	}
	if patch.ReportChannels != nil {
		merged.ReportChannels = append([]string(nil), (*patch.ReportChannels)...)
	}
	if patch.AlertSeverity != nil {
		merged.AlertSeverity = *patch.AlertSeverity
	}
	if patch.ReportFrequency != nil {
		merged.ReportFrequency = *patch.ReportFrequency
	}
	for k, v := range patch.Contacts {
		merged.Contacts[k] = v
	}
	if patch.QuietHours != nil {
		if patch.QuietHours.Enabled != nil {
			merged.QuietHours.Enabled = *patch.QuietHours.Enabled
		}
		if patch.QuietHours.Start != nil {
			merged.QuietHours.Start = *patch.QuietHours.Start
		}
		if patch.QuietHours.End != nil {
			merged.QuietHours.End = *patch.QuietHours.End
		}
	}
	return merged
}

// PayloadType distinguishes alert deliveries from report deliveries.
type PayloadType string

const (
	PayloadAlert  PayloadType = "alert"
	PayloadReport PayloadType = "report"
)

// ReportSection is one heading plus its line items in a periodic report.
type ReportSection struct {
	Heading string   `json:"heading"`
	Items   []string `json:"items"`
}

// Report is a periodic digest handed to the dispatcher by the (external)
// report generator.
type Report struct {
	Title    string          `json:"title"`
	Summary  string          `json:"summary"`
	Sections []ReportSection `json:"sections,omitempty"`
	Period   string          `json:"period"`
}

// Payload is the channel-agnostic message body handed to a delivery channel.
type Payload struct {
	Type       PayloadType     `json:"type"`
	Subject    string          `json:"subject"`
	Body       string          `json:"body"`
	Action     *string         `json:"action,omitempty"`
	SectorName string          `json:"sectorName,omitempty"`
	RanchName  *string         `json:"ranchName,omitempty"`
	Sections   []ReportSection `json:"sections,omitempty"`
	Period     string          `json:"period,omitempty"`
}

// DeliveryResult is the channel-specific outcome of one successful send.
type DeliveryResult struct {
	Provider  string `json:"provider"`
	MessageID string `json:"messageId"`
	Delivered bool   `json:"delivered"`
}

// DeliveryRecord is one append-only entry in the delivery log, written for
// every dispatch attempt that reaches a channel and succeeds.
type DeliveryRecord struct {
	ID        string         `json:"id" db:"delivery_id"`
	Channel   string         `json:"channel" db:"channel"`
	Recipient string         `json:"recipient" db:"recipient"`
	Payload   Payload        `json:"payload" db:"payload"`
	Result    DeliveryResult `json:"result" db:"result"`
	Timestamp time.Time      `json:"timestamp" db:"delivered_at"`
}

// Outcome statuses for per-channel fan-out results.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// ChannelOutcome is one entry in the per-channel result list returned by
// SendAlert/SendReport. A failed channel yields an entry with Status
// "failed" and Error set; it never suppresses sibling entries.
type ChannelOutcome struct {
	Channel   string `json:"channel"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Provider  string `json:"provider,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Delivered bool   `json:"delivered,omitempty"`
}
