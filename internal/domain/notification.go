package domain

import "time"

// Kind represents the type of a pushed notification.
type Kind string

// Notification kinds.
const (
	KindNewMessage         Kind = "new_message"
	KindPaymentReceived    Kind = "payment_received"
	KindTranslatorAccepted Kind = "translator_accepted"
	KindTranslatorRejected Kind = "translator_rejected"
	KindTranslationReady   Kind = "translation_ready"
	KindInternalNote       Kind = "internal_note"
	KindDeadlineWarning    Kind = "deadline_warning"
	KindDeadlinePassed     Kind = "deadline_passed"
)

// Kinds lists every known notification kind.
var Kinds = []Kind{
	KindNewMessage,
	KindPaymentReceived,
	KindTranslatorAccepted,
	KindTranslatorRejected,
	KindTranslationReady,
	KindInternalNote,
	KindDeadlineWarning,
	KindDeadlinePassed,
}

// Notification represents one server-pushed event. Immutable once
// received; ID is the deduplication key and is unique per session.
type Notification struct {
	ID            string    `json:"id" validate:"required"`
	Kind          Kind      `json:"type" validate:"required"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	EntityType    string    `json:"entity_type,omitempty"`
	EntityID      string    `json:"entity_id,omitempty"`
	ActionURL     string    `json:"action_url,omitempty"`
	RequiresSound bool      `json:"requires_sound"`
	CreatedAt     time.Time `json:"created_at"`

	// ReadAt is populated only on REST-fetched notifications.
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// IsRead reports whether the notification has been acknowledged.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
