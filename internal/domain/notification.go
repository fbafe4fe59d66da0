package domain

import (
	"fmt"
	"time"
)

// NotificationCategory enumerates the kinds of domain events that inform a
// user.
type NotificationCategory string

const (
	NotifyMessage        NotificationCategory = "message"
	NotifyProperty       NotificationCategory = "property"
	NotifySystem         NotificationCategory = "system"
	NotifyKYCSubmitted   NotificationCategory = "kyc_submitted"
	NotifyKYCApproved    NotificationCategory = "kyc_approved"
	NotifyKYCRejected    NotificationCategory = "kyc_rejected"
	NotifyProfileUpdated NotificationCategory = "profile_updated"
	NotifyAgentReview    NotificationCategory = "agent_review"
)

// Valid reports whether c is a known category.
func (c NotificationCategory) Valid() bool {
	switch c {
	case NotifyMessage, NotifyProperty, NotifySystem, NotifyKYCSubmitted,
		NotifyKYCApproved, NotifyKYCRejected, NotifyProfileUpdated, NotifyAgentReview:
		return true
	}
	return false
}

// RefKind tags what entity a notification points at.
type RefKind string

const (
	RefProperty    RefKind = "property"
	RefMessage     RefKind = "message"
	RefAccount     RefKind = "account"
	RefApplication RefKind = "application"
)

// RelatedRef is a typed reference to the entity a notification is about.
// The kind is a closed enum rather than a free-text tag so a new kind has
// to be added here before anything can emit it.
type RelatedRef struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

// Validate rejects unknown kinds and empty ids.
func (r RelatedRef) Validate() error {
	switch r.Kind {
	case RefProperty, RefMessage, RefAccount, RefApplication:
	default:
		return fmt.Errorf("unknown related-entity kind %q", r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("related-entity id is empty")
	}
	return nil
}

// Notification is a durable record of a domain event addressed to one
// account. Immutable after creation except for the read flag.
type Notification struct {
	ID        string               `json:"id"`
	AccountID string               `json:"accountId"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Content   string               `json:"content"`
	Related   *RelatedRef          `json:"related,omitempty"`
	Read      bool                 `json:"read"`
	CreatedAt time.Time            `json:"createdAt"`
}
