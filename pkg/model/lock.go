package model

import "time"

const (
	ReleaseReasonReleased = "released"
	ReleaseReasonForced   = "forced"
	ReleaseReasonExpired  = "expired"
)

// Lock asserts that one staff member is processing a request. Rows are never
// deleted; superseded rows stay with Active=false.
type Lock struct {
	ID            string     `json:"id" bson:"_id"`
	RequestID     string     `json:"request_id" bson:"request_id"`
	HolderID      string     `json:"holder_id" bson:"holder_id"`
	HolderName    string     `json:"holder_name,omitempty" bson:"holder_name,omitempty"`
	AcquiredAt    time.Time  `json:"acquired_at" bson:"acquired_at"`
	ExpiresAt     time.Time  `json:"expires_at" bson:"expires_at"`
	Active        bool       `json:"active" bson:"active"`
	ReleasedAt    *time.Time `json:"released_at,omitempty" bson:"released_at,omitempty"`
	ReleaseReason string     `json:"release_reason,omitempty" bson:"release_reason,omitempty"`
}

// IsExpired treats a lock past its deadline as inactive whatever the stored flag says.
func (l *Lock) IsExpired(now time.Time) bool {
	return !l.Active || l.ExpiresAt.Before(now)
}

func (l *Lock) IsCurrent(now time.Time) bool {
	return !l.IsExpired(now)
}

// LockStatus is the lock view handed to staff clients and published on every transition.
type LockStatus struct {
	RequestID  string     `json:"request_id"`
	Locked     bool       `json:"locked"`
	HolderID   string     `json:"holder_id,omitempty"`
	HolderName string     `json:"holder_name,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Event      string     `json:"event,omitempty"`
	Message    string     `json:"message"`
}

const (
	LockGranted  = "GRANTED"
	LockReleased = "RELEASED"
	LockForced   = "FORCE_RELEASED"
	LockExpired  = "EXPIRED"
	LockExtended = "EXTENDED"
)
