package model

import "time"

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusConfirmed RequestStatus = "CONFIRMED"
	StatusCanceled  RequestStatus = "CANCELED"
	StatusCompleted RequestStatus = "COMPLETED"
)

// IsOpen reports whether a request in this status still counts toward the
// requester's single active request.
func (s RequestStatus) IsOpen() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s RequestStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

type Request struct {
	ID              string        `json:"id" bson:"_id"`
	RequesterID     string        `json:"requester_id" bson:"requester_id"`
	AgencyID        string        `json:"agency_id" bson:"agency_id"`
	ServiceID       string        `json:"service_id,omitempty" bson:"service_id,omitempty"`
	Description     string        `json:"description,omitempty" bson:"description,omitempty"`
	PreferredAt     *time.Time    `json:"preferred_at,omitempty" bson:"preferred_at,omitempty"`
	StartAt         *time.Time    `json:"start_at,omitempty" bson:"start_at,omitempty"`
	EndAt           *time.Time    `json:"end_at,omitempty" bson:"end_at,omitempty"`
	Status          RequestStatus `json:"status" bson:"status"`
	Open            bool          `json:"-" bson:"open"`
	HandledByID     string        `json:"handled_by_id,omitempty" bson:"handled_by_id,omitempty"`
	HandledByName   string        `json:"handled_by_name,omitempty" bson:"handled_by_name,omitempty"`
	ConfirmNote     string        `json:"confirm_note,omitempty" bson:"confirm_note,omitempty"`
	CancelReason    string        `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CompletionNotes string        `json:"completion_notes,omitempty" bson:"completion_notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

// Submission is the client-facing input for a new request.
type Submission struct {
	RequesterID   string `json:"requester_id" validate:"required,max=64"`
	AgencyID      string `json:"agency_id" validate:"required,max=64"`
	ServiceID     string `json:"service_id,omitempty" validate:"omitempty,max=64"`
	Description   string `json:"description,omitempty" validate:"omitempty,max=2000"`
	PreferredDate string `json:"preferred_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PreferredTime string `json:"preferred_time,omitempty" validate:"omitempty,datetime=15:04"`
}

type Confirmation struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
	Note    string    `json:"note,omitempty" validate:"omitempty,max=2000"`
}

type Cancellation struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

type Completion struct {
	Notes string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// RequestEvent is published on every lifecycle transition.
type RequestEvent struct {
	Type    string   `json:"type"`
	Request *Request `json:"request"`
}

const (
	RequestSubmitted = "SUBMITTED"
	RequestConfirmed = "CONFIRMED"
	RequestCanceled  = "CANCELED"
	RequestCompleted = "COMPLETED"
)
