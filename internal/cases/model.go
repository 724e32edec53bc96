package cases

import "time"

// Status is the lifecycle state of a case.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusClosed     Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusOnHold, StatusClosed:
		return true
	}
	return false
}

// Case is an entry of a firm's case register.
type Case struct {
	ID        int64     `json:"id"`
	FirmID    int64     `json:"firm_id"`
	Reference string    `json:"reference"`
	Title     string    `json:"title,omitempty"`
	Status    Status    `json:"status"`
	CreatedBy int64     `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusOnly strips everything a status-only viewer may not see.
func (c Case) StatusOnly() Case {
	return Case{ID: c.ID, FirmID: c.FirmID, Reference: c.Reference, Status: c.Status, UpdatedAt: c.UpdatedAt}
}

// CreateInput is the payload for opening a case.
type CreateInput struct {
	Reference string `json:"reference" validate:"required,max=64"`
	Title     string `json:"title" validate:"required,max=300"`
}

// StatusInput is the payload of a status change.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=open in_progress on_hold closed"`
}
