package firms

import "time"

// Firm is a tenant of the platform.
type Firm struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FirmForm is the payload for creating or renaming a firm.
type FirmForm struct {
	Code string `json:"code" validate:"required,max=32,alphanum"`
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateForm is the payload of a firm update. Codes are immutable.
type UpdateForm struct {
	Name string `json:"name" validate:"required,max=200"`
}
