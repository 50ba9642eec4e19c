package card

import "time"

type RegisterRequest struct {
	UID string `json:"card_uid" validate:"required,max=64"`
}

type LinkRequest struct {
	UID   string  `json:"card_uid" validate:"required,max=64"`
	Pin   string  `json:"pin" validate:"required,pin"`
	Alias *string `json:"alias,omitempty" validate:"omitempty,max=50"`
}

type UnlinkRequest struct {
	UID string `json:"card_uid" validate:"required,max=64"`
	Pin string `json:"pin" validate:"required,pin"`
}

type ChangePinRequest struct {
	OldPin string `json:"old_pin" validate:"required,pin"`
	NewPin string `json:"new_pin" validate:"required,pin"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// CardResponse never carries the PIN hash
type CardResponse struct {
	UID           string     `json:"card_uid"`
	DashboardCode string     `json:"dashboard_code"`
	Alias         *string    `json:"alias,omitempty"`
	Linked        bool       `json:"linked"`
	IsActive      bool       `json:"is_active"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func CardResponseFromEntity(c *Card) *CardResponse {
	resp := &CardResponse{
		UID:           c.UID,
		DashboardCode: c.DashboardCode,
		Linked:        c.IsLinked(),
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
	}
	if c.Alias.Valid {
		alias := c.Alias.String
		resp.Alias = &alias
	}
	if c.LastUsedAt.Valid {
		t := c.LastUsedAt.Time
		resp.LastUsedAt = &t
	}
	return resp
}
