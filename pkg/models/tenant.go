package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization or team. Every API key and run belongs
// to a tenant; DefaultGroup is the insights group used when a client omits one.
type Tenant struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Name         string    `db:"name"          json:"name"`
	DefaultGroup string    `db:"default_group" json:"default_group"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
