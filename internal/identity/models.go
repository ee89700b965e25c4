package identity

import (
	"time"

	"ndsregistry/internal/domain"
)

// Identity represents one external-platform account tracked by the registry.
// Created on first reference and never deleted. The external identifier is
// globally unique regardless of platform; the stored platform is
// first-write-wins.
type Identity struct {
	ID         int64           `json:"id"`
	Identifier string          `json:"identifier"`
	Platform   domain.Platform `json:"platform"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// IntelRecord is an immutable annotation attached to an identity, independent
// of any case.
type IntelRecord struct {
	ID         int64            `json:"id"`
	IdentityID int64            `json:"identity_id"`
	Type       domain.IntelType `json:"intel_type"`
	Value      string           `json:"value"`
	Author     string           `json:"author"`
	CreatedAt  time.Time        `json:"created_at"`
}
