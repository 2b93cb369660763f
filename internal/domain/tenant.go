package domain

import "time"

// Tenant is an isolated account whose candidates are scanned independently.
// Provisioning is owned externally; the engine reads the active set.
type Tenant struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
}
