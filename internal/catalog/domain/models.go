// Package domain contains persistence models for the service catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ServiceDefinition is a billable service with an optional catalog default
// rate. Lines may override the rate per assignment.
type ServiceDefinition struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Code             string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	DefaultRateCents *int64       `json:"default_rate_cents"`
	Currency         string       `gorm:"type:text;not null" json:"currency"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ServiceDefinition) TableName() string { return "service_definitions" }
