// SPDX-License-Identifier: GPL-3.0-only

package models

import (
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

var AllModels []any

type User struct {
	ID        uint     `gorm:"primaryKey"`
	Email     string   `gorm:"not null;uniqueIndex"`
	Password  string   `gorm:"not null"`
	Role      UserRole `gorm:"size:50;not null;default:'user'"`
	CreatedAt time.Time
	UpdatedAt time.Time
	PlanID    uint
	Plan      Plan `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
}

func init() {
	AllModels = append(AllModels, &User{})
}
