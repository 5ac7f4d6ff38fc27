// SPDX-License-Identifier: GPL-3.0-only

package models

import (
	"time"
)

const (
	FreePlanName    = "Free"
	PremiumPlanName = "Premium"
)

// Plan is a pricing tier. Limit is the maximum number of conversions a
// user bound to the plan may accumulate.
type Plan struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	Limit     int    `gorm:"not null;default:0"`
	Price     int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func init() {
	AllModels = append(AllModels, &Plan{})
}
