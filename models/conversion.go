// SPDX-License-Identifier: GPL-3.0-only

package models

import (
	"time"
)

// Conversion records one upload-to-WebP job. No real transcoding is
// performed yet, so ImageFromID and ImageToID always reference the
// same Image row.
type Conversion struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UserID      uint
	User        User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	ImageFromID uint
	ImageFrom   Image `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	ImageToID   uint
	ImageTo     Image `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
}

func init() {
	AllModels = append(AllModels, &Conversion{})
}
