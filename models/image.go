// SPDX-License-Identifier: GPL-3.0-only

package models

import (
	"time"
)

// Image is a content-addressed record of uploaded bytes. MD5 is the
// dedup key: re-uploading identical bytes resolves to the existing
// row. Rows are immutable once created.
type Image struct {
	ID        uint   `gorm:"primaryKey"`
	MD5       string `gorm:"column:md5;size:32;not null;uniqueIndex"`
	Path      string `gorm:"size:500;not null"`
	Size      int64  `gorm:"not null"`
	Format    string `gorm:"size:50;not null"`
	CreatedAt time.Time
}

func init() {
	AllModels = append(AllModels, &Image{})
}
