// SPDX-License-Identifier: GPL-3.0-only

package quota

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	"towebp-server/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, limit int) models.User {
	plan := models.Plan{Name: "Test", Limit: limit}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	user := models.User{Email: fmt.Sprintf("%s@example.com", t.Name()), Password: "hash", PlanID: plan.ID}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedConversion(t *testing.T, db *gorm.DB, userID uint, at time.Time) {
	image := models.Image{MD5: fmt.Sprintf("%032d", at.UnixNano()), Path: "x", Size: 1, Format: ".jpg"}
	if err := db.Create(&image).Error; err != nil {
		t.Fatalf("seed image: %v", err)
	}
	conv := models.Conversion{UserID: userID, ImageFromID: image.ID, ImageToID: image.ID, CreatedAt: at}
	if err := db.Create(&conv).Error; err != nil {
		t.Fatalf("seed conversion: %v", err)
	}
}

func TestUsageCountsTodayAndTotal(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, 10)

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	ledger := NewLedgerWithClock(db, func() time.Time { return now })

	seedConversion(t, db, user.ID, now.Add(-time.Hour))
	seedConversion(t, db, user.ID, now.Add(-2*time.Hour))
	// Yesterday: counts toward the total only.
	seedConversion(t, db, user.ID, now.Add(-24*time.Hour))

	usage, err := ledger.Usage(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.TodayCount != 2 {
		t.Errorf("expected 2 today, got %d", usage.TodayCount)
	}
	if usage.TotalCount != 3 {
		t.Errorf("expected 3 total, got %d", usage.TotalCount)
	}
}

func TestUsageDayBoundsAreUTC(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, 10)

	now := time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)
	ledger := NewLedgerWithClock(db, func() time.Time { return now })

	// One minute before UTC midnight belongs to yesterday.
	seedConversion(t, db, user.ID, time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC))
	// Exactly at midnight belongs to today.
	seedConversion(t, db, user.ID, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	usage, err := ledger.Usage(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.TodayCount != 1 {
		t.Errorf("expected 1 today, got %d", usage.TodayCount)
	}
	if usage.TotalCount != 2 {
		t.Errorf("expected 2 total, got %d", usage.TotalCount)
	}
}

func TestRemaining(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, 5)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := NewLedgerWithClock(db, func() time.Time { return now })

	seedConversion(t, db, user.ID, now.Add(-time.Minute))
	seedConversion(t, db, user.ID, now.Add(-30*24*time.Hour))

	remaining, err := ledger.Remaining(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Errorf("expected 3 remaining, got %d", remaining)
	}
}

func TestCheckAdmissionBoundary(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, 2)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := NewLedgerWithClock(db, func() time.Time { return now })
	ctx := context.Background()

	if err := ledger.CheckAdmission(ctx, user.ID); err != nil {
		t.Fatalf("expected admission with 0/2 used, got %v", err)
	}

	seedConversion(t, db, user.ID, now.Add(-time.Minute))
	if err := ledger.CheckAdmission(ctx, user.ID); err != nil {
		t.Fatalf("expected admission with 1/2 used, got %v", err)
	}

	seedConversion(t, db, user.ID, now.Add(-2*time.Minute))
	err := ledger.CheckAdmission(ctx, user.ID)
	if !errors.Is(err, models.ErrLimitReached) {
		t.Errorf("expected ErrLimitReached at 2/2, got %v", err)
	}
}

func TestCheckAdmissionUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)

	err := ledger.CheckAdmission(context.Background(), 404)
	if !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
