// SPDX-License-Identifier: GPL-3.0-only

package conversions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"towebp-server/catalog"
	"towebp-server/models"
	"towebp-server/storage"

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

func newTestRegistrar(t *testing.T) (*Registrar, *gorm.DB, *storage.FileStore) {
	db := setupTestDB(t)
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	r := NewRegistrar(db, files, catalog.New(db), nil)
	return r, db, files
}

func seedUser(t *testing.T, db *gorm.DB, email string, limit int) models.User {
	plan := models.Plan{Name: "Plan-" + email, Limit: limit}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	user := models.User{Email: email, Password: "hash", PlanID: plan.ID}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func saveUpload(t *testing.T, files *storage.FileStore, data []byte) Upload {
	path, err := files.Save(data, ".jpg")
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	return Upload{Path: path, OriginalName: "photo.jpg", Size: int64(len(data)), Format: "jpg"}
}

func TestConvertRecordsConversion(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	user := seedUser(t, db, "convert@example.com", 10)
	ctx := context.Background()

	result, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("payload-one")))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if result.ConversionID == 0 {
		t.Error("expected a recorded conversion id")
	}
	if result.Original.ID != result.WebP.ID {
		t.Errorf("source and result must reference the same image, got %d and %d", result.Original.ID, result.WebP.ID)
	}
	if result.CompressionRate != 0 {
		t.Errorf("expected compression rate 0, got %f", result.CompressionRate)
	}
	if result.ReusedContent {
		t.Error("first upload of this content must not be marked reused")
	}
	if result.Original.Format != "JPG" {
		t.Errorf("expected stored format JPG, got %q", result.Original.Format)
	}

	var count int64
	db.Model(&models.Conversion{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 conversion row, got %d", count)
	}
}

func TestConvertDeduplicatesContent(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	alice := seedUser(t, db, "alice@example.com", 10)
	bob := seedUser(t, db, "bob@example.com", 10)
	ctx := context.Background()
	payload := []byte("shared picture bytes")

	first, err := r.Convert(ctx, alice.ID, saveUpload(t, files, payload))
	if err != nil {
		t.Fatalf("first convert: %v", err)
	}
	second, err := r.Convert(ctx, bob.ID, saveUpload(t, files, payload))
	if err != nil {
		t.Fatalf("second convert: %v", err)
	}

	if second.Original.ID != first.Original.ID {
		t.Errorf("expected both conversions to share image %d, got %d", first.Original.ID, second.Original.ID)
	}
	if !second.ReusedContent {
		t.Error("second upload of identical bytes must be marked reused")
	}
	if second.Original.MD5 != first.Original.MD5 ||
		second.Original.Size != first.Original.Size ||
		second.Original.Format != first.Original.Format {
		t.Error("reused image must surface the original metadata unchanged")
	}

	var images int64
	db.Model(&models.Image{}).Count(&images)
	if images != 1 {
		t.Errorf("expected a single image row after dedup, got %d", images)
	}
	var conversions int64
	db.Model(&models.Conversion{}).Count(&conversions)
	if conversions != 2 {
		t.Errorf("expected 2 conversion rows, got %d", conversions)
	}
}

func TestConvertDeniedAtLimit(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	user := seedUser(t, db, "limited@example.com", 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte(fmt.Sprintf("payload-%d", i)))); err != nil {
			t.Fatalf("convert %d: %v", i, err)
		}
	}

	_, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("one too many")))
	if !errors.Is(err, models.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}

	var count int64
	db.Model(&models.Conversion{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 2 {
		t.Errorf("denied request must not be recorded, got %d rows", count)
	}
	// The denied upload's image row must not linger either.
	var images int64
	db.Model(&models.Image{}).Count(&images)
	if images != 2 {
		t.Errorf("expected 2 image rows, got %d", images)
	}
}

func TestConvertConcurrentRequestsHonorLimit(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	user := seedUser(t, db, "racer@example.com", 3)
	ctx := context.Background()

	const attempts = 8
	uploads := make([]Upload, attempts)
	for i := range uploads {
		uploads[i] = saveUpload(t, files, []byte(fmt.Sprintf("concurrent-payload-%d", i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Convert(ctx, user.ID, uploads[i])
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrLimitReached):
		default:
			t.Errorf("attempt %d: unexpected error %v", i, err)
		}
	}
	if successes != 3 {
		t.Errorf("expected exactly 3 admitted conversions, got %d", successes)
	}

	var count int64
	db.Model(&models.Conversion{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 3 {
		t.Errorf("expected 3 recorded conversions, got %d", count)
	}
}

func TestConvertRejectsInvalidUser(t *testing.T) {
	r, _, files := newTestRegistrar(t)
	ctx := context.Background()

	_, err := r.Convert(ctx, 0, saveUpload(t, files, []byte("x")))
	if !errors.Is(err, models.ErrInvalidUser) {
		t.Errorf("expected ErrInvalidUser for id 0, got %v", err)
	}

	_, err = r.Convert(ctx, 4242, saveUpload(t, files, []byte("x")))
	if !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPlanChangeLiftsLimit(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	user := seedUser(t, db, "upgrader@example.com", 1)
	ctx := context.Background()

	if _, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("first"))); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("second"))); !errors.Is(err, models.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached on the free plan, got %v", err)
	}

	bigger, err := r.plans.Create(ctx, "Bigger", 100, 29)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if _, err := r.plans.ChangeUserPlan(ctx, user.ID, bigger.ID); err != nil {
		t.Fatalf("change plan: %v", err)
	}

	// The old conversion still counts; the new limit admits it anyway.
	if _, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("second"))); err != nil {
		t.Fatalf("expected admission after upgrade, got %v", err)
	}
}

func TestDeleteRemovesConversionAndOrphanedImage(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	user := seedUser(t, db, "deleter@example.com", 10)
	ctx := context.Background()

	result, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("throwaway")))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	deleted, err := r.Delete(ctx, result.ConversionID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report success")
	}

	var conversions, images int64
	db.Model(&models.Conversion{}).Count(&conversions)
	db.Model(&models.Image{}).Count(&images)
	if conversions != 0 || images != 0 {
		t.Errorf("expected empty tables, got %d conversions and %d images", conversions, images)
	}
	if files.Exists(result.Original.Path) {
		t.Error("expected stored bytes to be removed with the last reference")
	}

	// A second delete of the same id reports not found, not an error.
	deleted, err = r.Delete(ctx, result.ConversionID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Error("expected false for an already-deleted conversion")
	}
}

func TestDeleteKeepsSharedImage(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	alice := seedUser(t, db, "alice2@example.com", 10)
	bob := seedUser(t, db, "bob2@example.com", 10)
	ctx := context.Background()
	payload := []byte("bytes shared across users")

	first, err := r.Convert(ctx, alice.ID, saveUpload(t, files, payload))
	if err != nil {
		t.Fatalf("first convert: %v", err)
	}
	second, err := r.Convert(ctx, bob.ID, saveUpload(t, files, payload))
	if err != nil {
		t.Fatalf("second convert: %v", err)
	}

	if deleted, err := r.Delete(ctx, first.ConversionID); err != nil || !deleted {
		t.Fatalf("delete: deleted=%t err=%v", deleted, err)
	}

	var images int64
	db.Model(&models.Image{}).Count(&images)
	if images != 1 {
		t.Fatalf("image still referenced by another conversion, expected 1 row, got %d", images)
	}
	if !files.Exists(first.Original.Path) {
		t.Error("shared bytes must survive while a reference remains")
	}

	if deleted, err := r.Delete(ctx, second.ConversionID); err != nil || !deleted {
		t.Fatalf("delete: deleted=%t err=%v", deleted, err)
	}
	db.Model(&models.Image{}).Count(&images)
	if images != 0 {
		t.Errorf("expected image gone with its last reference, got %d rows", images)
	}
	if files.Exists(first.Original.Path) {
		t.Error("expected bytes removed with the last reference")
	}
}

func TestTodayUsageReport(t *testing.T) {
	r, db, files := newTestRegistrar(t)
	user := seedUser(t, db, "reporter@example.com", 5)
	ctx := context.Background()

	now := time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	// Yesterday's conversion counts toward the total only.
	if _, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte("old"))); err != nil {
		t.Fatalf("convert: %v", err)
	}
	db.Model(&models.Conversion{}).Where("user_id = ?", user.ID).
		Update("created_at", now.Add(-48*time.Hour))

	for _, payload := range []string{"fresh-a", "fresh-b"} {
		if _, err := r.Convert(ctx, user.ID, saveUpload(t, files, []byte(payload))); err != nil {
			t.Fatalf("convert %s: %v", payload, err)
		}
	}

	report, err := r.TodayUsage(ctx, user.ID)
	if err != nil {
		t.Fatalf("today usage: %v", err)
	}
	if report.TodayCount != 2 {
		t.Errorf("expected 2 today, got %d", report.TodayCount)
	}
	if report.TotalCount != 3 {
		t.Errorf("expected 3 total, got %d", report.TotalCount)
	}
	if report.Limit != 5 {
		t.Errorf("expected limit 5, got %d", report.Limit)
	}
	if report.Remaining != 2 {
		t.Errorf("expected 2 remaining, got %d", report.Remaining)
	}
	if report.LimitReached {
		t.Error("limit must not be reached at 3/5")
	}
	if len(report.TodayItems) != 2 {
		t.Fatalf("expected 2 items for today, got %d", len(report.TodayItems))
	}
	if report.TodayItems[0].ImageFrom.ID == 0 {
		t.Error("expected image details preloaded on today's items")
	}

	if _, err := r.TodayUsage(ctx, 9999); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
