// SPDX-License-Identifier: GPL-3.0-only

// Package conversions is the single entry point mutating conversion
// state: it validates the user, checks quota admission, deduplicates
// uploaded content by hash and records the conversion.
package conversions

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"towebp-server/catalog"
	"towebp-server/commons"
	"towebp-server/crypto"
	"towebp-server/events"
	"towebp-server/models"
	"towebp-server/quota"
	"towebp-server/storage"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Upload describes bytes the caller has already persisted to the file
// store. Cleaning those bytes up after a failed conversion is the
// caller's job.
type Upload struct {
	Path         string
	OriginalName string
	Size         int64
	Format       string
}

// Result is the caller-facing outcome of a conversion. WebP equals
// Original and CompressionRate is always zero while transcoding is a
// placeholder.
type Result struct {
	ConversionID    uint
	Original        models.Image
	WebP            models.Image
	CompressionRate float64
	ConvertedAt     time.Time
	// ReusedContent is true when the upload deduplicated to an
	// existing image, making the freshly saved bytes redundant.
	ReusedContent bool
}

// TodayUsage is the per-user usage report.
type TodayUsage struct {
	TodayItems   []models.Conversion
	TodayCount   int
	TotalCount   int
	Limit        int
	Remaining    int
	LimitReached bool
}

type Registrar struct {
	db        *gorm.DB
	files     *storage.FileStore
	plans     *catalog.Catalog
	publisher *events.Publisher
	clock     func() time.Time

	userLocks   sync.Map // uint -> *sync.Mutex
	imageFlight singleflight.Group
}

func NewRegistrar(db *gorm.DB, files *storage.FileStore, plans *catalog.Catalog, publisher *events.Publisher) *Registrar {
	return &Registrar{
		db:        db,
		files:     files,
		plans:     plans,
		publisher: publisher,
		clock:     time.Now,
	}
}

// SetClock replaces the registrar's clock; tests use this to pin the
// conversion timestamp.
func (r *Registrar) SetClock(clock func() time.Time) {
	r.clock = clock
}

// Convert runs the conversion state machine, terminal on the first
// failure: validate user, check admission, hash and dedup content,
// record the conversion. Admission and insert happen under a per-user
// lock and a single transaction so two racing requests cannot both
// take the last quota slot.
func (r *Registrar) Convert(ctx context.Context, userID uint, up Upload) (*Result, error) {
	if userID == 0 {
		return nil, models.ErrInvalidUser
	}

	var user models.User
	err := r.db.WithContext(ctx).Preload("Plan").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	ledger := quota.NewLedgerWithClock(r.db, r.clock)
	if err := ledger.CheckAdmission(ctx, userID); err != nil {
		if errors.Is(err, models.ErrLimitReached) {
			commons.Logger.Warnf("Conversion denied for user %d: limit reached", userID)
			r.publisher.Publish(ctx, events.ConversionDenied, userID, map[string]any{
				"limit": user.Plan.Limit,
			})
		}
		return nil, err
	}

	data, err := r.files.Read(up.Path)
	if err != nil {
		return nil, err
	}
	hash, err := crypto.ContentHash(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	image, reused, err := r.resolveImage(ctx, hash, up)
	if err != nil {
		return nil, err
	}

	conversion := models.Conversion{
		UserID:      userID,
		ImageFromID: image.ID,
		ImageToID:   image.ID,
		CreatedAt:   r.clock().UTC(),
	}

	// The pre-check above can go stale between requests from other
	// processes; the count is re-verified in the same transaction as
	// the insert.
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := quota.NewLedger(tx).CheckAdmission(ctx, userID); err != nil {
			return err
		}
		return tx.Create(&conversion).Error
	})
	if err != nil {
		if !reused {
			// The image row was created for this request only; take it
			// back out so no content record dangles without an owner.
			r.dropImageIfUnreferenced(ctx, image.ID)
		}
		if errors.Is(err, models.ErrLimitReached) {
			commons.Logger.Warnf("Conversion denied for user %d: limit reached", userID)
			r.publisher.Publish(ctx, events.ConversionDenied, userID, map[string]any{
				"limit": user.Plan.Limit,
			})
		}
		return nil, err
	}

	r.publisher.Publish(ctx, events.ConversionCreated, userID, map[string]any{
		"conversion_id": conversion.ID,
		"image_id":      image.ID,
		"md5":           image.MD5,
		"size":          image.Size,
		"format":        image.Format,
	})
	commons.Logger.Infof("Conversion %d recorded for user %d (image=%d, reused=%t)", conversion.ID, userID, image.ID, reused)

	return &Result{
		ConversionID:    conversion.ID,
		Original:        *image,
		WebP:            *image,
		CompressionRate: 0,
		ConvertedAt:     conversion.CreatedAt,
		ReusedContent:   reused,
	}, nil
}

// resolveImage finds or creates the image row for a content hash.
// In-process racers are collapsed by singleflight; racers from other
// processes surface as a duplicate-key error, which means someone else
// just created the row, so it is re-fetched.
func (r *Registrar) resolveImage(ctx context.Context, hash string, up Upload) (*models.Image, bool, error) {
	type resolved struct {
		image  *models.Image
		reused bool
	}

	v, err, _ := r.imageFlight.Do(hash, func() (any, error) {
		var existing models.Image
		err := r.db.WithContext(ctx).Where("md5 = ?", hash).First(&existing).Error
		if err == nil {
			return resolved{&existing, true}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		image := models.Image{
			MD5:    hash,
			Path:   up.Path,
			Size:   up.Size,
			Format: strings.ToUpper(up.Format),
		}
		err = r.db.WithContext(ctx).Create(&image).Error
		if err == nil {
			return resolved{&image, false}, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if ferr := r.db.WithContext(ctx).Where("md5 = ?", hash).First(&existing).Error; ferr == nil {
				return resolved{&existing, true}, nil
			}
		}
		return nil, err
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(resolved)
	return res.image, res.reused, nil
}

// Delete removes a conversion, its image row when no other conversion
// still references it, and the underlying bytes. Returns false when
// the conversion does not exist (or a concurrent delete won).
func (r *Registrar) Delete(ctx context.Context, conversionID uint) (bool, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).Preload("ImageFrom").First(&conversion, conversionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	imageRemoved := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", conversionID).Delete(&models.Conversion{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent delete got here first.
			return gorm.ErrRecordNotFound
		}

		// The conversion row is gone; the image may only be removed if
		// nothing else references it (dedup shares image rows).
		var refs int64
		if err := tx.Model(&models.Conversion{}).
			Where("image_from_id = ? OR image_to_id = ?", conversion.ImageFromID, conversion.ImageFromID).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Delete(&models.Image{}, conversion.ImageFromID).Error; err != nil {
				return err
			}
			imageRemoved = true
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if imageRemoved {
		r.files.Delete(conversion.ImageFrom.Path)
	}

	r.publisher.Publish(ctx, events.ConversionDeleted, conversion.UserID, map[string]any{
		"conversion_id": conversionID,
		"image_id":      conversion.ImageFromID,
	})
	commons.Logger.Infof("Conversion %d deleted (image removed=%t)", conversionID, imageRemoved)
	return true, nil
}

// TodayUsage reports today's conversions (newest first), lifetime
// totals and the headroom left under the user's current plan.
func (r *Registrar) TodayUsage(ctx context.Context, userID uint) (*TodayUsage, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	plan, err := r.plans.GetByID(ctx, user.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, models.ErrPlanNotFound
	}

	ledger := quota.NewLedgerWithClock(r.db, r.clock)
	usage, err := ledger.Usage(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := r.clock().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var todayItems []models.Conversion
	if err := r.db.WithContext(ctx).
		Preload("ImageFrom").Preload("ImageTo").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, dayStart, dayStart.Add(24*time.Hour)).
		Order("created_at DESC").
		Find(&todayItems).Error; err != nil {
		return nil, err
	}

	remaining := plan.Limit - usage.TotalCount
	return &TodayUsage{
		TodayItems:   todayItems,
		TodayCount:   usage.TodayCount,
		TotalCount:   usage.TotalCount,
		Limit:        plan.Limit,
		Remaining:    remaining,
		LimitReached: remaining <= 0,
	}, nil
}

// UserConversions lists every conversion of a user, newest first.
func (r *Registrar) UserConversions(ctx context.Context, userID uint) ([]models.Conversion, error) {
	var conversions []models.Conversion
	err := r.db.WithContext(ctx).
		Preload("ImageFrom").Preload("ImageTo").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&conversions).Error
	return conversions, err
}

// ImageByID returns nil when the image does not exist.
func (r *Registrar) ImageByID(ctx context.Context, id uint) (*models.Image, error) {
	var image models.Image
	err := r.db.WithContext(ctx).First(&image, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *Registrar) userLock(userID uint) *sync.Mutex {
	v, _ := r.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (r *Registrar) dropImageIfUnreferenced(ctx context.Context, imageID uint) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.Conversion{}).
			Where("image_from_id = ? OR image_to_id = ?", imageID, imageID).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return nil
		}
		return tx.Delete(&models.Image{}, imageID).Error
	})
	if err != nil {
		commons.Logger.Warnf("Failed to clean up image %d: %v", imageID, err)
	}
}
