// SPDX-License-Identifier: GPL-3.0-only

// Package quota derives a user's conversion usage from the recorded
// history and decides whether another conversion is admitted under the
// user's current plan.
package quota

import (
	"context"
	"errors"
	"time"
	"towebp-server/models"

	"gorm.io/gorm"
)

// Ledger computes usage with narrow COUNT queries; it never loads the
// full user/plan object graph.
type Ledger struct {
	db    *gorm.DB
	clock func() time.Time
}

type Usage struct {
	TodayCount int
	TotalCount int
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, clock: time.Now}
}

func NewLedgerWithClock(db *gorm.DB, clock func() time.Time) *Ledger {
	return &Ledger{db: db, clock: clock}
}

// Usage counts the user's conversions: today's (UTC calendar day) and
// lifetime total.
func (l *Ledger) Usage(ctx context.Context, userID uint) (Usage, error) {
	var total int64
	if err := l.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return Usage{}, err
	}

	dayStart, dayEnd := l.todayBounds()
	var today int64
	if err := l.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, dayStart, dayEnd).
		Count(&today).Error; err != nil {
		return Usage{}, err
	}

	return Usage{TodayCount: int(today), TotalCount: int(total)}, nil
}

// Remaining is plan.Limit minus the lifetime total. The limit is a
// lifetime cap, matching how admission is enforced.
func (l *Ledger) Remaining(ctx context.Context, userID uint) (int, error) {
	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	usage, err := l.Usage(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Plan.Limit - usage.TotalCount, nil
}

// CheckAdmission returns models.ErrLimitReached when the user's
// lifetime total has met the plan limit. Callers that go on to insert
// a conversion must hold the registrar's per-user lock so two
// concurrent requests cannot both pass with one slot left.
func (l *Ledger) CheckAdmission(ctx context.Context, userID uint) error {
	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	usage, err := l.Usage(ctx, userID)
	if err != nil {
		return err
	}
	if usage.TotalCount >= user.Plan.Limit {
		return models.ErrLimitReached
	}
	return nil
}

func (l *Ledger) loadUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := l.db.WithContext(ctx).Preload("Plan").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (l *Ledger) todayBounds() (time.Time, time.Time) {
	now := l.clock().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
