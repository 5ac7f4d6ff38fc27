// SPDX-License-Identifier: GPL-3.0-only

// Package catalog manages the plan catalog behind a TTL-bounded
// read-through cache. All plan reads in the service go through the
// catalog so that a cache hit and a full listing can never disagree.
package catalog

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
	"towebp-server/commons"
	"towebp-server/models"

	"gorm.io/gorm"
)

const DefaultTTL = 30 * time.Minute

type Catalog struct {
	db    *gorm.DB
	clock func() time.Time
	ttl   time.Duration

	mu        sync.RWMutex
	cached    []models.Plan
	expiresAt time.Time
	valid     bool
}

func New(db *gorm.DB) *Catalog {
	ttl := DefaultTTL
	if v := commons.GetEnv("PLAN_CACHE_TTL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			ttl = time.Duration(minutes) * time.Minute
		}
	}
	return &Catalog{db: db, clock: time.Now, ttl: ttl}
}

// NewWithClock injects a clock, letting tests advance time past the
// TTL deterministically.
func NewWithClock(db *gorm.DB, clock func() time.Time, ttl time.Duration) *Catalog {
	return &Catalog{db: db, clock: clock, ttl: ttl}
}

// ListAll returns every plan in insertion order. Served from the cache
// while it is fresh; reloaded from storage otherwise.
func (c *Catalog) ListAll(ctx context.Context) ([]models.Plan, error) {
	c.mu.RLock()
	if c.valid && c.clock().Before(c.expiresAt) {
		plans := make([]models.Plan, len(c.cached))
		copy(plans, c.cached)
		c.mu.RUnlock()
		return plans, nil
	}
	c.mu.RUnlock()

	var plans []models.Plan
	if err := c.db.WithContext(ctx).Order("id").Find(&plans).Error; err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = plans
	c.expiresAt = c.clock().Add(c.ttl)
	c.valid = true
	c.mu.Unlock()

	out := make([]models.Plan, len(plans))
	copy(out, plans)
	return out, nil
}

// GetByID filters the ListAll result rather than issuing its own
// query, so it always agrees with the cached listing.
func (c *Catalog) GetByID(ctx context.Context, id uint) (*models.Plan, error) {
	plans, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].ID == id {
			return &plans[i], nil
		}
	}
	return nil, nil
}

func (c *Catalog) Create(ctx context.Context, name string, limit, price int) (*models.Plan, error) {
	plan := models.Plan{Name: name, Limit: limit, Price: price}
	if err := c.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	c.Invalidate()
	commons.Logger.Infof("Plan created: %s (id=%d, limit=%d, price=%d)", plan.Name, plan.ID, plan.Limit, plan.Price)
	return &plan, nil
}

// Update rewrites a plan in place. Returns nil when the plan does not
// exist. The cache is evicted before returning so the next read sees
// the committed write.
func (c *Catalog) Update(ctx context.Context, id uint, name string, limit, price int) (*models.Plan, error) {
	var plan models.Plan
	err := c.db.WithContext(ctx).First(&plan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plan.Name = name
	plan.Limit = limit
	plan.Price = price
	if err := c.db.WithContext(ctx).Save(&plan).Error; err != nil {
		return nil, err
	}
	c.Invalidate()
	return &plan, nil
}

// Delete removes a plan unless a user still references it. The user
// count is a live query, never the cache.
func (c *Catalog) Delete(ctx context.Context, id uint) (bool, error) {
	var plan models.Plan
	err := c.db.WithContext(ctx).First(&plan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var refs int64
	if err := c.db.WithContext(ctx).Model(&models.User{}).Where("plan_id = ?", id).Count(&refs).Error; err != nil {
		return false, err
	}
	if refs > 0 {
		commons.Logger.Warnf("Refusing to delete plan %d: %d user(s) still reference it", id, refs)
		return false, nil
	}

	if err := c.db.WithContext(ctx).Delete(&models.Plan{}, id).Error; err != nil {
		return false, err
	}
	c.Invalidate()
	return true, nil
}

// ChangeUserPlan rebinds a user to another plan. Returns nil when the
// user or the plan is missing. Historical conversions are untouched;
// quota is always evaluated against the current plan at check time.
func (c *Catalog) ChangeUserPlan(ctx context.Context, userID, planID uint) (*models.User, error) {
	var user models.User
	err := c.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plan, err := c.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}

	user.PlanID = planID
	if err := c.db.WithContext(ctx).Save(&user).Error; err != nil {
		return nil, err
	}
	commons.Logger.Infof("User %d moved to plan %s (id=%d)", user.ID, plan.Name, plan.ID)
	return &user, nil
}

// Invalidate evicts the cached listing. Mutating operations call this
// before returning, so a reload can never surface data older than a
// completed write.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.cached = nil
	c.mu.Unlock()
}
