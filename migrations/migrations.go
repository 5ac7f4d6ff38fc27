// SPDX-License-Identifier: GPL-3.0-only

package migrations

import (
	"fmt"
	"towebp-server/models"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func List() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "001_seed_default_plans",
			Migrate: func(tx *gorm.DB) error {
				plans := []models.Plan{
					{Name: models.FreePlanName, Limit: 10, Price: 0},
					{Name: models.PremiumPlanName, Limit: 1000, Price: 29},
				}
				for _, plan := range plans {
					var existing models.Plan
					if err := tx.Where("name = ?", plan.Name).
						Attrs(plan).
						FirstOrCreate(&existing).Error; err != nil {
						return fmt.Errorf("failed to create plan %s: %w", plan.Name, err)
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error { return nil },
		},
	}
}
