package database

import (
	"fmt"

	"slotbook/internal/reservations"

	"gorm.io/gorm"
)

// Migrate creates the reservation tables, then adds the checks and
// partial indexes AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(reservations.Models()...); err != nil {
		return err
	}
	for i, stmt := range reservations.Constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}
