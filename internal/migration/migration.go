// Package migration keeps the result store schema current on startup, so the
// runner is usable out of the box against a fresh sqlite or postgres database.
package migration

import (
	"errors"

	"gorm.io/gorm"

	resultdomain "github.com/smallbiznis/meterline/internal/resultstore/domain"
)

func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	return db.AutoMigrate(
		&resultdomain.RatingRun{},
		&resultdomain.ChargeLineRecord{},
	)
}
