// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the
// dashboard summary endpoint.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
)

// CommandStatusCounts returns the number of commands per status across all
// devices. Statuses with no rows are present with a zero count.
//
// Return values:
//   - counts: map keyed by pending/sent/executed
//   - err:    database error, if any
func CommandStatusCounts(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Command{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{
		domain.CommandPending:  0,
		domain.CommandSent:     0,
		domain.CommandExecuted: 0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
