// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Command model.
//
// Delivery is a two-step claim designed to be run inside one transaction:
//
//	n, _ := repo.ClaimPending(ctx, tx, deviceID, deliveryID, now)
//	cmds, _ := repo.ListByDelivery(ctx, tx, deliveryID)
//
// ClaimPending is a single conditional UPDATE, so each pending row is flipped
// by exactly one statement even when polls race; ListByDelivery then reads
// back only the rows this poll claimed.
package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
)

// CreateCommand inserts a pending command for deviceID. data is stored as-is.
func CreateCommand(ctx context.Context, db *gorm.DB, deviceID, commandType string, data []byte) (*domain.Command, error) {
	c := &domain.Command{
		DeviceID:    deviceID,
		CommandType: commandType,
		CommandData: datatypes.JSON(data),
		Status:      domain.CommandPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ClaimPending marks every pending command of deviceID as sent and stamps it
// with deliveryID. It returns the number of rows claimed.
func ClaimPending(ctx context.Context, db *gorm.DB, deviceID, deliveryID string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("device_id = ? AND status = ?", deviceID, domain.CommandPending).
		Updates(map[string]any{
			"status":      domain.CommandSent,
			"delivery_id": deliveryID,
			"sent_at":     now,
		})
	return res.RowsAffected, res.Error
}

// ListByDelivery returns the commands claimed under deliveryID in queue
// order (CreatedAt ASC, ID ASC).
func ListByDelivery(ctx context.Context, db *gorm.DB, deliveryID string) ([]domain.Command, error) {
	var out []domain.Command
	err := db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetCommand fetches a command by ID, or ErrNotFound.
func GetCommand(ctx context.Context, db *gorm.DB, id uint) (*domain.Command, error) {
	var c domain.Command
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkCommandExecuted sets status=executed. executed_at keeps its first value
// when the command is acknowledged more than once.
func MarkCommandExecuted(ctx context.Context, db *gorm.DB, id uint, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.CommandExecuted,
			"executed_at": gorm.Expr("COALESCE(executed_at, ?)", now),
		}).Error
}

// CountCommands returns the number of commands ever queued for deviceID.
func CountCommands(ctx context.Context, db *gorm.DB, deviceID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Command{}).
		Where("device_id = ?", deviceID).
		Count(&total).Error
	return total, err
}

// ListCommandsPage returns a page of deviceID's commands, newest first.
func ListCommandsPage(ctx context.Context, db *gorm.DB, deviceID string, offset, limit int) ([]domain.Command, error) {
	var out []domain.Command
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteCommandsForDevice removes every command owned by deviceID.
func DeleteCommandsForDevice(ctx context.Context, db *gorm.DB, deviceID string) error {
	return db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&domain.Command{}).Error
}
