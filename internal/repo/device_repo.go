// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Device model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a device is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Inserting a second row for an existing device_id returns ErrDuplicate.
//   - On other DB errors (connectivity, constraints, etc.), the raw gorm
//     error is propagated.
//
// Functions:
//
//   - FindDevice(ctx, db, deviceID) -> *domain.Device, error
//     Fetches a single device by its external id, or ErrNotFound.
//
//   - CreateDevice(ctx, db, d) -> error
//     Inserts a new device row.
//
//   - UpdateDevice(ctx, db, d) -> error
//     Overwrites the mutable fields of the device identified by d.DeviceID.
//
//   - ListDevices(ctx, db) -> []domain.Device, error
//     Returns every device in registration order.
//
//   - DeleteDevice(ctx, db, deviceID) -> error
//     Removes the device row only; see services.DeviceService.Delete for the
//     transactional cascade over dependent tables.
//
// Usage:
//
//	d, err := repo.FindDevice(ctx, db, "a1b2")
//	if errors.Is(err, repo.ErrNotFound) {
//	    // first heartbeat
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindDevice fetches a device by its external identifier. If the record does
// not exist, it returns ErrNotFound.
func FindDevice(ctx context.Context, db *gorm.DB, deviceID string) (*domain.Device, error) {
	var d domain.Device
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDevice inserts d. A unique violation on device_id is reported as
// ErrDuplicate so callers can fall back to an update.
func CreateDevice(ctx context.Context, db *gorm.DB, d *domain.Device) error {
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateDevice writes every mutable column of d, matched by device_id.
// created_at and device_id are never touched. Callers look the row up first;
// RowsAffected is not consulted because MySQL reports only changed rows.
func UpdateDevice(ctx context.Context, db *gorm.DB, d *domain.Device) error {
	return db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("device_id = ?", d.DeviceID).
		Updates(map[string]any{
			"device_name":   d.DeviceName,
			"os_version":    d.OSVersion,
			"phone_number":  d.PhoneNumber,
			"battery_level": d.BatteryLevel,
			"last_seen":     d.LastSeen,
		}).Error
}

// ListDevices returns all devices ordered by registration time, oldest
// first, with id as a tiebreaker so the order never shuffles between calls.
func ListDevices(ctx context.Context, db *gorm.DB) ([]domain.Device, error) {
	var out []domain.Device
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteDevice removes the device row for deviceID. Returns ErrNotFound when
// nothing was deleted.
func DeleteDevice(ctx context.Context, db *gorm.DB, deviceID string) error {
	res := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&domain.Device{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
