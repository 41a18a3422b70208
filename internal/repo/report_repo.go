// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the reports a
// device uploads: SMS log entries and form submissions. Both are append-only.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
)

// CreateSMS appends an SMS log entry for deviceID.
func CreateSMS(ctx context.Context, db *gorm.DB, deviceID, sender, body string) (*domain.SmsLog, error) {
	s := &domain.SmsLog{
		DeviceID:    deviceID,
		Sender:      sender,
		MessageBody: body,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// ListSMS returns up to limit entries for deviceID, newest first.
// A limit <= 0 returns everything.
func ListSMS(ctx context.Context, db *gorm.DB, deviceID string, limit int) ([]domain.SmsLog, error) {
	var out []domain.SmsLog
	q := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("received_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// DeleteSMS removes one entry by id. Returns ErrNotFound when nothing matched.
func DeleteSMS(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.SmsLog{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSMSForDevice removes every entry owned by deviceID.
func DeleteSMSForDevice(ctx context.Context, db *gorm.DB, deviceID string) error {
	return db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&domain.SmsLog{}).Error
}

// CreateForm appends a form submission for deviceID.
func CreateForm(ctx context.Context, db *gorm.DB, deviceID, customData string) (*domain.FormSubmission, error) {
	f := &domain.FormSubmission{
		DeviceID:    deviceID,
		CustomData:  customData,
		SubmittedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// ListForms returns up to limit submissions for deviceID, newest first.
// A limit <= 0 returns everything.
func ListForms(ctx context.Context, db *gorm.DB, deviceID string, limit int) ([]domain.FormSubmission, error) {
	var out []domain.FormSubmission
	q := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("submitted_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// DeleteFormsForDevice removes every submission owned by deviceID.
func DeleteFormsForDevice(ctx context.Context, db *gorm.DB, deviceID string) error {
	return db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Delete(&domain.FormSubmission{}).Error
}
