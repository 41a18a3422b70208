// Package services defines the business logic for the device registry, the
// command queue, device reports and global settings. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/repo"
)

var (
	// ErrValidation is returned (usually wrapped with the offending field)
	// when a required input is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrDeviceNotFound indicates that no device is registered under the
	// requested device_id.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrCommandNotFound indicates that the requested command id does not exist.
	ErrCommandNotFound = errors.New("command not found")

	// ErrSMSNotFound indicates that the requested SMS log entry does not exist.
	ErrSMSNotFound = errors.New("sms not found")
)

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way.
func isNotFound(err error) bool {
	if errors.Is(err, repo.ErrNotFound) {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}
