// Package services – ReportService
//
// ReportService stores what devices upload: SMS log entries and form
// submissions. Writes are validated and strict; reads are lenient and
// degrade to an empty list when the store fails, so a broken table never
// takes the dashboard down.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/observability"
	"github.com/tbourn/go-device-backend/internal/repo"
)

// ReportService appends and reads device reports.
type ReportService struct {
	DB *gorm.DB
	// ListLimit caps list results when the caller passes limit <= 0.
	ListLimit int
}

// LogSMS appends an SMS entry for deviceID and returns its id.
func (s *ReportService) LogSMS(ctx context.Context, deviceID, sender, body string) (uint, error) {
	tr := observability.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "LogSMS",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	deviceID, sender = strings.TrimSpace(deviceID), strings.TrimSpace(sender)
	switch {
	case deviceID == "":
		return 0, fmt.Errorf("%w: device_id is required", ErrValidation)
	case sender == "":
		return 0, fmt.Errorf("%w: sender is required", ErrValidation)
	case strings.TrimSpace(body) == "":
		return 0, fmt.Errorf("%w: message_body is required", ErrValidation)
	}

	rec, err := repo.CreateSMS(ctx, s.DB, deviceID, sender, body)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return rec.ID, nil
}

// ListSMS returns deviceID's SMS entries, newest first.
func (s *ReportService) ListSMS(ctx context.Context, deviceID string, limit int) []domain.SmsLog {
	tr := observability.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "ListSMS",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	out, err := repo.ListSMS(ctx, s.DB, deviceID, s.limit(limit))
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("device_id", deviceID).Msg("list sms failed; returning empty list")
		return []domain.SmsLog{}
	}
	return out
}

// DeleteSMS removes one SMS entry, or returns ErrSMSNotFound.
func (s *ReportService) DeleteSMS(ctx context.Context, id uint) error {
	if err := repo.DeleteSMS(ctx, s.DB, id); err != nil {
		if isNotFound(err) {
			return ErrSMSNotFound
		}
		return err
	}
	return nil
}

// SubmitForm appends a form submission for deviceID and returns its id.
func (s *ReportService) SubmitForm(ctx context.Context, deviceID, customData string) (uint, error) {
	tr := observability.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "SubmitForm",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return 0, fmt.Errorf("%w: device_id is required", ErrValidation)
	}
	if strings.TrimSpace(customData) == "" {
		return 0, fmt.Errorf("%w: custom_data is required", ErrValidation)
	}

	rec, err := repo.CreateForm(ctx, s.DB, deviceID, customData)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return rec.ID, nil
}

// ListForms returns deviceID's form submissions, newest first.
func (s *ReportService) ListForms(ctx context.Context, deviceID string, limit int) []domain.FormSubmission {
	tr := observability.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "ListForms",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	out, err := repo.ListForms(ctx, s.DB, deviceID, s.limit(limit))
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("device_id", deviceID).Msg("list forms failed; returning empty list")
		return []domain.FormSubmission{}
	}
	return out
}

func (s *ReportService) limit(n int) int {
	if n > 0 && (s.ListLimit <= 0 || n <= s.ListLimit) {
		return n
	}
	return s.ListLimit
}
