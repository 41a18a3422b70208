// Package services – DeviceService
//
// This file implements DeviceService, the device registry. Devices register
// themselves through periodic heartbeats; the first heartbeat creates the
// record and every later one refreshes its metadata and last_seen. Liveness is
// never stored: it is derived on read from last_seen and the configured
// threshold.
//
// Deletion cascades to every table that carries the device_id (commands, SMS
// logs, form submissions) inside a single transaction.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the device identifier where applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/observability"
	"github.com/tbourn/go-device-backend/internal/repo"
)

// RegisterInput is the heartbeat payload. Empty strings and a nil
// BatteryLevel mean "not reported".
type RegisterInput struct {
	DeviceID     string
	DeviceName   string
	OSVersion    string
	PhoneNumber  string
	BatteryLevel *int
}

// FleetStats is the dashboard summary.
type FleetStats struct {
	Devices  int64            `json:"devices"`
	Online   int64            `json:"online"`
	Commands map[string]int64 `json:"commands"`
}

// DeviceService owns device records and derives their liveness.
type DeviceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Threshold is the online window; <= 0 means domain.DefaultOnlineThreshold.
	Threshold time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewDeviceService constructs a DeviceService with the given online threshold.
func NewDeviceService(db *gorm.DB, threshold time.Duration) *DeviceService {
	return &DeviceService{DB: db, Threshold: threshold}
}

func (s *DeviceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DeviceService) threshold() time.Duration {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return domain.DefaultOnlineThreshold
}

// Register records a heartbeat. The device is created on first contact and
// updated afterwards; created reports which of the two happened.
//
// On update every mutable field falls back to its stored value when the
// heartbeat omits it, and last_seen is always refreshed. Two racing first
// heartbeats for the same id resolve to one row: the loser of the insert
// retries as an update.
func (s *DeviceService) Register(ctx context.Context, in RegisterInput) (created bool, err error) {
	tr := observability.Tracer("services/DeviceService")
	ctx, span := tr.Start(ctx, "Register",
		trace.WithAttributes(attribute.String("device.id", in.DeviceID)),
	)
	defer span.End()

	in = normalizeInput(in)
	if in.DeviceID == "" {
		return false, fmt.Errorf("%w: device_id is required", ErrValidation)
	}

	created, err = s.upsert(ctx, in)
	if errors.Is(err, repo.ErrDuplicate) {
		created, err = s.upsert(ctx, in)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		return false, err
	}

	result := "updated"
	if created {
		result = "created"
	}
	deviceRegistrations.WithLabelValues(result).Inc()
	span.SetAttributes(attribute.Bool("device.created", created))
	return created, nil
}

func (s *DeviceService) upsert(ctx context.Context, in RegisterInput) (created bool, err error) {
	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.FindDevice(ctx, tx, in.DeviceID)
		if err != nil && !isNotFound(err) {
			return err
		}

		if existing == nil {
			d := &domain.Device{
				DeviceID:    in.DeviceID,
				DeviceName:  orDefault(in.DeviceName, domain.DefaultDeviceName),
				OSVersion:   orDefault(in.OSVersion, domain.DefaultOSVersion),
				PhoneNumber: orDefault(in.PhoneNumber, domain.DefaultPhoneNumber),
				LastSeen:    domain.NewTimestamp(now),
				CreatedAt:   now,
			}
			if in.BatteryLevel != nil {
				d.BatteryLevel = *in.BatteryLevel
			}
			created = true
			return repo.CreateDevice(ctx, tx, d)
		}

		existing.DeviceName = orDefault(in.DeviceName, existing.DeviceName)
		existing.OSVersion = orDefault(in.OSVersion, existing.OSVersion)
		existing.PhoneNumber = orDefault(in.PhoneNumber, existing.PhoneNumber)
		if in.BatteryLevel != nil {
			existing.BatteryLevel = *in.BatteryLevel
		}
		existing.LastSeen = domain.NewTimestamp(now)
		created = false
		return repo.UpdateDevice(ctx, tx, existing)
	})
	return created, err
}

// List returns every device with its liveness, oldest registration first.
// Store failures are logged and yield an empty list.
func (s *DeviceService) List(ctx context.Context) []domain.DeviceStatus {
	tr := observability.Tracer("services/DeviceService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	devices, err := repo.ListDevices(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("list devices failed; returning empty list")
		return []domain.DeviceStatus{}
	}

	now, th := s.now(), s.threshold()
	out := make([]domain.DeviceStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, domain.WithStatus(d, now, th))
	}
	span.SetAttributes(attribute.Int("devices.count", len(out)))
	return out
}

// Get returns one device with its liveness, or ErrDeviceNotFound.
func (s *DeviceService) Get(ctx context.Context, deviceID string) (*domain.DeviceStatus, error) {
	tr := observability.Tracer("services/DeviceService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	d, err := repo.FindDevice(ctx, s.DB, deviceID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDeviceNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	st := domain.WithStatus(*d, s.now(), s.threshold())
	return &st, nil
}

// Delete removes the device and all rows it owns in one transaction.
// A missing device yields ErrDeviceNotFound and nothing is touched.
func (s *DeviceService) Delete(ctx context.Context, deviceID string) error {
	tr := observability.Tracer("services/DeviceService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteDevice(ctx, tx, deviceID); err != nil {
			if isNotFound(err) {
				return ErrDeviceNotFound
			}
			return err
		}
		if err := repo.DeleteCommandsForDevice(ctx, tx, deviceID); err != nil {
			return err
		}
		if err := repo.DeleteSMSForDevice(ctx, tx, deviceID); err != nil {
			return err
		}
		return repo.DeleteFormsForDevice(ctx, tx, deviceID)
	})
	if err != nil {
		if !errors.Is(err, ErrDeviceNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete failed")
		}
		return err
	}
	devicesDeleted.Inc()
	return nil
}

// Stats summarises the fleet for the dashboard header. Partial failures are
// logged and reported as zeros.
func (s *DeviceService) Stats(ctx context.Context) FleetStats {
	tr := observability.Tracer("services/DeviceService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	st := FleetStats{Commands: map[string]int64{
		domain.CommandPending:  0,
		domain.CommandSent:     0,
		domain.CommandExecuted: 0,
	}}

	devices := s.List(ctx)
	st.Devices = int64(len(devices))
	for _, d := range devices {
		if d.IsOnline {
			st.Online++
		}
	}

	counts, err := repo.CommandStatusCounts(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("command status counts failed")
		return st
	}
	st.Commands = counts
	return st
}

// normalizeInput trims every text field and folds it to NFC so that the
// same name typed on different keyboards compares equal.
func normalizeInput(in RegisterInput) RegisterInput {
	clean := func(s string) string { return norm.NFC.String(strings.TrimSpace(s)) }
	in.DeviceID = clean(in.DeviceID)
	in.DeviceName = clean(in.DeviceName)
	in.OSVersion = clean(in.OSVersion)
	in.PhoneNumber = clean(in.PhoneNumber)
	return in
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
