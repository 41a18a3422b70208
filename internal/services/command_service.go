// Package services – CommandService
//
// This file implements CommandService, the per-device command queue.
// Administrators enqueue commands; devices poll for them; devices then
// acknowledge execution. Status only moves forward:
//
//	pending -> sent -> executed
//
// A poll hands every pending command to exactly one caller. The claim is a
// single conditional UPDATE tagged with a fresh delivery token, followed by a
// read of the rows carrying that token, both inside one transaction. No
// process-local lock is involved, so the guarantee holds across replicas
// sharing the same database.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/observability"
	"github.com/tbourn/go-device-backend/internal/repo"
	"github.com/tbourn/go-device-backend/internal/utils"
)

// IdempotencyScopeSend scopes Idempotency-Key records written by enqueue.
const IdempotencyScopeSend = "command.send"

// CommandService coordinates the command lifecycle.
type CommandService struct {
	DB *gorm.DB
	// IdempotencyTTL bounds how long an Idempotency-Key is honoured.
	IdempotencyTTL time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *CommandService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Enqueue stores a pending command for deviceID and returns its id. The
// device need not exist. commandData must be present, not JSON null, and
// valid JSON; it is stored without interpretation.
func (s *CommandService) Enqueue(ctx context.Context, deviceID, commandType string, commandData json.RawMessage) (uint, error) {
	tr := observability.Tracer("services/CommandService")
	ctx, span := tr.Start(ctx, "Enqueue",
		trace.WithAttributes(
			attribute.String("device.id", deviceID),
			attribute.String("command.type", commandType),
		),
	)
	defer span.End()

	deviceID, commandType, err := validateEnqueue(deviceID, commandType, commandData)
	if err != nil {
		return 0, err
	}

	c, err := repo.CreateCommand(ctx, s.DB, deviceID, commandType, commandData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return 0, err
	}
	commandTransitions.WithLabelValues(domain.CommandPending).Inc()
	span.SetAttributes(attribute.Int64("command.id", int64(c.ID)))
	return c.ID, nil
}

// EnqueueIdempotent behaves like Enqueue but remembers key for
// IdempotencyTTL. A retry carrying the same live key returns the original
// command id with replayed=true and queues nothing. An empty key falls back
// to Enqueue.
func (s *CommandService) EnqueueIdempotent(ctx context.Context, key, deviceID, commandType string, commandData json.RawMessage) (id uint, replayed bool, err error) {
	if strings.TrimSpace(key) == "" {
		id, err = s.Enqueue(ctx, deviceID, commandType, commandData)
		return id, false, err
	}

	tr := observability.Tracer("services/CommandService")
	ctx, span := tr.Start(ctx, "EnqueueIdempotent",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	deviceID, commandType, err = validateEnqueue(deviceID, commandType, commandData)
	if err != nil {
		return 0, false, err
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.now()

	attempt := func(tx *gorm.DB) error {
		rec, err := repo.GetIdempotency(ctx, tx, IdempotencyScopeSend, key, now)
		if err == nil {
			id, replayed = rec.CommandID, true
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		if err := repo.PurgeExpiredIdempotency(ctx, tx, IdempotencyScopeSend, key, now); err != nil {
			return err
		}
		c, err := repo.CreateCommand(ctx, tx, deviceID, commandType, commandData)
		if err != nil {
			return err
		}
		if _, err := repo.CreateIdempotency(ctx, tx, IdempotencyScopeSend, key, c.ID, 201, ttl, now); err != nil {
			return err
		}
		id = c.ID
		return nil
	}
	err = s.DB.WithContext(ctx).Transaction(attempt)
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request recorded the same key first; replay it.
		err = s.DB.WithContext(ctx).Transaction(attempt)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return 0, false, err
	}

	if replayed {
		idempotentReplays.Inc()
	} else {
		commandTransitions.WithLabelValues(domain.CommandPending).Inc()
	}
	span.SetAttributes(
		attribute.Int64("command.id", int64(id)),
		attribute.Bool("idempotency.replayed", replayed),
	)
	return id, replayed, nil
}

// PollPending hands every pending command of deviceID to the caller, oldest
// first, and marks them sent. Concurrent polls partition the pending set:
// a command is returned by exactly one poll and never again.
func (s *CommandService) PollPending(ctx context.Context, deviceID string) ([]domain.Command, error) {
	tr := observability.Tracer("services/CommandService")
	ctx, span := tr.Start(ctx, "PollPending",
		trace.WithAttributes(attribute.String("device.id", deviceID)),
	)
	defer span.End()

	token := uuid.NewString()
	out := []domain.Command{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.ClaimPending(ctx, tx, deviceID, token, s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		claimed, err := repo.ListByDelivery(ctx, tx, token)
		if err != nil {
			return err
		}
		out = claimed
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		return nil, err
	}

	if len(out) > 0 {
		commandTransitions.WithLabelValues(domain.CommandSent).Add(float64(len(out)))
	}
	span.SetAttributes(attribute.Int("commands.delivered", len(out)))
	return out, nil
}

// MarkExecuted records that the device ran the command. Any existing command
// may be acknowledged, and repeating the call is harmless; executed_at keeps
// the first acknowledgement time. Unknown ids yield ErrCommandNotFound.
func (s *CommandService) MarkExecuted(ctx context.Context, commandID uint) error {
	tr := observability.Tracer("services/CommandService")
	ctx, span := tr.Start(ctx, "MarkExecuted",
		trace.WithAttributes(attribute.Int64("command.id", int64(commandID))),
	)
	defer span.End()

	var prev string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetCommand(ctx, tx, commandID)
		if err != nil {
			if isNotFound(err) {
				return ErrCommandNotFound
			}
			return err
		}
		prev = c.Status
		return repo.MarkCommandExecuted(ctx, tx, commandID, s.now())
	})
	if err != nil {
		if !errors.Is(err, ErrCommandNotFound) {
			span.RecordError(err)
		}
		return err
	}
	if prev != domain.CommandExecuted {
		commandTransitions.WithLabelValues(domain.CommandExecuted).Inc()
	}
	return nil
}

// History returns a page of deviceID's commands, newest first, with the
// total count. It never changes any status.
func (s *CommandService) History(ctx context.Context, deviceID string, page, pageSize int) ([]domain.Command, int64, error) {
	tr := observability.Tracer("services/CommandService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("device.id", deviceID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := utils.PageOffset(page, pageSize)

	total, err := repo.CountCommands(ctx, s.DB, deviceID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Command{}, 0, nil
	}

	items, err := repo.ListCommandsPage(ctx, s.DB, deviceID, offset, pageSize)
	return items, total, err
}

// validateEnqueue trims the identifiers and checks that every input is
// present.
func validateEnqueue(deviceID, commandType string, data json.RawMessage) (string, string, error) {
	deviceID = strings.TrimSpace(deviceID)
	commandType = strings.TrimSpace(commandType)
	switch {
	case deviceID == "":
		return "", "", fmt.Errorf("%w: device_id is required", ErrValidation)
	case commandType == "":
		return "", "", fmt.Errorf("%w: command_type is required", ErrValidation)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", "", fmt.Errorf("%w: command_data is required", ErrValidation)
	}
	if !json.Valid(trimmed) {
		return "", "", fmt.Errorf("%w: command_data must be valid JSON", ErrValidation)
	}
	return deviceID, commandType, nil
}
