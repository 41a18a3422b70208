// Package handlers exposes the REST endpoints of the fleet backend.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Service contracts are
// declared here as interfaces so tests can substitute stubs.
package handlers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/services"
	"github.com/tbourn/go-device-backend/internal/utils"
)

// HeaderIdempotencyReplayed is set on POST /command/send responses that
// returned a previously queued command.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

//
// Service contracts (context-aware)
//

// DeviceService defines device registry operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DeviceService interface {
	// Register records a heartbeat; created reports a first registration.
	Register(ctx context.Context, in services.RegisterInput) (created bool, err error)
	// List returns every device with its liveness, oldest first.
	List(ctx context.Context) []domain.DeviceStatus
	// Get returns one device with its liveness.
	Get(ctx context.Context, deviceID string) (*domain.DeviceStatus, error)
	// Delete removes a device and every row it owns.
	Delete(ctx context.Context, deviceID string) error
	// Stats summarises the fleet.
	Stats(ctx context.Context) services.FleetStats
}

// CommandService defines command queue operations.
type CommandService interface {
	// EnqueueIdempotent queues a command; a repeated live key replays the first id.
	EnqueueIdempotent(ctx context.Context, key, deviceID, commandType string, data json.RawMessage) (id uint, replayed bool, err error)
	// PollPending hands pending commands to the device and marks them sent.
	PollPending(ctx context.Context, deviceID string) ([]domain.Command, error)
	// MarkExecuted acknowledges a command.
	MarkExecuted(ctx context.Context, commandID uint) error
	// History returns a page of a device's commands, newest first.
	History(ctx context.Context, deviceID string, page, pageSize int) ([]domain.Command, int64, error)
}

// ReportService defines SMS log and form submission operations.
type ReportService interface {
	LogSMS(ctx context.Context, deviceID, sender, body string) (uint, error)
	ListSMS(ctx context.Context, deviceID string, limit int) []domain.SmsLog
	DeleteSMS(ctx context.Context, id uint) error
	SubmitForm(ctx context.Context, deviceID, customData string) (uint, error)
	ListForms(ctx context.Context, deviceID string, limit int) []domain.FormSubmission
}

// SettingsService defines global settings operations.
type SettingsService interface {
	SMSForwardNumber(ctx context.Context) (string, error)
	SetSMSForwardNumber(ctx context.Context, number string) error
	Telegram(ctx context.Context) (services.TelegramSettings, error)
	SetTelegram(ctx context.Context, botToken, chatID string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for devices, commands, reports and
// settings. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	devSvc DeviceService
	cmdSvc CommandService
	repSvc ReportService
	setSvc SettingsService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(devSvc DeviceService, cmdSvc CommandService, repSvc ReportService, setSvc SettingsService) *Handlers {
	return &Handlers{devSvc: devSvc, cmdSvc: cmdSvc, repSvc: repSvc, setSvc: setSvc}
}

//
// DTOs
//

// StatusResponse is the acknowledgement body returned by write endpoints.
type StatusResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message" example:"Command queued."`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func success(msg string) StatusResponse {
	return StatusResponse{Status: "success", Message: msg}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// paginate builds the pagination envelope for total items.
func paginate(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// idParam parses a numeric path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
