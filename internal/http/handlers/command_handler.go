// Command HTTP handlers.
//
// This file exposes REST endpoints for the command queue:
//   - POST /command/send                 (queue a command for a device)
//   - GET  /device/{id}/commands         (device poll; hands out pending work)
//   - GET  /device/{id}/command-history  (paginated view, no state change)
//   - POST /command/{id}/execute         (device acknowledgement)
//
// Idempotency:
// If the client supplies an Idempotency-Key header on POST /command/send and a
// live record exists for it, the originally queued command id is returned with
// status 200 and `Idempotency-Replayed: true` instead of queueing again.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-device-backend/internal/domain"
	"github.com/tbourn/go-device-backend/internal/http/middleware"
)

//
// DTOs
//

// SendCommandRequest is the JSON payload for queueing a command.
//
// CommandData is stored verbatim and delivered to the device unchanged.
type SendCommandRequest struct {
	DeviceID    string          `json:"device_id" example:"a1b2c3d4"`
	CommandType string          `json:"command_type" example:"open_url"`
	CommandData json.RawMessage `json:"command_data" swaggertype:"object"`
}

// SendCommandResponse acknowledges a queued command.
type SendCommandResponse struct {
	StatusResponse
	CommandID uint `json:"command_id" example:"42"`
}

// CommandHistoryResponse contains a page of commands and pagination metadata.
type CommandHistoryResponse struct {
	Commands   []domain.Command `json:"commands"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// SendCommand godoc
// @ID          sendCommand
// @Summary     Queue a command
// @Description Queues a command for a device. The device does not need to be registered yet.
// @Description Supports idempotency via the Idempotency-Key header (same key → same command).
// @Tags        Commands
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendCommandRequest  true  "Command payload"
//
// @Success     201  {object}  handlers.SendCommandResponse  "Queued"
// @Success     200  {object}  handlers.SendCommandResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /command/send [post]
func (h *Handlers) SendCommand(c *gin.Context) {
	var req SendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := idempotencyKey(c)
	id, replayed, err := h.cmdSvc.EnqueueIdempotent(c.Request.Context(), key, req.DeviceID, req.CommandType, req.CommandData)
	if err != nil {
		failFromService(c, err, ErrCodeEnqueueFailed)
		return
	}

	status := http.StatusCreated
	if replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
		status = http.StatusOK
	}
	ok(c, status, SendCommandResponse{
		StatusResponse: success("Command queued."),
		CommandID:      id,
	})
}

// PollCommands godoc
// @ID          pollCommands
// @Summary     Fetch pending commands
// @Description Returns the device's pending commands oldest first and marks them sent.
// @Description A command is handed out by at most one poll.
// @Tags        Commands
// @Produce     json
// @Param       id   path     string  true  "Device ID"
// @Success     200  {array}  domain.Command
// @Failure     400  {object} handlers.ErrorResponse  "Bad request"
// @Failure     500  {object} handlers.ErrorResponse  "Internal error"
// @Router      /device/{id}/commands [get]
func (h *Handlers) PollCommands(c *gin.Context) {
	cmds, err := h.cmdSvc.PollPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromService(c, err, ErrCodePollFailed)
		return
	}
	ok(c, http.StatusOK, cmds)
}

// CommandHistory godoc
// @ID          commandHistory
// @Summary     List a device's commands
// @Description Returns a paginated list of commands in any status, newest first. Does not change status.
// @Tags        Commands
// @Produce     json
//
// @Param       id         path   string  true  "Device ID"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.CommandHistoryResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /device/{id}/command-history [get]
func (h *Handlers) CommandHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.cmdSvc.History(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		failFromService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, CommandHistoryResponse{
		Commands:   items,
		Pagination: paginate(page, pageSize, total),
	})
}

// ExecuteCommand godoc
// @ID          executeCommand
// @Summary     Acknowledge a command
// @Description Marks the command executed. Repeating the call is harmless; the first execution time is kept.
// @Tags        Commands
// @Produce     json
// @Param       id   path      int  true  "Command ID"
// @Success     200  {object}  handlers.StatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Command not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /command/{id}/execute [post]
func (h *Handlers) ExecuteCommand(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "command id must be a positive integer")
		return
	}
	if err := h.cmdSvc.MarkExecuted(c.Request.Context(), id); err != nil {
		failFromService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, success("Command marked as executed."))
}

// idempotencyKey returns the key validated by middleware.IdempotencyValidator,
// falling back to the raw header when no validator is mounted.
func idempotencyKey(c *gin.Context) (string, bool) {
	if k, found := middleware.GetIdempotencyKey(c); found {
		return k, true
	}
	if v := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); v != "" {
		return v, true
	}
	return "", false
}
