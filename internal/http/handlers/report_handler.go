// Report HTTP handlers: SMS logs and form submissions uploaded by devices.
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-device-backend/internal/utils"
)

// LogSMSRequest is an SMS message reported by a device.
type LogSMSRequest struct {
	Sender      string `json:"sender" example:"+15550100"`
	MessageBody string `json:"message_body" example:"Your code is 1234"`
}

// SubmitFormRequest carries a free-form payload. CustomData may be a JSON
// string, stored as is, or any other JSON value, stored as its JSON text.
type SubmitFormRequest struct {
	CustomData json.RawMessage `json:"custom_data" swaggertype:"object"`
}

// CreatedResponse acknowledges a stored report.
type CreatedResponse struct {
	StatusResponse
	ID uint `json:"id" example:"7"`
}

// LogSMS godoc
// @ID          logSMS
// @Summary     Store an SMS reported by a device
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Param       id    path      string                  true  "Device ID"
// @Param       body  body      handlers.LogSMSRequest  true  "SMS payload"
// @Success     201   {object}  handlers.CreatedResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /device/{id}/sms [post]
func (h *Handlers) LogSMS(c *gin.Context) {
	var req LogSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	id, err := h.repSvc.LogSMS(c.Request.Context(), c.Param("id"), req.Sender, req.MessageBody)
	if err != nil {
		failFromService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, CreatedResponse{StatusResponse: success("SMS logged."), ID: id})
}

// ListSMS godoc
// @ID          listSMS
// @Summary     List a device's SMS logs
// @Description Newest first. The result is capped by the server's list limit.
// @Tags        Reports
// @Produce     json
// @Param       id     path   string  true   "Device ID"
// @Param       limit  query  int     false  "Maximum rows"  minimum(1)
// @Success     200  {array}  domain.SmsLog
// @Router      /device/{id}/sms [get]
func (h *Handlers) ListSMS(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	ok(c, http.StatusOK, h.repSvc.ListSMS(c.Request.Context(), c.Param("id"), limit))
}

// DeleteSMS godoc
// @ID          deleteSMS
// @Summary     Delete an SMS log entry
// @Tags        Reports
// @Produce     json
// @Param       id   path      int  true  "SMS ID"
// @Success     200  {object}  handlers.StatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "SMS not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sms/{id} [delete]
func (h *Handlers) DeleteSMS(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sms id must be a positive integer")
		return
	}
	if err := h.repSvc.DeleteSMS(c.Request.Context(), id); err != nil {
		failFromService(c, err, ErrCodeDeleteFailed)
		return
	}
	ok(c, http.StatusOK, success("SMS deleted."))
}

// SubmitForm godoc
// @ID          submitForm
// @Summary     Store a form submission
// @Tags        Reports
// @Accept      json
// @Produce     json
// @Param       id    path      string                      true  "Device ID"
// @Param       body  body      handlers.SubmitFormRequest  true  "Form payload"
// @Success     201   {object}  handlers.CreatedResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /device/{id}/forms [post]
func (h *Handlers) SubmitForm(c *gin.Context) {
	var req SubmitFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	id, err := h.repSvc.SubmitForm(c.Request.Context(), c.Param("id"), formText(req.CustomData))
	if err != nil {
		failFromService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, CreatedResponse{StatusResponse: success("Form data submitted."), ID: id})
}

// ListForms godoc
// @ID          listForms
// @Summary     List a device's form submissions
// @Description Newest first. The result is capped by the server's list limit.
// @Tags        Reports
// @Produce     json
// @Param       id     path   string  true   "Device ID"
// @Param       limit  query  int     false  "Maximum rows"  minimum(1)
// @Success     200  {array}  domain.FormSubmission
// @Router      /device/{id}/forms [get]
func (h *Handlers) ListForms(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	ok(c, http.StatusOK, h.repSvc.ListForms(c.Request.Context(), c.Param("id"), limit))
}

// formText unwraps a JSON string; any other value is kept as compact JSON.
// null and absent both yield "" so the service rejects them.
func formText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
