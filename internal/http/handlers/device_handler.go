// Device HTTP handlers.
//
// This file exposes REST endpoints for the device registry:
//   - POST   /device/register  (heartbeat; creates or refreshes a device)
//   - GET    /devices          (all devices with liveness)
//   - GET    /device/{id}      (one device with liveness)
//   - DELETE /device/{id}      (device and everything it owns)
//   - GET    /stats            (fleet summary)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-device-backend/internal/services"
)

//
// DTOs
//

// RegisterDeviceRequest is the heartbeat payload sent by a device.
//
// Only DeviceID is required. Omitted metadata keeps its stored value, or a
// placeholder on first registration.
type RegisterDeviceRequest struct {
	DeviceID     string `json:"device_id" example:"a1b2c3d4"`
	DeviceName   string `json:"device_name,omitempty" example:"Pixel 7"`
	OSVersion    string `json:"os_version,omitempty" example:"14"`
	BatteryLevel *int   `json:"battery_level,omitempty" example:"87"`
	PhoneNumber  string `json:"phone_number,omitempty" example:"+15550100"`
}

// RegisterDeviceResponse acknowledges a heartbeat.
type RegisterDeviceResponse struct {
	StatusResponse
	// Created is true when this heartbeat registered the device.
	Created bool `json:"created"`
}

//
// Handlers
//

// RegisterDevice godoc
// @ID          registerDevice
// @Summary     Register or refresh a device
// @Description Records a heartbeat. The first heartbeat for a device_id creates it;
// @Description later ones update the reported metadata and last_seen.
// @Tags        Devices
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterDeviceRequest  true  "Heartbeat payload"
// @Success     200   {object}  handlers.RegisterDeviceResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /device/register [post]
func (h *Handlers) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	created, err := h.devSvc.Register(c.Request.Context(), services.RegisterInput{
		DeviceID:     req.DeviceID,
		DeviceName:   req.DeviceName,
		OSVersion:    req.OSVersion,
		PhoneNumber:  req.PhoneNumber,
		BatteryLevel: req.BatteryLevel,
	})
	if err != nil {
		failFromService(c, err, ErrCodeRegisterFailed)
		return
	}

	ok(c, http.StatusOK, RegisterDeviceResponse{
		StatusResponse: success("Device data received and updated."),
		Created:        created,
	})
}

// ListDevices godoc
// @ID          listDevices
// @Summary     List devices
// @Description Returns every registered device, oldest registration first, with is_online
// @Description computed against the configured online threshold.
// @Tags        Devices
// @Produce     json
// @Success     200  {array}  domain.DeviceStatus
// @Router      /devices [get]
func (h *Handlers) ListDevices(c *gin.Context) {
	ok(c, http.StatusOK, h.devSvc.List(c.Request.Context()))
}

// GetDevice godoc
// @ID          getDevice
// @Summary     Get a device
// @Tags        Devices
// @Produce     json
// @Param       id   path      string  true  "Device ID"
// @Success     200  {object}  domain.DeviceStatus
// @Failure     404  {object}  handlers.ErrorResponse  "Device not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /device/{id} [get]
func (h *Handlers) GetDevice(c *gin.Context) {
	d, err := h.devSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

// DeleteDevice godoc
// @ID          deleteDevice
// @Summary     Delete a device
// @Description Removes the device together with its commands, SMS logs and form submissions.
// @Description Either everything is removed or nothing is.
// @Tags        Devices
// @Produce     json
// @Param       id   path      string  true  "Device ID"
// @Success     200  {object}  handlers.StatusResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Device not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /device/{id} [delete]
func (h *Handlers) DeleteDevice(c *gin.Context) {
	if err := h.devSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failFromService(c, err, ErrCodeDeleteFailed)
		return
	}
	ok(c, http.StatusOK, success("Device and all related data deleted."))
}

// Stats godoc
// @ID          fleetStats
// @Summary     Fleet summary
// @Description Device count, online count and commands per status.
// @Tags        Devices
// @Produce     json
// @Success     200  {object}  services.FleetStats
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	ok(c, http.StatusOK, h.devSvc.Stats(c.Request.Context()))
}
