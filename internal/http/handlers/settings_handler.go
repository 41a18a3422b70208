// Settings HTTP handlers.
//
// Global settings are stored as plain key/value pairs. The backend only
// persists them for operators to read back.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SMSForwardBody is both the request and the response shape of
// /config/sms_forward.
type SMSForwardBody struct {
	ForwardNumber string `json:"forward_number" example:"+15550100"`
}

// TelegramBody is both the request and the response shape of /config/telegram.
type TelegramBody struct {
	BotToken string `json:"telegram_bot_token" example:"123456:ABC"`
	ChatID   string `json:"telegram_chat_id" example:"-100200300"`
}

// GetSMSForward godoc
// @ID          getSMSForward
// @Summary     Read the SMS forwarding number
// @Description Returns an empty string when unset.
// @Tags        Settings
// @Produce     json
// @Success     200  {object}  handlers.SMSForwardBody
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /config/sms_forward [get]
func (h *Handlers) GetSMSForward(c *gin.Context) {
	v, err := h.setSvc.SMSForwardNumber(c.Request.Context())
	if err != nil {
		failFromService(c, err, ErrCodeSettingsFailed)
		return
	}
	ok(c, http.StatusOK, SMSForwardBody{ForwardNumber: v})
}

// SetSMSForward godoc
// @ID          setSMSForward
// @Summary     Replace the SMS forwarding number
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SMSForwardBody  true  "New value"
// @Success     200   {object}  handlers.StatusResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /config/sms_forward [post]
func (h *Handlers) SetSMSForward(c *gin.Context) {
	var req SMSForwardBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.setSvc.SetSMSForwardNumber(c.Request.Context(), req.ForwardNumber); err != nil {
		failFromService(c, err, ErrCodeSettingsFailed)
		return
	}
	ok(c, http.StatusOK, success("Forwarding number updated."))
}

// GetTelegram godoc
// @ID          getTelegram
// @Summary     Read the Telegram settings
// @Description Unset values are returned as empty strings.
// @Tags        Settings
// @Produce     json
// @Success     200  {object}  handlers.TelegramBody
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /config/telegram [get]
func (h *Handlers) GetTelegram(c *gin.Context) {
	tg, err := h.setSvc.Telegram(c.Request.Context())
	if err != nil {
		failFromService(c, err, ErrCodeSettingsFailed)
		return
	}
	ok(c, http.StatusOK, TelegramBody{BotToken: tg.BotToken, ChatID: tg.ChatID})
}

// SetTelegram godoc
// @ID          setTelegram
// @Summary     Replace the Telegram settings
// @Description Both values are written together.
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.TelegramBody  true  "New values"
// @Success     200   {object}  handlers.StatusResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /config/telegram [post]
func (h *Handlers) SetTelegram(c *gin.Context) {
	var req TelegramBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.setSvc.SetTelegram(c.Request.Context(), req.BotToken, req.ChatID); err != nil {
		failFromService(c, err, ErrCodeSettingsFailed)
		return
	}
	ok(c, http.StatusOK, success("Telegram settings updated."))
}
