// Package services – SettingsService
//
// SettingsService exposes the process-wide key/value settings used by the
// dashboard. Values are only stored and returned; nothing is sent anywhere.
// A key that was never written reads as the empty string.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-device-backend/internal/domain"
)

// SettingsRepo defines the repository contract required by SettingsService.
type SettingsRepo interface {
	// GetSetting returns the value for key; found is false when unset.
	GetSetting(ctx context.Context, db *gorm.DB, key string) (value string, found bool, err error)

	// PutSetting inserts or replaces the value for key.
	PutSetting(ctx context.Context, db *gorm.DB, key, value string) error
}

// TelegramSettings groups the two Telegram keys.
type TelegramSettings struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// SettingsService reads and writes global settings.
type SettingsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the settings repository used by this service.
	Repo SettingsRepo
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(db *gorm.DB, r SettingsRepo) *SettingsService {
	return &SettingsService{DB: db, Repo: r}
}

// SMSForwardNumber returns the stored forward number, or "".
func (s *SettingsService) SMSForwardNumber(ctx context.Context) (string, error) {
	v, _, err := s.Repo.GetSetting(ctx, s.DB, domain.SettingSMSForwardNumber)
	return v, err
}

// SetSMSForwardNumber replaces the stored forward number.
func (s *SettingsService) SetSMSForwardNumber(ctx context.Context, number string) error {
	return s.Repo.PutSetting(ctx, s.DB, domain.SettingSMSForwardNumber, strings.TrimSpace(number))
}

// Telegram returns the stored Telegram settings; unset keys are "".
func (s *SettingsService) Telegram(ctx context.Context) (TelegramSettings, error) {
	var out TelegramSettings
	tok, _, err := s.Repo.GetSetting(ctx, s.DB, domain.SettingTelegramToken)
	if err != nil {
		return out, err
	}
	chat, _, err := s.Repo.GetSetting(ctx, s.DB, domain.SettingTelegramChatID)
	if err != nil {
		return out, err
	}
	out.BotToken, out.ChatID = tok, chat
	return out, nil
}

// SetTelegram replaces both Telegram keys atomically.
func (s *SettingsService) SetTelegram(ctx context.Context, botToken, chatID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.PutSetting(ctx, tx, domain.SettingTelegramToken, strings.TrimSpace(botToken)); err != nil {
			return err
		}
		return s.Repo.PutSetting(ctx, tx, domain.SettingTelegramChatID, strings.TrimSpace(chatID))
	})
}
