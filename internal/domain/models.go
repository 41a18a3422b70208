// Package domain defines the persistence models for devices, their command
// queue, and the reports they upload. These types are mapped with GORM and
// form the core data layer of the fleet backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Placeholders stored for optional device metadata that was never reported.
const (
	DefaultDeviceName  = "Unknown Device"
	DefaultOSVersion   = "N/A"
	DefaultPhoneNumber = "N/A"
)

// Command lifecycle states. Transitions only ever move forward:
// pending -> sent -> executed.
const (
	CommandPending  = "pending"
	CommandSent     = "sent"
	CommandExecuted = "executed"
)

// Device is a remote endpoint identified by the externally supplied DeviceID.
// It is created by the first heartbeat and refreshed by every later one.
//
// Fields:
//   - ID: autoincrement surrogate key.
//   - DeviceID: stable external identifier (unique, immutable).
//   - DeviceName / OSVersion / PhoneNumber / BatteryLevel: last reported metadata.
//   - LastSeen: time of the latest heartbeat; scanned leniently (see Timestamp).
//   - CreatedAt: first registration time; drives list ordering.
type Device struct {
	ID           uint      `json:"id"            gorm:"primaryKey;autoIncrement"`
	DeviceID     string    `json:"device_id"     gorm:"type:varchar(128);not null;uniqueIndex:ux_devices_device_id"`
	DeviceName   string    `json:"device_name"   gorm:"type:varchar(255);not null;default:'Unknown Device'"`
	OSVersion    string    `json:"os_version"    gorm:"type:varchar(64);not null;default:'N/A'"`
	PhoneNumber  string    `json:"phone_number"  gorm:"type:varchar(64);not null;default:'N/A'"`
	BatteryLevel int       `json:"battery_level" gorm:"not null;default:0"`
	LastSeen     Timestamp `json:"last_seen"     gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"    gorm:"not null;index:idx_devices_created"`
}

// TableName returns the database table name for Device.
func (Device) TableName() string { return "devices" }

// Command is an administrator-issued instruction queued for a device.
//
// CommandData is stored opaquely; the queue never inspects its shape.
// DeliveryID is the token of the poll that claimed the command, so that a
// single poll can atomically flip and then read back exactly its own batch.
type Command struct {
	ID          uint           `json:"id"                    gorm:"primaryKey;autoIncrement"`
	DeviceID    string         `json:"device_id"             gorm:"type:varchar(128);not null;index:idx_commands_device_status,priority:1"`
	CommandType string         `json:"command_type"          gorm:"type:varchar(128);not null"`
	CommandData datatypes.JSON `json:"command_data"          gorm:"not null"`
	Status      string         `json:"status"                gorm:"type:varchar(16);not null;default:'pending';index:idx_commands_device_status,priority:2;check:status IN ('pending','sent','executed')"`
	DeliveryID  string         `json:"-"                     gorm:"type:varchar(36);index"`
	CreatedAt   time.Time      `json:"created_at"            gorm:"not null"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	ExecutedAt  *time.Time     `json:"executed_at,omitempty"`
}

// TableName returns the database table name for Command.
func (Command) TableName() string { return "commands" }

// SmsLog is an SMS message reported by a device. Rows are append-only.
type SmsLog struct {
	ID          uint      `json:"id"           gorm:"primaryKey;autoIncrement"`
	DeviceID    string    `json:"device_id"    gorm:"type:varchar(128);not null;index:idx_sms_device_received,priority:1"`
	Sender      string    `json:"sender"       gorm:"type:varchar(64);not null"`
	MessageBody string    `json:"message_body" gorm:"type:text;not null"`
	ReceivedAt  time.Time `json:"received_at"  gorm:"not null;index:idx_sms_device_received,priority:2"`
}

// TableName returns the database table name for SmsLog.
func (SmsLog) TableName() string { return "sms_logs" }

// FormSubmission is a free-form payload uploaded by a device.
type FormSubmission struct {
	ID          uint      `json:"id"           gorm:"primaryKey;autoIncrement"`
	DeviceID    string    `json:"device_id"    gorm:"type:varchar(128);not null;index:idx_forms_device_submitted,priority:1"`
	CustomData  string    `json:"custom_data"  gorm:"type:text;not null"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null;index:idx_forms_device_submitted,priority:2"`
}

// TableName returns the database table name for FormSubmission.
func (FormSubmission) TableName() string { return "form_submissions" }

// GlobalSetting is a process-wide key/value pair. Writes replace the value.
type GlobalSetting struct {
	SettingKey   string `json:"setting_key"   gorm:"type:varchar(64);primaryKey"`
	SettingValue string `json:"setting_value" gorm:"type:text"`
}

// TableName returns the database table name for GlobalSetting.
func (GlobalSetting) TableName() string { return "global_settings" }

// Setting keys.
const (
	SettingSMSForwardNumber = "sms_forward_number"
	SettingTelegramToken    = "telegram_bot_token"
	SettingTelegramChatID   = "telegram_chat_id"
)

// All returns every model managed by the schema, in migration order.
func All() []any {
	return []any{
		&Device{},
		&Command{},
		&SmsLog{},
		&FormSubmission{},
		&GlobalSetting{},
		&Idempotency{},
	}
}
