package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Device{}).TableName():         "devices",
		(Command{}).TableName():        "commands",
		(SmsLog{}).TableName():         "sms_logs",
		(FormSubmission{}).TableName(): "form_submissions",
		(GlobalSetting{}).TableName():  "global_settings",
		(Idempotency{}).TableName():    "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndConstraints(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range All() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&Device{}, "ux_devices_device_id") {
		t.Fatalf("expected unique index ux_devices_device_id on devices")
	}
	if !m.HasIndex(&Command{}, "idx_commands_device_status") {
		t.Fatalf("expected index idx_commands_device_status on commands")
	}

	now := time.Now().UTC()

	d1 := &Device{DeviceID: "d1", DeviceName: "Pixel", OSVersion: "14", PhoneNumber: "N/A", LastSeen: NewTimestamp(now), CreatedAt: now}
	if err := db.Create(d1).Error; err != nil {
		t.Fatalf("insert device: %v", err)
	}
	// device_id is unique.
	dup := &Device{DeviceID: "d1", DeviceName: "Other", OSVersion: "N/A", PhoneNumber: "N/A", LastSeen: NewTimestamp(now), CreatedAt: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on device_id")
	}

	// Status is constrained to the three lifecycle values.
	bad := &Command{DeviceID: "d1", CommandType: "ping", CommandData: datatypes.JSON(`{}`), Status: "lost", CreatedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for status=lost")
	}
	good := &Command{DeviceID: "d1", CommandType: "ping", CommandData: datatypes.JSON(`{"n":1}`), Status: CommandPending, CreatedAt: now}
	if err := db.Create(good).Error; err != nil {
		t.Fatalf("insert command: %v", err)
	}

	var got Command
	if err := db.First(&got, good.ID).Error; err != nil {
		t.Fatalf("readback command: %v", err)
	}
	if string(got.CommandData) != `{"n":1}` || got.Status != CommandPending {
		t.Fatalf("unexpected command: %+v", got)
	}

	var gotDev Device
	if err := db.First(&gotDev, "device_id = ?", "d1").Error; err != nil {
		t.Fatalf("readback device: %v", err)
	}
	if gotDev.LastSeen.IsZero() || gotDev.LastSeen.Sub(now).Abs() > time.Second {
		t.Fatalf("last_seen round-trip mismatch: %v vs %v", gotDev.LastSeen.Time, now)
	}
}
