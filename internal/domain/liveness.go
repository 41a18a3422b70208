package domain

import "time"

// DefaultOnlineThreshold is how recent a heartbeat must be for a device to
// count as online.
const DefaultOnlineThreshold = 20 * time.Second

// IsOnline reports whether a device last seen at lastSeen is online at now.
// The comparison is strict: a heartbeat exactly threshold old is offline.
// A zero lastSeen (never seen, or unreadable) is always offline.
func IsOnline(lastSeen, now time.Time, threshold time.Duration) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) < threshold
}

// DeviceStatus is a Device annotated with its liveness at read time.
// Neither field is persisted.
type DeviceStatus struct {
	Device
	IsOnline         bool  `json:"is_online"`
	SecondsSinceSeen int64 `json:"seconds_since_seen"`
}

// WithStatus derives the liveness view of d at now.
func WithStatus(d Device, now time.Time, threshold time.Duration) DeviceStatus {
	st := DeviceStatus{Device: d, SecondsSinceSeen: -1}
	if !d.LastSeen.IsZero() {
		st.SecondsSinceSeen = int64(now.Sub(d.LastSeen.Time) / time.Second)
		st.IsOnline = IsOnline(d.LastSeen.Time, now, threshold)
	}
	return st
}
