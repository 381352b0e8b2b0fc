package service

import "time"

// LogFilter supports audit history filtering by time range, type and device.
type LogFilter struct {
	From   time.Time // inclusive; zero means no lower bound
	To     time.Time // inclusive; zero means no upper bound
	Type   string    // "", "LOGIN", "MODE_CHANGE", "STATUS_READ", "RETRY", "ERROR"
	Device string    // "" means all devices
}
