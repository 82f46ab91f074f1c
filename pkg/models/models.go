package models

import "time"

const DefaultDevice = "esp32"

// Override is the tri-state manual setting of an actuator.
type Override = int

const (
	OverrideAuto Override = -1
	OverrideOff  Override = 0
	OverrideOn   Override = 1
)

// Reading is one immutable sensor/actuator snapshot. Sensor columns are
// nullable: whatever the device sent is stored, absent values stay NULL.
type Reading struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	Device  string    `gorm:"index:idx_readings_device_ts,priority:1"`
	Ts      time.Time `gorm:"column:ts;index:idx_readings_device_ts,priority:2"`
	Temp    *float64
	Hum     *float64
	SoilPct *int
	LdrPct  *int
	Pump    *int
	Fan     *int
}

// Command is the latest desired override for a device, one row per device.
type Command struct {
	Device     string    `gorm:"primaryKey"`
	Updated    time.Time `gorm:"column:updated"`
	ManualPump Override  `gorm:"column:manualpump;not null"`
	ManualFans Override  `gorm:"column:manualfans;not null"`
}

// DefaultCommand is what a device without a stored row should follow.
func DefaultCommand(device string) *Command {
	return &Command{
		Device:     device,
		ManualPump: OverrideAuto,
		ManualFans: OverrideAuto,
	}
}
