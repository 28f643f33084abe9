package models

import (
	"time"

	"github.com/google/uuid"
)

// Device identifies one installation of the application. DeviceID is stable
// for the lifetime of the installation.
type Device struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	OSInfo     string    `json:"os_info"`
	AppVersion string    `json:"app_version"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// NewDevice registers a new installation identity.
func NewDevice(name, deviceType, osInfo, appVersion string) *Device {
	now := time.Now().UTC()
	return &Device{
		DeviceID:   uuid.NewString(),
		DeviceName: name,
		DeviceType: deviceType,
		OSInfo:     osInfo,
		AppVersion: appVersion,
		CreatedAt:  now,
		LastSeen:   now,
	}
}

// MasterPasswordConfig is the user's unlock policy.
type MasterPasswordConfig struct {
	AutoUnlock            bool `json:"auto_unlock"`
	SessionTimeoutMinutes int  `json:"session_timeout_minutes"`
	RequireOnStartup      bool `json:"require_on_startup"`
	UseKeychain           bool `json:"use_keychain"`
}

// DefaultMasterPasswordConfig requires the password on startup and keeps
// auto-unlock off until the user opts in.
func DefaultMasterPasswordConfig() MasterPasswordConfig {
	return MasterPasswordConfig{
		AutoUnlock:            false,
		SessionTimeoutMinutes: 30,
		RequireOnStartup:      true,
		UseKeychain:           false,
	}
}
