package models

import "time"

// Keys of the runtime settings an admin can change without a restart.
const (
	ConfigLogRetentionDays  = "log_retention_days"
	ConfigAccessTokenHours  = "auth_access_token_expire_hours"
	ConfigRefreshTokenHours = "auth_refresh_token_expire_hours"
)

// SystemConfig is a runtime setting stored in the database.
type SystemConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:key;uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:20;default:string" json:"type"`      // string, int, bool
	Group     string    `gorm:"column:group;size:50;index" json:"group"` // system, auth
	Label     string    `gorm:"size:200" json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }

// DefaultSystemConfigs are seeded when missing.
func DefaultSystemConfigs() []SystemConfig {
	return []SystemConfig{
		{Key: ConfigLogRetentionDays, Value: "30", Type: "int", Group: "system", Label: "System Log Retention Days"},
		{Key: ConfigAccessTokenHours, Value: "24", Type: "int", Group: "auth", Label: "Access Token Lifetime (hours)"},
		{Key: ConfigRefreshTokenHours, Value: "720", Type: "int", Group: "auth", Label: "Refresh Token Lifetime (hours)"},
	}
}
