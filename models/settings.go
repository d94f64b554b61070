package models

import "time"

const SettingsID = "global"

// NotificationSettings switches in-app notifications; when off nothing is
// stored or pushed over the websocket.
type NotificationSettings struct {
	InApp bool `bson:"inApp" json:"inApp"`
}

// Settings is the single application-wide configuration document.
type Settings struct {
	ID                      string               `bson:"_id" json:"id"`
	OrganizationName        string               `bson:"organizationName" json:"organizationName"`
	Currency                string               `bson:"currency" json:"currency"`
	DateFormat              string               `bson:"dateFormat" json:"dateFormat"`
	DeadStockThresholdDays  int                  `bson:"deadStockThresholdDays" json:"deadStockThresholdDays"`
	MaintenanceReminderDays int                  `bson:"maintenanceReminderDays" json:"maintenanceReminderDays"`
	AuditReminderDays       int                  `bson:"auditReminderDays" json:"auditReminderDays"`
	DepreciationMethod      string               `bson:"depreciationMethod" json:"depreciationMethod"`
	AllowEmployeeRequests   bool                 `bson:"allowEmployeeRequests" json:"allowEmployeeRequests"`
	Notifications           NotificationSettings `bson:"notifications" json:"notifications"`
	UpdatedBy               string               `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt               time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func DefaultSettings() Settings {
	return Settings{
		ID:                      SettingsID,
		OrganizationName:        "Dead Stock Register",
		Currency:                "USD",
		DateFormat:              "2006-01-02",
		DeadStockThresholdDays:  180,
		MaintenanceReminderDays: 7,
		AuditReminderDays:       3,
		DepreciationMethod:      "straight_line",
		AllowEmployeeRequests:   true,
		Notifications:           NotificationSettings{InApp: true},
	}
}

// SettingsPatch carries a partial update; nil fields are left untouched.
type SettingsPatch struct {
	OrganizationName        *string `json:"organizationName" validate:"omitnil,min=1,max=200"`
	Currency                *string `json:"currency" validate:"omitnil,len=3,alpha"`
	DateFormat              *string `json:"dateFormat" validate:"omitnil,min=1,max=40"`
	DeadStockThresholdDays  *int    `json:"deadStockThresholdDays" validate:"omitnil,min=1,max=3650"`
	MaintenanceReminderDays *int    `json:"maintenanceReminderDays" validate:"omitnil,min=0,max=365"`
	AuditReminderDays       *int    `json:"auditReminderDays" validate:"omitnil,min=0,max=365"`
	DepreciationMethod      *string `json:"depreciationMethod" validate:"omitnil,oneof=straight_line none"`
	AllowEmployeeRequests   *bool   `json:"allowEmployeeRequests"`
	Notifications           *struct {
		InApp *bool `json:"inApp"`
	} `json:"notifications"`
}

// Apply merges the patch into s and returns the result.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.OrganizationName != nil {
		s.OrganizationName = *p.OrganizationName
	}
	if p.Currency != nil {
		s.Currency = *p.Currency
	}
	if p.DateFormat != nil {
		s.DateFormat = *p.DateFormat
	}
	if p.DeadStockThresholdDays != nil {
		s.DeadStockThresholdDays = *p.DeadStockThresholdDays
	}
	if p.MaintenanceReminderDays != nil {
		s.MaintenanceReminderDays = *p.MaintenanceReminderDays
	}
	if p.AuditReminderDays != nil {
		s.AuditReminderDays = *p.AuditReminderDays
	}
	if p.DepreciationMethod != nil {
		s.DepreciationMethod = *p.DepreciationMethod
	}
	if p.AllowEmployeeRequests != nil {
		s.AllowEmployeeRequests = *p.AllowEmployeeRequests
	}
	if p.Notifications != nil && p.Notifications.InApp != nil {
		s.Notifications.InApp = *p.Notifications.InApp
	}
	return s
}
