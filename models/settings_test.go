package models

import "testing"

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func TestSettingsPatchApplyMerges(t *testing.T) {
	base := DefaultSettings()
	base.OrganizationName = "Acme"

	patch := SettingsPatch{DeadStockThresholdDays: intPtr(90)}
	patch.Notifications = &struct {
		InApp *bool `json:"inApp"`
	}{InApp: boolPtr(false)}

	got := patch.Apply(base)
	if got.OrganizationName != "Acme" {
		t.Errorf("OrganizationName changed to %q", got.OrganizationName)
	}
	if got.DeadStockThresholdDays != 90 {
		t.Errorf("DeadStockThresholdDays = %d", got.DeadStockThresholdDays)
	}
	if got.Notifications.InApp {
		t.Errorf("Notifications = %+v, want in-app off", got.Notifications)
	}
	if got.MaintenanceReminderDays != base.MaintenanceReminderDays {
		t.Error("untouched field changed")
	}
}
