package config

import (
	"testing"
	"time"
)

func TestParseExpire(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"2h", 2 * time.Hour},
		{"bogus", 24 * time.Hour},
		{"-5m", 24 * time.Hour},
	}
	for _, c := range cases {
		if got := parseExpire(c.in); got != c.want {
			t.Errorf("parseExpire(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MONGO_DB", "")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("SCHEDULER_TIMEZONE", "Nowhere/Nope")
	t.Setenv("LOGIN_RATE_PER_SEC", "3")

	LoadConfig()

	if Port != "8080" {
		t.Errorf("Port = %q, want 8080", Port)
	}
	if MongoDB != "deadstock" {
		t.Errorf("MongoDB = %q, want deadstock", MongoDB)
	}
	if RedisDB != 0 {
		t.Errorf("RedisDB = %d, want fallback 0", RedisDB)
	}
	if SchedulerTimezone != time.UTC {
		t.Errorf("SchedulerTimezone = %v, want UTC", SchedulerTimezone)
	}
	if LoginRatePerSec != 3 {
		t.Errorf("LoginRatePerSec = %v, want 3", LoginRatePerSec)
	}
	if AuditSchedulerCron != "* * * * *" {
		t.Errorf("AuditSchedulerCron = %q", AuditSchedulerCron)
	}
}

func TestParseProxies(t *testing.T) {
	nets := parseProxies(" 10.0.0.0/8, 192.0.2.5 ,bogus,, ::1")
	if len(nets) != 3 {
		t.Fatalf("parsed %d networks, want 3", len(nets))
	}
	if got := nets[1].String(); got != "192.0.2.5/32" {
		t.Errorf("single ip = %s", got)
	}
	if got := nets[2].String(); got != "::1/128" {
		t.Errorf("ipv6 ip = %s", got)
	}
	if parseProxies("") != nil {
		t.Error("empty list should trust nobody")
	}
}
