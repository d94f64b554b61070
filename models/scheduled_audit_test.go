package models

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestScheduledAuditValidate(t *testing.T) {
	cases := []struct {
		name    string
		audit   ScheduledAudit
		wantErr bool
	}{
		{"monthly", ScheduledAudit{Frequency: FrequencyMonthly}, false},
		{"unknown frequency", ScheduledAudit{Frequency: "hourly"}, true},
		{"custom without expression", ScheduledAudit{Frequency: FrequencyCustom}, true},
		{"custom bad expression", ScheduledAudit{Frequency: FrequencyCustom, CronExpression: "61 * * * *"}, true},
		{"custom ok", ScheduledAudit{Frequency: FrequencyCustom, CronExpression: "0 9 * * 1"}, false},
	}
	for _, c := range cases {
		err := c.audit.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestNextRunByFrequency(t *testing.T) {
	from := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		freq string
		want time.Time
	}{
		{FrequencyDaily, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)},
		{FrequencyWeekly, time.Date(2024, 2, 7, 9, 0, 0, 0, time.UTC)},
		{FrequencyQuarterly, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{FrequencyYearly, time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, ok := ScheduledAudit{Frequency: c.freq}.NextRun(from)
		if !ok || !got.Equal(c.want) {
			t.Errorf("%s: NextRun = %v (%v), want %v", c.freq, got, ok, c.want)
		}
	}
}

func TestNextRunCustom(t *testing.T) {
	audit := ScheduledAudit{Frequency: FrequencyCustom, CronExpression: "30 8 * * *"}
	from := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	got, ok := audit.NextRun(from)
	want := time.Date(2024, 3, 11, 8, 30, 0, 0, time.UTC)
	if !ok || !got.Equal(want) {
		t.Errorf("NextRun = %v (%v), want %v", got, ok, want)
	}
}

func TestAdvancePastCollapsesMissedRuns(t *testing.T) {
	audit := ScheduledAudit{Frequency: FrequencyDaily}
	due := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC)
	got, ok := audit.AdvancePast(due, now)
	want := time.Date(2024, 1, 6, 6, 0, 0, 0, time.UTC)
	if !ok || !got.Equal(want) {
		t.Errorf("AdvancePast = %v, want %v", got, want)
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	cases := []struct {
		name  string
		audit ScheduledAudit
		want  bool
	}{
		{"inactive", ScheduledAudit{Frequency: FrequencyDaily, NextRunAt: &past}, false},
		{"due", ScheduledAudit{Frequency: FrequencyDaily, IsActive: true, NextRunAt: &past}, true},
		{"not yet", ScheduledAudit{Frequency: FrequencyDaily, IsActive: true, NextRunAt: &future}, false},
		{"no next run", ScheduledAudit{Frequency: FrequencyDaily, IsActive: true}, false},
		{"custom match", ScheduledAudit{Frequency: FrequencyCustom, CronExpression: "0 9 * * 1", IsActive: true}, true},
		{"custom already ran", ScheduledAudit{Frequency: FrequencyCustom, CronExpression: "0 9 * * 1", IsActive: true, LastRunAt: &now}, false},
		{"custom no match", ScheduledAudit{Frequency: FrequencyCustom, CronExpression: "0 10 * * 1", IsActive: true}, false},
	}
	for _, c := range cases {
		if got := c.audit.IsDue(now); got != c.want {
			t.Errorf("%s: IsDue = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRunSummarize(t *testing.T) {
	a, b, c, d := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	outside := primitive.NewObjectID()

	run := ScheduledAuditRun{AssetIDs: []primitive.ObjectID{a, b, c, d}}
	run.UpsertFinding(AuditFinding{AssetID: a, Found: true, Location: "HQ-1"})
	run.UpsertFinding(AuditFinding{AssetID: b, Found: true, Location: "Warehouse"})
	run.UpsertFinding(AuditFinding{AssetID: c, Found: true})
	run.UpsertFinding(AuditFinding{AssetID: c, Found: false})
	run.UpsertFinding(AuditFinding{AssetID: outside, Found: false})

	expected := map[primitive.ObjectID]Asset{
		a: {Location: "HQ-1"},
		b: {Location: "HQ-2"},
	}
	got := run.Summarize(expected)
	want := RunSummary{Total: 4, Verified: 2, Missing: 1, Discrepancies: 1, Pending: 1}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
	if len(run.Findings) != 4 {
		t.Errorf("findings = %d, want 4 after upsert", len(run.Findings))
	}
	missing := run.MissingAssetIDs()
	if len(missing) != 2 {
		t.Errorf("missing = %d, want 2 (including out-of-scope finding)", len(missing))
	}
}
