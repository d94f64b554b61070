package models

import (
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/tools/cron"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyYearly    = "yearly"
	FrequencyCustom    = "custom"
)

var Frequencies = []string{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly, FrequencyCustom}

const (
	RunPending    = "pending"
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
)

// maxCronLookahead bounds the minute scan used to find the next match of a custom expression.
const maxCronLookahead = 366 * 24 * time.Hour

type AuditScope struct {
	Categories  []string `bson:"categories,omitempty" json:"categories,omitempty"`
	Locations   []string `bson:"locations,omitempty" json:"locations,omitempty"`
	Departments []string `bson:"departments,omitempty" json:"departments,omitempty"`
	Statuses    []string `bson:"statuses,omitempty" json:"statuses,omitempty"`
}

type ScheduledAudit struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name           string               `bson:"name" json:"name"`
	Description    string               `bson:"description,omitempty" json:"description,omitempty"`
	Frequency      string               `bson:"frequency" json:"frequency"`
	CronExpression string               `bson:"cronExpression,omitempty" json:"cronExpression,omitempty"`
	Scope          AuditScope           `bson:"scope" json:"scope"`
	AuditorIDs     []primitive.ObjectID `bson:"auditorIds" json:"auditorIds"`
	IsActive       bool                 `bson:"isActive" json:"isActive"`
	NextRunAt      *time.Time           `bson:"nextRunAt,omitempty" json:"nextRunAt,omitempty"`
	LastRunAt      *time.Time           `bson:"lastRunAt,omitempty" json:"lastRunAt,omitempty"`
	CreatedBy      primitive.ObjectID   `bson:"createdBy" json:"createdBy"`
	CreatedAt      time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func IsValidFrequency(f string) bool { return contains(Frequencies, f) }

// ValidateCron checks a five-field cron expression (or macro such as @daily).
func ValidateCron(expr string) error {
	if _, err := cron.NewSchedule(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Validate checks frequency and, for custom schedules, the cron expression.
func (a ScheduledAudit) Validate() error {
	if !IsValidFrequency(a.Frequency) {
		return fmt.Errorf("invalid frequency %q", a.Frequency)
	}
	if a.Frequency == FrequencyCustom {
		if a.CronExpression == "" {
			return fmt.Errorf("cronExpression is required for custom frequency")
		}
		return ValidateCron(a.CronExpression)
	}
	return nil
}

// NextRun returns the first run time strictly after from.
func (a ScheduledAudit) NextRun(from time.Time) (time.Time, bool) {
	switch a.Frequency {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), true
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0), true
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0), true
	case FrequencyYearly:
		return from.AddDate(1, 0, 0), true
	case FrequencyCustom:
		schedule, err := cron.NewSchedule(a.CronExpression)
		if err != nil {
			return time.Time{}, false
		}
		t := from.Truncate(time.Minute).Add(time.Minute)
		limit := from.Add(maxCronLookahead)
		for ; !t.After(limit); t = t.Add(time.Minute) {
			if schedule.IsDue(cron.NewMoment(t)) {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// AdvancePast moves a due time forward until it lies after now. Missed periods
// collapse into a single run.
func (a ScheduledAudit) AdvancePast(due, now time.Time) (time.Time, bool) {
	next, ok := a.NextRun(due)
	for ok && !next.After(now) {
		next, ok = a.NextRun(next)
	}
	return next, ok
}

// IsDue reports whether the audit should run at now.
func (a ScheduledAudit) IsDue(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.Frequency == FrequencyCustom {
		schedule, err := cron.NewSchedule(a.CronExpression)
		if err != nil {
			return false
		}
		if a.LastRunAt != nil && a.LastRunAt.Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
			return false
		}
		return schedule.IsDue(cron.NewMoment(now))
	}
	return a.NextRunAt != nil && !a.NextRunAt.After(now)
}

type AuditFinding struct {
	AssetID    primitive.ObjectID `bson:"assetId" json:"assetId"`
	Found      bool               `bson:"found" json:"found"`
	Condition  string             `bson:"condition,omitempty" json:"condition,omitempty"`
	Location   string             `bson:"location,omitempty" json:"location,omitempty"`
	Notes      string             `bson:"notes,omitempty" json:"notes,omitempty"`
	VerifiedBy primitive.ObjectID `bson:"verifiedBy" json:"verifiedBy"`
	VerifiedAt time.Time          `bson:"verifiedAt" json:"verifiedAt"`
}

type RunSummary struct {
	Total         int `bson:"total" json:"total"`
	Verified      int `bson:"verified" json:"verified"`
	Missing       int `bson:"missing" json:"missing"`
	Discrepancies int `bson:"discrepancies" json:"discrepancies"`
	Pending       int `bson:"pending" json:"pending"`
}

type ScheduledAuditRun struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ScheduledAuditID primitive.ObjectID   `bson:"scheduledAuditId" json:"scheduledAuditId"`
	Name             string               `bson:"name" json:"name"`
	Status           string               `bson:"status" json:"status"`
	TriggeredBy      string               `bson:"triggeredBy" json:"triggeredBy"`
	AssetIDs         []primitive.ObjectID `bson:"assetIds" json:"assetIds"`
	Findings         []AuditFinding       `bson:"findings" json:"findings"`
	Summary          RunSummary           `bson:"summary" json:"summary"`
	StartedAt        time.Time            `bson:"startedAt" json:"startedAt"`
	CompletedAt      *time.Time           `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// HasAsset reports whether the asset is part of the run snapshot.
func (r ScheduledAuditRun) HasAsset(id primitive.ObjectID) bool {
	for _, a := range r.AssetIDs {
		if a == id {
			return true
		}
	}
	return false
}

// UpsertFinding replaces an existing finding for the same asset or appends a new one.
func (r *ScheduledAuditRun) UpsertFinding(f AuditFinding) {
	for i := range r.Findings {
		if r.Findings[i].AssetID == f.AssetID {
			r.Findings[i] = f
			return
		}
	}
	r.Findings = append(r.Findings, f)
}

// MissingAssetIDs lists assets recorded as not found.
func (r ScheduledAuditRun) MissingAssetIDs() []primitive.ObjectID {
	ids := []primitive.ObjectID{}
	for _, f := range r.Findings {
		if !f.Found {
			ids = append(ids, f.AssetID)
		}
	}
	return ids
}

// Summarize counts findings against the snapshot. A finding is a discrepancy when
// the asset was found but its recorded location or condition differs from the
// register; expected maps asset id to the registered location and condition.
func (r ScheduledAuditRun) Summarize(expected map[primitive.ObjectID]Asset) RunSummary {
	s := RunSummary{Total: len(r.AssetIDs)}
	seen := make(map[primitive.ObjectID]bool, len(r.Findings))
	for _, f := range r.Findings {
		if !r.HasAsset(f.AssetID) || seen[f.AssetID] {
			continue
		}
		seen[f.AssetID] = true
		if !f.Found {
			s.Missing++
			continue
		}
		s.Verified++
		if a, ok := expected[f.AssetID]; ok {
			if (f.Location != "" && f.Location != a.Location) || (f.Condition != "" && f.Condition != a.Condition) {
				s.Discrepancies++
			}
		}
	}
	s.Pending = s.Total - s.Verified - s.Missing
	return s
}
