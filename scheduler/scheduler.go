// Package scheduler runs the periodic background jobs: due audit runs and
// the overdue/dead stock sweeps.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/tools/cron"

	"deadstock/config"
	"deadstock/handlers"
)

const jobTimeout = 2 * time.Minute

// Task does one pass of a job and reports how many records it touched.
type Task func(ctx context.Context, now time.Time) (int64, error)

type Job struct {
	Name string
	Expr string
	Run  Task

	running sync.Mutex
}

type Scheduler struct {
	cron *cron.Cron
	jobs []*Job
	now  func() time.Time
}

// DefaultJobs are the jobs the server registers, with cron expressions from config.
func DefaultJobs() []*Job {
	return []*Job{
		{Name: "scheduled audits", Expr: config.AuditSchedulerCron, Run: func(ctx context.Context, now time.Time) (int64, error) {
			n, err := handlers.RunDueAudits(ctx, now)
			return int64(n), err
		}},
		{Name: "maintenance sweep", Expr: config.MaintenanceSweepCron, Run: handlers.SweepOverdueMaintenance},
		{Name: "invoice sweep", Expr: config.InvoiceSweepCron, Run: handlers.SweepOverdueInvoices},
		{Name: "dead stock sweep", Expr: config.DeadStockSweepCron, Run: handlers.SweepDeadStockCandidates},
	}
}

// New registers jobs on a cron scheduler in loc. It fails on the first bad expression.
func New(loc *time.Location, jobs []*Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New()
	c.SetTimezone(loc)

	s := &Scheduler{cron: c, jobs: jobs, now: time.Now}
	for _, job := range jobs {
		job := job
		if err := c.Add(job.Name, job.Expr, func() { s.run(job) }); err != nil {
			return nil, fmt.Errorf("schedule %q (%s): %w", job.Name, job.Expr, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	config.Info("Scheduler started with %d jobs", len(s.jobs))
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	config.Info("Scheduler stopped")
}

// run executes a job unless its previous tick is still in progress.
func (s *Scheduler) run(job *Job) {
	if !job.running.TryLock() {
		config.Warning("Skipping %s: previous run still in progress", job.Name)
		return
	}
	defer job.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := s.now()
	n, err := job.Run(ctx, start.UTC())
	if err != nil {
		config.Error("Job %s failed after %v: %v", job.Name, time.Since(start), err)
		return
	}
	if n > 0 {
		config.Info("Job %s touched %d records in %v", job.Name, n, time.Since(start))
	}
}
