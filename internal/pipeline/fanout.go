package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/render"
)

// Renderer formats a drop for one user.
type Renderer interface {
	Render(d *models.Drop, u *models.User) (render.Alert, error)
}

// Surface delivers rendered alerts. Errors are logged by the caller and never retried.
type Surface interface {
	SendAlert(ctx context.Context, userID int64, alert render.Alert) error
}

// FanoutReport summarizes one drop's fanout.
type FanoutReport struct {
	DropID     string
	EventID    string
	Candidates int
	Sent       int
	Failed     int
	Skipped    map[Reason]int
	Duration   time.Duration
}

// fanoutRun is the shared state of one drop's fanout across workers.
type fanoutRun struct {
	ctx  context.Context
	drop *models.Drop
	wg   sync.WaitGroup

	mu     sync.Mutex
	report FanoutReport
}

func (r *fanoutRun) skip(reason Reason) {
	r.mu.Lock()
	r.report.Skipped[reason]++
	r.mu.Unlock()
}

type workItem struct {
	run  *fanoutRun
	user *models.User
}

// worker drains the shared queue until it is closed.
func (p *Pipeline) worker() {
	defer p.workers.Done()
	for item := range p.jobs {
		p.deliver(item.run, item.user)
		item.run.wg.Done()
	}
}

// Fanout streams candidates for d through the worker pool and waits for every
// per-user branch to finish. Cancelling ctx stops enumeration and skips queued users.
func (p *Pipeline) Fanout(ctx context.Context, d *models.Drop) FanoutReport {
	start := p.now()
	p.metrics.FanoutsInFlight.Inc()
	defer p.metrics.FanoutsInFlight.Dec()

	run := &fanoutRun{
		ctx:  ctx,
		drop: d,
		report: FanoutReport{
			DropID:  d.ID,
			EventID: d.EventID,
			Skipped: make(map[Reason]int),
		},
	}

	var after int64
enumerate:
	for {
		if ctx.Err() != nil {
			break
		}
		page, err := p.users.ListCandidates(ctx, after, p.cfg.CandidatePageSize)
		if err != nil {
			p.log.Error("Failed to list candidates", "drop_id", d.ID, "after", after, "error", err)
			break
		}
		for _, u := range page {
			run.mu.Lock()
			run.report.Candidates++
			run.mu.Unlock()
			run.wg.Add(1)
			select {
			case p.jobs <- workItem{run: run, user: u}:
			case <-ctx.Done():
				run.wg.Done()
				run.skip(ReasonCancelled)
				break enumerate
			}
			after = u.ID
		}
		if len(page) < p.cfg.CandidatePageSize {
			break
		}
	}

	run.wg.Wait()

	elapsed := p.now().Sub(start)
	p.metrics.FanoutDuration.Observe(elapsed.Seconds())

	run.mu.Lock()
	defer run.mu.Unlock()
	run.report.Duration = elapsed
	return run.report
}

// deliver runs filter, gate, render and send for one user.
func (p *Pipeline) deliver(run *fanoutRun, u *models.User) {
	d := run.drop
	if run.ctx.Err() != nil {
		run.skip(ReasonCancelled)
		p.metrics.AlertsSkipped.WithLabelValues(string(ReasonCancelled)).Inc()
		return
	}

	now := p.now()
	if ok, reason := Eligible(d, u, now, p.loc); !ok {
		run.skip(reason)
		p.metrics.AlertsSkipped.WithLabelValues(string(reason)).Inc()
		return
	}

	reason, err := p.gate.Admit(run.ctx, u, now)
	if err != nil {
		p.log.Warn("Quota gate failed", "drop_id", d.ID, "user_id", u.ID, "error", err)
	}
	if reason != "" {
		run.skip(reason)
		p.metrics.AlertsSkipped.WithLabelValues(string(reason)).Inc()
		return
	}

	alert, err := p.renderer.Render(d, u)
	if err != nil {
		p.log.Warn("Failed to render alert", "drop_id", d.ID, "user_id", u.ID, "error", err)
		run.skip(ReasonRenderError)
		p.metrics.AlertsSkipped.WithLabelValues(string(ReasonRenderError)).Inc()
		return
	}

	sendCtx, cancel := context.WithTimeout(run.ctx, p.cfg.SendTimeout)
	err = p.surface.SendAlert(sendCtx, u.ID, alert)
	cancel()

	run.mu.Lock()
	if err != nil {
		run.report.Failed++
	} else {
		run.report.Sent++
	}
	run.mu.Unlock()

	if err != nil {
		p.metrics.SendFailures.Inc()
		p.log.Warn("Failed to send alert", "drop_id", d.ID, "user_id", u.ID, "kind", d.Kind, "error", err)
		return
	}
	p.metrics.AlertsSent.WithLabelValues(string(d.Kind)).Inc()
	p.log.Debug("Alert sent", "drop_id", d.ID, "user_id", u.ID, "kind", d.Kind)
}

func (r FanoutReport) logAttrs() []any {
	attrs := []any{
		"drop_id", r.DropID,
		"event_id", r.EventID,
		"candidates", r.Candidates,
		"sent", r.Sent,
		"failed", r.Failed,
		"duration", r.Duration,
	}
	for reason, n := range r.Skipped {
		attrs = append(attrs, slog.Int("skipped_"+string(reason), n))
	}
	return attrs
}
