// Package campaign sequences bulk dispatch runs: one ordered pass over a
// selected contact list with per-contact personalization, randomized pacing
// and cooperative pause/resume/cancel.
package campaign

import (
	"context"
	"errors"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zapvendas/messaging-api/pkg/log"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// PlaceholderToken is substituted with the contact's display name,
// case-insensitively.
const PlaceholderToken = "{name}"

// safeModePause is the mandatory extra pause applied after every 20th send
// when safe mode is on, an anti-throttling heuristic.
const safeModePause = 300 * time.Second

var (
	ErrAlreadyRunning = errors.New("a campaign is already running")
	ErrNotRunning     = errors.New("no campaign is running")
	ErrNotPaused      = errors.New("no campaign is paused")
	ErrNoTargets      = errors.New("campaign needs at least one target")
	ErrBadDelayRange  = errors.New("campaign delay range is not valid")
)

// Target is one contact selected for the campaign.
type Target struct {
	ContactID   string `json:"contact_id"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

// Config describes one campaign run.
type Config struct {
	TenantID  string
	Template  string
	Targets   []Target
	MinDelayS int
	MaxDelayS int
	SafeMode  bool
}

// Snapshot is the observable progress of a campaign.
type Snapshot struct {
	Status        Status `json:"status"`
	Total         int    `json:"total"`
	Sent          int    `json:"sent"`
	Failed        int    `json:"failed"`
	CurrentTarget string `json:"current_target,omitempty"`
	CountdownS    int    `json:"countdown_seconds,omitempty"`
}

// Sender is the outbound send operation the runner drives.
type Sender interface {
	SendText(ctx context.Context, tenantID string, to string, text string) (string, error)
}

// Recorder persists a successfully sent text into the contact's history.
// Called fire-and-forget; failures are logged, never fatal to the campaign.
type Recorder func(ctx context.Context, tenantID string, contactID string, content string)

// Runner drives one tenant's campaign at a time. Campaigns are in-memory
// only: a process restart loses progress.
type Runner struct {
	sender  Sender
	record  Recorder
	limiter *rate.Limiter

	// Injectable for tests.
	sleep   func(time.Duration)
	delayFn func(minS, maxS int) time.Duration

	mu         sync.Mutex
	status     Status
	cfg        Config
	pos        int
	sent       int
	failed     int
	current    string
	countdown  int
	runToken   int
	loopActive bool
}

func NewRunner(sender Sender, record Recorder, limiter *rate.Limiter) *Runner {
	return &Runner{
		sender:  sender,
		record:  record,
		limiter: limiter,
		status:  StatusIdle,
		sleep:   time.Sleep,
		delayFn: randomDelay,
	}
}

func randomDelay(minS, maxS int) time.Duration {
	if maxS <= minS {
		return time.Duration(minS) * time.Second
	}
	return time.Duration(minS+int(mathrand.Int64N(int64(maxS-minS+1)))) * time.Second
}

// Start begins a new run. Allowed from idle or completed.
func (r *Runner) Start(cfg Config) error {
	if len(cfg.Targets) == 0 {
		return ErrNoTargets
	}
	if cfg.MinDelayS < 0 || cfg.MaxDelayS < cfg.MinDelayS {
		return ErrBadDelayRange
	}

	r.mu.Lock()
	if r.status == StatusRunning || r.status == StatusPaused {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.cfg = cfg
	r.status = StatusRunning
	r.pos = 0
	r.sent = 0
	r.failed = 0
	r.current = ""
	r.countdown = 0
	r.runToken++
	r.loopActive = true
	token := r.runToken
	r.mu.Unlock()

	go r.run(token)
	return nil
}

// Pause stops the loop at the next cooperative check point. Progress
// counters and the resume position are kept.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return ErrNotRunning
	}
	r.status = StatusPaused
	return nil
}

// Resume re-enters the iteration loop at the saved position. When the loop
// goroutine is still parked on an in-flight send or delay it is reused, so
// the contact being sent to is never dispatched twice.
func (r *Runner) Resume() error {
	r.mu.Lock()
	if r.status != StatusPaused {
		r.mu.Unlock()
		return ErrNotPaused
	}
	r.status = StatusRunning
	if r.loopActive {
		r.mu.Unlock()
		return nil
	}
	r.runToken++
	r.loopActive = true
	token := r.runToken
	r.mu.Unlock()

	go r.run(token)
	return nil
}

// Cancel resets the campaign to the idle baseline. The loop halts at its
// next check point; an in-flight send or delay is not aborted.
func (r *Runner) Cancel() {
	r.mu.Lock()
	r.status = StatusIdle
	r.pos = 0
	r.sent = 0
	r.failed = 0
	r.current = ""
	r.countdown = 0
	r.runToken++
	r.loopActive = false
	r.mu.Unlock()
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Status:        r.status,
		Total:         len(r.cfg.Targets),
		Sent:          r.sent,
		Failed:        r.failed,
		CurrentTarget: r.current,
		CountdownS:    r.countdown,
	}
}

func (r *Runner) run(token int) {
	for {
		r.mu.Lock()
		if token != r.runToken {
			r.mu.Unlock()
			return
		}
		if r.status != StatusRunning {
			r.loopActive = false
			r.mu.Unlock()
			return
		}
		if r.pos >= len(r.cfg.Targets) {
			r.status = StatusCompleted
			r.current = ""
			r.countdown = 0
			r.loopActive = false
			r.mu.Unlock()
			return
		}
		idx := r.pos
		cfg := r.cfg
		target := cfg.Targets[idx]
		r.current = target.DisplayName
		r.mu.Unlock()

		text := Personalize(cfg.Template, target.DisplayName)

		if r.limiter != nil {
			_ = r.limiter.Wait(context.Background())
		}

		_, err := r.sender.SendText(context.Background(), cfg.TenantID, target.Phone, text)

		r.mu.Lock()
		if token != r.runToken {
			r.mu.Unlock()
			return
		}
		if err != nil {
			r.failed++
			log.Session(cfg.TenantID).WithError(err).Warn("Campaign send failed for " + target.DisplayName)
		} else {
			r.sent++
		}
		r.pos = idx + 1
		last := r.pos >= len(cfg.Targets)
		r.mu.Unlock()

		if err == nil && r.record != nil {
			go r.record(context.Background(), cfg.TenantID, target.ContactID, text)
		}

		if last {
			continue
		}

		delay := r.delayFn(cfg.MinDelayS, cfg.MaxDelayS)
		if cfg.SafeMode && (idx+1)%20 == 0 {
			delay += safeModePause
		}
		if !r.waitCountdown(token, delay) {
			return
		}
	}
}

// waitCountdown sleeps the delay in one-second ticks so observers see a
// live countdown. The delay itself is not interruptible; pause and cancel
// take effect at the next loop check, so worst-case latency is the
// remaining delay.
func (r *Runner) waitCountdown(token int, delay time.Duration) bool {
	remaining := int(delay.Round(time.Second) / time.Second)
	for ; remaining > 0; remaining-- {
		r.mu.Lock()
		if token != r.runToken {
			r.countdown = 0
			r.mu.Unlock()
			return false
		}
		r.countdown = remaining
		r.mu.Unlock()

		r.sleep(time.Second)
	}

	r.mu.Lock()
	r.countdown = 0
	r.mu.Unlock()
	return true
}

// Personalize substitutes the placeholder token with the contact's display
// name, matching the token case-insensitively.
func Personalize(template string, displayName string) string {
	lowerTemplate := strings.ToLower(template)
	lowerToken := strings.ToLower(PlaceholderToken)

	var b strings.Builder
	for {
		i := strings.Index(lowerTemplate, lowerToken)
		if i < 0 {
			b.WriteString(template)
			return b.String()
		}
		b.WriteString(template[:i])
		b.WriteString(displayName)
		template = template[i+len(lowerToken):]
		lowerTemplate = lowerTemplate[i+len(lowerToken):]
	}
}
