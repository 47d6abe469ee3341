package trigger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron fires at every activation of a 5-field cron expression evaluated in the
// reference location. Activations older than StalenessWindow are skipped, not
// replayed.
type Cron struct {
	loc *time.Location

	expr      string
	sched     cron.Schedule
	anchor    time.Time
	completed bool
}

// NewCron parses expr and anchors the search for activations at anchor.
func NewCron(loc *time.Location, expr string, anchor time.Time) (*Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	expr = strings.TrimSpace(expr)
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidTimeFormat, expr, err)
	}
	return &Cron{loc: loc, expr: expr, sched: sched, anchor: anchor}, nil
}

func newCronDefault(env Env) Trigger {
	t, _ := NewCron(env.Location, "@daily", env.Now())
	return t
}

func (t *Cron) Kind() Kind        { return KindCron }
func (t *Cron) Expr() string      { return t.expr }
func (t *Cron) Anchor() time.Time { return t.anchor }
func (t *Cron) Completed() bool   { return t.completed }
func (t *Cron) Goal() time.Time   { return t.next(t.anchor) }

func (t *Cron) next(after time.Time) time.Time {
	return t.sched.Next(after.In(t.loc))
}

func (t *Cron) Check(now time.Time) bool {
	if t.completed {
		return false
	}
	base := t.anchor
	if floor := now.Add(-StalenessWindow); base.Before(floor) {
		base = floor
	}
	return due(t.next(base), now)
}

// Advance re-anchors at now so the activation that just fired is consumed.
func (t *Cron) Advance(now time.Time) {
	t.anchor = now
	if t.next(now).IsZero() {
		t.completed = true
	}
}

type cronWire struct {
	Kind      string  `json:"kind"`
	Expr      *string `json:"expr"`
	Anchor    *string `json:"anchor"`
	Completed *bool   `json:"completed"`
}

func (t *Cron) MarshalJSON() ([]byte, error) {
	anchor := t.anchor.UTC().Format(time.RFC3339)
	return json.Marshal(cronWire{
		Kind:      string(KindCron),
		Expr:      &t.expr,
		Anchor:    &anchor,
		Completed: &t.completed,
	})
}

func restoreCron(env Env, blob []byte) (Trigger, error) {
	var w cronWire
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if err := checkKind(KindCron, w.Kind); err != nil {
		return nil, err
	}
	switch {
	case w.Expr == nil:
		return nil, missing(KindCron, "expr")
	case w.Anchor == nil:
		return nil, missing(KindCron, "anchor")
	case w.Completed == nil:
		return nil, missing(KindCron, "completed")
	}
	anchor, err := time.Parse(time.RFC3339, *w.Anchor)
	if err != nil {
		return nil, fmt.Errorf("%w: anchor %q", ErrInvalidTimeFormat, *w.Anchor)
	}
	t, err := NewCron(env.Location, *w.Expr, anchor)
	if err != nil {
		return nil, err
	}
	t.completed = *w.Completed
	return t, nil
}
