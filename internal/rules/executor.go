package rules

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
)

type ctxkey int

const (
	ctxkeyInsidePeriodic ctxkey = iota
)

type Executor struct {
	base *app.App
}

func NewExecutor(base *app.App) *Executor {
	return &Executor{base: base}
}

func (e *Executor) ParseJSON(data json.RawMessage) (*Rule, error) {
	var desc rdesc.Rule
	err := json.Unmarshal(data, &desc)
	if err != nil {
		return nil, err
	}

	return e.CreateFromDesc(desc)
}

func (e *Executor) CreateFromDesc(desc rdesc.Rule) (*Rule, error) {
	impl, err := loadImpl(e.base, e, desc)
	if err != nil {
		return nil, err
	}

	return newRule(desc, impl)
}

func (e *Executor) Execute(ctx context.Context, r *Rule) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var insidePeriodic bool
	if val, ok := ctx.Value(ctxkeyInsidePeriodic).(bool); ok {
		insidePeriodic = val
	}

	// can't execute nested periodic rules
	isPeriodic := r.period != nil && !insidePeriodic
	if isPeriodic {
		return e.executePeriodic(ctx, r, r.period)
	}
	return e.executeOnce(ctx, r)
}

func (e *Executor) executeOnce(ctx context.Context, r *Rule) error {
	ctx = log.Into(ctx, string(r.desc.Act))

	if min := r.desc.MinInterval; min != nil && r.lastRun != nil {
		if since := time.Since(*r.lastRun); since < min.Duration {
			log.Debug(ctx, "skipping rule, min interval not reached", zap.Duration("since", since))
			return nil
		}
	}
	now := time.Now()
	r.lastRun = &now

	if t := r.desc.Timeout; t != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Duration)
		defer cancel()
	}

	err := r.impl.Execute(ctx)
	if err != nil {
		app.TrialFailures.WithLabelValues(string(r.desc.Act)).Inc()
	}
	return err
}

func (e *Executor) executePeriodic(ctx context.Context, r *Rule, period *Period) error {
	ctx = context.WithValue(ctx, ctxkeyInsidePeriodic, true)
	ctx = log.Into(ctx, "periodic")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := e.executeOnce(ctx, r)
		if err != nil {
			log.Error(ctx, "rule execution failed", zap.Error(err))
		}

		period.Sleep(ctx)
	}
}
