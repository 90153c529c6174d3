package rules

import (
	"context"
	"fmt"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
)

var ErrUnknownRule = fmt.Errorf("unknown rule")

// One of the rule implementations.
type RuleImpl interface {
	Execute(ctx context.Context) error
}

func loadImpl(base *app.App, executor *Executor, desc rdesc.Rule) (RuleImpl, error) {
	switch desc.Act {
	case rdesc.ActCreateRun:
		return NewCreateRun(base, desc.Args)
	case rdesc.ActTrimRuns:
		return NewTrimRuns(base, desc.Args)
	case rdesc.ActDrawBurst:
		return NewDrawBurst(base, desc.Args)
	case rdesc.ActMutatePool:
		return NewMutatePool(base, desc.Args)
	case rdesc.ActAuditRun:
		return NewAuditRun(base, desc.Args)
	case rdesc.ActDoGlobalRules:
		return NewDoGlobalRules(base, executor, desc.Args)
	case rdesc.ActTest:
		return NewTestRule(base, desc.Args)
	default:
		return nil, fmt.Errorf("unknown rule act %s: %w", desc.Act, ErrUnknownRule)
	}
}
