package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/app"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/rdesc"
	"github.com/petuhovskiy/rollodrome/internal/rules"
)

const shutdownGrace = time.Minute

// defaultRules is the rule set used when RULES is not set. Draw bursts
// dominate, mutations keep the pools moving, audits and trims run in
// the background.
func defaultRules() []rdesc.Rule {
	return []rdesc.Rule{
		{
			Act:      rdesc.ActCreateRun,
			Periodic: "random(30,60)",
		},
		{
			Act:      rdesc.ActTrimRuns,
			Periodic: "random(60,120)",
		},
		{
			Act:      rdesc.ActDrawBurst,
			Periodic: "random(5,15)",
		},
		{
			Act:      rdesc.ActDrawBurst,
			Periodic: "random(20,40)",
			Args:     json.RawMessage(`{"Scenario": "storm"}`),
		},
		{
			Act:      rdesc.ActDrawBurst,
			Periodic: "random(30,60)",
			Args:     json.RawMessage(`{"Scenario": "drain"}`),
		},
		{
			Act:      rdesc.ActMutatePool,
			Periodic: "random(10,30)",
		},
		{
			Act:      rdesc.ActAuditRun,
			Periodic: "random(60,120)",
		},
		{
			Act:      rdesc.ActDoGlobalRules,
			Periodic: "random(5,10)",
		},
	}
}

func main() {
	log.DefaultGlobals()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	base, err := app.NewAppFromEnv()
	if err != nil {
		log.Fatal(ctx, "failed to init app", zap.Error(err))
	}
	base.StartPrometheus()

	descs := defaultRules()
	if base.Config.Rules != "" {
		descs = nil
		if err := json.Unmarshal([]byte(base.Config.Rules), &descs); err != nil {
			log.Fatal(ctx, "failed to parse rules", zap.Error(err))
		}
	}

	executor := rules.NewExecutor(base)
	for _, desc := range descs {
		rule, err := executor.CreateFromDesc(desc)
		if err != nil {
			log.Fatal(ctx, "failed to create rule",
				zap.String("act", string(desc.Act)), zap.Error(err))
		}

		base.Register.Go(func() {
			err := executor.Execute(ctx, rule)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "rule execution error", zap.Error(err))
			}
		})
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	base.Register.WaitAll(shutdownCtx)
}
