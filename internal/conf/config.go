package conf

import (
	"github.com/caarlos0/env/v6"
)

type App struct {
	PrometheusBind string `env:"PROMETHEUS_BIND" envDefault:":2112"`

	// PostgresDSN is a DSN for the postgres.
	PostgresDSN string `env:"POSTGRES_DSN,required"`

	// Node is a name of the current node.
	Node string `env:"NODE" envDefault:"local-laptop"`

	// Seed is the master seed of this node. Per-run seeds are derived
	// from it. Zero means derive one from the clock at startup.
	Seed uint64 `env:"SEED" envDefault:"0"`

	// PoolsFile is a path to a YAML pool catalog. Empty means the
	// built-in catalog.
	PoolsFile string `env:"POOLS_FILE"`

	// Rules is a JSON array of rule descriptors to run on this node.
	// Empty means the default set.
	Rules string `env:"RULES"`

	// RawRunFilter is an extra SQL filter applied to run selection.
	RawRunFilter string `env:"RAW_RUN_FILTER"`

	// LabBaseURL enables reporting audits to a central collector when set.
	LabBaseURL string `env:"LAB_BASE_URL"`
	LabAPIKey  string `env:"LAB_API_KEY"`

	DebugDB bool `env:"DEBUG_DB"`
}

func ParseEnv() (*App, error) {
	cfg := App{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
