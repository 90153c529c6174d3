// This package is used to initialize the application. It has dependencies on most
// other packages. Other packages can depend on it as a quick way to get access to
// all the dependencies.
package app

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/petuhovskiy/rollodrome/internal/bgjobs"
	"github.com/petuhovskiy/rollodrome/internal/catalog"
	"github.com/petuhovskiy/rollodrome/internal/conf"
	"github.com/petuhovskiy/rollodrome/internal/labapi"
	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/models"
	"github.com/petuhovskiy/rollodrome/internal/repos"
	"github.com/petuhovskiy/rollodrome/internal/runcache"
)

type App struct {
	Config *conf.App
	// Seed is the resolved master seed. Every generator in this process
	// is seeded from it, directly or through DeriveSeed.
	Seed      uint64
	DB        *gorm.DB
	Repo      *Repos
	Catalog   *catalog.Catalog
	Lab       *labapi.Client
	Register  *bgjobs.Register
	RunLocker *bgjobs.RunLocker
	Runs      *runcache.Cache
	// RunFilters narrow every run selection to runs this node owns.
	RunFilters []repos.Filter
}

func NewAppFromEnv() (*App, error) {
	cfg, err := conf.ParseEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config from env: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log.Info(context.Background(), "using master seed", zap.Uint64("seed", seed))

	runFilters := []repos.Filter{
		repos.FilterByNode(cfg.Node),
	}
	if cfg.RawRunFilter != "" {
		runFilters = append(runFilters, repos.RawFilter(cfg.RawRunFilter))
	}
	log.Info(context.Background(), "using run filters", zap.Any("filters", runFilters))

	cat, err := catalog.Load(cfg.PoolsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool catalog: %w", err)
	}

	db, err := connectDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	repo, err := createRepos(db, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create repos: %w", err)
	}

	var lab *labapi.Client
	if cfg.LabBaseURL != "" {
		lab = labapi.NewClient(cfg.LabBaseURL, cfg.LabAPIKey)
	}

	return &App{
		Config:     cfg,
		Seed:       seed,
		DB:         db,
		Repo:       repo,
		Catalog:    cat,
		Lab:        lab,
		Register:   bgjobs.NewRegister(),
		RunLocker:  bgjobs.NewRunLocker(),
		Runs:       runcache.New(),
		RunFilters: runFilters,
	}, nil
}

// DeriveSeed maps a master seed and a key to a child seed. Used for run
// seeds ("run-<seq>") and for the weighted choices inside rules, so a
// node with a fixed master seed is fully reproducible.
func DeriveSeed(master uint64, key string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], master)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

var (
	DrawBatchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "rollodrome_draw_batch_seconds",
		Help: "Time the credited engine spent on one draw burst",
	}, []string{"pool", "engine"})

	DrawsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollodrome_draws_total",
		Help: "Draws executed against live runs",
	}, []string{"pool"})

	TrialFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollodrome_trial_failures_total",
		Help: "Trials that finished with an error, by rule",
	}, []string{"rule"})

	LiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollodrome_live_runs",
		Help: "Engine pairs currently held in memory",
	})
)

func (a *App) StartPrometheus() {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		err := http.ListenAndServe(a.Config.PrometheusBind, mux)
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(context.TODO(), "prometheus server error", zap.Error(err))
		}
	}()
}

func connectDB(cfg *conf.App) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

type Repos struct {
	Run        *repos.RunRepo
	Trial      *repos.TrialRepo
	Sequence   *repos.SequenceRepo
	GlobalRule *repos.GlobalRuleRepo
	SeqNodeRun *repos.Sequence
}

func createRepos(db *gorm.DB, cfg *conf.App) (*Repos, error) {
	err := db.AutoMigrate(
		&models.Run{},
		&models.Trial{},
		&models.Sequence{},
		&models.GlobalRule{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	if cfg.DebugDB {
		db = db.Debug()
	}

	runRepo := repos.NewRunRepo(db)
	trialRepo := repos.NewTrialRepo(db)
	sequenceRepo := repos.NewSequenceRepo(db)
	globalRuleRepo := repos.NewGlobalRuleRepo(db)

	nodeRunSeq, err := sequenceRepo.Get(fmt.Sprintf("node-%s-run", cfg.Node))
	if err != nil {
		return nil, fmt.Errorf("failed to get node run sequence: %w", err)
	}

	return &Repos{
		Run:        runRepo,
		Trial:      trialRepo,
		Sequence:   sequenceRepo,
		GlobalRule: globalRuleRepo,
		SeqNodeRun: nodeRunSeq,
	}, nil
}
