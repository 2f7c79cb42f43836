package main

import (
	"fmt"
	"log/slog"
	"time"

	"lendledger/crypto"
	"lendledger/native/bank"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/native/lending/state"
	"lendledger/observability"
	"lendledger/services/lendingd/config"
	"lendledger/services/lendingd/journal"
	"lendledger/services/lendingd/server"
	"lendledger/storage"
)

// defaultClockGenesis anchors the height clock when the config leaves it
// unset. It must stay fixed across restarts of a persistent ledger.
var defaultClockGenesis = time.Unix(0, 0).UTC()

// app owns every long-lived component of the daemon.
type app struct {
	engine  *lending.Engine
	ledger  *bank.Ledger
	pauses  *nativecommon.Pauses
	hub     *server.Hub
	journal *journal.Journal
	server  *server.Server
	db      storage.Database
	logger  *slog.Logger
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	if err := a.init(cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(cfg config.Config) error {
	logger := a.logger

	store, err := a.openBackend(cfg.Storage)
	if err != nil {
		return err
	}

	genesisTime := cfg.Clock.GenesisTime
	if genesisTime.IsZero() {
		genesisTime = defaultClockGenesis
	}
	clock := lending.NewIntervalClock(genesisTime, cfg.Clock.Interval)

	a.engine = lending.NewEngine(store, a.ledger, clock)
	a.engine.SetLogger(logger)
	a.pauses = nativecommon.NewPauses(cfg.Pauses)
	a.engine.SetPauses(a.pauses)

	metrics := observability.LendingMetrics()
	a.engine.SetObserver(metrics)
	a.engine.AddSink(metrics)

	if cfg.Journal.Driver != "" {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, logger)
		if err != nil {
			return err
		}
		a.journal = j
		a.engine.AddSink(j)
	}
	a.hub = server.NewHub(logger)
	a.engine.AddSink(a.hub)

	if err := a.bootstrap(store, cfg); err != nil {
		return err
	}

	deps := server.Deps{Engine: a.engine, Hub: a.hub, Pauses: a.pauses, Logger: logger}
	if a.journal != nil {
		deps.Journal = a.journal
	}
	srv, err := server.New(server.Config{
		Auth: server.AuthConfig{
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			ClockSkew:      cfg.Auth.ClockSkew,
			Bech32Accounts: cfg.Auth.Bech32Accounts,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		DisableRateLimit: cfg.RateLimit.Disabled,
	}, deps)
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// openBackend selects the lending store and a host ledger sharing its
// database, so both survive a restart together.
func (a *app) openBackend(cfg config.StorageConfig) (lending.Store, error) {
	var db storage.Database
	switch cfg.Backend {
	case config.BackendMemory:
		a.ledger = bank.NewLedger()
		return lending.NewMemStore(), nil
	case config.BackendLevelDB:
		ldb, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb storage: %w", err)
		}
		db = ldb
	case config.BackendBolt:
		bdb, err := storage.NewBoltDB(cfg.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt storage: %w", err)
		}
		db = bdb
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	a.db = db
	a.ledger = bank.NewPersistentLedger(a.db)
	return state.NewStore(a.db), nil
}

// bootstrap initialises the lending parameters from the genesis file. Funding
// is minted only when the parameters are created by this call, never on a
// restart over existing state.
func (a *app) bootstrap(store lending.Store, cfg config.Config) error {
	_, existing, err := store.GetParams()
	if err != nil {
		return fmt.Errorf("read lending parameters: %w", err)
	}
	genesis, err := lending.LoadConfig(cfg.GenesisPath)
	if err != nil {
		return err
	}
	params, err := genesis.Parameters()
	if err != nil {
		return fmt.Errorf("lending genesis: %w", err)
	}
	if cfg.Auth.Bech32Accounts {
		for _, id := range []lending.AccountID{params.Owner, params.PoolAccount} {
			if _, err := crypto.ParseAccount(id.String()); err != nil {
				return fmt.Errorf("lending genesis: %w", err)
			}
		}
	}
	committed, err := a.engine.InitGenesis(params)
	if err != nil {
		return err
	}
	if existing {
		a.logger.Info("lending state resumed",
			"owner", committed.Owner.String(),
			"loan_count", committed.LoanCount())
		return nil
	}
	for account, amount := range cfg.Funding {
		if err := a.ledger.Mint(lending.AccountID(account), amount); err != nil {
			return fmt.Errorf("fund %s: %w", account, err)
		}
	}
	a.logger.Info("lending genesis initialised",
		"owner", committed.Owner.String(),
		"pool", committed.PoolAccount.String(),
		"funded_accounts", len(cfg.Funding))
	return nil
}

// Close releases the journal connection and the storage handle.
func (a *app) Close() error {
	var err error
	if a.journal != nil {
		err = a.journal.Close()
		a.journal = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	return err
}
