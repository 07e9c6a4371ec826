package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parimutuel/internal/app"
	"parimutuel/internal/backend"
	"parimutuel/internal/config"
	"parimutuel/internal/contract"
	"parimutuel/internal/hmacauth"
	"parimutuel/internal/journal"
	"parimutuel/internal/logger"
	"parimutuel/internal/server"
	"parimutuel/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zlog, err := logger.New(cfg.Service.Name, cfg.Service.Env)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("console stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.AppConfig, zlog *zap.Logger) error {
	store, closeStore, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer closeStore()

	chainID := big.NewInt(cfg.Chain.ChainID)
	var (
		bind app.Binder
		rpc  contract.HealthChecker
	)
	if cfg.Chain.RPCURL != "" {
		be, err := contract.Dial(ctx, contract.BackendConfig{
			RPCURL:              cfg.Chain.RPCURL,
			ContractAddress:     cfg.Chain.ContractAddress,
			ReceiptPollInterval: cfg.Chain.ReceiptPoll,
		})
		if err != nil {
			return fmt.Errorf("contract client: %w", err)
		}
		defer be.Close()
		if id, err := be.ChainID(ctx); err == nil {
			chainID = id
		} else {
			zlog.Warn("chain id lookup failed, using configured id", zap.Int64("chain_id", cfg.Chain.ChainID), zap.Error(err))
		}
		bind = func(s wallet.Signer) contract.Client { return be.Bind(s) }
		rpc = be
		zlog.Info("contract bound", zap.String("address", be.Address().Hex()), zap.String("chain_id", chainID.String()))
	}

	var (
		provider wallet.Provider
		control  server.WalletControl
		keyed    *wallet.KeyedProvider
	)
	if len(cfg.Chain.PrivateKeys) > 0 {
		keyed, err = wallet.NewKeyedProvider(chainID, cfg.Chain.PrivateKeys)
		if err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		provider, control = keyed, keyed
	} else {
		zlog.Warn("CHAIN_PRIVATE_KEYS not set, wallet provider unavailable")
	}
	connector := wallet.NewConnector(provider)

	if bind == nil {
		pool := contract.NewFakePool(simulatedOwner(keyed))
		bind = func(s wallet.Signer) contract.Client { return pool.Bind(s) }
		zlog.Warn("CHAIN_RPC_URL not set, using in-memory pool")
	}

	httpClient := &http.Client{Timeout: cfg.Backend.Timeout}
	betting := backend.New(cfg.Backend.BaseURL, httpClient, &hmacauth.Signer{Secret: cfg.Backend.HMACSecret})

	metrics := server.NewMetrics()
	orch := app.New(connector, bind, betting, app.Options{
		Logger:   zlog,
		Journal:  store,
		Observer: metrics,
	})

	srv := server.NewServer(cfg, server.Deps{
		Orchestrator: orch,
		Wallet:       control,
		Journal:      store,
		RPC:          rpc,
		Metrics:      metrics,
		Logger:       zlog,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.StreamState(gctx)
	})
	if connector.Available() {
		g.Go(func() error {
			return connector.Watch(gctx, orch.AccountsChanged)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()
		zlog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openJournal picks Postgres when a DSN is set, then a file, then memory.
func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, func(), error) {
	switch {
	case cfg.PostgresDSN != "":
		pg, err := journal.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case cfg.Path != "":
		fs, err := journal.NewFileStore(cfg.Path, cfg.Limit)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	default:
		return journal.NewMemoryStore(cfg.Limit), func() {}, nil
	}
}

// simulatedOwner makes the first configured account own the in-memory pool
// so the owner panels are reachable without a chain.
func simulatedOwner(keyed *wallet.KeyedProvider) common.Address {
	if keyed == nil {
		return common.Address{}
	}
	return keyed.Configured()[0]
}
