package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakala/bankrecon/internal/api"
	"github.com/wakala/bankrecon/internal/config"
	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/ingestion"
	"github.com/wakala/bankrecon/internal/logger"
	"github.com/wakala/bankrecon/internal/reconciliation"
	"github.com/wakala/bankrecon/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	log.Info().Str("path", cfg.DBPath).Msg("initializing database")
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init DB")
	}
	defer db.Close()

	// Create repositories.
	statementRepo := repository.NewStatementRepo(db)
	txnRepo := repository.NewTransactionRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	ledgerRepo := repository.NewLedgerRepo(db)

	// Create services.
	reconSvc := reconciliation.NewService(txnRepo, bookingRepo, ledgerRepo, log, reconciliation.Options{
		MaxRetries:         cfg.ReconcileMaxRetries,
		SuggestionCacheTTL: cfg.SuggestionCacheTTL,
	})
	ingestionSvc := ingestion.NewService(statementRepo, reconSvc, log, cfg.ImportConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed bookings if DB is empty.
	if cfg.SeedBookingsPath != "" {
		count, err := bookingRepo.Count(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to count bookings")
		}
		if count == 0 {
			log.Info().Msg("database is empty, seeding bookings")
			if err := seedBookings(ctx, bookingRepo, cfg.SeedBookingsPath, log); err != nil {
				log.Warn().Err(err).Msg("failed to seed bookings")
			}
		} else {
			log.Info().Int("bookings", count).Msg("database already has bookings, skipping seed")
		}
	}

	router := api.NewRouter(api.Deps{
		Statements:     statementRepo,
		Transactions:   txnRepo,
		Bookings:       bookingRepo,
		Payments:       paymentRepo,
		Ingestion:      ingestionSvc,
		Reconciliation: reconSvc,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", "http://localhost:"+cfg.Port).Str("api", "/api/v1").Msg("bank reconciliation service listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func seedBookings(ctx context.Context, repo *repository.BookingRepo, path string, log zerolog.Logger) error {
	// Try the configured path, then relative to the executable.
	candidates := []string{path}
	if exe, err := os.Executable(); err == nil && !filepath.IsAbs(path) {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, path),
			filepath.Join(dir, "..", "..", path),
		)
	}

	var data []byte
	var loadErr error
	for _, p := range candidates {
		data, loadErr = os.ReadFile(p)
		if loadErr == nil {
			log.Info().Str("path", p).Msg("loaded bookings")
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find %s in any candidate path: %w", path, loadErr)
	}

	var bookings []domain.Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return fmt.Errorf("unmarshal bookings: %w", err)
	}

	inserted, err := repo.BulkCreate(ctx, bookings)
	if err != nil {
		return fmt.Errorf("bulk create: %w", err)
	}

	log.Info().Int("inserted", inserted).Msg("seeded bookings")
	return nil
}
