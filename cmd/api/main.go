package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/lock"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Server holds the ledger instance.
type Server struct {
	ledger      *ledger.Ledger
	storage     store.Storage // Keep a reference to the storage to close it
	defaultUser string
}

func NewServer(s store.Storage, l *ledger.Ledger, defaultUser string) *Server {
	return &Server{
		ledger:      l,
		storage:     s,
		defaultUser: defaultUser,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PATCH")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/settle", s.settleLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/schedule", s.loanScheduleHandler).Methods("GET")

	router.HandleFunc("/transactions", s.listTransactionsHandler).Methods("GET")
	router.HandleFunc("/transactions", s.createTransactionHandler).Methods("POST")
	router.HandleFunc("/transactions/{id}", s.getTransactionHandler).Methods("GET")
	router.HandleFunc("/transactions/{id}", s.updateTransactionHandler).Methods("PUT")
	router.HandleFunc("/transactions/{id}", s.deleteTransactionHandler).Methods("DELETE")

	router.HandleFunc("/accounts", s.listAccountsHandler).Methods("GET")
	router.HandleFunc("/accounts", s.createAccountHandler).Methods("POST")
	router.HandleFunc("/accounts/{id}", s.getAccountHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}", s.deleteAccountHandler).Methods("DELETE")

	router.HandleFunc("/categories", s.listCategoriesHandler).Methods("GET")
	router.HandleFunc("/categories", s.createCategoryHandler).Methods("POST")
	router.HandleFunc("/categories/{id}", s.getCategoryHandler).Methods("GET")
	router.HandleFunc("/categories/{id}", s.deleteCategoryHandler).Methods("DELETE")

	router.HandleFunc("/budgets", s.listBudgetsHandler).Methods("GET")
	router.HandleFunc("/budgets", s.setBudgetHandler).Methods("PUT")
	router.HandleFunc("/budgets/{id}", s.deleteBudgetHandler).Methods("DELETE")

	router.HandleFunc("/goals", s.listGoalsHandler).Methods("GET")
	router.HandleFunc("/goals", s.createGoalHandler).Methods("POST")
	router.HandleFunc("/goals/{id}/contributions", s.contributeHandler).Methods("POST")
	router.HandleFunc("/goals/{id}", s.deleteGoalHandler).Methods("DELETE")

	router.HandleFunc("/stats/monthly", s.monthlyStatsHandler).Methods("GET")
	router.HandleFunc("/stats/yearly", s.yearlyStatsHandler).Methods("GET")

	router.Use(withRequestLogging)
	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to initialize store")
	}
	defer st.Close()

	opts := []ledger.Option{
		ledger.WithLocation(cfg.Location),
		ledger.WithPurgeScope(cfg.PurgeScope),
	}
	if cfg.RedisAddr != "" {
		locker := lock.NewRedisLocker(cfg.RedisAddr, cfg.LockTTL)
		defer locker.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := locker.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to reach redis")
		}
		opts = append(opts, ledger.WithLocker(locker))
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis regeneration lock")
	}

	server := NewServer(st, ledger.NewLedger(st, opts...), cfg.DefaultUser)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
		return
	case <-quit:
		log.Info().Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	log.Info().Msg("server exited")
}
