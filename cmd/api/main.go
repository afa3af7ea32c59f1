package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/tuitionLedger/pkg/app"
	"github.com/mcclellann/tuitionLedger/pkg/config"
	"github.com/mcclellann/tuitionLedger/pkg/ledger"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"go.uber.org/zap"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	logger  *zap.Logger
}

func NewServer(l *ledger.Ledger, s store.Storage, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ledger:  l,
		storage: s,
		logger:  logger,
	}
}

// Router registers every endpoint on a new mux router.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/plans", s.listPlansHandler).Methods("GET")
	router.HandleFunc("/plans", s.createPlanHandler).Methods("POST")
	router.HandleFunc("/plans/{id}", s.getPlanHandler).Methods("GET")
	router.HandleFunc("/plans/{id}", s.updatePlanHandler).Methods("PUT")
	router.HandleFunc("/plans/{id}/deactivate", s.deactivatePlanHandler).Methods("POST")

	router.HandleFunc("/students", s.admitStudentHandler).Methods("POST")
	router.HandleFunc("/students/{id}", s.getStudentHandler).Methods("GET")
	router.HandleFunc("/students/{id}/enroll", s.enrollHandler).Methods("POST")
	router.HandleFunc("/students/{id}/withdraw", s.withdrawHandler).Methods("POST")
	router.HandleFunc("/students/{id}/status", s.recomputeStatusHandler).Methods("POST")
	router.HandleFunc("/students/{id}/installments", s.listInstallmentsHandler).Methods("GET")
	router.HandleFunc("/students/{id}/installments/pending", s.pendingHandler).Methods("GET")
	router.HandleFunc("/students/{id}/payments", s.listPaymentsHandler).Methods("GET")

	router.HandleFunc("/payments", s.applyPaymentHandler).Methods("POST")
	router.HandleFunc("/payments/adjustments", s.adjustmentHandler).Methods("POST")
	router.HandleFunc("/payments/{id}", s.getPaymentHandler).Methods("GET")
	router.HandleFunc("/payments/{id}/cancel", s.cancelPaymentHandler).Methods("POST")

	router.HandleFunc("/settings/late-fee-rate", s.getRateHandler).Methods("GET")
	router.HandleFunc("/settings/late-fee-rate", s.setRateHandler).Methods("PUT")

	router.HandleFunc("/maintenance/overdue-sweep", s.sweepHandler).Methods("POST")

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	server := NewServer(a.Ledger, a.Storage, logger.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("addr", cfg.HTTPAddr), zap.String("db", cfg.DBDriver))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
