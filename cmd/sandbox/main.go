// Command sandbox serves the in-memory billing API on a local port so
// billingctl can be tried without the remote service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/httpapi"
	"smidi/billing/internal/logger"
)

const (
	defaultAddr  = "127.0.0.1:8085"
	defaultToken = "sandbox-token"
)

func main() {
	addr := envOr("SANDBOX_ADDR", defaultAddr)
	token := envOr("SANDBOX_TOKEN", defaultToken)
	logger.SetLevel(envOr("LOG_LEVEL", "info"))
	log := logger.Component("sandbox")

	if err := validateSandbox(addr, token); err != nil {
		log.Fatal().Err(err).Msg("invalid sandbox configuration")
	}

	api := httpapi.New(token, seedProducts(), httpapi.WithEmployees(seedEmployees()...))
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("sandbox billing API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("sandbox stopped")
}

func validateSandbox(addr string, token string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("SANDBOX_ADDR must not be empty")
	}
	if len(token) < 8 {
		return fmt.Errorf("SANDBOX_TOKEN must be at least 8 characters")
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("SANDBOX_TOKEN must not contain whitespace")
	}
	return nil
}

func seedProducts() []domain.Product {
	five := decimal.NewFromInt(5)
	two := decimal.NewFromInt(2)
	return []domain.Product{
		{ID: "urea-45", Name: "Urea 45kg", Rate: decimal.NewFromInt(267), Quantity: 400, CommissionPercent: &two},
		{ID: "dap-50", Name: "DAP 50kg", Rate: decimal.NewFromInt(1350), Quantity: 120},
		{ID: "mop-50", Name: "Muriate of Potash 50kg", Rate: decimal.NewFromInt(1700), Quantity: 60},
		{ID: "npk-102626", Name: "NPK 10:26:26", Rate: decimal.NewFromInt(1470), Quantity: 80, CommissionPercent: &five},
		{ID: "ssp-50", Name: "Single Super Phosphate", Rate: decimal.NewFromInt(460), Quantity: 150},
	}
}

func seedEmployees() []domain.Employee {
	return []domain.Employee{
		{ID: "emp-ravi", Name: "Ravi Shinde"},
		{ID: "emp-anil", Name: "Anil Patil"},
	}
}

func envOr(key string, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
