// Package main запускает HTTP-сервер движка бронирования площадок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/fieldbook-system/internal/config"
	"github.com/mmeshcher/fieldbook-system/internal/handler"
	"github.com/mmeshcher/fieldbook-system/internal/middleware"
	"github.com/mmeshcher/fieldbook-system/internal/notify"
	"github.com/mmeshcher/fieldbook-system/internal/payment"
	"github.com/mmeshcher/fieldbook-system/internal/repository"
	"github.com/mmeshcher/fieldbook-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var gateway service.PaymentGateway
	if cfg.PaymentGatewayAddress != "" {
		gateway = payment.NewClient(cfg.PaymentGatewayAddress)
	}

	var events service.EventPublisher
	if cfg.AMQPAddress != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPAddress, "fieldbook.events")
		if err != nil {
			sugar.Fatalw("event publisher initialization error", "error", err.Error())
		}
		defer publisher.Close()
		events = publisher
	}

	svc := service.NewService(repo, gateway, events, logger, service.Options{
		PendingTTL:        cfg.PendingTTL,
		SweepInterval:     cfg.SweepInterval,
		ReceiptClusterGap: cfg.ReceiptClusterGap,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки зависших бронирований и просроченных черновиков
	g.Go(func() error {
		svc.StartReconciliation(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting fieldbook server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
