package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"saferental-service/internal/factory"
	"saferental-service/internal/handler"
	"saferental-service/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go runOtpReaper(reaperCtx, f)

	go func() {
		var err error
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			util.Info("Starting HTTPS server",
				util.String("environment", cfg.Environment),
				util.String("address", server.Addr),
			)
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			util.Warn("Starting HTTP server - TLS is disabled",
				util.String("environment", cfg.Environment),
				util.String("address", server.Addr),
			)
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	waitForShutdown(f, server)
}

// setupRouter creates the HTTP router with all handlers using Chi.
func setupRouter(f *factory.Factory) http.Handler {
	agreementHandler := handler.NewAgreementHandler(f.AgreementService(), f.Store(), util.Get())
	otpHandler := handler.NewOTPHandler(f.OTPService(), util.Get())
	fileHandler := handler.NewFileHandler(f.Gateway(), f.Recorder(), f.Metrics(), util.Get())
	return handler.NewRouter(agreementHandler, otpHandler, fileHandler, f, util.Get())
}

// runOtpReaper deletes expired unconsumed OTP records on a fixed interval.
func runOtpReaper(ctx context.Context, f *factory.Factory) {
	interval := f.Config().OTP.ReaperInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := f.OTPService().Reap(reapCtx); err != nil {
				util.Error("OTP reaper pass failed", util.ErrorField(err))
			}
			cancel()
		}
	}
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}
	f.Close()
}
