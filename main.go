package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snaplink/hookrelay/api"
	"github.com/snaplink/hookrelay/app"
	"github.com/snaplink/hookrelay/bus"
	"github.com/snaplink/hookrelay/config"
	"github.com/snaplink/hookrelay/middleware"
)

func main() {
	config.InitLogging()
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Unable to load configuration!!!", err)
	}

	if appConfig == nil {
		log.Fatal("Nil AppConfig, WTF")
	}

	application, err := app.NewApp(appConfig)
	if err != nil {
		log.Fatal("Unable to initialize application", err)
	}
	defer application.Close()

	slog.Debug("Configuration",
		"DevMode", appConfig.DevMode,
		"LogLevel", appConfig.LogLevel,
	)

	consumer, err := bus.NewConsumer(application)
	if err != nil {
		log.Fatal("Unable to connect to event bus", err)
	}
	if err := consumer.Start(); err != nil {
		log.Fatal("Unable to start event router", err)
	}
	application.SetStopRouter(consumer.Stop)

	router := http.NewServeMux()
	api.AddApis(application, router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", appConfig.Port),
		Handler: middleware.AllStandardMiddleware(router),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Starting hookrelay", "port", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-sigChan
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the Event Router first: it stops consuming and lets its worker
	// pool finish in-flight deliveries before the bus connection closes, so no
	// delivery is interrupted mid-flight by application.Close() tearing
	// down the DB pool underneath it.
	application.StopRouter()

	// application.Close() runs via defer and closes the DB pool last.
	slog.Info("Shutdown complete")
}
