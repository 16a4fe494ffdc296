package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iotview/internal/api"
	"iotview/internal/auth"
	"iotview/internal/config"
	"iotview/internal/device"
	"iotview/internal/dispatch"
	"iotview/internal/history"
	"iotview/internal/mqtt"
)

func main() {
	// Command line flags
	envFile := flag.String("env", ".env", "Path to configuration file")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	noAuth := flag.Bool("no-auth", false, "Disable authentication (for development only!)")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	serverAddr := cfg.Addr()
	if *addr != "" {
		serverAddr = *addr
	}
	brokerAddr := cfg.MQTTBroker()
	if *broker != "" {
		brokerAddr = *broker
	}
	disableAuth := cfg.NoAuth() || *noAuth

	// Open the persistent device registry
	repo, err := device.NewBoltRepository(cfg.DBPath())
	if err != nil {
		log.Fatalf("Failed to open registry database: %v", err)
	}
	defer repo.Close()

	// Live state store and command history
	store := device.NewStore()
	hist := history.NewRing(cfg.HistorySize())

	// Broker connection manager feeding the message router
	router := mqtt.NewRouter(store, logger)
	manager, err := mqtt.NewManager(mqtt.Config{
		Broker:   brokerAddr,
		ClientID: cfg.MQTTClientID(),
		Username: cfg.MQTTUsername(),
		Password: cfg.MQTTPassword(),
	}, store, router, logger)
	if err != nil {
		log.Fatalf("Failed to create MQTT manager: %v", err)
	}

	// Registry service: CRUD with subscription side effects
	registry := device.NewService(repo, store, manager, logger)
	if err := registry.Bootstrap(); err != nil {
		log.Fatalf("Failed to bootstrap device registry: %v", err)
	}

	// Command dispatcher
	dispatcher := dispatch.New(store, manager, hist, logger)

	// Operator accounts
	accounts := auth.NewAccounts(cfg.AdminPassword(), cfg.ViewerPassword())

	server := api.NewServer(api.Options{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		History:    hist,
		Accounts:   accounts,
		Config:     cfg,
		JWTSecret:  cfg.JWTSecret(),
		JWTExpiry:  cfg.JWTExpiration(),
		NoAuth:     disableAuth,
		Logger:     logger,
	})

	// Connection loop runs until shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	manager.Start(ctx)

	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: server.Router(),
	}

	go func() {
		fmt.Printf("iotview starting on %s (broker %s)\n", serverAddr, brokerAddr)
		if disableAuth {
			fmt.Println("WARNING: Authentication is DISABLED!")
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
}
