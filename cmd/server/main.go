package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/termchat/termchat/internal/api"
	"github.com/termchat/termchat/internal/chat"
	"github.com/termchat/termchat/internal/config"
	"github.com/termchat/termchat/internal/connectors"
	"github.com/termchat/termchat/internal/database"
	"github.com/termchat/termchat/internal/relay"
	"github.com/termchat/termchat/internal/stats"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	logger := log.New(os.Stderr, "[termchat] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	debugMux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(debugMux)
	statsUpdater.RegisterMetric(stats.LiveConnections)
	statsUpdater.RegisterMetric(stats.LiveRooms)
	statsUpdater.RegisterMetric(stats.MessagesRelayed)
	statsUpdater.RegisterMetric(stats.MessagesPersisted)

	chatService := chat.NewService(logger, dbConn, statsUpdater)

	var tokenStore connectors.TokenStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("redis ping:", err)
		}
		tokenStore = connectors.NewRedisStore(client)
		logger.Println("using redis connector token store")
	} else {
		tokenStore = connectors.NewMemoryStore()
	}

	services := []*connectors.Service{
		connectors.NewWhatsApp(logger, tokenStore),
		connectors.NewInstagram(logger, tokenStore),
	}

	rl := relay.NewRelay(logger, statsUpdater)

	srv := api.NewTermchatApp(debugMux, logger, dbConn, chatService, rl, services, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go rl.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down relay...")
	rl.Shutdown()

	logger.Println("shutdown complete")
}
