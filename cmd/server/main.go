// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/reverso-game/reverso/internal/auth"
	"github.com/reverso-game/reverso/internal/cache"
	"github.com/reverso-game/reverso/internal/config"
	"github.com/reverso-game/reverso/internal/database"
	"github.com/reverso-game/reverso/internal/handlers"
	"github.com/reverso-game/reverso/internal/scorer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	auth.Init()
	database.ConnectDB()
	defer database.DB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	srv := handlers.NewServer(logger)
	srv.Registry.Store = database.LobbyStore{}
	srv.Registry.Grace = cfg.DisconnectGrace

	if cfg.RedisAddr != "" {
		if err := cache.ConnectRedis(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		srv.Registry.Journal = func(lobbyID uuid.UUID, seq int, event string, payload map[string]interface{}) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			rec := cache.LobbyEventRecord{
				LobbyID:   lobbyID,
				Seq:       seq,
				EventType: event,
				Payload:   payload,
				Timestamp: time.Now().UnixMilli(),
			}
			if err := cache.PublishLobbyEvent(ctx, rec); err != nil {
				logger.Warnf("failed to journal event %s for lobby %s: %v", event, lobbyID, err)
			}
		}
	}

	if cfg.ScorerURL != "" {
		srv.Scorer = scorer.NewHTTPScorer(cfg.ScorerURL, cfg.ScorerTimeout)
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
	}

	logger.Infof("Running on %s", cfg.HTTPAddr)

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		log.Printf("failed to serve: %v", err)
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}
}
