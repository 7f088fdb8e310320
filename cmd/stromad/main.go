// Command stromad runs one Stroma group's trust-state engine: the HTTP/
// WebSocket command surface, the Postgres-backed persistence store, and
// the in-process replicated-state transport. Wiring order follows the
// teacher's cmd/engine/main.go: required environment first, storage
// connections next (continuing in a degraded mode on failure rather than
// refusing to start), then the WebSocket hub, then the route table.
package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roder/stroma/internal/api"
	"github.com/roder/stroma/internal/config"
	"github.com/roder/stroma/internal/engine"
	"github.com/roder/stroma/internal/identity"
	"github.com/roder/stroma/internal/proof"
	"github.com/roder/stroma/internal/store"
	"github.com/roder/stroma/internal/transport"
)

type wallClock struct{}

func (wallClock) NowSec() int64 { return time.Now().Unix() }

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting stroma trust-network engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()

	pg, err := store.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Warn("failed to connect to persistence store, continuing without durable persistence", zap.Error(err))
	} else {
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			log.Warn("schema init failed", zap.Error(err))
		}
	}

	maskingKey, err := identity.DeriveKey(cfg.IdentitySecret)
	if err != nil {
		log.Fatal("failed to derive identity masking key", zap.Error(err))
	}
	defer maskingKey.Zero()

	hub := api.NewHub(log)
	go hub.Run()

	stateStore := transport.NewFakeStateStore()
	messenger := transport.NewFakeMessenger()
	pollService := transport.NewFakePollService()
	backend := proof.NewHashCommitmentBackend(maskingKey.Bytes())

	voteKey := make([]byte, 32)
	copy(voteKey, maskingKey.Bytes())

	eng := engine.New(cfg.GroupName, stateStore, messenger, pollService, backend, wallClock{}, voteKey, log)
	go func() {
		if err := eng.ReactToPollEvents(ctx); err != nil {
			log.Warn("poll event loop exited", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.NewRateLimiter(120, 30).Middleware())
	r.Use(api.AuthMiddleware(log))

	srv := api.NewServer(eng, hub, log)
	srv.Register(r)

	log.Info("listening", zap.String("addr", cfg.HTTPAddr))
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
