package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ezmad-Ze/chat-app/global"
	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/middleware"
	"github.com/Ezmad-Ze/chat-app/module/room"
	"github.com/Ezmad-Ze/chat-app/service/auth"
	"github.com/Ezmad-Ze/chat-app/service/chat"
	"github.com/Ezmad-Ze/chat-app/service/fanout"
	"github.com/Ezmad-Ze/chat-app/service/storage"
	"github.com/Ezmad-Ze/chat-app/tools/ids"
)

func main() {
	defer logger.Sync()

	cfg, err := global.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		return
	}
	ids.SetNodeID(cfg.SnowflakeNode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewJWTVerifier(auth.DefaultOptions([]byte(cfg.JWTSecret)))
	if err != nil {
		logger.Errorf("jwt verifier: %v", err)
		return
	}
	resolver := auth.NewResolver(verifier)

	store, err := storage.NewMongoStore(ctx, storage.MongoConfig{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	})
	if err != nil {
		logger.Errorf("mongo: %v", err)
		return
	}
	defer func() { _ = store.Close(context.Background()) }()

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		logger.Errorf("broker: %v", err)
		return
	}
	defer func() { _ = broker.Close() }()

	delivery := chat.NewDelivery(cfg.FanoutWorkers, cfg.FanoutQueue)
	svc := chat.NewService(chat.Limits{
		RoomNameMin:   cfg.RoomNameMin,
		RoomNameMax:   cfg.RoomNameMax,
		MessageMaxLen: cfg.MessageMaxLen,
	}, store, broker, delivery)
	if err := svc.Start(ctx); err != nil {
		logger.Errorf("fanout subscribe: %v", err)
		return
	}
	defer svc.Close()

	gw := chat.NewServer(chat.ServerConfig{
		GatewayID:     cfg.GatewayID,
		SendQueueSize: cfg.SendQueueSize,
		WriteTimeout:  cfg.WriteTimeout,
	}, resolver, svc)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS())

	r.GET("/chat", gw.HandleWS)
	r.GET("/rooms", middleware.Auth(resolver), room.HandlerList(store))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("[http] gateway %s listening on %s", cfg.GatewayID, cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http serve: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
}

func newBroker(ctx context.Context, cfg *global.Config) (fanout.Broker, error) {
	switch cfg.Broker {
	case "nats":
		return fanout.NewNatsBroker(fanout.NatsConfig{
			Servers: cfg.NatsServers,
			Name:    cfg.GatewayID,
		})
	default:
		return fanout.NewRedisBroker(ctx, fanout.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
	}
}
