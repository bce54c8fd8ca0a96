package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-cart-sync/configs"
	"golang-cart-sync/internal/handlers"
	"golang-cart-sync/internal/hub"
	"golang-cart-sync/internal/middleware"
	"golang-cart-sync/internal/repositories"
	"golang-cart-sync/internal/services"
	"golang-cart-sync/pkg/auth"
	"golang-cart-sync/pkg/cache"
	"golang-cart-sync/pkg/database"
	"golang-cart-sync/pkg/logger"
	"golang-cart-sync/pkg/messaging"

	"github.com/gin-gonic/gin"
)

func main() {
	config := configs.LoadConfig()
	log := logger.New(config.Log.Level, config.Log.Format)

	gin.SetMode(config.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(config.Database.PostgresURL, config.Database.MongoURL, config.Database.MongoDBName)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to databases")
	}
	defer db.Close()
	if db.MongoDB == nil {
		log.Fatal("Service catalog is required")
	}

	// Repositories
	cartRepo := repositories.NewCartRepository(db.Postgres)
	serviceRepo := repositories.NewServiceRepository(db.MongoDB)

	// Redis is optional: without it snapshots are read from PostgreSQL and
	// rooms only span this instance.
	var snapshotCache services.SnapshotCache
	var roomPubSub hub.PubSub
	if redisCache := cache.NewRedisCache(config.Redis.URL, config.Redis.Password, config.Redis.DB); redisCache != nil {
		defer redisCache.Close()
		snapshotCache = redisCache
		roomPubSub = redisCache
	} else {
		log.Warn("Redis unavailable, running without snapshot cache and room fan-out")
	}

	kafkaProducer := messaging.NewKafkaProducer(config.Kafka.Brokers)
	defer kafkaProducer.Close()

	jwtManager := auth.NewJWTManager(config.JWT.SecretKey, config.JWT.ExpiryHours)

	// Services
	cartService := services.NewCartService(cartRepo, serviceRepo, snapshotCache, kafkaProducer, config.Kafka.CartEventsTopic)

	roomHub := hub.New(roomPubSub, config.Redis.RoomChannel)
	if err := roomHub.Run(ctx); err != nil {
		log.WithError(err).Fatal("Failed to subscribe to room fan-out")
	}

	bookingConsumer := messaging.NewKafkaConsumer(config.Kafka.Brokers, config.Kafka.BookingTopic, config.Kafka.GroupID)
	defer bookingConsumer.Close()
	bookingListener := services.NewBookingListener(cartService, roomHub)
	go bookingConsumer.ConsumeMessages(ctx, bookingListener.HandleMessage)

	if config.Sweeper.Retention > 0 {
		sweeper := services.NewCronService(cartRepo, cartService, roomHub, config.Sweeper.Retention, config.Sweeper.Interval)
		sweeper.Start()
		defer sweeper.Stop()
	}

	// Handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	cartHandler := handlers.NewCartHandler(cartService, roomHub)
	socketHandler := handlers.NewSocketHandler(cartService, roomHub, handlers.SocketConfig{
		AllowedOrigins: config.Realtime.AllowedOrigins,
		SendQueue:      config.Realtime.SendQueue,
		PingInterval:   config.Realtime.PingInterval,
	})

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(config.Realtime.AllowedOrigins))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RecoveryMiddleware(log))

	router.GET("/health", handlers.Health)
	socketHandler.RegisterRoutes(router, authMiddleware)

	api := router.Group("/api/v1")
	cartHandler.RegisterRoutes(api, authMiddleware)

	srv := &http.Server{
		Addr:    ":" + config.Server.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Server starting on port %s", config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}
