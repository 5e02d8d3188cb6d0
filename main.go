// main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go-storefront/cache"
	"go-storefront/clock"
	"go-storefront/config"
	"go-storefront/controllers"
	"go-storefront/events"
	"go-storefront/gateways"
	"go-storefront/metrics"
	"go-storefront/middleware"
	"go-storefront/repository"
	"go-storefront/routes"
	"go-storefront/services"
	"go-storefront/utils"
)

func main() {
	cfg := config.Load()
	for _, w := range cfg.Warnings() {
		log.Printf("WARNING config: %s", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Connect to MongoDB
	db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			log.Printf("error disconnecting MongoDB: %v", err)
		}
	}()
	if err := repository.CreateIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	cartRepo := repository.NewCartRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	var cartCache cache.CartCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable addr=%s, cart cache disabled: %v", cfg.RedisAddr, err)
		} else {
			cartCache = cache.NewRedisCache(rdb)
		}
	}

	serverMetrics := metrics.NewServerMetrics(prometheus.DefaultRegisterer)
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	registry := gateways.NewRegistry(
		gateways.NewManual(),
		gateways.NewStripe(gateways.NewCaller("stripe", cfg.GatewayTimeout), cfg),
		gateways.NewRazorpay(gateways.NewCaller("razorpay", cfg.GatewayTimeout), cfg),
	)
	log.Printf("payment providers registered: %v", registry.IDs())

	clk := clock.NewSystem()
	outbox := events.NewOutbox(outboxRepo, clk)
	sessionService := services.NewPaymentSessionService(cartRepo, paymentRepo, paymentRepo, registry, clk, cfg.GatewayTimeout, checkoutMetrics)
	cartService := services.NewCartService(cartRepo, catalogRepo, sessionService, cartCache, clk, cfg.DefaultRegionID)
	verifier := services.NewVerifier(paymentRepo, paymentRepo, registry, clk, cfg.GatewayTimeout, checkoutMetrics)
	checkoutService := services.NewCheckoutService(cartService, sessionService, verifier, cartRepo, paymentRepo, orderRepo, registry, outbox, clk, checkoutMetrics)

	// Order-completion side effects
	notifier := events.NewEmailNotifier(utils.NewMailer(cfg.Email))
	var dispatcher events.Dispatcher = notifier
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
		dispatcher = publisher

		consumer := events.NewConsumer(cfg.KafkaBrokers, notifier)
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}
	poller := events.NewPoller(outboxRepo, dispatcher, clk, checkoutMetrics)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	// Set up the router
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(nil))
	router.Use(middleware.Instrument(serverMetrics))
	routes.RegisterRoutes(router,
		[]byte(cfg.JWTSecret),
		controllers.NewCartController(cartService),
		controllers.NewPaymentController(cartService, sessionService, checkoutService, verifier, cfg.Razorpay.KeyID),
		controllers.NewOrderController(cartService, checkoutService),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(middleware.CORS(cfg.CORSOrigins)(router), "storefront"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server is running on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down storefront...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("Background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("Background workers didn't stop in time")
	}
}
