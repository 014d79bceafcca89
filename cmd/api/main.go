package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rakhadi/go-shop-payments.git/internal/config"
	"github.com/rakhadi/go-shop-payments.git/internal/gateway"
	"github.com/rakhadi/go-shop-payments.git/internal/httpx"
	kafkax "github.com/rakhadi/go-shop-payments.git/internal/kafka"
	"github.com/rakhadi/go-shop-payments.git/internal/metrics"
	"github.com/rakhadi/go-shop-payments.git/internal/orders"
	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/rakhadi/go-shop-payments.git/internal/postgres"
	"github.com/rakhadi/go-shop-payments.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (topic per message)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// Gateway is resolved once; the service only sees the interface.
	gw, err := gateway.FromConfig(cfg)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}
	log.Printf("payment gateway: %s", cfg.Gateway)

	svc := &payments.Service{
		Gateway: gw,
		Store:   &payments.Repo{DB: db},
		Events:  prod,
		Secret:  cfg.CallbackSecret,
		Name:    cfg.ServiceName,
	}
	ordersStore := &orders.Repo{DB: db}

	srvMetrics := metrics.NewServerMetrics("payments_api")

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Store: ordersStore, Redis: rdb}
	oh.Register(router)
	ph := &httpx.PaymentsHandler{Service: svc, Orders: ordersStore, Redis: rdb, Metrics: srvMetrics}
	ph.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
