package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rakhadi/go-shop-payments.git/internal/config"
	kafkax "github.com/rakhadi/go-shop-payments.git/internal/kafka"
	"github.com/rakhadi/go-shop-payments.git/internal/payments"
	"github.com/rakhadi/go-shop-payments.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// notifier tails the payment lifecycle topics and logs each event once.
// Delivery is at-least-once, so events are deduplicated by event_id in redis.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	group := getenv("NOTIFIER_GROUP", "payment-notifier")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	topics := []string{
		payments.TopicPaymentCreated,
		payments.TopicPaymentSucceeded,
		payments.TopicPaymentFailed,
		payments.TopicPaymentRefunded,
		payments.TopicOrderCancelled,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers)

	h := &handler{Redis: rdb, Service: cfg.ServiceName + "-notifier"}

	go func() {
		log.Printf("notifier started: group=%s topics=%v workers=%d", group, topics, workers)
		if err := cons.Start(ctx, h.handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

type handler struct {
	Redis   *redis.Client
	Service string
}

func (h *handler) handle(ctx context.Context, m kafkago.Message) error {
	var env payments.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}

	// dedup via redis (event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	exists, _ := redisx.Exists(ctx, h.Redis, dkey)
	if exists {
		return nil
	}
	_ = h.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	switch env.EventType {
	case payments.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[payments.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Printf("event=%s order=%s stock_restored=%v", env.EventType, p.OrderID, p.StockRestored)
	default:
		p, err := kafkax.UnwrapPayload[payments.PaymentEventPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Printf("event=%s order=%s payment=%s status=%s amount=%s",
			env.EventType, p.OrderID, p.PaymentID, p.Status, p.Amount)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
