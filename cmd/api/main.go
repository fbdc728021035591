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

	"github.com/cahyo88/go-tenant-payments/internal/billing"
	"github.com/cahyo88/go-tenant-payments/internal/config"
	"github.com/cahyo88/go-tenant-payments/internal/correlate"
	"github.com/cahyo88/go-tenant-payments/internal/event"
	"github.com/cahyo88/go-tenant-payments/internal/gateway"
	"github.com/cahyo88/go-tenant-payments/internal/httpx"
	kafkax "github.com/cahyo88/go-tenant-payments/internal/kafka"
	"github.com/cahyo88/go-tenant-payments/internal/orders"
	"github.com/cahyo88/go-tenant-payments/internal/postgres"
	"github.com/cahyo88/go-tenant-payments/internal/recon"
	"github.com/cahyo88/go-tenant-payments/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic. They outlive ctx: the sweep loop
	// and HTTP handlers publish until both have fully stopped, so the
	// producers close last, via explicit Close below.
	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicPaymentConfirmed, 1024)
	pConfirmed.Start(context.Background())
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicPaymentFailed, 1024)
	pFailed.Start(context.Background())
	pOrderStatus := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicOrderStatus, 1024)
	pOrderStatus.Start(context.Background())

	// Repos, correlation, engine
	billingRepo := &billing.Repo{DB: db}
	ordersRepo := &orders.Repo{DB: db}
	gw := gateway.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	index := &correlate.RedisIndex{Client: rdb}
	resolver := &correlate.Resolver{Store: billingRepo, Index: index}

	engine := &recon.Engine{
		Ledger:      billingRepo,
		Resolver:    resolver,
		Gateway:     gw,
		Confirmed:   pConfirmed,
		Failed:      pFailed,
		ServiceName: cfg.ServiceName,
		VerifyPush:  cfg.VerifyPush,
	}
	orderSvc := &orders.Service{Store: ordersRepo, Events: pOrderStatus, ServiceName: cfg.ServiceName}

	// Handlers
	router := httpx.NewRouter()
	ph := &httpx.PaymentsHandler{
		Billing:       billingRepo,
		Engine:        engine,
		Gateway:       gw,
		Resolver:      resolver,
		Index:         index,
		Redis:         rdb,
		FeeBps:        cfg.PlatformFeeBps,
		WebhookSecret: cfg.WebhookSecret,
	}
	ph.Register(router)
	oh := &httpx.OrdersHandler{Repo: ordersRepo, Service: orderSvc}
	oh.Register(router)

	// Background poll: covers missed webhooks
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		t := time.NewTicker(cfg.PollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				res, err := engine.SweepAll(ctx)
				if err != nil {
					log.Printf("poll sweep: %v", err)
					continue
				}
				if res.Checked > 0 {
					log.Printf("poll sweep: checked=%d confirmed=%d failed=%d expired=%d errors=%d",
						res.Checked, res.Confirmed, res.Failed, res.Expired, res.Errors)
				}
			}
		}
	}()

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
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

	// the sweep loop must be fully stopped before the producers close:
	// a sweep confirming a payment mid-shutdown still publishes
	cancel()
	<-pollDone

	pConfirmed.Close()
	pFailed.Close()
	pOrderStatus.Close()
	pConfirmed.WaitClosed()
	pFailed.WaitClosed()
	pOrderStatus.WaitClosed()
}
