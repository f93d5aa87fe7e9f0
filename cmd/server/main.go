package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"milk_run/internal/config"
	"milk_run/internal/engine"
	"milk_run/internal/model"
	"milk_run/internal/queue"
	"milk_run/internal/router"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 连接 SQLite，自动建表并写入初始站点/料箱
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := model.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	if err := model.Seed(db); err != nil {
		log.Fatalf("db seed: %v", err)
	}

	// 2. Redis：扫码去重、限流、布局缓存、事件 outbox 共用一个客户端
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	// 3. Kafka 生产者 + Relay，把扫码事件异步搬运给看板消费方
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := queue.NewRelay(rdb, producer, cfg.ScanEventStream, cfg.ScanEventGroup, cfg.ScanEventConsumer)

	lc := engine.NewLifecycle(db, queue.NewStreamBroadcaster(rdb, cfg.ScanEventStream))
	sched := engine.NewReplenishmentScheduler(db, cfg.ReplenishPeriod)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx)
	go relay.Run(ctx)

	r := gin.Default()
	router.Setup(r, db, rdb, lc, sched, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()
	log.Printf("milk run server listening on %s", cfg.HTTPAddr)

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
