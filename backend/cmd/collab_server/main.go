package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"collabcore/backend/config"
	"collabcore/backend/internal/cache"
	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/conflict"
	"collabcore/backend/internal/httpapi"
	"collabcore/backend/internal/store"
	"collabcore/backend/internal/ws"
)

func newResolver(cfg *config.Config) (*conflict.Resolver, error) {
	r := conflict.NewResolver()
	if cfg.Collab.DefaultStrategy != "" {
		s, err := conflict.ParseStrategy(cfg.Collab.DefaultStrategy)
		if err != nil {
			return nil, err
		}
		if err := r.SetDefault(s); err != nil {
			return nil, err
		}
	}
	for field, name := range cfg.Collab.FieldStrategies {
		s, err := conflict.ParseStrategy(name)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		if err := r.Register(field, s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newRedis(cfg *config.Config) redis.UniversalClient {
	if len(cfg.Redis.Addrs) == 0 {
		return nil
	}
	// 单个地址用单机客户端，多个地址用集群客户端
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newProducer(cfg *config.Config) (sarama.SyncProducer, error) {
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	kafkaCfg.Producer.Timeout = cfg.Kafka.Timeout
	// 重试交给 dispatcher 的 backoff
	kafkaCfg.Producer.Retry.Max = 0
	return sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: port=%d redis=%v kafka=%v mysql=%t", cfg.Running.Port, cfg.Redis.Addrs, cfg.Kafka.Brokers, cfg.Mysql.DSN != "")

	// === 存储：MySQL（快照 + 文档元数据）===
	var (
		snapshots collab.SnapshotStore
		documents collab.DocumentStore
		lister    *store.DocumentStore
	)
	if cfg.Mysql.DSN != "" {
		db, err := store.InitMySQL(cfg.Mysql.DSN, cfg.Mysql.Verbose)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("Failed to get sql.DB: %v", err)
		}
		defer sqlDB.Close()
		snapshots = store.NewSnapshotStore(db)
		lister = store.NewDocumentStore(db)
		documents = lister
	}

	// === Redis：presence 镜像 + CRDT 字段 ===
	var (
		presenceCache cache.PresenceCache
		fields        collab.FieldStore
	)
	if rdb := newRedis(cfg); rdb != nil {
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		presenceCache = cache.NewRedisPresence(rdb)
		fields = cache.NewFieldStore(rdb)
	}

	// === Kafka：操作事件 ===
	var (
		events     collab.EventPublisher
		dispatcher *collab.KafkaDispatcher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := newProducer(cfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()
		// Kafka 本地队列 + worker 重试发送
		dispatcher = collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(cfg.Kafka.Workers*2),
			collab.KafkaDispatcherOptions{
				QueueSize:   cfg.Kafka.QueueSize,
				Workers:     cfg.Kafka.Workers,
				MaxRetry:    cfg.Kafka.MaxRetry,
				BaseBackoff: 50 * time.Millisecond,
				MaxBackoff:  1 * time.Second,
			},
		)
		events = dispatcher
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		log.Fatalf("init conflict resolver failed: %v", err)
	}

	// hub 作为监听者，在文档锁内按版本顺序推送已应用的操作
	hub := ws.NewHub(presenceCache, cfg.Collab.PresenceTTL)

	// 构造协作引擎具体实现（内存版）
	svc := collab.NewInMemoryService(snapshots, documents, fields, events, resolver, collab.ServiceOptions{
		RingCap:            cfg.Collab.HistoryCap,
		SnapshotEvery:      cfg.Collab.SnapshotEvery,
		SnapshotKeep:       cfg.Collab.SnapshotKeep,
		MaxTransformWindow: cfg.Collab.MaxTransformWindow,
		Listener:           hub,
	})
	var origins []string
	if cfg.Cors.Enabled {
		origins = cfg.Cors.AllowedOrigins
	}
	manager := ws.NewManager(hub, svc, collab.NewSemaphoreControl(cfg.Collab.SemaphoreSize), origins)

	ropt := httpapi.RouterOptions{
		JWTSecret:      []byte(cfg.Auth.Secret),
		AllowedOrigins: origins,
		Hub:            hub,
		WS:             manager,
	}
	if lister != nil {
		ropt.Lister = lister
	}
	gin.SetMode(gin.ReleaseMode)
	r := httpapi.NewRouter(svc, ropt)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Running.Port), Handler: r}
	go func() {
		log.Printf("collab server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if dispatcher != nil {
		if err := dispatcher.Close(ctx); err != nil {
			log.Printf("dispatcher close: %v", err)
		}
		sent, dropped := dispatcher.Stats()
		log.Printf("dispatcher stats sent=%d dropped=%d", sent, dropped)
	}
}
