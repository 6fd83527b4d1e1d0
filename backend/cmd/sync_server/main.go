package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	appconfig "syncServer/backend/config"
	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/filestore"
	"syncServer/backend/internal/httpapi/handlers"
	"syncServer/backend/internal/httpapi/middleware"
	"syncServer/backend/internal/revision"
	"syncServer/backend/internal/store"
	"syncServer/backend/internal/ws"
)

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	db, err := gorm.Open(gormmysql.Open(cfg.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err = store.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	// 修订历史的权威存储：本地文件系统，每份文档一个目录
	fileStore, err := filestore.NewLocalStore(cfg.Store.Root)
	if err != nil {
		log.Fatalf("Failed to open file store: %v", err)
	}

	opts := revision.DefaultOptions()
	if cfg.Collab.MaxRetries > 0 {
		opts.MaxRetries = cfg.Collab.MaxRetries
	}
	if cfg.Collab.WaitTimeoutMsec > 0 {
		opts.WaitTimeout = time.Duration(cfg.Collab.WaitTimeoutMsec) * time.Millisecond
	}
	if cfg.Collab.MaxDocumentSize > 0 {
		opts.MaxDocumentSize = cfg.Collab.MaxDocumentSize
	}
	if cfg.Collab.MaxTransformLength > 0 {
		opts.MaxTransformLength = cfg.Collab.MaxTransformLength
	}
	requireNewline := cfg.Collab.RequireLineTerminator
	controls := cache.NewControlCache(cfg.Collab.CacheCapacity, func(docID string) *revision.Control {
		return revision.NewBodyControl(docID, fileStore, opts, requireNewline)
	})
	defer controls.Close()

	presenceCache := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presenceCache)
	snapshotStore := store.NewSnapshotStore(db)
	registry := store.NewDocumentRegistry(db)
	users := store.NewUserDirectory(db)

	kafkaSem := collab.NewSemaphoreControl(100)
	wsSem := collab.NewSemaphoreControl(100)

	// Kafka 本地队列 + worker 重试发送
	kafkaDispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			//  Go 允许在数字里用下划线做分隔符，方便阅读
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	svc := collab.NewEngine(controls, snapshotStore, registry, users, kafkaDispatcher)
	manager := ws.NewManager(hub, svc, wsSem)
	docHandlers := handlers.NewDocumentHandlers(svc)

	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	// 鉴权中间件从 Authorization 或 ?token= 提取 token，
	// 调用 auth-service 校验后把 userId/username 写进上下文
	sync := r.Group("/sync")
	sync.Use(middleware.AuthMiddleware(cfg.Auth.Path))
	sync.GET("/ws", manager.WebSocketConnect)

	docs := sync.Group("/v1/docs")
	docs.POST("", docHandlers.CreateDocument)
	docs.GET("/:docId", docHandlers.GetDocument)
	docs.GET("/:docId/snapshot", docHandlers.GetSnapshot)
	docs.POST("/:docId/snapshot", docHandlers.SaveSnapshot)
	docs.GET("/:docId/changes", docHandlers.GetChanges)
	docs.GET("/:docId/wait", docHandlers.WaitRevision)
	docs.GET("/:docId/validate", docHandlers.Validate)

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
