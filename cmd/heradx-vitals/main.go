package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"heradx-vitals/common/logger"
	"heradx-vitals/internal/biometrics"
	"heradx-vitals/internal/config"
	"heradx-vitals/internal/events"
	httpapi "heradx-vitals/internal/http"
	"heradx-vitals/internal/metrics"
	"heradx-vitals/internal/repository"
	"heradx-vitals/internal/service"
	"heradx-vitals/internal/store"
	"heradx-vitals/internal/triage"
)

func main() {
	// PRESAGE_BRIDGE_PATH=mock 时由本进程自身充当 bridge 子进程
	if len(os.Args) > 1 && os.Args[1] == "mock-bridge" {
		if err := biometrics.RunMockBridge(os.Stdin, os.Stdout, biometrics.NewGenerator(biometrics.BridgeBands, 0)); err != nil {
			fmt.Fprintln(os.Stderr, "mock bridge:", err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "heradx-vitals")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	logEnvironment(cfg, log)

	m := metrics.NewMetrics()
	manager := biometrics.NewManagerFromConfig(cfg.Vitals, log)
	log.Info("Biometrics mode resolved",
		zap.String("mode", string(manager.Mode().Kind)),
		zap.String("describe", manager.Mode().Describe()),
		zap.Bool("real_presage", manager.Mode().Real()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publishers := events.Multi{}

	// 可选 Redis：汇总缓存 + 汇总事件 stream
	var redisClient *redis.Client
	var cache *store.SummaryCache
	if cfg.RedisEnabled {
		if c, err := store.NewRedisClient(ctx, cfg.Redis); err == nil {
			redisClient = c
			cache = store.NewSummaryCache(store.NewRedisKV(c), cfg.Summary.CacheTTL)
			publishers = append(publishers, events.NewStreamPublisher(c, cfg.Summary.Stream))
			log.Info("Redis enabled", zap.String("addr", cfg.Redis.Addr), zap.String("stream", cfg.Summary.Stream))
		} else {
			log.Warn("Redis enabled but connection failed, summary cache disabled", zap.Error(err))
		}
	}

	// 可选 DB：扫描历史；未就绪时使用内存 repo
	var db *sql.DB
	var history repository.ScanRecordsRepository = repository.NewMemoryScanRecordsRepository()
	if cfg.DBEnabled {
		if d, err := repository.OpenPostgres(ctx, cfg.Database); err == nil {
			if err := repository.EnsureSchema(ctx, d); err != nil {
				log.Warn("Failed to ensure scan history schema, falling back to memory", zap.Error(err))
				_ = d.Close()
			} else {
				db = d
				history = repository.NewPostgresScanRecordsRepository(d, log)
				log.Info("DB enabled for scan history")
			}
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory", zap.Error(err))
		}
	}

	var mqttPub *events.MQTTPublisher
	if cfg.MQTT.Enabled {
		if p, err := events.NewMQTTPublisher(cfg.MQTT, log); err == nil {
			mqttPub = p
			publishers = append(publishers, p)
			log.Info("MQTT publisher enabled", zap.String("broker", cfg.MQTT.Broker))
		} else {
			log.Warn("MQTT enabled but connection failed", zap.Error(err))
		}
	}

	opts := service.ScanServiceOptions{Cache: cache, History: history, Metrics: m}
	if len(publishers) > 0 {
		opts.Publisher = publishers
	}
	scans := service.NewScanService(manager, opts, log)

	analyzer := triage.NewGeminiAnalyzer(cfg.Gemini, log)

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Biometrics:  httpapi.NewBiometricsHandler(scans, log),
		Diagnosis:   httpapi.NewDiagnosisHandler(analyzer, scans, m, log),
		History:     httpapi.NewHistoryHandler(scans, log),
		Health:      httpapi.NewHealthHandler(scans, analyzer.Configured()),
		Metrics:     m,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      log,
	})
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)

	// 先停会话（杀掉 bridge 子进程），再关下游
	scans.Close()
	if mqttPub != nil {
		mqttPub.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

// logEnvironment 启动时打印配置状态（不输出密钥本身）
func logEnvironment(cfg *config.Config, log *zap.Logger) {
	set := func(v string) string {
		if v == "" {
			return "NOT SET"
		}
		return "SET"
	}
	log.Info("Environment check",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("GEMINI_API_KEY", set(cfg.Gemini.APIKey)),
		zap.String("PRESAGE_API_KEY", set(cfg.Vitals.APIKey)),
		zap.String("PRESAGE_API_URL", set(cfg.Vitals.APIURL)),
		zap.String("PRESAGE_VIDEO_API_URL", set(cfg.Vitals.VideoAPIURL)),
		zap.String("PRESAGE_BRIDGE_PATH", set(cfg.Vitals.BridgePath)),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.Bool("db_enabled", cfg.DBEnabled),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
	)
}
