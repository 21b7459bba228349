package main

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"dot-wallet/internal/chain/substrate"
	"dot-wallet/internal/handler"
	"dot-wallet/internal/model"
	"dot-wallet/internal/server"
	"dot-wallet/internal/service"
	"dot-wallet/internal/service/history"
	"dot-wallet/internal/service/mq"
	"dot-wallet/internal/signer"
	"dot-wallet/pkg/cache"
	"dot-wallet/pkg/config"
	"dot-wallet/pkg/database"
	"dot-wallet/pkg/keystore"
	"dot-wallet/pkg/logger"
	"dot-wallet/pkg/utils/lock"
	"dot-wallet/pkg/wallet/types"
)

// @title DOT Wallet API
// @version 1.0
// @description Substrate transaction lifecycle service
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	dev := config.Global.App.Env == "development"

	// 2. 连接数据库
	db, err := database.ConnectPostgres(config.Global.DB.DSN(), dev)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3. 连接 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 4. 开发环境自动迁移，生产环境使用 cmd/migrate
	if dev {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}

	ctx, cancel := context.WithCancel(context.Background())

	// 5. 初始化消息队列
	signerCfg := config.Global.Signer
	// 签名回传需要广播到每个实例: 每个实例独立的消费组
	host, _ := os.Hostname()
	relayGroup := "wallet_sign_relay-" + host
	var producer mq.Producer
	var consumer mq.Consumer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
		consumer = mq.NewKafkaConsumer(config.Global.Kafka.Brokers, relayGroup)
	} else {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
		consumer = mq.NewRedisConsumer(rdb, relayGroup, host)
	}

	// 6. 连接各条链，失败的链跳过
	var chains []service.Chain
	var refreshers []service.ConstantsRefresher
	metadata := make(map[string]signer.MetadataSource)
	for _, cc := range config.Global.Chains {
		client, err := substrate.Dial(cc)
		if err != nil {
			logger.Error("连接链失败，已跳过", zap.String("chain", cc.ID), zap.Error(err))
			continue
		}
		chains = append(chains, service.Chain{Config: cc, Client: client})
		refreshers = append(refreshers, client)
		metadata[cc.ID] = client
		logger.Info("链已连接", zap.String("chain", cc.ID), zap.Uint32("spec_version", client.SpecVersion()))
	}
	if len(chains) == 0 {
		logger.Fatal("没有可用的链")
	}

	// 7. 签名方: 本地 keystore / Ledger 伴侣程序 / QR / 注入式钱包
	hub := signer.NewResponseHub()
	relay := signer.NewRelaySigner(producer, hub, signerCfg.RelayRequestTopic, signerCfg.RelayTimeout)
	router := signer.NewRouter().
		Register(types.SignerPassword, signer.NewKeystoreSigner(keystore.NewStore(signerCfg.KeystoreDir))).
		Register(types.SignerLedger, signer.NewLedgerSigner(signer.NewRelayDevice(relay), metadata, signerCfg.LedgerKnownSpecVersion)).
		Register(types.SignerQR, relay).
		Register(types.SignerInjected, relay)

	go func() {
		if err := hub.Run(ctx, consumer, signerCfg.RelayResponseTopic); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("签名回传消费失败", zap.Error(err))
		}
	}()

	// 8. 交易服务
	txService := service.NewTxService(service.TxDeps{
		Chains:        chains,
		Signer:        router,
		History:       history.NewStore(db),
		Locker:        lock.NewRedisLock(rdb),
		Fees:          cache.NewMultiLevelCache(cache.NewMemoryCache(config.Global.Lifecycle.FeeCacheTTL, config.Global.Lifecycle.FeeCacheTTL), cache.NewRedisCache(rdb)),
		Producer:      producer,
		ResponseTopic: signerCfg.RelayResponseTopic,
		Lifecycle:     config.Global.Lifecycle,
	})
	go txService.Run(ctx)

	// 9. 启动消息中继服务 (outbox -> MQ)
	relayService := service.NewRelayService(db, producer)
	go relayService.Start(ctx)

	// 10. 定时刷新链上常量
	cronService := service.NewCronService(config.Global.Lifecycle.ConstantsRefresh, refreshers...)
	if err := cronService.Start(); err != nil {
		logger.Fatal("定时任务启动失败", zap.Error(err))
	}

	// 11. HTTP
	r := server.NewHTTPRouter(handler.NewTxHandler(txService))
	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, r)

	// 逆序执行: 先停业务，再关连接
	app.OnStop(func() {
		logger.Info("正在关闭数据库连接...")
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = rdb.Close()
	})
	app.OnStop(func() { _ = consumer.Close() })
	app.OnStop(cancel)
	app.OnStop(cronService.Stop)
	app.OnStop(txService.Close)

	// 运行 (阻塞)
	app.Run()
	logger.Info("系统已退出")
}
