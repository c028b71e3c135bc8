// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"section-studio-go/internal/config"
	"section-studio-go/internal/handler"
	"section-studio-go/internal/middleware"
	"section-studio-go/internal/pipeline"
	"section-studio-go/internal/repository"
	"section-studio-go/internal/service"
	"section-studio-go/pkg/database"
	"section-studio-go/pkg/es"
	"section-studio-go/pkg/kafka"
	"section-studio-go/pkg/llm"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/metrics"
	"section-studio-go/pkg/shopify"
	"section-studio-go/pkg/storage"
	"section-studio-go/pkg/token"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("SECTION_STUDIO_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、检索和消息队列
	database.InitDB(cfg.Database)
	if err := repository.Migrate(database.DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)
	defer func() {
		if err := kafka.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}()

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	artifactRepo := repository.NewArtifactRepository(database.DB)
	shopTokenRepo := repository.NewShopTokenRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	verifier := token.NewSessionVerifier(cfg.Shopify.APIKey, cfg.Shopify.APISecret)
	shopifyClient := shopify.NewClient(cfg.Shopify)
	defer shopifyClient.Close()
	generator := service.NewGenerator(llm.NewClient(cfg.LLM), cfg.LLM)
	conversationService := service.NewConversationService(conversationRepo, generator, kafka.NewPublisher(), cfg.Conversation)
	artifactService := service.NewArtifactService(artifactRepo)
	themeService := service.NewThemeService(shopifyClient, shopTokenRepo, time.Duration(cfg.Shopify.TokenCacheHours)*time.Hour)
	searchService := service.NewSearchService(es.ESClient, cfg.Elasticsearch.IndexName, conversationRepo)
	exportService := service.NewExportService(
		conversationService,
		storage.NewMinioStore(storage.MinioClient, cfg.MinIO.BucketName),
		time.Duration(cfg.Conversation.ExportURLExpiryMinutes)*time.Minute,
	)

	// 6. 启动后台 Kafka 消费者，维护对话检索索引
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	processor := pipeline.NewProcessor(conversationRepo, es.NewIndexer(es.ESClient, cfg.Elasticsearch.IndexName))
	go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())

	// 8. 注册路由
	conversationHandler := handler.NewConversationHandler(conversationService, exportService)
	sectionHandler := handler.NewSectionHandler(artifactService)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.SessionAuth(verifier))
	{
		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("", conversationHandler.ListConversations)
			conversations.POST("/turns", conversationHandler.AppendTurn)
			conversations.GET("/search", handler.NewSearchHandler(searchService).SearchConversations)
			conversations.GET("/:id", conversationHandler.GetConversation)
			conversations.PATCH("/:id", conversationHandler.RenameConversation)
			conversations.DELETE("/:id", conversationHandler.DeleteConversation)
			conversations.POST("/:id/export", conversationHandler.ExportConversation)
		}

		apiV1.GET("/sections", sectionHandler.ListSections)
		apiV1.POST("/sections", sectionHandler.CreateSection)
		apiV1.GET("/themes", handler.NewThemeHandler(themeService).ListThemes)
	}

	// Chat 路由 (WebSocket)，会话令牌放在路径中
	r.GET("/chat/:token", handler.NewChatHandler(conversationService, verifier).Handle)
	r.POST("/proxy/embed/reconcile", handler.NewEmbedHandler().Reconcile)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	stopConsumer()
	log.Info("服务已优雅关闭")
}
