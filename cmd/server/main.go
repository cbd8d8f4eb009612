// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatpulse-go/internal/config"
	"chatpulse-go/internal/engine"
	"chatpulse-go/internal/handler"
	"chatpulse-go/internal/middleware"
	"chatpulse-go/internal/model"
	"chatpulse-go/internal/pipeline"
	"chatpulse-go/internal/repository"
	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/database"
	"chatpulse-go/pkg/es"
	"chatpulse-go/pkg/kafka"
	"chatpulse-go/pkg/keypool"
	"chatpulse-go/pkg/llm"
	"chatpulse-go/pkg/log"
	"chatpulse-go/pkg/mailer"
	"chatpulse-go/pkg/storage"
	"chatpulse-go/pkg/tika"
	"chatpulse-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 自动迁移表结构
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.AIRule{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.Subscription{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 5. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	ruleRepo := repository.NewRuleRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	subRepo := repository.NewSubscriptionRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	usageRepo := repository.NewUsageRepository(database.RDB)
	verificationRepo := repository.NewVerificationRepository(database.RDB)

	// 6. 初始化响应生成引擎。
	// 各提供商的 API Key 只从环境变量加载，配置文件里不存密钥。
	openaiPool := keypool.FromEnv(os.Getenv, "OPENAI_API_KEY")
	geminiPool := keypool.FromEnv(os.Getenv, "GEMINI_API_KEY")
	log.Infof("凭证池就绪, openai: %d 个 key, gemini: %d 个 key", openaiPool.Size(), geminiPool.Size())

	eng := engine.New(
		ruleRepo,
		map[string]llm.Provider{
			"openai": llm.NewOpenAI(cfg.AI.OpenAI),
			"gemini": llm.NewGemini(cfg.AI.Gemini),
		},
		map[string]*keypool.Pool{
			"openai": openaiPool,
			"gemini": geminiPool,
		},
		engine.Options{
			SystemPrompt:    cfg.AI.SystemPrompt,
			DefaultProvider: cfg.AI.DefaultProvider,
			RequestTimeout:  time.Duration(cfg.AI.RequestTimeoutSeconds) * time.Second,
			RetryDelay:      time.Duration(cfg.AI.RetryDelayMs) * time.Millisecond,
		},
	)

	// 7. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepo, jwtManager)
	ruleService := service.NewRuleService(ruleRepo, userRepo, usageRepo)
	chatService := service.NewChatService(chatRepo, conversationRepo, usageRepo, eng)
	subService := service.NewSubscriptionService(subRepo, userRepo)
	verificationService := service.NewVerificationService(userRepo, verificationRepo, mailer.NewMailer(cfg.SMTP))
	searchService := service.NewSearchService(es.ESClient, cfg.Elasticsearch.IndexName)

	// 8. 初始化转写索引管道并启动后台 Kafka 消费者
	tikaClient := tika.NewClient(cfg.Tika)
	indexer := pipeline.NewIndexer(tikaClient, cfg.Elasticsearch, cfg.MinIO)
	go kafka.StartConsumer(cfg.Kafka, indexer)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	aiHandler := handler.NewAIHandler(eng, ruleService, usageRepo)
	ruleHandler := handler.NewRuleHandler(ruleService)
	chatHandler := handler.NewChatHandler(chatService, searchService)
	subHandler := handler.NewSubscriptionHandler(subService)
	webhookHandler := handler.NewWebhookHandler(subService, cfg.Payment.FlutterwaveSecretHash)
	verificationHandler := handler.NewVerificationHandler(verificationService)

	authed := middleware.AuthMiddleware(jwtManager, userService)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/send-verification", verificationHandler.SendVerification)
			auth.POST("/verify-code", verificationHandler.VerifyCode)
			auth.POST("/signup-with-verification", verificationHandler.SignupWithVerification)
			auth.POST("/forgot-password", verificationHandler.ForgotPassword)
			auth.POST("/reset-password", verificationHandler.ResetPassword)
			auth.GET("/verify-reset-token/:token", verificationHandler.VerifyResetToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录租户访问)
			me := users.Group("/")
			me.Use(authed)
			{
				me.GET("/me", userHandler.GetProfile)
				me.PUT("/me", userHandler.UpdateProfile)
				me.POST("/logout", userHandler.Logout)
			}
		}

		ai := apiV1.Group("/ai")
		ai.Use(authed)
		{
			ai.POST("/generate-response", aiHandler.GenerateResponse)
			ai.GET("/providers", aiHandler.ListProviders)
			ai.GET("/usage-stats", aiHandler.UsageStats)

			rules := ai.Group("/rules")
			{
				rules.POST("", ruleHandler.CreateRule)
				rules.GET("", ruleHandler.ListRules)
				rules.GET("/:id", ruleHandler.GetRule)
				rules.PUT("/:id", ruleHandler.UpdateRule)
				rules.PUT("/:id/toggle", ruleHandler.ToggleRule)
				rules.DELETE("/:id", ruleHandler.DeleteRule)
			}
		}

		chat := apiV1.Group("/chat")
		{
			// 挂件侧接口，匿名访问
			chat.POST("/widget/tenants/:userId/sessions", chatHandler.CreateSession)
			chat.POST("/widget/sessions/:sessionId/messages", chatHandler.PostMessage)
			chat.POST("/widget/sessions/:sessionId/attachments", chatHandler.UploadAttachment)

			// 租户面板接口，需要认证
			panel := chat.Group("/")
			panel.Use(authed)
			{
				panel.GET("/sessions", chatHandler.ListSessions)
				panel.GET("/sessions/:id/messages", chatHandler.ListMessages)
				panel.POST("/sessions/:id/messages", chatHandler.PostHumanReply)
				panel.PUT("/sessions/:id/close", chatHandler.CloseSession)
				panel.GET("/analytics", chatHandler.Analytics)
				panel.GET("/search", chatHandler.SearchTranscripts)
			}
		}

		subscriptions := apiV1.Group("/subscriptions")
		{
			subscriptions.GET("/plans", subHandler.ListPlans)

			subAuthed := subscriptions.Group("/")
			subAuthed.Use(authed)
			{
				subAuthed.GET("/current", subHandler.Current)
				subAuthed.POST("/payment-reference", subHandler.PaymentReference)
			}
		}

		webhooks := apiV1.Group("/webhooks")
		{
			webhooks.POST("/flutterwave", webhookHandler.Flutterwave)
		}
	}

	// 挂件 WebSocket 路由
	r.GET("/widget/ws/:sessionId", chatHandler.HandleWidget)

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费循环随进程退出自然结束
	log.Info("服务已优雅关闭")
}
