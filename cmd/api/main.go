package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/nivtax/balanca-backend/api/swagger" // swagger docs
	"github.com/nivtax/balanca-backend/internal/database"
	"github.com/nivtax/balanca-backend/internal/handler"
	"github.com/nivtax/balanca-backend/internal/mailer"
	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/pdf"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/internal/websocket"
	"github.com/nivtax/balanca-backend/internal/workflow"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// @title           Balance Back Office API
// @version         1.0
// @description     Workflow, chat, letters, declarations and payments for the accounting back office.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		logrus.Info("no configs/.env file found, using environment")
	}

	if gin.Mode() == gin.ReleaseMode {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	dsn := "postgres://" + getenv("DB_USER", "postgres") + ":" + getenv("DB_PASSWORD", "postgres") +
		"@" + getenv("DB_HOST", "localhost") + ":" + getenv("DB_PORT", "5432") +
		"/" + getenv("DB_NAME", "balanca") + "?sslmode=" + getenv("DB_SSLMODE", "disable")

	db, err := database.NewConnection(dsn)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	logrus.Info("connected to postgres")

	// Redis fronts the chat read-state; nil degrades to the database.
	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
	}

	// Statuses arriving in change-status payloads must belong to the workflow.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("balancestatus", func(fl validator.FieldLevel) bool {
			return workflow.IsValid(workflow.Status(fl.Field().String()))
		})
	}

	hub := websocket.NewHub()
	go hub.Run()

	txm := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	caseRepo := repository.NewBalanceCaseRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	chatRepo := repository.NewChatRepository(db)
	letterRepo := repository.NewLetterRepository(db)
	declRepo := repository.NewDeclarationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	renderer := pdf.NewRenderer(os.Getenv("PDF_ENDPOINT"), os.Getenv("PDF_API_KEY"))
	mail := mailer.NewMailer(os.Getenv("MAIL_ENDPOINT"), os.Getenv("MAIL_API_KEY"), getenv("MAIL_FROM", "office@balanca.example"))

	userService := service.NewUserService(userRepo, db)
	clientService := service.NewClientService(clientRepo, auditRepo, txm)
	balanceService := service.NewBalanceService(caseRepo, historyRepo, chatRepo, userRepo, auditRepo, txm, hub)
	chatService := service.NewChatService(chatRepo, caseRepo, auditRepo, txm, hub, rdb)
	letterService := service.NewLetterService(letterRepo, clientRepo, auditRepo, txm, renderer, mail)
	declarationService := service.NewDeclarationService(declRepo, clientRepo, auditRepo, txm, mail)
	paymentService := service.NewPaymentService(paymentRepo, caseRepo, auditRepo, txm,
		os.Getenv("PAYMENT_GATEWAY_URL"), getenv("APP_BASE_URL", "http://localhost:8080"))
	auditService := service.NewAuditService(auditRepo)

	authHandler := handler.NewAuthHandler(userService)
	userHandler := handler.NewUserHandler(userService)
	clientHandler := handler.NewClientHandler(clientService)
	balanceHandler := handler.NewBalanceHandler(balanceService)
	chatHandler := handler.NewChatHandler(chatService)
	letterHandler := handler.NewLetterHandler(letterService)
	declarationHandler := handler.NewDeclarationHandler(declarationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	auditHandler := handler.NewAuditHandler(auditService)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{getenv("CORS_ORIGIN", "http://localhost:5173")}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// Realtime chat rooms. The access check runs against live case state so a
	// reassigned bookkeeper cannot join with a stale token.
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(hub, c, middleware.GetJWTSecret(), func(tenant, caseID, userID string, role permission.Role) bool {
			return chatService.CanAccess(c.Request.Context(), tenant, caseID, userID, role)
		})
	})

	root := router.Group("")
	authHandler.RegisterRoutes(root)
	userHandler.RegisterRoutes(root)
	clientHandler.RegisterRoutes(root)
	balanceHandler.RegisterRoutes(root)
	chatHandler.RegisterRoutes(root)
	letterHandler.RegisterRoutes(root)
	declarationHandler.RegisterRoutes(root)
	paymentHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)

	port := getenv("PORT", "8080")
	logrus.WithField("port", port).Info("server listening")
	if err := router.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}
