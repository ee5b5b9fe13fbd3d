package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/paybridge/internal/config"
	"github.com/example/paybridge/internal/database"
	eventkafka "github.com/example/paybridge/internal/events/kafka"
	"github.com/example/paybridge/internal/gateway"
	"github.com/example/paybridge/internal/logging"
	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/repository"
	"github.com/example/paybridge/internal/repository/memory"
	"github.com/example/paybridge/internal/repository/postgres"
	"github.com/example/paybridge/internal/routes"
	"github.com/example/paybridge/internal/services"
	"github.com/example/paybridge/internal/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		ServiceName: "paybridge",
		Env:         cfg.AppEnv,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logging.Sync(logger)

	store, directory, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	policy := gateway.PolicyPermissive
	if cfg.StrictVerification() {
		policy = gateway.PolicyStrict
	}
	registry, err := gateway.NewRegistry(cfg.Gateways, policy, &http.Client{}, logger)
	if err != nil {
		logger.Fatal("failed to build gateway registry", zap.Error(err))
	}
	if mem, ok := store.(*memory.Store); ok {
		seedMemory(mem, cfg, registry, logger)
	}

	deps := services.Deps{
		Store:     store,
		Directory: directory,
		Registry:  registry,
		Policy:    policy,
		Logger:    logger,
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramAdminChat != "" {
		deps.Notifier = services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, logger)
	}
	var publisher *eventkafka.StatusPublisher
	if cfg.KafkaEnabled() {
		publisher = eventkafka.NewStatusPublisher(logger, cfg.KafkaBrokers, cfg.KafkaTopic)
		deps.Events = publisher
		logger.Info("publishing status changes", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	payments := services.NewPaymentService(deps)

	app := routes.NewApp(routes.Dependencies{
		Config:    cfg,
		Payments:  payments,
		Directory: directory,
		Logger:    logger,
		AccessLog: true,
	})

	go func() {
		logger.Info("starting server", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			logger.Fatal("fiber.Listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	payments.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	logger.Info("server exited")
}

func openStore(cfg *config.Config, logger *zap.Logger) (repository.TransactionStore, repository.Directory, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		s := memory.NewStore()
		return s, s, nil
	}

	db, err := database.Connect(cfg.DatabaseURL, !cfg.IsProduction(), logger)
	if err != nil {
		return nil, nil, err
	}
	s := postgres.NewStore(db)
	return s, s, nil
}

// seedMemory activates every registered gateway and creates the bootstrap admin.
func seedMemory(store *memory.Store, cfg *config.Config, registry *gateway.Registry, logger *zap.Logger) {
	for _, name := range registry.Names() {
		store.PutPaymentMethod(models.PaymentMethod{Name: string(name), Gateway: string(name), IsActive: true})
	}

	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	hash, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		logger.Error("failed to hash bootstrap admin password", zap.Error(err))
		return
	}
	store.PutUser(models.User{Name: "Admin", Email: cfg.AdminEmail, PasswordHash: hash, IsAdmin: true})
	logger.Info("bootstrap admin created", zap.String("email", cfg.AdminEmail))
}
