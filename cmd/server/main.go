package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/api"
	"github.com/nodewire/nodewire/internal/app"
	iauth "github.com/nodewire/nodewire/internal/auth"
	"github.com/nodewire/nodewire/internal/database"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/internal/services"
	"github.com/nodewire/nodewire/pkg/crypto"
	"github.com/nodewire/nodewire/pkg/logger"
	"github.com/nodewire/nodewire/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("nodewire-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	authService, err := iauth.NewAuthService(db, jwtService, policies.DefaultRegistry())
	if err != nil {
		return fmt.Errorf("initialise auth service: %w", err)
	}

	codec, err := crypto.NewSecretCodec(cfg.Vault.Algorithm, []byte(cfg.Vault.EncryptionKey))
	if err != nil {
		return fmt.Errorf("initialise secret codec: %w", err)
	}

	orgService, err := services.NewOrganizationService(db)
	if err != nil {
		return fmt.Errorf("initialise organization service: %w", err)
	}
	nodeService, err := services.NewNodeService(db, cfg.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("initialise node service: %w", err)
	}
	userService, err := services.NewUserService(db)
	if err != nil {
		return fmt.Errorf("initialise user service: %w", err)
	}

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	connectionService, err := services.NewNodeConnectionService(db, codec, orgService, notifier)
	if err != nil {
		return fmt.Errorf("initialise connection service: %w", err)
	}

	router, err := api.NewRouter(api.Services{
		Auth:          authService,
		Organizations: orgService,
		Nodes:         nodeService,
		Connections:   connectionService,
		Users:         userService,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	cfg.Vault.EncryptionKey = strings.TrimSpace(cfg.Vault.EncryptionKey)
	if strings.EqualFold(cfg.Vault.Algorithm, "aes-gcm") || strings.EqualFold(cfg.Vault.Algorithm, "aes-256-gcm") {
		if len(cfg.Vault.EncryptionKey) != 32 {
			return fmt.Errorf("vault.encryption_key must be 32 characters (current: %d)", len(cfg.Vault.EncryptionKey))
		}
	}

	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DatabaseOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, database.SeedConfig{
		RootOrganizationName: cfg.Seed.RootOrganizationName,
		RootEmail:            cfg.Seed.RootEmail,
		RootPassword:         cfg.Seed.RootPassword,
	}); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("resolve database handle failed", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database failed", zap.Error(err))
	}
}

// buildNotifier wires the SMTP-backed connection notifier when email is
// enabled; otherwise invitations simply skip notification.
func buildNotifier(cfg *app.Config, log *zap.Logger) (services.ConnectionNotifier, error) {
	if !cfg.Email.SMTP.Enabled {
		log.Info("smtp disabled; connection notifications are off")
		return nil, nil
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  true,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	return services.NewEmailConnectionNotifier(mailer)
}
