package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"bank-txn-monitor/internal/config"
	"bank-txn-monitor/internal/db"
	"bank-txn-monitor/internal/extractor"
	"bank-txn-monitor/internal/handler"
	"bank-txn-monitor/internal/mailbox"
	"bank-txn-monitor/internal/metrics"
	"bank-txn-monitor/internal/poller"
	"bank-txn-monitor/internal/repository"
	"bank-txn-monitor/internal/router"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Bank Transaction Monitor")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	configureLogging(cfg.Log.Level)

	dbConn, err := db.Init(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	m := metrics.NewMetrics()

	mb, auth, err := newMailbox(context.Background(), cfg)
	if err != nil {
		return err
	}

	p := poller.New(mb, extractor.New(), repo, m, cfg.Poller.Interval)

	if cfg.Poller.AutoStart && mb.IsAuthenticated() {
		if _, err := p.Start(); err != nil {
			logrus.Errorf("Failed to resume monitoring: %v", err)
		}
	}

	h := handler.NewHandlers(repo, p, auth, m)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p.Stop()
	p.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := mb.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox: %v", err)
	}

	if sqlDB, err := dbConn.DB(); err == nil {
		sqlDB.Close()
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func configureLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func mailFilter(cfg config.MailConfig) mailbox.Filter {
	return mailbox.Filter{
		Sender:     cfg.Sender,
		Phrase:     cfg.Query,
		Subject:    cfg.Subject,
		MaxResults: cfg.MaxResults,
	}
}

// newMailbox builds the configured mailbox backend. The returned
// Authenticator is nil for backends without an OAuth flow.
func newMailbox(ctx context.Context, cfg *config.Config) (mailbox.Mailbox, mailbox.Authenticator, error) {
	filter := mailFilter(cfg.Mail)

	switch cfg.Mail.Backend {
	case config.MailBackendIMAP:
		mb, err := mailbox.NewIMAPMailbox(mailbox.IMAPOptions{
			Host:     cfg.IMAP.Host,
			Port:     cfg.IMAP.Port,
			User:     cfg.IMAP.User,
			Password: cfg.IMAP.Password,
			Mailbox:  cfg.IMAP.Mailbox,
			Filter:   filter,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create IMAP mailbox: %w", err)
		}
		logrus.Info("Using IMAP for email fetching")
		return mb, nil, nil

	case config.MailBackendGmail:
		oauthCfg, err := mailbox.LoadOAuthConfig(cfg.Gmail.CredentialsFile, cfg.Gmail.RedirectURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load Gmail credentials: %w", err)
		}
		mb, err := mailbox.NewGmailMailbox(ctx, oauthCfg, mailbox.NewFileTokenStore(cfg.Gmail.TokenFile), mailbox.GmailOptions{
			Filter:   filter,
			UserID:   cfg.Gmail.UserID,
			Endpoint: cfg.Gmail.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gmail mailbox: %w", err)
		}
		logrus.Info("Using Gmail API for email fetching")
		return mb, mb, nil
	}

	return nil, nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
}
