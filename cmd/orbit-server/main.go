package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orbit-cli/orbit/pkg/api"
	"github.com/orbit-cli/orbit/pkg/chat"
	"github.com/orbit-cli/orbit/pkg/cli"
	"github.com/orbit-cli/orbit/pkg/completion"
	"github.com/orbit-cli/orbit/pkg/config"
	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/ratelimit"
	"github.com/orbit-cli/orbit/pkg/session"
	"github.com/orbit-cli/orbit/pkg/store"
	"github.com/orbit-cli/orbit/pkg/version"
)

func main() {
	flags := cli.Parse()

	zl := setupLogger(flags.Debug)
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	log.With("version", version.Version, "commit", version.GitCommit).Info("Starting orbit-server")
	flags.Print(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags, zl); err != nil {
		log.Errorw("orbit-server stopped with error", "error", err)
		_ = zl.Sync()
		os.Exit(1)
	}
	log.Info("orbit-server stopped")
}

func run(ctx context.Context, flags *cli.Config, zl *zap.Logger) (err error) {
	log := zl.Sugar()

	var cfg config.Config
	if flags.ConfigPath == cli.DefaultConfigPath {
		// absence of the default file means "run on defaults"
		cfg, err = config.Load()
	} else {
		cfg, err = config.Load(flags.ConfigPath)
	}
	if err != nil {
		return err
	}
	flags.Apply(&cfg, log)
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	completer, err := completion.New(cfg.Completion, log)
	if err != nil {
		return err
	}
	if timeout, terr := cfg.CompletionTimeout(); terr == nil {
		completer = completion.WithTimeout(completer, timeout)
	}

	resolver := session.NewResolver(db.DB, log, session.WithCookieName(cfg.SessionCookieName()))
	orchestrator := chat.NewOrchestrator(conversation.NewStore(db.DB, log), completer, log)

	tokenLimiter := ratelimit.New(ratelimit.Config{
		Rate:  cfg.RateLimit.TokenLookupRate,
		Burst: cfg.RateLimit.TokenLookupBurst,
	})
	defer tokenLimiter.Stop()
	conversationLimiter := ratelimit.New(ratelimit.ConversationConfig())
	defer conversationLimiter.Stop()

	server := api.NewServer(zl, cfg, flags.Debug, db)
	if flags.EnableHTTP2 {
		server.EnableHTTP2()
	}
	err = server.RegisterAll([]api.APIController{
		api.NewMeController(log, resolver, tokenLimiter),
		chat.NewConversationController(log, orchestrator, resolver.Middleware(), conversationLimiter),
	})
	if err != nil {
		return err
	}

	return server.Listen(ctx)
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	// Disable automatic stacktraces for non-fatal levels to avoid noisy traces in WARN/INFO logs
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
