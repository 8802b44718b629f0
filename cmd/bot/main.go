package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"gitnotify/internal/app"
	"gitnotify/internal/config"
	logx "gitnotify/pkg/logx"
)

type Opts struct {
	Config  string `short:"c" long:"config" env:"GITNOTIFY_CONFIG" default:"./config.json" description:"path to config (json or yaml)"`
	EnvFile string `long:"env-file" default:".env" description:"dotenv file loaded before the config; missing file is ignored"`
	Token   string `long:"token" env:"TELEGRAM_BOT_TOKEN" description:"bot token, overrides telegram.token"`
	Version bool   `short:"V" long:"version" description:"show version info"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	boot := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	// .env must not override the real environment.
	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Warn("env file not loaded", logx.String("path", opts.EnvFile), logx.Err(err))
	}
	// Flags were parsed before .env was read.
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(opts.Config, app.Options{
		Version: revision,
		Overlay: func(c *config.Config) {
			if token != "" {
				c.Telegram.Token = token
			}
		},
	})
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("start failed", logx.Err(err))
		os.Exit(1)
	}

	reason := app.StopSIGTERM
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		boot.Error("stopped on fatal error", logx.Err(a.Err()))
		os.Exit(1)
	}
}
