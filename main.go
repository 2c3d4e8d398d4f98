package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/krau/headpose/cli"
	"github.com/krau/headpose/config"
	"github.com/krau/headpose/infer"
	"github.com/krau/headpose/onnx"
	"github.com/krau/headpose/pipeline"
	"github.com/krau/headpose/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// .env is optional.
	_ = godotenv.Load()

	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	deps := cli.Deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Level:  level,
		Provider: func(cfg config.Config) (pipeline.Provider, func(), error) {
			closeLog := setupLogFile(cfg, level)
			if err := onnx.Init(cfg.Libonnx); err != nil {
				closeLog()
				return nil, nil, err
			}
			slog.Debug("ONNX Runtime initialized", slog.String("version", onnx.Version()))
			return infer.NewProvider(cfg), func() {
				onnx.Destroy()
				closeLog()
			}, nil
		},
		Version: func(cfg config.Config) string {
			if err := onnx.Init(cfg.Libonnx); err != nil {
				slog.Debug("ONNX Runtime unavailable", slog.String("error", err.Error()))
				return onnx.Version()
			}
			defer onnx.Destroy()
			return onnx.Version()
		},
		Serve: server.Run,
	}
	os.Exit(cli.Execute(ctx, deps, os.Args[1:]))
}

// setupLogFile tees the log to a rotated file when log_file is set.
func setupLogFile(cfg config.Config, level *slog.LevelVar) func() {
	if cfg.LogFile == "" {
		return func() {}
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		LocalTime:  true,
		Compress:   true,
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
	}
	prev := slog.Default()
	w := io.MultiWriter(os.Stderr, fileWriter)
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return func() {
		slog.SetDefault(prev)
		fileWriter.Close()
	}
}
