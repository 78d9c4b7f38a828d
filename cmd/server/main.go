package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-teamchat/internal/api"
	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/server"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/storage"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	configFile     string
	addr           string
	dsn            string
	signingKey     string
	blobPath       string
	allowedOrigins stringSliceFlag
)

// loadConfig layers defaults, the optional YAML file, TEAMCHAT_* variables
// (including those from .env) and finally any flags given on the command line.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	cfg.ServerAddr = addr
	cfg.DatabaseDSN = dsn
	cfg.BlobPath = blobPath
	if err := cfg.SetSigningSecret(defaultSigningKey); err != nil {
		return nil, err
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	if configFile != "" {
		f, err := config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplyFile(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ServerAddr = addr
		case "dsn":
			cfg.DatabaseDSN = dsn
		case "blob-path":
			cfg.BlobPath = blobPath
		case "allowed-origins":
			cfg.AllowedOrigins = allowedOrigins
		case "signing-key":
			flagErr = cfg.SetSigningSecret(signingKey)
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func main() {
	flag.StringVar(&configFile, "config", "", "path to a YAML config file")
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&blobPath, "blob-path", "./data/blobs", "directory for uploaded images")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-teamchat] ", log.LstdFlags)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgTeamChatRepository(cfg.DatabaseDSN, cfg.SequenceWidth)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	blobs, err := storage.Open(cfg.BlobPath, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal("blob store open:", err)
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			logger.Println("blob store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, server.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		PublishRate:       cfg.PublishRate,
		PublishBurst:      cfg.PublishBurst,
	})
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewTeamChatApp(mux, logger, chatServer, dbConn, blobs, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
