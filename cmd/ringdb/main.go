package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ringdb/ringdb/internal/config"
	"github.com/ringdb/ringdb/internal/obsmetrics"
	"github.com/ringdb/ringdb/internal/queryapi"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "ringdb",
		Short: "ringdb - local-first, peer-to-peer encrypted graph database replica",
		Long: `ringdb runs one replica of a local-first, peer-to-peer encrypted
graph database: it stores signed nodes and edges, answers mutate/query
calls for an embedding application, and reconciles its rooms against
other replicas it connects to.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runReplica,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory path")
	rootCmd.PersistentFlags().StringP("log-level", "", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntP("parallelism", "", 4, "Worker count for room locking and signature verification")
	rootCmd.PersistentFlags().IntP("max-object-size", "", 256, "Maximum node/edge row size in KB")
	rootCmd.PersistentFlags().StringP("admin-listen", "", ":9090", "Admin HTTP listen address (/metrics, /healthz)")
	rootCmd.PersistentFlags().StringP("app-key", "", "", "Application identifier mixed into this replica's derived signing key")
	rootCmd.PersistentFlags().StringP("key-material-file", "", "", "Path to a 32-byte key material file shared by every replica of this identity")
	rootCmd.PersistentFlags().StringP("datamodel", "", "", "Datamodel string, e.g. Greetings{message:String}")
	rootCmd.PersistentFlags().StringP("datamodel-file", "", "", "Path to a file containing the datamodel string")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplica(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)
	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("starting ringdb replica")

	appKey, _ := cmd.Flags().GetString("app-key")
	if appKey == "" {
		return fmt.Errorf("--app-key is required")
	}
	keyMaterialFile, _ := cmd.Flags().GetString("key-material-file")
	if keyMaterialFile == "" {
		return fmt.Errorf("--key-material-file is required")
	}
	keyMaterial, err := os.ReadFile(keyMaterialFile)
	if err != nil {
		return fmt.Errorf("failed to read key material: %w", err)
	}

	datamodel, err := loadDatamodel(cmd)
	if err != nil {
		return err
	}

	h, err := queryapi.New(datamodel, appKey, keyMaterial, cfg.DataDir, cfg)
	if err != nil {
		return fmt.Errorf("failed to start replica: %w", err)
	}
	defer h.Close()

	logrus.WithFields(logrus.Fields{
		"verifying_key": h.VerifyingKey(),
		"private_room":  h.PrivateRoom(),
		"hardware_name": h.HardwareName(),
	}).Info("replica identity ready")

	adminListen, _ := cmd.Flags().GetString("admin-listen")
	adminSrv := obsmetrics.NewServer(adminListen, h.Metrics(), func() error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logrus.WithField("listen", adminListen).Info("admin HTTP server listening")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("admin HTTP server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
		logrus.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = adminSrv.Shutdown(shutdownCtx)

	logrus.Info("ringdb replica stopped")
	return nil
}

func loadDatamodel(cmd *cobra.Command) (string, error) {
	if dm, _ := cmd.Flags().GetString("datamodel"); dm != "" {
		return dm, nil
	}
	if path, _ := cmd.Flags().GetString("datamodel-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read datamodel file: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("one of --datamodel or --datamodel-file is required")
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
