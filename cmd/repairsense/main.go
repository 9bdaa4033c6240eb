package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/repairsense/internal/profile"
	"github.com/hrygo/repairsense/plugin/ai"
	"github.com/hrygo/repairsense/plugin/ai/anomaly"
	"github.com/hrygo/repairsense/plugin/ai/classifier"
	"github.com/hrygo/repairsense/plugin/ai/timeout"
	"github.com/hrygo/repairsense/server"
	"github.com/hrygo/repairsense/server/service/repair"
	"github.com/hrygo/repairsense/store/cache"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:          "repairsense",
		Short:        "Classifies free-text vehicle repair descriptions into (section, name) labels",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, logger, err := loadProfile()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), p, logger)
		},
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the classification cache",
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached classification from the configured cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, logger, err := loadProfile()
			if err != nil {
				return err
			}
			return clearCache(cmd.Context(), p, logger, cmd.OutOrStdout())
		},
	}

	modelCmd = &cobra.Command{
		Use:   "model",
		Short: "Inspect the classifier model",
	}

	modelInfoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print the metadata of the configured classifier checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := loadProfile()
			if err != nil {
				return err
			}
			return printModelInfo(cmd.Context(), p, cmd.OutOrStdout())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "path of the YAML configuration file")
	rootCmd.PersistentFlags().String("mode", "prod", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "address of server")
	rootCmd.PersistentFlags().Int("port", 8000, "port of server")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	for key, flag := range map[string]string{
		"config":           "config",
		"server.mode":      "mode",
		"server.host":      "host",
		"server.port":      "port",
		"server.log_level": "log-level",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	cacheCmd.AddCommand(cacheClearCmd)
	modelCmd.AddCommand(modelInfoCmd)
	rootCmd.AddCommand(cacheCmd, modelCmd)
}

func loadProfile() (*profile.Profile, *slog.Logger, error) {
	p, err := profile.Load(viper.GetViper(), viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	p.Version = version

	logger := newLogger(p, os.Stdout)
	slog.SetDefault(logger)
	return p, logger, nil
}

// runServer builds every component from p and serves until SIGINT or SIGTERM.
func runServer(ctx context.Context, p *profile.Profile, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	register, err := cache.NewRegister(ctx, &p.Cache, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create cache")
	}

	detector, clf, err := newModels(ctx, p, logger)
	if err != nil {
		if register != nil {
			_ = register.Close()
		}
		return err
	}

	svc := repair.NewService(detector, clf, register, logger)
	s := server.NewServer(p, svc, register, logger)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	printGreetings(p, svc.CacheEnabled())

	var serveErr error
	select {
	case sig := <-c:
		logger.Info("received signal", "signal", sig.String())
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), p.Server.ShutdownTimeout)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)
	return serveErr
}

// newModels builds the anomaly detector and the classifier, each with the
// embedding model it was built for.
func newModels(ctx context.Context, p *profile.Profile, logger *slog.Logger) (anomaly.Detector, classifier.Classifier, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.StartupTimeout)
	defer cancel()

	detectorEmbedder, err := ai.NewEmbeddingService(&p.Embedding, p.Similarity.ModelName, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create detector embedding service")
	}
	detector, err := anomaly.NewSimilarityDetector(ctx, &p.Similarity, detectorEmbedder, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create anomaly detector")
	}

	repo := classifier.NewLocalModelRepository("")
	ckpt, err := repo.LoadModel(ctx, p.Model.WeightsPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load classifier model")
	}
	classifierEmbedder, err := ai.NewEmbeddingService(&p.Embedding, ckpt.ModelConfig.EmbeddingModelName, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create classifier embedding service")
	}
	clf, err := classifier.NewFromCheckpoint(ckpt, classifierEmbedder, p.Model.SoftmaxThreshold, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create classifier")
	}
	return detector, clf, nil
}

func printGreetings(p *profile.Profile, cacheEnabled bool) {
	if p.IsDev() {
		fmt.Printf("Development mode is enabled\n")
		fmt.Printf("Config: %+v\n", redacted(p))
	}
	fmt.Printf("repairsense %s started successfully!\n", p.Version)
	fmt.Printf("Listening on %s (cache enabled: %t)\n", p.Server.Addr(), cacheEnabled)
}

// redacted returns a copy of p without secrets, for printing.
func redacted(p *profile.Profile) profile.Profile {
	cp := *p
	if cp.Embedding.APIKey != "" {
		cp.Embedding.APIKey = "***"
	}
	if cp.Cache.Redis != nil && cp.Cache.Redis.Password != "" {
		redis := *cp.Cache.Redis
		redis.Password = "***"
		cp.Cache.Redis = &redis
	}
	return cp
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
