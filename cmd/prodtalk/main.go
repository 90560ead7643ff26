package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prodtalk/prodtalk/ai/llm"
	"github.com/prodtalk/prodtalk/ai/metrics"
	"github.com/prodtalk/prodtalk/internal/profile"
	"github.com/prodtalk/prodtalk/internal/version"
	"github.com/prodtalk/prodtalk/server"
	"github.com/prodtalk/prodtalk/server/queryengine"
	"github.com/prodtalk/prodtalk/store"
	"github.com/prodtalk/prodtalk/store/db/sqlite"
	"github.com/prodtalk/prodtalk/store/proddb"
)

var rootCmd = &cobra.Command{
	Use:   "prodtalk",
	Short: "Natural-language query service for manufacturing production data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Best effort; systemd deployments supply env directly.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.String(),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := sqlite.NewDB(instanceProfile)
		if err != nil {
			slog.Error("failed to open metadata store", "error", err)
			os.Exit(1)
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate metadata store", "error", err)
			os.Exit(1)
		}

		executor, err := proddb.New(instanceProfile)
		if err != nil {
			slog.Error("failed to open production database", "error", err)
			os.Exit(1)
		}

		exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

		gateway, err := newGateway(instanceProfile, exporter)
		if err != nil {
			slog.Error("failed to configure generation backends", "error", err)
			os.Exit(1)
		}

		engine := queryengine.NewEngine(queryengine.Config{
			Profile:  instanceProfile,
			Store:    storeInstance,
			Executor: executor,
			Gateway:  gateway,
			Exporter: exporter,
		})

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, engine, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			os.Exit(1)
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
		slog.Info("prodtalk started",
			"version", instanceProfile.Version,
			"build", version.StringFull(),
			"mode", instanceProfile.Mode,
			"addr", instanceProfile.Addr,
			"port", instanceProfile.Port,
		)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
	},
}

// newGateway builds the ordered backend list: the primary (typically local
// Ollama) first, the cloud fallback second when configured.
func newGateway(p *profile.Profile, exporter *metrics.PrometheusExporter) (*llm.Gateway, error) {
	primary, err := llm.NewBackend(&llm.Config{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	backends := []llm.Backend{primary}

	if p.HasFallbackBackend() {
		fallback, err := llm.NewBackend(&llm.Config{
			Provider: "openai",
			Model:    p.LLMFallbackModel,
			APIKey:   p.LLMFallbackAPIKey,
			BaseURL:  p.LLMFallbackBaseURL,
			Timeout:  p.LLMTimeout,
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, fallback)
	}
	return llm.NewGateway(backends, exporter)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "metadata store driver (sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "metadata store source name (aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("prodtalk")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
