package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/server"
	"github.com/hanbai/mescopilot/store"
	"github.com/hanbai/mescopilot/store/db"
)

const greetingBanner = `
 __  __ _____ ____       ____            _ _       _
|  \/  | ____/ ___|     / ___|___  _ __ (_) | ___ | |_
| |\/| |  _| \___ \    | |   / _ \| '_ \| | |/ _ \| __|
| |  | | |___ ___) |   | |__| (_) | |_) | | | (_) | |_
|_|  |_|_____|____/     \____\___/| .__/|_|_|\___/ \__|
                                  |_|
`

var rootCmd = &cobra.Command{
	Use:   "mescopilot",
	Short: "Intent routing service for the MES conversational assistant",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instanceProfile := &profile.Profile{
			Mode:                        viper.GetString("mode"),
			Addr:                        viper.GetString("addr"),
			Port:                        viper.GetInt("port"),
			Data:                        viper.GetString("data"),
			Driver:                      viper.GetString("driver"),
			DSN:                         viper.GetString("dsn"),
			AIEnabled:                   viper.GetBool("ai-enabled"),
			AIEmbeddingProvider:         viper.GetString("ai-embedding-provider"),
			AIEmbeddingModel:            viper.GetString("ai-embedding-model"),
			AIEmbeddingAPIKey:           viper.GetString("ai-embedding-api-key"),
			AIEmbeddingBaseURL:          viper.GetString("ai-embedding-base-url"),
			AIClassifierBaseURL:         viper.GetString("ai-classifier-base-url"),
			RouteDirectExecuteThreshold: viper.GetFloat64("route-direct-execute-threshold"),
			RouteRerankingThreshold:     viper.GetFloat64("route-reranking-threshold"),
			RouteTopN:                   viper.GetInt("route-top-n"),
			FewShotLambda:               viper.GetFloat64("fewshot-lambda"),
			LearnMaxPerInput:            viper.GetInt("learn-max-per-input"),
			LearnMaxPerIntent:           viper.GetInt("learn-max-per-intent"),
		}
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}
		if err := dbDriver.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		srv, err := server.NewServer(ctx, instanceProfile, storeInstance)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			slog.Info("received signal, shutting down", "signal", sig.String())
			srv.Shutdown(ctx)
			cancel()
		}()

		fmt.Print(greetingBanner)
		fmt.Printf("Version %s has been started on port %d\n", instanceProfile.Version, instanceProfile.Port)

		if err := srv.Start(ctx); err != nil {
			slog.Error("server stopped", "error", err)
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("data", ".")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("ai-embedding-provider", "siliconflow")
	viper.SetDefault("ai-embedding-model", "BAAI/bge-m3")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "binding address for the server")
	rootCmd.PersistentFlags().Int("port", 8081, "binding port for the server")
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mescopilot")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
