package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tapcard/tapcard-api/internal/config"
	"github.com/tapcard/tapcard-api/internal/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "tapctl",
		Short:        "Operator tooling for the TapCard payment core",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})
		},
	}

	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(provisionCmd())
	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(momoCmd())
	rootCmd.AddCommand(splitCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Debug().Err(err).Msg("tapctl failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
