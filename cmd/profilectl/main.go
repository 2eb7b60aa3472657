package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmerrifield20/profilehub/internal/app"
	"github.com/jmerrifield20/profilehub/internal/config"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "profilectl",
		Short: "Administer a profilehub deployment",
		Long: `profilectl reads the same configuration as the profilehub server and
operates directly on its store and token secret.

  profilectl users list --limit 50
  profilectl token issue alice`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default configs/profilehub.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log service activity to stderr")

	root.AddCommand(c.tokenCmd())
	root.AddCommand(c.usersCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the profilectl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "profilectl %s\n", version)
		},
	})
	return root
}

// open builds the service graph from the configured file and environment.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if c.verbose {
		if logger, err = cfg.Log.NewLogger(); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg, logger)
}
