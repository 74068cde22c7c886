// Package cli implements the xeriaco command line.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Addr       string
	AdminKey   string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "xeriaco",
		Short: "Catalog pipeline orchestrator",
		Long: `Runs the product catalog pipeline and bridges storefront commands to the
external agent.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "", "listen address for serve, server address for client commands")
	cmd.PersistentFlags().StringVar(&opts.AdminKey, "admin-key", "", "operator API key (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// load reads the configuration and applies flag overrides.
func (o *RootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.AdminKey != "" {
		cfg.AdminAPIKey = o.AdminKey
	}
	return cfg, nil
}

// listenAddr is the address serve binds to.
func (o *RootOptions) listenAddr(cfg *config.Config) string {
	if o.Addr != "" {
		return o.Addr
	}
	return fmt.Sprintf(":%d", cfg.HTTPPort)
}

// baseURL is the server the client commands talk to.
func (o *RootOptions) baseURL(cfg *config.Config) string {
	addr := o.Addr
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", cfg.HTTPPort)
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimSuffix(addr, "/")
}
