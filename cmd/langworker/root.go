package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"langworker/internal/app"
	"langworker/internal/config"
)

// serveOptions are the flags shared by the root command and serve
type serveOptions struct {
	configPath string
	host       string
	port       int
	kind       string
}

func newRootCmd() *cobra.Command {
	opts := &serveOptions{}

	root := &cobra.Command{
		Use:   "langworker [archive]",
		Short: "Serve spell and grammar checks for one language archive",
		Long: `langworker loads one compiled language archive (a speller or a grammar
checker) and answers analysis requests over HTTP.

Running langworker with an archive path is the same as "langworker serve".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args)
		},
	}

	bindServeFlags(root, opts)
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newBundleCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ./"+config.DefaultConfigFile+" when present)")
	flags.StringVar(&opts.host, "host", "", "listen host (overrides config)")
	flags.IntVarP(&opts.port, "port", "p", 0, "listen port (overrides config)")
	flags.StringVar(&opts.kind, "kind", "", "accepted archive kind: speller, grammar or any")
}

func newServeCmd(opts *serveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [archive]",
		Short: "Load the archive and serve requests until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args)
		},
	}
}

// loadServeConfig resolves configuration in order: defaults, file,
// environment, flags, positional archive.
func loadServeConfig(cmd *cobra.Command, opts *serveOptions, args []string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("kind") {
		cfg.Kind = opts.kind
	}
	if len(args) == 1 {
		cfg.BundlePath = args[0]
	}

	if cfg.BundlePath == "" {
		return nil, errors.New("missing archive path: pass it as an argument or set bundle in the config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *serveOptions, args []string) error {
	cfg, err := loadServeConfig(cmd, opts, args)
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	return application.Run(cmd.Context())
}
