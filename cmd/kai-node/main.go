package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sameehj/kai-node/pkg/bridge"
	"github.com/sameehj/kai-node/pkg/capability"
	"github.com/sameehj/kai-node/pkg/config"
	"github.com/sameehj/kai-node/pkg/logging"
	"github.com/sameehj/kai-node/pkg/metrics"
	"github.com/sameehj/kai-node/pkg/system"
	"github.com/sameehj/kai-node/pkg/version"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "kai-node",
		Short:        "Policy-gated command execution node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.kai-node/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(invokeCmd())
	root.AddCommand(policyCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(whichCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.LoadConfig(path)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, w)
}

func serveCmd() *cobra.Command {
	var (
		addr           string
		stdio          bool
		metricsAddr    string
		maxSessions    int
		approvePrompts bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the capability registry over the local bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			n, err := newNode(cfg, logger, nodeOptions{registerer: reg, approvePrompts: approvePrompts})
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if metricsAddr == "" {
				metricsAddr = cfg.Metrics.Address
			}
			if metricsAddr != "" {
				go func() {
					if err := metrics.Serve(ctx, metricsAddr, reg, logging.Component(logger, "metrics")); err != nil {
						logger.Error("metrics_server_failed", "error", err)
					}
				}()
			}

			server := bridge.NewServer(n.registry, system.Detect())
			server.SetLogger(logging.Component(logger, "bridge"))
			if stdio {
				return server.ServeStdio(ctx)
			}

			if addr == "" {
				addr = cfg.Bridge.Address
			}
			listener := bridge.NewListener(addr, server, bridge.AllowlistAuthorizer{Allowed: cfg.Bridge.AllowedAddrs})
			if maxSessions == 0 {
				maxSessions = cfg.Bridge.MaxSessions
			}
			listener.SetMaxSessions(maxSessions)
			listener.SetMetrics(n.metrics)
			listener.SetLogger(logging.Component(logger, "bridge"))

			fmt.Fprintf(cmd.ErrOrStderr(), "kai-node listening on %s\n", listener.Addr())
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "bridge listen address")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve the bridge on stdin/stdout instead of TCP")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", 0, "maximum concurrent sessions (0 = unlimited)")
	cmd.Flags().BoolVar(&approvePrompts, "approve-prompts", false, "approve commands the policy marks for prompting")
	return cmd
}

func invokeCmd() *cobra.Command {
	var approvePrompts bool

	cmd := &cobra.Command{
		Use:   "invoke COMMAND [JSON_ARGS]",
		Short: "Invoke a node command locally and print the response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			req := capability.Request{ID: uuid.NewString(), Command: args[0]}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &req.Args); err != nil {
					return fmt.Errorf("parse args: %w", err)
				}
			}

			n, err := newNode(cfg, newLogger(cfg, cmd.ErrOrStderr()), nodeOptions{approvePrompts: approvePrompts})
			if err != nil {
				return err
			}
			defer n.Close()
			resp := n.registry.Invoke(cmd.Context(), req)
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.OK {
				return errors.New(resp.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&approvePrompts, "approve-prompts", false, "approve commands the policy marks for prompting")
	return cmd
}

func whichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "which BIN...",
		Short: "Resolve executables the way system.which does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, bin := range args {
				path, ok := system.Which(bin)
				if !ok {
					path = "not found"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", bin, path)
			}
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show system info and node status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			profile := system.Detect()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "OS: %s\nDistro: %s %s\nKernel: %s\nArch: %s\nLogin shell: %s\nDefault shell: %s\n",
				profile.OS, profile.Distro, profile.Version, profile.Kernel, profile.Arch, profile.LoginShell, profile.DefaultShell)
			for _, name := range []string{system.ShellSh, system.ShellBash, system.ShellZsh, system.ShellCmd, system.ShellPowerShell, system.ShellPwsh} {
				if path, ok := profile.Shells[name]; ok {
					fmt.Fprintf(out, "  %s: %s\n", name, path)
				}
			}
			if cfg.Exec.DefaultShell != "" && !profile.HasShell(cfg.Exec.DefaultShell) && system.NormalizeShell(cfg.Exec.DefaultShell) != system.ShellDirect {
				fmt.Fprintf(out, "Warning: configured shell %q was not found on PATH\n", cfg.Exec.DefaultShell)
			}

			if cfg.Policy.Enabled {
				n, err := newNode(cfg, logging.Discard(), nodeOptions{})
				if err != nil {
					return err
				}
				defer n.Close()
				data := n.policy.PolicyData()
				fmt.Fprintf(out, "Policy: %s (%d rules, default %s)\n", n.policy.Path(), len(data.Rules), data.DefaultAction)
			} else {
				fmt.Fprintln(out, "Policy: disabled")
			}
			fmt.Fprintf(out, "Exec: timeout %s, drain %s\n", cfg.Exec.DefaultTimeout, cfg.Exec.DrainTimeout)
			fmt.Fprintf(out, "Bridge: %s\n", cfg.Bridge.Address)
			if cfg.Audit.Database != "" {
				fmt.Fprintf(out, "Audit: %s\n", cfg.Audit.Database)
			}
			if cfg.Metrics.Address != "" {
				fmt.Fprintf(out, "Metrics: %s\n", cfg.Metrics.Address)
			}
			fmt.Fprintln(out, version.String())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return printJSON(cmd.OutOrStdout(), version.Get())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
