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
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/a3tai/protocol2bids/internal/config"
	"github.com/a3tai/protocol2bids/internal/convert"
	"github.com/a3tai/protocol2bids/internal/extract"
	"github.com/a3tai/protocol2bids/internal/mcp"
	"github.com/a3tai/protocol2bids/internal/resolve"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command needs once flags are parsed
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "protocol2bids",
		Short: "Convert MRI protocol printouts to BIDS sidecars",
		Long: `protocol2bids reads Siemens MRI protocol printouts (PDF exports of the
scanner protocol tree, syngo MR VA to VE) and writes one BIDS JSON sidecar
per protocol.

Examples:
  protocol2bids convert exam.pdf sub-01/anat/sub-01_T1w.json
  protocol2bids convert exam.pdf out/ --hint siemens.ve --nii bold.nii.gz
  protocol2bids sniff exam.pdf
  protocol2bids serve --dir /data/protocols

Environment variables use the PROTOCOL2BIDS_ prefix, e.g.
PROTOCOL2BIDS_LOG_LEVEL=debug.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if version != "dev" {
				cfg.Version = version
			}
			a.cfg = cfg
			a.logger = newLogger(stderr, cfg, cmd.Name() == "serve")
			if cfg.IsDebug() {
				a.logger.Debug("configuration", "config", cfg.String())
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate(fmt.Sprintf("protocol2bids\nVersion: %s\nBuild Time: %s\nGit Commit: %s\nBuilt with: %s\n",
		version, buildTime, gitCommit, runtime.Version()))

	config.DefineFlags(root.PersistentFlags())

	root.AddCommand(a.convertCmd())
	root.AddCommand(a.recordsCmd())
	root.AddCommand(a.sniffCmd())
	root.AddCommand(a.variantsCmd())
	root.AddCommand(a.rulesCmd())
	root.AddCommand(a.serveCmd())
	return root
}

// newLogger writes text logs to stderr. The MCP server owns stdout and
// only logs in debug mode.
func newLogger(w io.Writer, cfg *config.Config, serving bool) *slog.Logger {
	if serving && !cfg.IsDebug() {
		w = io.Discard
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// tables loads the built-in rule tables, replaced by the configured files
func (a *app) tables() (*resolve.Tables, error) {
	tables, err := resolve.DefaultTables()
	if err != nil {
		return nil, err
	}
	if a.cfg.Rules != "" {
		if tables.Main, err = resolve.LoadTableFile(a.cfg.Rules); err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
	}
	if a.cfg.Overrides != "" {
		if tables.Overrides, err = resolve.LoadOverridesFile(a.cfg.Overrides); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}
	return tables, nil
}

func (a *app) service() (*convert.Service, error) {
	tables, err := a.tables()
	if err != nil {
		return nil, err
	}
	engine, err := resolve.NewEngine(tables, a.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid rule tables: %w", err)
	}
	opts := extract.DefaultOptions()
	opts.MaxFileSize = a.cfg.MaxFileSize
	return convert.NewService(convert.DefaultRegistry(), engine, extract.New(opts, a.logger), a.logger), nil
}

func (a *app) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert INPUT [OUTPUT]",
		Short: "Convert a protocol printout to BIDS sidecars",
		Long: `Convert a protocol printout to one BIDS sidecar per protocol.

OUTPUT defaults to INPUT with a .json extension. An OUTPUT without
extension is a directory receiving protocol.json. When the printout holds
several protocols the files are numbered: out1.json, out2.json...`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nii, _ := cmd.Flags().GetStringSlice("nii")
			defaultsArg, _ := cmd.Flags().GetString("defaults")
			assignsArg, _ := cmd.Flags().GetString("assigns")
			toStdout, _ := cmd.Flags().GetBool("stdout")

			defaults, err := convert.ParseMetadata(defaultsArg)
			if err != nil {
				return fmt.Errorf("--defaults: %w", err)
			}
			assigns, err := convert.ParseMetadata(assignsArg)
			if err != nil {
				return fmt.Errorf("--assigns: %w", err)
			}

			svc, err := a.service()
			if err != nil {
				return err
			}
			conv, err := svc.Convert(cmd.Context(), args[0], convert.Request{
				Hints:     a.cfg.Hints,
				NII:       nii,
				SkipPages: a.cfg.SkipPages,
				Defaults:  defaults,
				Assigns:   assigns,
			})
			if err != nil {
				return err
			}

			sidecars := conv.Sidecars()
			if toStdout {
				return writeJSON(a.stdout, conv)
			}
			output := ""
			if len(args) > 1 {
				output = args[1]
			}
			paths := convert.OutputPaths(args[0], output, len(sidecars))
			if err := convert.WriteSidecars(cmd.Context(), paths, sidecars); err != nil {
				return err
			}
			for i, path := range paths {
				fmt.Fprintf(a.stdout, "%s -> %s\n", conv.Protocols[i].Path, path)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("nii", nil, "NIfTI images, one per protocol in document order (empty entries skip a protocol)")
	cmd.Flags().String("defaults", "", "Fields used when missing from the printout: inline mapping or JSON/YAML file")
	cmd.Flags().String("assigns", "", "Fields forced over the resolved values: inline mapping or JSON/YAML file")
	cmd.Flags().Bool("stdout", false, "Print the conversion as JSON instead of writing files")
	return cmd
}

func (a *app) recordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "records INPUT",
		Short: "Print the protocol records parsed from a printout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			result, err := svc.Records(cmd.Context(), args[0], a.cfg.Hints, a.cfg.SkipPages)
			if err != nil {
				return err
			}
			records := make([]map[string]any, len(result.Records))
			for i, r := range result.Records {
				records[i] = r.Tree()
			}
			return writeJSON(a.stdout, map[string]any{
				"variant":           result.Variant,
				"model_name":        result.ModelName,
				"software_versions": result.SoftwareVersions,
				"records":           records,
				"diagnostics":       result.Diagnostics,
			})
		},
	}
}

func (a *app) sniffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sniff INPUT",
		Short: "List the printout variants that recognise a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			names, err := svc.Sniff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return fmt.Errorf("no variant recognises %s", args[0])
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
}

func (a *app) variantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the supported printout variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, v := range convert.DefaultRegistry().Variants() {
				fmt.Fprintf(a.stdout, "%-12s %s\n", v.Name, v.Description)
			}
			return nil
		},
	}
}

func (a *app) rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active rule tables as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := a.tables()
			if err != nil {
				return err
			}
			if _, err := resolve.NewEngine(tables, a.logger); err != nil {
				return fmt.Errorf("invalid rule tables: %w", err)
			}
			return tables.WriteYAML(a.stdout)
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve conversion tools over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			server, err := mcp.NewServer(a.cfg, svc, a.logger)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Debug("server stopped")
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
