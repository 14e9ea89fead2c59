package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Dir        string
	Dimensions int
	EventKind  string
	LogLevel   string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the mdstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mdstore",
		Short: "mdstore - out-of-core multidimensional event store",
		Long: `Manage file-backed event stores: ingest synthetic events, verify cached
aggregates against the backing file, export and import compressed tables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "store directory (overrides config)")
	cmd.PersistentFlags().IntVar(&opts.Dimensions, "dims", 0, "event dimensions (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.EventKind, "kind", "", "event kind lean|full (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}

// config loads the config file, if any, and applies flag overrides.
func (o *RootOptions) config() (mdstore.Config, error) {
	cfg := mdstore.DefaultConfig()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = mdstore.LoadConfig(o.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if o.Dir != "" {
		cfg.Dir = o.Dir
	}
	if o.Dimensions != 0 {
		cfg.Dimensions = o.Dimensions
	}
	if o.EventKind != "" {
		cfg.EventKind = o.EventKind
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	cfg.FileBacked = true
	return cfg, cfg.Validate()
}

// open opens the store and restores the boxes of its manifest. A missing
// manifest is an empty store.
func (o *RootOptions) open(ctx context.Context) (*mdstore.Store, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	st, err := mdstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Restore(ctx); err != nil && !errors.Is(err, mdstore.ErrNotFound) {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// write prints v as indented JSON or through the text function.
func (o *RootOptions) write(w io.Writer, v any, text func(io.Writer) error) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
