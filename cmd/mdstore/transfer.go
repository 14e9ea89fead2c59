package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdstore/table"
)

// TransferResult summarizes an export or import.
type TransferResult struct {
	Path  string `json:"path"`
	Boxes int    `json:"boxes"`
	Rows  uint64 `json:"rows,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var compression string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write all boxes to a compressed table file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := table.ParseCompression(compression)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			rows, err := st.Export(ctx, f, c)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			res := TransferResult{Path: args[0], Boxes: len(st.Boxes()), Rows: rows}
			return rootOpts.write(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "exported %d boxes, %d rows to %s (%s)\n", res.Boxes, res.Rows, res.Path, c)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&compression, "compression", "zstd", "block compression (none|lz4|zstd)")

	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add the boxes of a table file to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := st.Import(ctx, f)
			if err != nil {
				return err
			}
			if err := st.SaveManifest(ctx); err != nil {
				return err
			}

			res := TransferResult{Path: args[0], Boxes: n}
			return rootOpts.write(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "imported %d boxes from %s\n", res.Boxes, res.Path)
				return err
			})
		},
	}

	return cmd
}
