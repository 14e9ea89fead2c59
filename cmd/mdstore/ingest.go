package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdstore/box"
	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/testutil"
)

// IngestResult summarizes an ingest run.
type IngestResult struct {
	Boxes  int     `json:"boxes"`
	Events int     `json:"events"`
	Signal float64 `json:"signal"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		boxes  int
		events int
		extent float32
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Add boxes of uniformly distributed synthetic events",
		Long: `Create boxes covering [0, extent) in every dimension, fill them with
uniformly distributed events in parallel and record the result in the manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			layout := st.Layout()
			lo := make([]float32, layout.NumDims())
			hi := make([]float32, layout.NumDims())
			extents := make([]box.Extent, layout.NumDims())
			for d := range hi {
				hi[d] = extent
				extents[d] = box.Extent{Min: 0, Max: extent}
			}

			rng := testutil.NewRNG(seed)
			created := make([]*box.Box, boxes)
			batches := make([][]event.Event, boxes)
			res := IngestResult{Boxes: boxes, Events: boxes * events}
			for i := range created {
				if created[i], err = st.NewBox(0, extents); err != nil {
					return err
				}
				if layout.Kind() == event.Full {
					batches[i] = rng.FullEvents(events, lo, hi, 4)
				} else {
					batches[i] = rng.UniformEvents(events, lo, hi)
				}
				s, _ := event.Sum(batches[i])
				res.Signal += s
			}

			if err := st.Ingest(ctx, created, batches); err != nil {
				return err
			}
			if err := st.SaveManifest(ctx); err != nil {
				return err
			}

			return rootOpts.write(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "ingested %d events into %d boxes (signal %.3f)\n", res.Events, res.Boxes, res.Signal)
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&boxes, "boxes", "b", 8, "number of boxes to create")
	cmd.Flags().IntVarP(&events, "events", "n", 10000, "events per box")
	cmd.Flags().Float32Var(&extent, "extent", 10, "box extent in every dimension")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")

	return cmd
}
