package main

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdstore/box"
	"github.com/hupe1980/mdstore/event"
)

// ErrVerifyFailed is returned when a box does not match its cached state.
var ErrVerifyFailed = errors.New("verification failed")

// Mismatch describes a box whose events disagree with its cached state.
type Mismatch struct {
	Box      uint64  `json:"box"`
	NPoints  uint64  `json:"npoints"`
	Events   int     `json:"events"`
	Cached   float64 `json:"cached_signal"`
	Computed float64 `json:"computed_signal"`
}

// VerifyResult summarizes a verify run.
type VerifyResult struct {
	Boxes      int        `json:"boxes"`
	Events     uint64     `json:"events"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check cached box aggregates against the backing file",
		Long: `Load every box of the manifest from the backing file and compare its event
count and summed signal with the values cached in the manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			var res VerifyResult
			for _, b := range st.Boxes() {
				m, err := verifyBox(b, tolerance)
				if err != nil {
					return fmt.Errorf("box %d: %w", b.ID(), err)
				}
				res.Boxes++
				res.Events += b.NPoints()
				if m != nil {
					res.Mismatches = append(res.Mismatches, *m)
				}
			}

			if err := rootOpts.write(cmd.OutOrStdout(), res, func(w io.Writer) error {
				for _, m := range res.Mismatches {
					fmt.Fprintf(w, "box %d: %d points, %d events, signal cached %.6g computed %.6g\n",
						m.Box, m.NPoints, m.Events, m.Cached, m.Computed)
				}
				_, err := fmt.Fprintf(w, "verified %d boxes, %d events, %d mismatches\n", res.Boxes, res.Events, len(res.Mismatches))
				return err
			}); err != nil {
				return err
			}
			if len(res.Mismatches) > 0 {
				return fmt.Errorf("%w: %d boxes", ErrVerifyFailed, len(res.Mismatches))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-9, "relative signal tolerance")

	return cmd
}

func verifyBox(b *box.Box, tolerance float64) (*Mismatch, error) {
	cached, npoints := b.Signal(), b.NPoints()

	events, err := b.ConstEvents()
	if err != nil {
		return nil, err
	}
	defer b.ReleaseEvents()

	computed, _ := event.Sum(events)
	signalOK := b.IsMasked() || math.Abs(computed-cached) <= tolerance*math.Max(1, math.Abs(cached))
	if uint64(len(events)) == npoints && signalOK {
		return nil, nil
	}
	return &Mismatch{Box: b.ID(), NPoints: npoints, Events: len(events), Cached: cached, Computed: computed}, nil
}
