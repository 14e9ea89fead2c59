package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mdstore/diskbuffer"
)

// BoxSummary describes one box without loading its events.
type BoxSummary struct {
	ID       uint64  `json:"id"`
	Depth    uint32  `json:"depth"`
	NPoints  uint64  `json:"npoints"`
	Signal   float64 `json:"signal"`
	Position uint64  `json:"position"`
	Size     uint64  `json:"size"`
	Masked   bool    `json:"masked,omitempty"`
}

// InspectResult describes a store.
type InspectResult struct {
	Session string           `json:"session"`
	Layout  string           `json:"layout"`
	Buffer  diskbuffer.Stats `json:"buffer"`
	Boxes   []BoxSummary     `json:"boxes"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the boxes recorded in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			res := InspectResult{
				Session: st.SessionID(),
				Layout:  st.Layout().String(),
				Buffer:  st.BufferStats(),
			}
			for _, b := range st.Boxes() {
				s := BoxSummary{
					ID:      b.ID(),
					Depth:   b.Depth(),
					NPoints: b.NPoints(),
					Masked:  b.IsMasked(),
				}
				if !s.Masked {
					s.Signal = b.Signal()
				}
				if h := b.Handle(); h != nil {
					hs := h.State()
					s.Position, s.Size = hs.Position, hs.Size
				}
				res.Boxes = append(res.Boxes, s)
			}

			return rootOpts.write(cmd.OutOrStdout(), res, func(w io.Writer) error {
				fmt.Fprintf(w, "layout %s, %d boxes, file length %d records, %d free\n",
					res.Layout, len(res.Boxes), res.Buffer.FileLength, res.Buffer.FreeSpace)
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDEPTH\tPOINTS\tSIGNAL\tPOSITION\tSIZE\tMASKED")
				for _, s := range res.Boxes {
					fmt.Fprintf(tw, "%d\t%d\t%d\t%.6g\t%d\t%d\t%t\n", s.ID, s.Depth, s.NPoints, s.Signal, s.Position, s.Size, s.Masked)
				}
				return tw.Flush()
			})
		},
	}

	return cmd
}
