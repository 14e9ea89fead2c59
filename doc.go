// Package mdstore is an embedded out-of-core store for multidimensional
// event data.
//
// Events (a signal, its squared error and an nd-dimensional coordinate,
// optionally tagged with run, goniometer and detector provenance) are held
// in boxes. A file-backed store keeps every box's events in one shared
// backing file and pages them in and out through a write-behind disk buffer
// with a fixed event budget.
//
// # Quick Start
//
//	ctx := context.Background()
//	cfg := mdstore.DefaultConfig()
//	cfg.Dir = "./data"
//	cfg.Dimensions = 3
//
//	st, _ := mdstore.Open(ctx, cfg)
//	defer st.Close()
//
//	b, _ := st.NewBox(0, []box.Extent{{Min: 0, Max: 1}, {Min: 0, Max: 1}, {Min: 0, Max: 1}})
//	b.AddEvent(event.New(1, 1, 0.1, 0.2, 0.3))
//
// # Durability Model
//
// Events reach the backing file when the disk buffer evicts a box or on
// Flush. SaveManifest additionally records every box's file block and
// cached aggregates, so a later Open plus Restore brings the boxes back
// without reading their events:
//
//	st.SaveManifest(ctx)   // durable after this
//	st.Close()
//
//	st, _ = mdstore.Open(ctx, cfg)
//	st.Restore(ctx)        // boxes are file-backed, saved and not loaded
//
// # Export and Import
//
// Export writes every box as a compressed flat table (none, lz4 or zstd);
// Import reads such a dump into a store with the same layout.
package mdstore
