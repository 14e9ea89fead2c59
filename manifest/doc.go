// Package manifest persists the handle state of file-backed boxes.
//
// A manifest lists, per box, the block of the backing file holding its
// events together with its extents and cached aggregates, which is what a
// store needs to reopen boxes as saved and not loaded. Updates are atomic:
// each save writes a new MANIFEST-<id>.json and then swaps the CURRENT
// pointer file to it.
package manifest
