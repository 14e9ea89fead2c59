package diskbuffer

import "sort"

// Block is a contiguous range of records in the backing file.
type Block struct {
	Position uint64
	Size     uint64
}

// End returns the first record after the block.
func (b Block) End() uint64 { return b.Position + b.Size }

// freeSpace tracks unused record ranges, sorted by position with no two
// blocks overlapping or touching.
type freeSpace struct {
	blocks []Block
}

// free returns b to the map. Ranges overlapping already-free space are
// rejected so that a block released twice is not counted twice.
func (f *freeSpace) free(b Block) bool {
	if b.Size == 0 || b.Position == Unassigned {
		return false
	}

	i := sort.Search(len(f.blocks), func(i int) bool { return f.blocks[i].Position >= b.Position })

	if i > 0 && f.blocks[i-1].End() > b.Position {
		return false
	}
	if i < len(f.blocks) && b.End() > f.blocks[i].Position {
		return false
	}

	mergePrev := i > 0 && f.blocks[i-1].End() == b.Position
	mergeNext := i < len(f.blocks) && b.End() == f.blocks[i].Position

	switch {
	case mergePrev && mergeNext:
		f.blocks[i-1].Size += b.Size + f.blocks[i].Size
		f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
	case mergePrev:
		f.blocks[i-1].Size += b.Size
	case mergeNext:
		f.blocks[i].Position = b.Position
		f.blocks[i].Size += b.Size
	default:
		f.blocks = append(f.blocks, Block{})
		copy(f.blocks[i+1:], f.blocks[i:])
		f.blocks[i] = b
	}
	return true
}

// take removes size records from the smallest free block that can hold
// them. ok is false if no block is large enough.
func (f *freeSpace) take(size uint64) (pos uint64, ok bool) {
	best := -1
	for i, b := range f.blocks {
		if b.Size < size {
			continue
		}
		if best < 0 || b.Size < f.blocks[best].Size {
			best = i
		}
		if b.Size == size {
			break
		}
	}
	if best < 0 {
		return Unassigned, false
	}

	pos = f.blocks[best].Position
	if f.blocks[best].Size == size {
		f.blocks = append(f.blocks[:best], f.blocks[best+1:]...)
	} else {
		f.blocks[best].Position += size
		f.blocks[best].Size -= size
	}
	return pos, true
}

func (f *freeSpace) total() uint64 {
	var n uint64
	for _, b := range f.blocks {
		n += b.Size
	}
	return n
}

func (f *freeSpace) snapshot() []Block {
	out := make([]Block, len(f.blocks))
	copy(out, f.blocks)
	return out
}
