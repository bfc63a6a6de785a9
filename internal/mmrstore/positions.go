package mmrstore

import "math/bits"

// The MMR position scheme follows the standard forest-of-perfect-trees
// numbering: nodes are assigned positions in append order, leaves
// interleaved with the interior nodes their append completes, via
// post-order traversal within each completed peak. Every helper below is
// a pure function of leaf counts and indices; nothing here touches
// storage, which is what lets the peak set be recomputed on every open
// instead of kept as separate persisted state.

// mmrSize returns the total number of MMR positions consumed after n
// leaves (and every interior node their appends completed) have been
// written.
func mmrSize(n uint64) uint64 {
	return 2*n - uint64(bits.OnesCount64(n))
}

// leafPos returns the MMR position assigned to the leaf with the given
// 0-based leaf index.
func leafPos(leafIndex uint64) uint64 {
	return mmrSize(leafIndex)
}

// subtreeRootPos returns the position of the root of a perfect subtree of
// the given height whose leftmost leaf sits at position base.
func subtreeRootPos(base uint64, height uint32) uint64 {
	if height == 0 {
		return base
	}
	return base + (uint64(1)<<(height+1)) - 2
}

// leftChildBase and rightChildBase return the base positions of a perfect
// subtree's two children, given the parent subtree's base and height.
func leftChildBase(base uint64, height uint32) uint64 {
	return base
}

func rightChildBase(base uint64, height uint32) uint64 {
	return base + (uint64(1)<<height) - 1
}

// peakInfo describes one current mountain peak.
type peakInfo struct {
	start   uint64 // leaf index of the peak's leftmost leaf
	height  uint32
	rootPos uint64
}

// peaksDescending returns the current peaks for a given leaf count, tallest
// first, matching the bag-of-peaks ordering used for root folding.
func peaksDescending(leafCount uint64) []peakInfo {
	var out []peakInfo
	var cur uint64
	for h := bits.Len64(leafCount) - 1; h >= 0; h-- {
		if leafCount&(uint64(1)<<uint(h)) == 0 {
			continue
		}
		size := uint64(1) << uint(h)
		out = append(out, peakInfo{
			start:   cur,
			height:  uint32(h),
			rootPos: subtreeRootPos(leafPos(cur), uint32(h)),
		})
		cur += size
	}
	return out
}

// peaksAscending is peaksDescending in smallest-peak-first order, which is
// the order a fresh leaf merges through during Append.
func peaksAscending(leafCount uint64) []peakInfo {
	desc := peaksDescending(leafCount)
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc
}

// peakForLeaf returns the leaf-range start and height of the peak
// currently containing leafIndex, given leafCount total leaves.
func peakForLeaf(leafCount, leafIndex uint64) (start uint64, height uint32, ok bool) {
	if leafIndex >= leafCount {
		return 0, 0, false
	}
	var cur uint64
	for h := bits.Len64(leafCount) - 1; h >= 0; h-- {
		if leafCount&(uint64(1)<<uint(h)) == 0 {
			continue
		}
		size := uint64(1) << uint(h)
		if leafIndex < cur+size {
			return cur, uint32(h), true
		}
		cur += size
	}
	return 0, 0, false
}

// siblingPos is one step of the co-path from a leaf to its subtree root.
type siblingPos struct {
	pos    uint64
	height uint32
}

// collectPath walks from the root of a perfect subtree (base, height) down
// to localIndex, returning the leaf's own position and the co-path
// siblings in bottom-up order (closest to the leaf first).
func collectPath(base uint64, height uint32, localIndex uint64) (leaf uint64, siblings []siblingPos) {
	if height == 0 {
		return base, nil
	}
	half := uint64(1) << (height - 1)
	if localIndex < half {
		leaf, siblings = collectPath(leftChildBase(base, height), height-1, localIndex)
		siblings = append(siblings, siblingPos{
			pos:    subtreeRootPos(rightChildBase(base, height), height-1),
			height: height - 1,
		})
	} else {
		leaf, siblings = collectPath(rightChildBase(base, height), height-1, localIndex-half)
		siblings = append(siblings, siblingPos{
			pos:    subtreeRootPos(leftChildBase(base, height), height-1),
			height: height - 1,
		})
	}
	return leaf, siblings
}
