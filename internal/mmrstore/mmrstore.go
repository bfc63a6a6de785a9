// Package mmrstore implements the append-only Merkle Mountain Range that
// is the durable spine of Yuanjing-Core: once a leaf digest is appended,
// its position and every ancestor digest above it are fixed forever
// (spec.md §4.5). The MMR is addressed by a flat position space shared by
// leaves and interior nodes, assigned in the standard forest-of-perfect-
// trees append order; see positions.go for the pure position arithmetic.
package mmrstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Tenerife-Q/yuanjing-core/internal/kvstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/model"
	"lukechampine.com/blake3"
)

// ErrNotFound is returned by Proof when leafIndex is out of range.
var ErrNotFound = errors.New("mmrstore: leaf index out of range")

const (
	keyPrefixNode = "mmr/"
	keyLeafCount  = "meta/leaf_count"
)

// Store is the append-only MMR, backed by an embedded key-value store.
// The only state persisted beyond the node digests themselves is the
// leaf count: peaks and co-paths are recomputed on demand from pure
// position arithmetic (see positions.go), so there is no separate peak
// list to keep consistent across a crash.
type Store struct {
	mu        sync.RWMutex
	kv        *kvstore.Store
	leafCount uint64
}

// Open loads an MMR store backed by kv, restoring leafCount from the
// persisted metadata key. A crash between an interior node write and the
// leaf-count update is invisible to readers: the leaf count is the only
// thing consulted to determine MMR shape, and it is written last.
func Open(kv *kvstore.Store) (*Store, error) {
	s := &Store{kv: kv}

	raw, err := kv.Get([]byte(keyLeafCount))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("mmrstore: load leaf count: %w", err)
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("mmrstore: corrupt leaf count record (%d bytes)", len(raw))
	}
	s.leafCount = binary.BigEndian.Uint64(raw)
	return s, nil
}

// HashLeaf computes the Blake3-256 leaf digest of a canonically encoded
// Evidence value (spec.md §4.5: leaf_i = H(canonical-encode(Evidence_i))).
func HashLeaf(encodedEvidence []byte) [32]byte {
	return blake3.Sum256(encodedEvidence)
}

func hashInterior(left, right [32]byte) [32]byte {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return blake3.Sum256(buf[:])
}

func nodeKey(pos uint64) []byte {
	key := make([]byte, len(keyPrefixNode)+8)
	copy(key, keyPrefixNode)
	binary.BigEndian.PutUint64(key[len(keyPrefixNode):], pos)
	return key
}

func (s *Store) readNode(pos uint64) ([32]byte, error) {
	var digest [32]byte
	raw, err := s.kv.Get(nodeKey(pos))
	if err != nil {
		return digest, fmt.Errorf("mmrstore: read node %d: %w", pos, err)
	}
	if len(raw) != 32 {
		return digest, fmt.Errorf("mmrstore: corrupt node %d (%d bytes)", pos, len(raw))
	}
	copy(digest[:], raw)
	return digest, nil
}

func (s *Store) writeNode(pos uint64, digest [32]byte) error {
	if err := s.kv.Put(nodeKey(pos), digest[:]); err != nil {
		return fmt.Errorf("mmrstore: write node %d: %w", pos, err)
	}
	return nil
}

// Append writes leafDigest as the next MMR leaf, greedily merging any
// sibling peaks it completes, and returns its 0-based leaf index. Every
// node write is durable (kvstore.Put fsyncs its WAL record) before the
// next step begins; the leaf-count metadata key is updated only after
// every node this append touches has committed, per the state machine
// Idle -> WritingLeaf -> (WritingParent)* -> Committed.
func (s *Store) Append(leafDigest [32]byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leafIndex := s.leafCount
	pos := leafPos(leafIndex)
	if err := s.writeNode(pos, leafDigest); err != nil {
		return 0, err
	}
	pos++

	asc := peaksAscending(leafIndex)
	cur := leafDigest
	height := uint32(0)
	i := 0
	for (leafIndex>>height)&1 == 1 {
		sibling := asc[i]
		siblingDigest, err := s.readNode(sibling.rootPos)
		if err != nil {
			return 0, err
		}
		parent := hashInterior(siblingDigest, cur)
		if err := s.writeNode(pos, parent); err != nil {
			return 0, err
		}
		cur = parent
		pos++
		height++
		i++
	}

	newCount := leafIndex + 1
	var countBytes [8]byte
	binary.BigEndian.PutUint64(countBytes[:], newCount)
	if err := s.kv.Put([]byte(keyLeafCount), countBytes[:]); err != nil {
		return 0, fmt.Errorf("mmrstore: persist leaf count: %w", err)
	}
	s.leafCount = newCount

	return leafIndex, nil
}

// Root computes the current bag-of-peaks root: peak digests in
// descending height order, folded right-to-left with
// H(peak ‖ accumulator), starting from the smallest peak.
func (s *Store) Root() ([32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rootLocked()
}

func (s *Store) rootLocked() ([32]byte, error) {
	peaks := peaksDescending(s.leafCount)
	if len(peaks) == 0 {
		return [32]byte{}, nil
	}
	acc, err := s.readNode(peaks[len(peaks)-1].rootPos)
	if err != nil {
		return [32]byte{}, err
	}
	for i := len(peaks) - 2; i >= 0; i-- {
		d, err := s.readNode(peaks[i].rootPos)
		if err != nil {
			return [32]byte{}, err
		}
		acc = hashInterior(d, acc)
	}
	return acc, nil
}

// LeafCount returns the number of leaves committed so far.
func (s *Store) LeafCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leafCount
}

// LeafDigest returns the raw leaf digest stored at leafIndex.
func (s *Store) LeafDigest(leafIndex uint64) ([32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if leafIndex >= s.leafCount {
		return [32]byte{}, ErrNotFound
	}
	return s.readNode(leafPos(leafIndex))
}

// Proof returns the inclusion co-path for leafIndex, plus the digests of
// every other current peak, as of this call's consistent snapshot.
func (s *Store) Proof(leafIndex uint64) (model.InclusionProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, height, ok := peakForLeaf(s.leafCount, leafIndex)
	if !ok {
		return model.InclusionProof{}, ErrNotFound
	}

	base := leafPos(start)
	_, path := collectPath(base, height, leafIndex-start)

	siblings := make([]model.ProofNode, len(path))
	for i, step := range path {
		d, err := s.readNode(step.pos)
		if err != nil {
			return model.InclusionProof{}, err
		}
		siblings[i] = model.ProofNode{Digest: d, Height: step.height}
	}

	peaks := peaksDescending(s.leafCount)
	var others []model.ProofNode
	for _, p := range peaks {
		if p.start == start {
			continue
		}
		d, err := s.readNode(p.rootPos)
		if err != nil {
			return model.InclusionProof{}, err
		}
		others = append(others, model.ProofNode{Digest: d, Height: p.height})
	}

	return model.InclusionProof{Siblings: siblings, Peaks: others}, nil
}

// VerifyProof reconstructs the mountain peak containing leafDigest from
// proof.Siblings, folds it against proof.Peaks using the same
// bag-of-peaks rule as Root, and compares the result to root. It depends
// on no store state: an auditor holding only a root and a proof can call
// this directly (spec.md §1).
func VerifyProof(leafDigest [32]byte, leafIndex uint64, proof model.InclusionProof, root [32]byte) bool {
	height := uint32(len(proof.Siblings))
	var local uint64
	if height < 64 {
		local = leafIndex & ((uint64(1) << height) - 1)
	} else {
		local = leafIndex
	}

	acc := leafDigest
	for level := uint32(0); level < height; level++ {
		sibling := proof.Siblings[level]
		if (local>>level)&1 == 0 {
			acc = hashInterior(acc, sibling.Digest)
		} else {
			acc = hashInterior(sibling.Digest, acc)
		}
	}

	all := make([]model.ProofNode, 0, len(proof.Peaks)+1)
	all = append(all, proof.Peaks...)
	all = append(all, model.ProofNode{Digest: acc, Height: height})
	sortProofNodesDescending(all)

	if len(all) == 0 {
		return false
	}
	fold := all[len(all)-1].Digest
	for i := len(all) - 2; i >= 0; i-- {
		fold = hashInterior(all[i].Digest, fold)
	}
	return fold == root
}

func sortProofNodesDescending(nodes []model.ProofNode) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j-1].Height < nodes[j].Height; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}
