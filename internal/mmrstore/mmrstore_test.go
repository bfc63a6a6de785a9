package mmrstore

import (
	"testing"

	"github.com/Tenerife-Q/yuanjing-core/internal/kvstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	s, err := Open(kv)
	if err != nil {
		t.Fatalf("open mmrstore: %v", err)
	}
	return s
}

func leafDigest(b byte) [32]byte {
	var d [32]byte
	for i := range d {
		d[i] = b
	}
	return d
}

func TestAppendAssignsIncreasingLeafIndices(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 6; i++ {
		idx, err := s.Append(leafDigest(byte(i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if idx != uint64(i) {
			t.Fatalf("append %d returned leaf index %d", i, idx)
		}
	}
	if got := s.LeafCount(); got != 6 {
		t.Fatalf("leaf count = %d, want 6", got)
	}
}

func TestRootChangesOnEveryAppend(t *testing.T) {
	s := openTestStore(t)
	seen := map[[32]byte]bool{}
	for i := 0; i < 8; i++ {
		if _, err := s.Append(leafDigest(byte(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		root, err := s.Root()
		if err != nil {
			t.Fatalf("root after append %d: %v", i, err)
		}
		if seen[root] {
			t.Fatalf("root repeated after append %d", i)
		}
		seen[root] = true
	}
}

func TestProofVerifiesForEveryLeafAcrossGrowingLog(t *testing.T) {
	s := openTestStore(t)
	const n = 13
	digests := make([][32]byte, n)
	for i := 0; i < n; i++ {
		digests[i] = leafDigest(byte(i + 1))
		if _, err := s.Append(digests[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	root, err := s.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	for i := 0; i < n; i++ {
		proof, err := s.Proof(uint64(i))
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if !VerifyProof(digests[i], uint64(i), proof, root) {
			t.Fatalf("proof for leaf %d did not verify", i)
		}
	}
}

func TestProofFailsForWrongLeafDigest(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Append(leafDigest(byte(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	root, err := s.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	proof, err := s.Proof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if VerifyProof(leafDigest(0xFF), 2, proof, root) {
		t.Fatalf("proof verified against a forged leaf digest")
	}
}

func TestProofFailsAgainstStaleRoot(t *testing.T) {
	s := openTestStore(t)
	var digest0 [32]byte
	idx, err := s.Append(leafDigest(1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	digest0 = leafDigest(1)

	staleRoot, err := s.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := s.Append(leafDigest(byte(2 + i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	proof, err := s.Proof(idx)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if VerifyProof(digest0, idx, proof, staleRoot) {
		t.Fatalf("proof computed against the new tree should not match the stale root")
	}
}

func TestProofOutOfRangeReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Append(leafDigest(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Proof(5); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestReopenRestoresLeafCountAndRoot(t *testing.T) {
	dir := t.TempDir()
	kv, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	s, err := Open(kv)
	if err != nil {
		t.Fatalf("open mmrstore: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := s.Append(leafDigest(byte(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	wantRoot, err := s.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("close kv: %v", err)
	}

	kv2, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("reopen kv: %v", err)
	}
	defer kv2.Close()
	s2, err := Open(kv2)
	if err != nil {
		t.Fatalf("reopen mmrstore: %v", err)
	}

	if got := s2.LeafCount(); got != 7 {
		t.Fatalf("leaf count after reopen = %d, want 7", got)
	}
	gotRoot, err := s2.Root()
	if err != nil {
		t.Fatalf("root after reopen: %v", err)
	}
	if gotRoot != wantRoot {
		t.Fatalf("root after reopen = %x, want %x", gotRoot, wantRoot)
	}
}

func TestEmptyStoreHasZeroRoot(t *testing.T) {
	s := openTestStore(t)
	root, err := s.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if root != ([32]byte{}) {
		t.Fatalf("expected zero root for an empty store")
	}
}
