package sth

import (
	"path/filepath"
	"testing"

	"github.com/Tenerife-Q/yuanjing-core/internal/identity"
	"github.com/Tenerife-Q/yuanjing-core/internal/kvstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/mmrstore"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	mmr, err := mmrstore.Open(kv)
	if err != nil {
		t.Fatalf("open mmrstore: %v", err)
	}
	id, err := identity.LoadOrGenerate(filepath.Join(t.TempDir(), "identity.key"))
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}

	s := New(mmr, id)
	s.Clock = func() int64 { return 1735689600 }
	return s
}

func TestTransparencyConfigurationIsValidCBOR(t *testing.T) {
	s := newTestService(t)

	payload, err := s.TransparencyConfiguration()
	if err != nil {
		t.Fatalf("transparency configuration: %v", err)
	}

	var decoded map[string]any
	if err := cbor.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["hashAlgorithm"] != "blake3-256" {
		t.Fatalf("got hashAlgorithm %v, want blake3-256", decoded["hashAlgorithm"])
	}
}

func TestSignedLogHeadVerifiesAndMatchesCurrentRoot(t *testing.T) {
	s := newTestService(t)
	if _, err := s.MMR.Append(mmrstore.HashLeaf([]byte("evidence-one"))); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := s.SignedLogHead()
	if err != nil {
		t.Fatalf("signed log head: %v", err)
	}

	var msg cose.Sign1Message
	if err := cbor.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal cose: %v", err)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, s.Identity.Public)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var payload LogHeadPayload
	if err := cbor.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	root, err := s.MMR.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if string(payload.RootHash) != string(root[:]) {
		t.Fatalf("payload root does not match current MMR root")
	}
	if payload.LeafCount != 1 {
		t.Fatalf("got leaf count %d, want 1", payload.LeafCount)
	}
}

func TestSignedLogHeadChangesAfterAppend(t *testing.T) {
	s := newTestService(t)
	if _, err := s.MMR.Append(mmrstore.HashLeaf([]byte("evidence-one"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := s.SignedLogHead()
	if err != nil {
		t.Fatalf("signed log head: %v", err)
	}

	if _, err := s.MMR.Append(mmrstore.HashLeaf([]byte("evidence-two"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := s.SignedLogHead()
	if err != nil {
		t.Fatalf("signed log head: %v", err)
	}

	if string(first) == string(second) {
		t.Fatalf("expected signed log head to change after a second append")
	}
}
