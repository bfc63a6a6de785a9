// Package sth produces the Signed Log Head enrichment endpoints: a
// standards-based (CBOR/COSE_Sign1) alternative view of the same root and
// leaf count the core canonical-binary signing path already commits to.
// This is outer surface, not part of spec.md's signing contract (spec.md
// §1 scopes HTTP framing and JSON schemas out of the core boundary); it
// exists so a third-party auditor with only a generic COSE verifier can
// check the log head without understanding the bespoke Evidence encoding.
// Grounded on scrapi/service.go's updateSTHLocked/CurrentSTH and
// scrapi/httpserver/httpserver.go's scittConfigHandler/sthHandler.
package sth

import (
	"crypto/rand"
	"time"

	"github.com/Tenerife-Q/yuanjing-core/internal/identity"
	"github.com/Tenerife-Q/yuanjing-core/internal/mmrstore"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// canonicalEncMode matches the teacher's deterministic CBOR configuration
// (scrapi/statement.go), so the log-head payload is byte-stable across
// runs for the same input.
var canonicalEncMode = func() cbor.EncMode {
	opts := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		TimeTag:       cbor.EncTagNone,
		ShortestFloat: cbor.ShortestFloat16,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// LogHeadPayload is the signed content of a Signed Log Head.
type LogHeadPayload struct {
	RootHash  []byte `cbor:"root"`
	LeafCount uint64 `cbor:"leaf_count"`
	HashAlg   string `cbor:"hash_alg,omitempty"`
	Timestamp int64  `cbor:"ts"`
}

// Service produces the transparency-configuration and log-head CBOR/COSE
// artifacts on demand, reading the current MMR root and leaf count fresh on
// every call rather than caching a stale snapshot.
type Service struct {
	MMR      *mmrstore.Store
	Identity *identity.Identity

	// Clock returns the current wall-clock time in seconds; overridable in
	// tests. Defaults to time.Now().Unix in New.
	Clock func() int64
}

// New builds a Service with the production clock.
func New(mmr *mmrstore.Store, id *identity.Identity) *Service {
	return &Service{
		MMR:      mmr,
		Identity: id,
		Clock:    func() int64 { return time.Now().Unix() },
	}
}

// TransparencyConfiguration returns a CBOR map advertising the log's
// Ed25519 public key, generalizing scittConfigHandler's JSON configuration
// document into the CBOR domain.
func (s *Service) TransparencyConfiguration() ([]byte, error) {
	cfg := map[string]any{
		"hashAlgorithm": "blake3-256",
		"publicKeys": []map[string]any{
			{
				"publicKey": []byte(s.Identity.Public),
				"alg":       cose.AlgorithmEdDSA,
				"format":    "ed25519-raw",
			},
		},
		"extensions": map[string]any{
			"log_head_endpoint": "/.well-known/log-head",
		},
	}
	return canonicalEncMode.Marshal(cfg)
}

// SignedLogHead returns a COSE_Sign1 message wrapping the current root and
// leaf count, signed with the service identity, generalizing
// updateSTHLocked's Sign1 construction.
func (s *Service) SignedLogHead() ([]byte, error) {
	root, err := s.MMR.Root()
	if err != nil {
		return nil, err
	}

	payload := LogHeadPayload{
		RootHash:  root[:],
		LeafCount: s.MMR.LeafCount(),
		HashAlg:   "blake3-256",
		Timestamp: s.Clock(),
	}
	payloadRaw, err := canonicalEncMode.Marshal(payload)
	if err != nil {
		return nil, err
	}

	signer, err := s.Identity.COSESigner()
	if err != nil {
		return nil, err
	}

	msg := cose.NewSign1Message()
	msg.Payload = payloadRaw
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmEdDSA)
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}
