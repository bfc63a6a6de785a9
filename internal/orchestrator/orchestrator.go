// Package orchestrator implements the seven-step Prove admission
// algorithm (spec.md §4.6): it is the only component that touches every
// other subsystem in the same call, and it owns the invariant that the
// signature, leaf digest, and MMR append are all computed from the same
// canonical byte sequence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Tenerife-Q/yuanjing-core/internal/canon"
	"github.com/Tenerife-Q/yuanjing-core/internal/fingerprint"
	"github.com/Tenerife-Q/yuanjing-core/internal/identity"
	"github.com/Tenerife-Q/yuanjing-core/internal/mmrstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/model"
	"github.com/Tenerife-Q/yuanjing-core/internal/registry"
	"github.com/Tenerife-Q/yuanjing-core/internal/workerpool"
)

// ProveRequest is the caller-supplied input to Prove, matching the prove
// request shape of spec.md §4.6.
type ProveRequest struct {
	ImagePath             string
	Verdict               bool
	Confidence            string
	Source                *string
	PromptPoolHash        [32]byte
	ActivatedPrompts      []uint32
	ExternalKnowledgeHash [32]byte
}

// Orchestrator wires the whitelist registry, identity, MMR store, and
// blocking pool into the single Prove operation.
type Orchestrator struct {
	Registry *registry.Registry
	Identity *identity.Identity
	MMR      *mmrstore.Store
	Pool     *workerpool.Pool

	// Clock returns the current wall-clock time in seconds, advisory
	// only (spec.md §9: clock synchronization is a non-goal). Overridable
	// in tests; defaults to time.Now().Unix in New.
	Clock func() int64
}

// New builds an Orchestrator with the production clock.
func New(reg *registry.Registry, id *identity.Identity, mmr *mmrstore.Store, pool *workerpool.Pool) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Identity: id,
		MMR:      mmr,
		Pool:     pool,
		Clock:    func() int64 { return time.Now().Unix() },
	}
}

type fingerprintResult struct {
	sha256 [32]byte
	phash  uint64
}

// Prove runs the full admission algorithm: whitelist check, off-reactor
// fingerprinting, Evidence assembly, canonical-encode-then-sign-then-hash,
// MMR append, and root computation.
func (o *Orchestrator) Prove(ctx context.Context, req ProveRequest) (*model.Receipt, error) {
	if !o.Registry.Contains(req.PromptPoolHash) {
		return nil, model.NewError(model.BadRequest, "prompt_pool_hash is not registered", nil)
	}

	fp, err := o.fingerprintOffReactor(ctx, req.ImagePath)
	if err != nil {
		return nil, err
	}

	ev := model.Evidence{
		ImageSHA256:           fp.sha256,
		ImagePHash:            fp.phash,
		Verdict:               req.Verdict,
		Confidence:            req.Confidence,
		ActivatedPrompts:      req.ActivatedPrompts,
		PromptPoolHash:        req.PromptPoolHash,
		ExternalKnowledgeHash: req.ExternalKnowledgeHash,
		Timestamp:             o.Clock(),
		Source:                req.Source,
	}

	encoded := canon.EncodeEvidence(ev)
	signature := o.Identity.Sign(encoded)
	leaf := mmrstore.HashLeaf(encoded)

	appendResult, err := o.Pool.Submit(ctx, func() (any, error) {
		return o.MMR.Append(leaf)
	})
	if err != nil {
		return nil, model.NewError(model.Internal, "failed to append evidence to the log", err)
	}
	leafPosition := appendResult.(uint64)

	root, err := o.MMR.Root()
	if err != nil {
		return nil, model.NewError(model.Internal, "failed to compute MMR root", err)
	}

	return &model.Receipt{
		Root:         root,
		LeafPosition: leafPosition,
		Signature:    signature,
		Evidence:     ev,
	}, nil
}

func (o *Orchestrator) fingerprintOffReactor(ctx context.Context, path string) (fingerprintResult, error) {
	v, err := o.Pool.Submit(ctx, func() (any, error) {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("%w: %v", fingerprint.ErrIO, statErr)
		}

		sha, shaErr := fingerprint.SHA256OfFile(path)
		if shaErr != nil {
			return nil, shaErr
		}
		phash, phashErr := fingerprint.PHashOfFile(path)
		if phashErr != nil {
			return nil, phashErr
		}
		return fingerprintResult{sha256: sha, phash: phash}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, fingerprint.ErrIO):
			return fingerprintResult{}, model.NewError(model.BadRequest, "image file could not be read", err)
		case errors.Is(err, fingerprint.ErrDecode):
			return fingerprintResult{}, model.NewError(model.Unprocessable, "image could not be decoded", err)
		default:
			return fingerprintResult{}, model.NewError(model.Internal, "fingerprinting failed", err)
		}
	}
	return v.(fingerprintResult), nil
}
