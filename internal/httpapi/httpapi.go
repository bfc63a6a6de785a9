// Package httpapi exposes the core notarization operations over JSON/HTTP
// (spec.md §6), generalizing scrapi/httpserver/httpserver.go's
// NewMux(HandlerOptions) pattern. The HTTP schema is explicitly outside the
// core's signing contract: this package only decodes requests, calls into
// internal/orchestrator, internal/registry, and internal/mmrstore, and
// encodes their results.
package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tenerife-Q/yuanjing-core/internal/canon"
	"github.com/Tenerife-Q/yuanjing-core/internal/mmrstore"
	"github.com/Tenerife-Q/yuanjing-core/internal/model"
	"github.com/Tenerife-Q/yuanjing-core/internal/orchestrator"
	"github.com/Tenerife-Q/yuanjing-core/internal/registry"
	"github.com/Tenerife-Q/yuanjing-core/internal/sth"
)

var errInvalidHashLength = errors.New("httpapi: hash must be 32 bytes (64 hex characters)")

func receiptEvidenceDump(r *model.Receipt) []byte {
	return canon.EncodeEvidence(r.Evidence)
}

const maxRequestBody = 16 << 20 // 16 MiB, generous for an image path payload

// HandlerOptions wires the HTTP surface to the core subsystems, mirroring
// scrapi/httpserver.HandlerOptions's role as the single dependency-injection
// point for a handler tree.
type HandlerOptions struct {
	Registry     *registry.Registry
	MMR          *mmrstore.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *log.Logger
	LogHead      *sth.Service // optional; nil disables the enrichment endpoints
}

// NewMux builds the HTTP handler tree described in spec.md §6, plus the
// Signed Log Head enrichment endpoints when opts.LogHead is set.
func NewMux(opts HandlerOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /model/register", opts.registerHandler)
	mux.HandleFunc("POST /prove", opts.proveHandler)
	mux.HandleFunc("GET /audit/{pos}", opts.auditHandler)

	if opts.LogHead != nil {
		mux.HandleFunc("GET /.well-known/transparency-configuration", opts.transparencyConfigHandler)
		mux.HandleFunc("GET /.well-known/log-head", opts.logHeadHandler)
	}

	return mux
}

type registerRequest struct {
	Hash        string `json:"hash"`
	Description string `json:"description"`
}

type registerResponse struct {
	Status string `json:"status"`
}

func (opts HandlerOptions) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(model.BadRequest), err.Error())
		return
	}

	hash, err := decodeHash32(req.Hash)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, string(model.BadRequest), err.Error())
		return
	}

	outcome, err := opts.Registry.Register(hash, req.Description, time.Now().Unix())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	if outcome == model.AlreadyPresent {
		existing, _ := opts.Registry.Get(hash)
		if existing.Description != req.Description {
			writeProblem(w, http.StatusConflict, string(model.Conflict),
				"hash already registered under a different description")
			return
		}
	}

	writeJSON(w, http.StatusOK, registerResponse{Status: string(model.Registered)})
}

type proveRequestBody struct {
	ImagePath             string   `json:"image_path"`
	Verdict               bool     `json:"verdict"`
	Confidence            string   `json:"confidence"`
	Source                *string  `json:"source,omitempty"`
	PromptPoolHash        string   `json:"prompt_pool_hash"`
	ActivatedPrompts      []uint32 `json:"activated_prompts"`
	ExternalKnowledgeHash string   `json:"external_knowledge_hash"`
}

type proveResponse struct {
	RootHash     string `json:"root_hash"`
	LeafPos      uint64 `json:"leaf_pos"`
	Signature    string `json:"signature"`
	EvidenceDump string `json:"evidence_dump"`
}

func (opts HandlerOptions) proveHandler(w http.ResponseWriter, r *http.Request) {
	var body proveRequestBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, string(model.BadRequest), err.Error())
		return
	}

	poolHash, err := decodeHash32(body.PromptPoolHash)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, string(model.BadRequest), "prompt_pool_hash: "+err.Error())
		return
	}

	var knowledgeHash [32]byte
	if body.ExternalKnowledgeHash != "" {
		knowledgeHash, err = decodeHash32(body.ExternalKnowledgeHash)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, string(model.BadRequest), "external_knowledge_hash: "+err.Error())
			return
		}
	}

	req := orchestrator.ProveRequest{
		ImagePath:             body.ImagePath,
		Verdict:               body.Verdict,
		Confidence:            body.Confidence,
		Source:                body.Source,
		PromptPoolHash:        poolHash,
		ActivatedPrompts:      body.ActivatedPrompts,
		ExternalKnowledgeHash: knowledgeHash,
	}

	receipt, err := opts.Orchestrator.Prove(r.Context(), req)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	opts.Logger.Printf("prove: leaf_pos=%d root=%s", receipt.LeafPosition, hex.EncodeToString(receipt.Root[:]))

	writeJSON(w, http.StatusOK, proveResponse{
		RootHash:     hex.EncodeToString(receipt.Root[:]),
		LeafPos:      receipt.LeafPosition,
		Signature:    hex.EncodeToString(receipt.Signature),
		EvidenceDump: hex.EncodeToString(receiptEvidenceDump(receipt)),
	})
}

type auditResponse struct {
	ProofValid bool     `json:"proof_valid"`
	LeafPos    uint64   `json:"leaf_pos"`
	ProofHex   []string `json:"proof_hex"`
}

func (opts HandlerOptions) auditHandler(w http.ResponseWriter, r *http.Request) {
	posStr := r.PathValue("pos")
	leafIndex, err := strconv.ParseUint(posStr, 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, string(model.BadRequest), "pos must be a non-negative integer")
		return
	}

	proof, err := opts.MMR.Proof(leafIndex)
	if err != nil {
		writeProblem(w, http.StatusNotFound, string(model.NotFound), "leaf position out of range")
		return
	}

	root, err := opts.MMR.Root()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, string(model.Internal), err.Error())
		return
	}

	leafDigest, err := opts.MMR.LeafDigest(leafIndex)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, string(model.Internal), err.Error())
		return
	}

	valid := mmrstore.VerifyProof(leafDigest, leafIndex, proof, root)

	proofHex := make([]string, 0, len(proof.Siblings)+len(proof.Peaks))
	for _, n := range proof.Siblings {
		proofHex = append(proofHex, hex.EncodeToString(n.Digest[:]))
	}
	for _, n := range proof.Peaks {
		proofHex = append(proofHex, hex.EncodeToString(n.Digest[:]))
	}

	writeJSON(w, http.StatusOK, auditResponse{
		ProofValid: valid,
		LeafPos:    leafIndex,
		ProofHex:   proofHex,
	})
}

func (opts HandlerOptions) transparencyConfigHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := opts.LogHead.TransparencyConfiguration()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, string(model.Internal), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(payload)
}

func (opts HandlerOptions) logHeadHandler(w http.ResponseWriter, r *http.Request) {
	signed, err := opts.LogHead.SignedLogHead()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, string(model.Internal), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/cose")
	_, _ = w.Write(signed)
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body); _ = r.Body.Close() }()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, errInvalidHashLength
	}
	copy(out[:], raw)
	return out, nil
}
