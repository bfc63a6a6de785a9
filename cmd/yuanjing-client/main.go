package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the yuanjing-core service")
	action := flag.String("action", "", "one of: register, prove, audit, log-head")
	hash := flag.String("hash", "", "prompt pool hash, hex-encoded (register, prove)")
	description := flag.String("description", "", "prompt pool description (register)")
	imagePath := flag.String("image", "", "path to the image to notarize (prove)")
	verdict := flag.Bool("verdict", false, "AI verdict bit (prove)")
	confidence := flag.String("confidence", "", "confidence string, e.g. 0.99 (prove)")
	source := flag.String("source", "", "optional source annotation (prove)")
	pos := flag.Uint64("pos", 0, "leaf position to audit (audit)")
	token := flag.String("token", "", "optional bearer token for Authorization header")
	flag.Parse()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch *action {
	case "register":
		runRegister(ctx, httpClient, *addr, *token, *hash, *description)
	case "prove":
		runProve(ctx, httpClient, *addr, *token, *imagePath, *verdict, *confidence, *source, *hash)
	case "audit":
		runAudit(ctx, httpClient, *addr, *token, *pos)
	case "log-head":
		runLogHead(ctx, httpClient, *addr, *token)
	default:
		log.Fatalf("unknown -action %q; want register, prove, audit, or log-head", *action)
	}
}

func runRegister(ctx context.Context, c *http.Client, addr, token, hash, description string) {
	body := map[string]string{"hash": hash, "description": description}
	var resp struct {
		Status string `json:"status"`
	}
	if err := postJSON(ctx, c, addr, token, "/model/register", body, &resp); err != nil {
		log.Fatalf("register: %v", err)
	}
	fmt.Printf("register: %s\n", resp.Status)
}

func runProve(ctx context.Context, c *http.Client, addr, token, imagePath string, verdict bool, confidence, source, poolHash string) {
	if imagePath == "" {
		log.Fatalf("prove requires -image")
	}
	body := map[string]any{
		"image_path":      imagePath,
		"verdict":         verdict,
		"confidence":      confidence,
		"prompt_pool_hash": poolHash,
	}
	if source != "" {
		body["source"] = source
	}
	var resp struct {
		RootHash     string `json:"root_hash"`
		LeafPos      uint64 `json:"leaf_pos"`
		Signature    string `json:"signature"`
		EvidenceDump string `json:"evidence_dump"`
	}
	if err := postJSON(ctx, c, addr, token, "/prove", body, &resp); err != nil {
		log.Fatalf("prove: %v", err)
	}
	fmt.Printf("leaf_pos:  %d\n", resp.LeafPos)
	fmt.Printf("root_hash: %s\n", resp.RootHash)
	fmt.Printf("signature: %s\n", resp.Signature)
}

func runAudit(ctx context.Context, c *http.Client, addr, token string, pos uint64) {
	var resp struct {
		ProofValid bool     `json:"proof_valid"`
		LeafPos    uint64   `json:"leaf_pos"`
		ProofHex   []string `json:"proof_hex"`
	}
	path := "/audit/" + strconv.FormatUint(pos, 10)
	if err := getJSON(ctx, c, addr, token, path, &resp); err != nil {
		log.Fatalf("audit: %v", err)
	}
	fmt.Printf("leaf_pos:    %d\n", resp.LeafPos)
	fmt.Printf("proof_valid: %v\n", resp.ProofValid)
	for i, p := range resp.ProofHex {
		fmt.Printf("  proof[%d]: %s\n", i, p)
	}
}

// runLogHead fetches the Signed Log Head and verifies it locally against
// the log's published Ed25519 public key, demonstrating that a third-party
// auditor needs nothing beyond a generic COSE verifier to check the log
// head (internal/sth).
func runLogHead(ctx context.Context, c *http.Client, addr, token string) {
	cfgRaw, err := getRaw(ctx, c, addr, token, "/.well-known/transparency-configuration")
	if err != nil {
		log.Fatalf("fetch transparency configuration: %v", err)
	}
	var cfg struct {
		HashAlgorithm string `cbor:"hashAlgorithm"`
		PublicKeys    []struct {
			PublicKey []byte `cbor:"publicKey"`
		} `cbor:"publicKeys"`
	}
	if err := cbor.Unmarshal(cfgRaw, &cfg); err != nil {
		log.Fatalf("decode transparency configuration: %v", err)
	}
	if len(cfg.PublicKeys) == 0 {
		log.Fatalf("transparency configuration did not include a public key")
	}
	pub := ed25519.PublicKey(cfg.PublicKeys[0].PublicKey)

	logHeadRaw, err := getRaw(ctx, c, addr, token, "/.well-known/log-head")
	if err != nil {
		log.Fatalf("fetch log head: %v", err)
	}
	var msg cose.Sign1Message
	if err := cbor.Unmarshal(logHeadRaw, &msg); err != nil {
		log.Fatalf("decode log head COSE: %v", err)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, pub)
	if err != nil {
		log.Fatalf("build verifier: %v", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		log.Fatalf("verify log head signature: %v", err)
	}

	var payload struct {
		RootHash  []byte `cbor:"root"`
		LeafCount uint64 `cbor:"leaf_count"`
		Timestamp int64  `cbor:"ts"`
	}
	if err := cbor.Unmarshal(msg.Payload, &payload); err != nil {
		log.Fatalf("decode log head payload: %v", err)
	}
	fmt.Println("log head verified")
	fmt.Printf("  root:       %s\n", hex.EncodeToString(payload.RootHash))
	fmt.Printf("  leaf_count: %d\n", payload.LeafCount)
	fmt.Printf("  timestamp:  %s\n", time.Unix(payload.Timestamp, 0).UTC().Format(time.RFC3339))
}

func postJSON(ctx context.Context, c *http.Client, addr, token, path string, body, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(addr, "/")+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(c, req, token, dst)
}

func getJSON(ctx context.Context, c *http.Client, addr, token, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(addr, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return doJSON(c, req, token, dst)
}

func doJSON(c *http.Client, req *http.Request, token string, dst any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s: %s", resp.Status, string(raw))
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func getRaw(ctx context.Context, c *http.Client, addr, token, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(addr, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %s: %s", resp.Status, string(raw))
	}
	return raw, nil
}
