package canon

import (
	"bytes"
	"testing"

	"github.com/Tenerife-Q/yuanjing-core/internal/model"
)

func sampleEvidence() model.Evidence {
	src := "web-client"
	ev := model.Evidence{
		Verdict:          true,
		Confidence:       "0.99",
		ActivatedPrompts: []uint32{1, 2, 3},
		Timestamp:        1735689600,
		Source:           &src,
	}
	for i := range ev.ImageSHA256 {
		ev.ImageSHA256[i] = byte(i)
	}
	ev.ImagePHash = 0x0102030405060708
	for i := range ev.PromptPoolHash {
		ev.PromptPoolHash[i] = 0xAA
	}
	return ev
}

func TestEncodeEvidenceRoundTrip(t *testing.T) {
	ev := sampleEvidence()
	encoded := EncodeEvidence(ev)

	decoded, err := DecodeEvidence(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ImageSHA256 != ev.ImageSHA256 {
		t.Fatalf("image sha256 mismatch")
	}
	if decoded.ImagePHash != ev.ImagePHash {
		t.Fatalf("phash mismatch: got %x want %x", decoded.ImagePHash, ev.ImagePHash)
	}
	if decoded.Verdict != ev.Verdict {
		t.Fatalf("verdict mismatch")
	}
	if decoded.Confidence != ev.Confidence {
		t.Fatalf("confidence mismatch")
	}
	if len(decoded.ActivatedPrompts) != len(ev.ActivatedPrompts) {
		t.Fatalf("activated prompts length mismatch")
	}
	for i := range ev.ActivatedPrompts {
		if decoded.ActivatedPrompts[i] != ev.ActivatedPrompts[i] {
			t.Fatalf("activated prompt %d mismatch", i)
		}
	}
	if decoded.PromptPoolHash != ev.PromptPoolHash {
		t.Fatalf("prompt pool hash mismatch")
	}
	if decoded.ExternalKnowledgeHash != ev.ExternalKnowledgeHash {
		t.Fatalf("external knowledge hash mismatch")
	}
	if decoded.Timestamp != ev.Timestamp {
		t.Fatalf("timestamp mismatch")
	}
	if decoded.Source == nil || *decoded.Source != *ev.Source {
		t.Fatalf("source mismatch")
	}
}

func TestEncodeEvidenceDeterministic(t *testing.T) {
	ev := sampleEvidence()
	a := EncodeEvidence(ev)
	b := EncodeEvidence(ev)
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding is not deterministic")
	}
}

func TestEncodeEvidenceOrderIsSignificant(t *testing.T) {
	ev := sampleEvidence()
	a := EncodeEvidence(ev)

	ev.ActivatedPrompts = []uint32{3, 2, 1}
	b := EncodeEvidence(ev)

	if bytes.Equal(a, b) {
		t.Fatalf("activated_prompts order must be part of the signed bytes")
	}
}

func TestEncodeEvidenceNoSourceOmitsPayload(t *testing.T) {
	ev := sampleEvidence()
	withSource := EncodeEvidence(ev)

	ev.Source = nil
	withoutSource := EncodeEvidence(ev)

	if len(withoutSource) >= len(withSource) {
		t.Fatalf("absent optional field should encode shorter than present")
	}
	if withoutSource[len(withoutSource)-1] != 0x00 {
		t.Fatalf("absent optional field must end in presence byte 0x00")
	}
}

func TestEncodeEvidenceSingleBitFlipChangesDigest(t *testing.T) {
	ev := sampleEvidence()
	a := EncodeEvidence(ev)

	ev.ImageSHA256[0] ^= 0x01
	b := EncodeEvidence(ev)

	if bytes.Equal(a, b) {
		t.Fatalf("single bit flip in image hash must change the canonical bytes")
	}
}

func TestDecodeEvidenceTruncatedInputFails(t *testing.T) {
	ev := sampleEvidence()
	encoded := EncodeEvidence(ev)

	if _, err := DecodeEvidence(encoded[:len(encoded)-1]); err == nil {
		t.Fatalf("expected decode error on truncated input")
	}
}

func TestEncodeWhitelistEntryRoundTrip(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i * 3)
	}
	we := model.WhitelistEntry{
		Hash:         hash,
		Description:  "SAPT-v2.0-Production",
		RegisteredAt: 1735689600,
	}
	encoded := EncodeWhitelistEntry(we)
	decoded, err := DecodeWhitelistEntry(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != we {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, we)
	}
}

func TestEncodeEvidenceZeroAllZeroFields(t *testing.T) {
	ev := model.Evidence{Confidence: "0"}
	encoded := EncodeEvidence(ev)
	decoded, err := DecodeEvidence(encoded)
	if err != nil {
		t.Fatalf("decode zero-value evidence: %v", err)
	}
	if decoded.Source != nil {
		t.Fatalf("expected nil source for zero-value evidence")
	}
	if len(decoded.ActivatedPrompts) != 0 {
		t.Fatalf("expected no activated prompts")
	}
}
