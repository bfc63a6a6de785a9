package canon

import "github.com/Tenerife-Q/yuanjing-core/internal/model"

// EncodeEvidence produces the frozen canonical encoding of an Evidence
// value. This is the unique pre-image both for Ed25519 signing and for
// MMR leaf hashing (spec.md §3, §4.1). Field order matches the struct
// declaration order and must never change.
func EncodeEvidence(ev model.Evidence) []byte {
	e := NewEncoder()
	e.FixedBytes(ev.ImageSHA256[:])
	var phash [8]byte
	for i := 0; i < 8; i++ {
		phash[i] = byte(ev.ImagePHash >> (8 * i))
	}
	e.FixedBytes(phash[:])
	e.Bool(ev.Verdict)
	e.String(ev.Confidence)
	e.Seq(len(ev.ActivatedPrompts), func(i int) {
		e.Uint32(ev.ActivatedPrompts[i])
	})
	e.FixedBytes(ev.PromptPoolHash[:])
	e.FixedBytes(ev.ExternalKnowledgeHash[:])
	e.Int64(ev.Timestamp)
	e.Optional(ev.Source != nil, func() {
		e.String(*ev.Source)
	})
	return e.Bytes()
}

// DecodeEvidence parses the canonical encoding produced by EncodeEvidence.
// Used by tooling that needs to round-trip an audited leaf back into a
// structured value (e.g. recovery scans over the persisted log).
func DecodeEvidence(data []byte) (model.Evidence, error) {
	d := NewDecoder(data)
	var ev model.Evidence

	sha, err := d.FixedBytes(32)
	if err != nil {
		return ev, err
	}
	copy(ev.ImageSHA256[:], sha)

	phashBytes, err := d.FixedBytes(8)
	if err != nil {
		return ev, err
	}
	var phash uint64
	for i := 0; i < 8; i++ {
		phash |= uint64(phashBytes[i]) << (8 * i)
	}
	ev.ImagePHash = phash

	verdict, err := d.Bool()
	if err != nil {
		return ev, err
	}
	ev.Verdict = verdict

	confidence, err := d.String()
	if err != nil {
		return ev, err
	}
	ev.Confidence = confidence

	_, err = d.Seq(func(i int) error {
		v, err := d.Uint32()
		if err != nil {
			return err
		}
		ev.ActivatedPrompts = append(ev.ActivatedPrompts, v)
		return nil
	})
	if err != nil {
		return ev, err
	}

	poolHash, err := d.FixedBytes(32)
	if err != nil {
		return ev, err
	}
	copy(ev.PromptPoolHash[:], poolHash)

	extHash, err := d.FixedBytes(32)
	if err != nil {
		return ev, err
	}
	copy(ev.ExternalKnowledgeHash[:], extHash)

	ts, err := d.Int64()
	if err != nil {
		return ev, err
	}
	ev.Timestamp = ts

	if _, err := d.Optional(func() error {
		s, err := d.String()
		if err != nil {
			return err
		}
		ev.Source = &s
		return nil
	}); err != nil {
		return ev, err
	}

	return ev, nil
}

// EncodeWhitelistEntry produces the canonical encoding of a
// WhitelistEntry, used as the value stored under the "wl/" key prefix
// (spec.md §6).
func EncodeWhitelistEntry(we model.WhitelistEntry) []byte {
	e := NewEncoder()
	e.FixedBytes(we.Hash[:])
	e.String(we.Description)
	e.Int64(we.RegisteredAt)
	return e.Bytes()
}

// DecodeWhitelistEntry parses the canonical encoding produced by
// EncodeWhitelistEntry, used to rebuild the in-memory registry cache on
// startup.
func DecodeWhitelistEntry(data []byte) (model.WhitelistEntry, error) {
	d := NewDecoder(data)
	var we model.WhitelistEntry

	hash, err := d.FixedBytes(32)
	if err != nil {
		return we, err
	}
	copy(we.Hash[:], hash)

	desc, err := d.String()
	if err != nil {
		return we, err
	}
	we.Description = desc

	ts, err := d.Int64()
	if err != nil {
		return we, err
	}
	we.RegisteredAt = ts

	return we, nil
}
