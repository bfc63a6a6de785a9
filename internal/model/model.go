// Package model defines the data types shared across Yuanjing-Core: the
// notarized Evidence tuple, the Prompt Pool whitelist entry, and the MMR
// inclusion-proof shapes. Field order on Evidence and WhitelistEntry is
// part of the canonical wire layout (see internal/canon) and must not be
// reordered without updating every implementation that signs or verifies
// against it.
package model

// Evidence is the unit of notarization. Field order is fixed and is part
// of the signed/leaf-hashed encoding (internal/canon.EncodeEvidence).
type Evidence struct {
	ImageSHA256           [32]byte
	ImagePHash            uint64
	Verdict               bool
	Confidence            string
	ActivatedPrompts      []uint32
	PromptPoolHash        [32]byte
	ExternalKnowledgeHash [32]byte
	Timestamp             int64
	Source                *string
}

// WhitelistEntry is a registered Prompt Pool version.
type WhitelistEntry struct {
	Hash         [32]byte
	Description  string
	RegisteredAt int64
}

// RegisterOutcome is the result of a whitelist registration attempt.
type RegisterOutcome string

const (
	Registered     RegisterOutcome = "Registered"
	AlreadyPresent RegisterOutcome = "AlreadyPresent"
)

// ProofNode is one step of a Merkle Mountain Range inclusion co-path.
type ProofNode struct {
	Digest [32]byte
	Height uint32
}

// InclusionProof is the co-path from a leaf to its mountain peak, plus the
// digests of every other current peak (needed to fold the bag-of-peaks
// root around the reconstructed peak).
type InclusionProof struct {
	Siblings []ProofNode
	Peaks    []ProofNode
}

// Receipt is returned to a caller after a successful Prove admission.
type Receipt struct {
	Root         [32]byte
	LeafPosition uint64
	Signature    []byte
	Evidence     Evidence
}

// ErrorKind discriminates core failure modes; the HTTP layer maps these to
// status codes (spec §7). These are not Go error types, just a
// classification tag carried by CoreError.
type ErrorKind string

const (
	BadRequest    ErrorKind = "BadRequest"
	Unauthorized  ErrorKind = "Unauthorized"
	Unprocessable ErrorKind = "Unprocessable"
	NotFound      ErrorKind = "NotFound"
	Conflict      ErrorKind = "Conflict"
	Internal      ErrorKind = "Internal"
)

// CoreError is the discriminated error every core operation returns on
// failure.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error { return e.Err }

// NewError builds a CoreError of the given kind.
func NewError(kind ErrorKind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: err}
}
