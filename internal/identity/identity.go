// Package identity manages the service's long-lived Ed25519 signing key
// (spec.md §4.3). The key is the root of trust for every issued Evidence
// signature and, via COSESigner, for the Signed Log Head attestations in
// internal/sth: it is generated once and then held immutable for the
// life of the process.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/veraison/go-cose"
)

// ErrKeySize is returned when a key file's contents are not a valid
// Ed25519 seed.
var ErrKeySize = errors.New("identity: key file is not a 32-byte seed")

// Identity holds the service's Ed25519 keypair.
type Identity struct {
	Secret ed25519.PrivateKey
	Public ed25519.PublicKey
}

// LoadOrGenerate loads the seed at path, or generates and persists a new
// one if the file does not yet exist. The write uses O_CREATE|O_EXCL so
// two processes racing to bootstrap the same directory can't clobber
// each other's key; the loser of the race simply reads back what the
// winner wrote.
func LoadOrGenerate(path string) (*Identity, error) {
	seed, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(seed) != ed25519.SeedSize {
			return nil, ErrKeySize
		}
	case os.IsNotExist(err):
		seed, err = generateAndPersist(path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}

	secret := ed25519.NewKeyFromSeed(seed)
	return &Identity{
		Secret: secret,
		Public: secret.Public().(ed25519.PublicKey),
	}, nil
}

func generateAndPersist(path string) ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("identity: generate seed: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			// Lost the race to another process bootstrapping the same
			// directory; read back whatever it wrote.
			existing, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil, fmt.Errorf("identity: read key file after lost race: %w", readErr)
			}
			if len(existing) != ed25519.SeedSize {
				return nil, ErrKeySize
			}
			return existing, nil
		}
		return nil, fmt.Errorf("identity: create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(seed); err != nil {
		return nil, fmt.Errorf("identity: write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("identity: sync key file: %w", err)
	}
	return seed, nil
}

// Sign produces an Ed25519 signature over data. data MUST be the
// canonical encoding of an Evidence value, never a re-derived or
// re-serialized form of it.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.Secret, data)
}

// Verify reports whether sig is a valid Ed25519 signature over data
// under this identity's public key.
func (id *Identity) Verify(data, sig []byte) bool {
	return ed25519.Verify(id.Public, data, sig)
}

// COSESigner returns a cose.Signer over this identity's Ed25519 key, for
// issuing COSE_Sign1 Signed Log Head attestations (internal/sth) under
// the same key used to sign Evidence.
func (id *Identity) COSESigner() (cose.Signer, error) {
	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, id.Secret)
	if err != nil {
		return nil, fmt.Errorf("identity: create cose signer: %w", err)
	}
	return signer, nil
}
