package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/scrypt"
)

var ErrCiphertext = errors.New("seal: malformed ciphertext")

// Keeper seals small secrets (stored auth tokens) at rest with AES-GCM
// under a scrypt-derived key. A nil Keeper passes data through unchanged,
// for setups that run without a local secret.
type Keeper struct {
	aead cipher.AEAD
}

// New derives a keeper from a passphrase. An empty passphrase yields a nil
// keeper, which is valid and means "store in the clear".
func New(passphrase string) (*Keeper, error) {
	if passphrase == "" {
		return nil, nil
	}
	salt := sha256.Sum256([]byte("sponsorlink." + passphrase))
	key, err := scrypt.Key([]byte(passphrase), salt[:], 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Keeper{aead: aead}, nil
}

// Seal returns nonce||ciphertext.
func (k *Keeper) Seal(plaintext []byte) ([]byte, error) {
	if k == nil {
		return plaintext, nil
	}
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return k.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (k *Keeper) Open(sealed []byte) ([]byte, error) {
	if k == nil {
		return sealed, nil
	}
	if len(sealed) < k.aead.NonceSize() {
		return nil, ErrCiphertext
	}
	nonce, ciphertext := sealed[:k.aead.NonceSize()], sealed[k.aead.NonceSize():]
	return k.aead.Open(nil, nonce, ciphertext, nil)
}
