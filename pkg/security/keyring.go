package security

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Keyring holds the daemon's publishing identity: an Ed25519 signing key
// and an X25519 agreement key for deriving record encryption secrets.
type Keyring struct {
	signKey  ed25519.PrivateKey
	agreeKey *ecdh.PrivateKey
}

// keyFile is the on-disk shape at PRIVATE_KEY_PATH.
type keyFile struct {
	SigningKey   string `json:"signing_key"`
	AgreementKey string `json:"agreement_key"`
}

// NewKeyring generates a fresh, unpersisted keyring.
func NewKeyring() (*Keyring, error) {
	_, sign, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	agree, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate agreement key: %w", err)
	}
	return &Keyring{signKey: sign, agreeKey: agree}, nil
}

// LoadOrCreateKeyring reads key material from path, generating and
// persisting a new keyring when the file does not exist.
func LoadOrCreateKeyring(path string) (*Keyring, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		kr, genErr := NewKeyring()
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := kr.save(path); saveErr != nil {
			return nil, saveErr
		}
		return kr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	signRaw, err := base64.StdEncoding.DecodeString(kf.SigningKey)
	if err != nil || len(signRaw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid signing key in %s", path)
	}
	agreeRaw, err := base64.StdEncoding.DecodeString(kf.AgreementKey)
	if err != nil {
		return nil, fmt.Errorf("invalid agreement key in %s", path)
	}
	agree, err := ecdh.X25519().NewPrivateKey(agreeRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid agreement key in %s: %w", path, err)
	}
	return &Keyring{signKey: ed25519.PrivateKey(signRaw), agreeKey: agree}, nil
}

func (k *Keyring) save(path string) error {
	kf := keyFile{
		SigningKey:   base64.StdEncoding.EncodeToString(k.signKey),
		AgreementKey: base64.StdEncoding.EncodeToString(k.agreeKey.Bytes()),
	}
	raw, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// PublicKey returns the base64url signing public key as carried in
// oip.creator.publicKey.
func (k *Keyring) PublicKey() string {
	pub := k.signKey.Public().(ed25519.PublicKey)
	return base64.RawURLEncoding.EncodeToString(pub)
}

// DIDAddress derives the creator's DID address from the signing public
// key: a 43-char base64url digest under the arweave method.
func (k *Keyring) DIDAddress() string {
	pub := k.signKey.Public().(ed25519.PublicKey)
	return DIDAddressForKey(base64.RawURLEncoding.EncodeToString(pub))
}

// DIDAddressForKey derives the DID address for any base64url public key.
func DIDAddressForKey(publicKey string) string {
	sum := sha256.Sum256([]byte(publicKey))
	return "did:arweave:" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Sign returns a base64 signature over data.
func (k *Keyring) Sign(data []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.signKey, data))
}

// VerifySignature checks a base64 signature against a base64url public key.
func VerifySignature(publicKey, signature string, data []byte) bool {
	pub, err := base64.RawURLEncoding.DecodeString(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig)
}

// AgreementPublicKey returns the base64url X25519 public key readers use
// to derive the shared record secret.
func (k *Keyring) AgreementPublicKey() string {
	return base64.RawURLEncoding.EncodeToString(k.agreeKey.PublicKey().Bytes())
}

// SharedSecret derives the symmetric key for a (owner secret, reader
// public key) pair: X25519 agreement hashed with SHA-256 down to a
// 32-byte AES key. Both sides of an exchange arrive at the same key.
func (k *Keyring) SharedSecret(readerAgreementPub string) ([]byte, error) {
	pubRaw, err := base64.RawURLEncoding.DecodeString(readerAgreementPub)
	if err != nil {
		return nil, fmt.Errorf("decode agreement key: %w", err)
	}
	pub, err := ecdh.X25519().NewPublicKey(pubRaw)
	if err != nil {
		return nil, fmt.Errorf("parse agreement key: %w", err)
	}
	shared, err := k.agreeKey.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}
	sum := sha256.Sum256(shared)
	return sum[:], nil
}
