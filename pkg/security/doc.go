/*
Package security holds the daemon's cryptographic identity and the
primitives built on it: record signing, signature verification, and
sealed payloads for private peer-graph records.

# Architecture

The Keyring is the identity. It pairs two keys generated together and
persisted together:

	┌──────────────────────── Keyring ─────────────────────────┐
	│                                                           │
	│  Ed25519 signing key          X25519 agreement key        │
	│  ├─ PublicKey()               ├─ AgreementPublicKey()     │
	│  ├─ DIDAddress()              └─ SharedSecret(reader)     │
	│  └─ Sign(data)                        │                   │
	│         │                             ▼                   │
	│         ▼                     SealPayload/OpenPayload     │
	│  oip.signature                (AES-256-GCM)               │
	└───────────────────────────────────────────────────────────┘

The signing key authenticates records: the publisher signs canonical
record bytes and peers verify with VerifySignature before trusting
ownership. The agreement key encrypts for a single reader: owner and
reader run X25519 over each other's agreement keys, hash the shared
point to a 32-byte AES key, and seal the record payload with it.

# Identity On Disk

LoadOrCreateKeyring reads PRIVATE_KEY_PATH and generates a fresh
keyring when the file is missing, so first boot needs no provisioning
step. The file is JSON with both private keys base64-encoded, written
0600 under a 0700 directory. Losing it means losing the publishing
identity: records already published stay valid, but the daemon can no
longer update or delete them.

# DID Addresses

DIDAddress hashes the base64url signing public key with SHA-256 into
the 43-character address records carry in oip.creator.didAddress. The
derivation is deterministic, so any party holding the public key can
check that a claimed address matches it.

# Usage

	kr, err := security.LoadOrCreateKeyring("/var/lib/burrow/keys.json")
	if err != nil {
		return err
	}

	sig := kr.Sign(canonicalBytes)
	ok := security.VerifySignature(kr.PublicKey(), sig, canonicalBytes)

	// Private record for one reader:
	key, err := kr.SharedSecret(readerAgreementPub)
	sealed, err := security.SealPayload(key, payload)

# Limitations

  - Single identity per daemon. Publishing under several creator
    identities means running several daemons with distinct key files.
  - No key rotation. Replacing the key file mints a new identity; the
    old one's records remain owned by the old key.
  - SharedSecret targets exactly one reader. Multi-reader records
    would need per-reader envelopes, which the record format does not
    carry today.

# See Also

  - pkg/publish - Signs outgoing records and seals private payloads
  - pkg/gun - Verifies ownership on peer-graph writes
  - pkg/daemon - Loads the keyring at boot
*/
package security
