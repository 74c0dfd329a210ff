package types

import (
	"fmt"
	"strings"
)

// DID is a decentralized identifier of the form did:<method>:<id>.
// For arweave the id is a 43-character base64url transaction id. For gun
// the id is a colon-delimited path: <publisherKey>:<localId> or
// <publisherKey>:h:<contentHash>.
type DID string

const didPrefix = "did:"

// base64url alphabet used by transaction ids and content hashes
const base64urlChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// ArweaveDID builds a DID for a blockchain transaction id.
func ArweaveDID(txid string) DID {
	return DID(didPrefix + string(StorageArweave) + ":" + txid)
}

// GunDID builds a DID for a peer-graph record addressed by publisher key
// and caller-supplied local id.
func GunDID(publisherKey, localID string) DID {
	return DID(didPrefix + string(StorageGun) + ":" + publisherKey + ":" + localID)
}

// GunContentDID builds a DID for a peer-graph record addressed by publisher
// key and content hash.
func GunContentDID(publisherKey, contentHash string) DID {
	return DID(didPrefix + string(StorageGun) + ":" + publisherKey + ":h:" + contentHash)
}

// String returns the DID as a plain string.
func (d DID) String() string {
	return string(d)
}

// Method returns the storage method encoded in the DID, or empty if the
// DID is malformed.
func (d DID) Method() StorageType {
	rest, ok := strings.CutPrefix(string(d), didPrefix)
	if !ok {
		return ""
	}
	method, _, ok := strings.Cut(rest, ":")
	if !ok {
		return ""
	}
	return StorageType(method)
}

// Reference returns everything after the method: the transaction id for
// arweave, the publisher-key path for gun.
func (d DID) Reference() string {
	rest, ok := strings.CutPrefix(string(d), didPrefix)
	if !ok {
		return ""
	}
	_, ref, ok := strings.Cut(rest, ":")
	if !ok {
		return ""
	}
	return ref
}

// Validate performs a shape check only. It does not resolve the DID.
func (d DID) Validate() error {
	if !strings.HasPrefix(string(d), didPrefix) {
		return fmt.Errorf("%w: missing did prefix in %q", ErrValidation, d)
	}
	method := d.Method()
	ref := d.Reference()
	switch method {
	case StorageArweave:
		if len(ref) != 43 || !isBase64url(ref) {
			return fmt.Errorf("%w: arweave id must be a 43-char base64url txid, got %q", ErrValidation, ref)
		}
	case StorageGun:
		parts := strings.Split(ref, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return fmt.Errorf("%w: gun id must be <pub>:<localId> or <pub>:h:<hash>, got %q", ErrValidation, ref)
		}
		if len(parts) == 3 && parts[1] != "h" {
			return fmt.Errorf("%w: three-part gun id must use h separator, got %q", ErrValidation, ref)
		}
		for _, p := range parts {
			if p == "" {
				return fmt.Errorf("%w: empty segment in gun id %q", ErrValidation, ref)
			}
		}
	default:
		return fmt.Errorf("%w: unknown did method %q", ErrValidation, method)
	}
	return nil
}

// IsDID reports whether s looks like a well-formed DID. Used by the
// resolver and the template validator to recognize dref values.
func IsDID(s string) bool {
	return DID(s).Validate() == nil
}

func isBase64url(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base64urlChars, r) {
			return false
		}
	}
	return len(s) > 0
}
