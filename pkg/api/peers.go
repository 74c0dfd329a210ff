package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cuemby/burrow/pkg/gun"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// peerNode is the wire shape of one served soul, matching what the
// peer-graph client reads back. Data carries the transport encoding
// (arrays as JSON strings).
type peerNode struct {
	Data          json.RawMessage      `json:"data"`
	Meta          *types.RecordMeta    `json:"oip,omitempty"`
	AccessControl *types.AccessControl `json:"accessControl,omitempty"`
}

type peerPut struct {
	Soul  string          `json:"soul"`
	Value json.RawMessage `json:"value"`
	Sig   string          `json:"sig,omitempty"`
	Pub   string          `json:"pub,omitempty"`
}

type peerAck struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

type peerRegistry struct {
	RecordType string           `json:"recordType"`
	Souls      map[string]int64 `json:"souls"`
}

// handlePeerGet serves GET /get?soul= from the index. Private and
// sealed records are withheld as 404: the index holds plaintext and no
// sealed blob, so serving them would either leak or lie.
func (s *Server) handlePeerGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	soul := r.URL.Query().Get("soul")
	if soul == "" {
		s.writeError(w, fmt.Errorf("%w: soul parameter required", types.ErrValidation))
		return
	}

	did := types.DID("did:" + string(types.StorageGun) + ":" + soul)
	rec, err := s.cfg.Store.GetRecord(r.Context(), string(did))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if withheld(rec) {
		s.writeError(w, fmt.Errorf("record %s: %w", did, types.ErrNotFound))
		return
	}

	encoded, err := gun.EncodeData(rec.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		s.writeError(w, fmt.Errorf("encode soul %s: %w", soul, err))
		return
	}

	s.writeJSON(w, http.StatusOK, peerNode{
		Data:          data,
		Meta:          rec.Meta,
		AccessControl: rec.AccessControl,
	})
}

// handlePeerRegistry serves GET /registry?recordType=: every public
// soul of that type held locally, keyed by last-modified milliseconds
// so peers can skip what they already have.
func (s *Server) handlePeerRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	recordType := r.URL.Query().Get("recordType")
	if recordType == "" {
		s.writeError(w, fmt.Errorf("%w: recordType parameter required", types.ErrValidation))
		return
	}

	result, err := s.cfg.Store.SearchRecords(r.Context(), storage.RecordQuery{
		RecordType: recordType,
		Storage:    types.StorageGun,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	souls := make(map[string]int64, len(result.Records))
	for _, rec := range result.Records {
		if withheld(rec) || rec.Meta == nil {
			continue
		}
		var modified int64
		if rec.AccessControl != nil {
			modified = rec.AccessControl.LastModifiedTimestamp
		}
		souls[rec.Meta.DID.Reference()] = modified
	}

	s.writeJSON(w, http.StatusOK, peerRegistry{RecordType: recordType, Souls: souls})
}

// handlePeerPut accepts POST /put from peers. Domain rejections come
// back as 200 with ok:false so the putter sees the reason; only a body
// that cannot be parsed at all is an HTTP error.
func (s *Server) handlePeerPut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: read body: %v", types.ErrValidation, err))
		return
	}
	var put peerPut
	if err := json.Unmarshal(body, &put); err != nil {
		s.writeError(w, fmt.Errorf("%w: request body is not valid JSON", types.ErrValidation))
		return
	}
	if put.Soul == "" {
		s.writeError(w, fmt.Errorf("%w: soul required", types.ErrValidation))
		return
	}

	did := types.DID("did:" + string(types.StorageGun) + ":" + put.Soul)
	if err := did.Validate(); err != nil {
		s.writeJSON(w, http.StatusOK, peerAck{Err: "malformed soul"})
		return
	}

	value := bytes.TrimSpace(put.Value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		s.acceptTombstone(w, r, did, put)
		return
	}

	var n peerNode
	if err := json.Unmarshal(value, &n); err != nil {
		s.writeJSON(w, http.StatusOK, peerAck{Err: "malformed node"})
		return
	}
	s.acceptNode(w, r, did, &n)
}

// acceptTombstone destroys a soul on a signed request from its owner.
func (s *Server) acceptTombstone(w http.ResponseWriter, r *http.Request, did types.DID, put peerPut) {
	if put.Sig == "" || put.Pub == "" {
		s.writeJSON(w, http.StatusOK, peerAck{Err: "tombstone requires sig and pub"})
		return
	}
	if !security.VerifySignature(put.Pub, put.Sig, []byte("tombstone:"+put.Soul)) {
		s.writeJSON(w, http.StatusOK, peerAck{Err: "bad tombstone signature"})
		return
	}
	// Souls are namespaced by publisher key; only that key may destroy
	// them.
	if !strings.HasPrefix(put.Soul, put.Pub+":") {
		s.writeJSON(w, http.StatusOK, peerAck{Err: "soul not owned by signing key"})
		return
	}

	existing, err := s.cfg.Store.GetRecord(r.Context(), string(did))
	switch {
	case errors.Is(err, types.ErrNotFound):
		// Nothing to destroy; acknowledge so the putter stops retrying.
		s.writeJSON(w, http.StatusOK, peerAck{OK: true})
		return
	case err != nil:
		s.writeError(w, err)
		return
	}

	if owner := ownerKey(existing); owner != "" && owner != put.Pub {
		s.writeJSON(w, http.StatusOK, peerAck{Err: "not the owner"})
		return
	}

	if err := s.cfg.Indexer.ApplyTombstone(r.Context(), did); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, peerAck{OK: true})
}

// acceptNode indexes a pushed record after ownership and version
// checks against whatever the index already holds for the soul.
func (s *Server) acceptNode(w http.ResponseWriter, r *http.Request, did types.DID, n *peerNode) {
	rec := &types.Record{Meta: n.Meta, AccessControl: n.AccessControl}
	if rec.Meta == nil {
		rec.Meta = &types.RecordMeta{}
	}
	rec.Meta.DID = did
	rec.Meta.Storage = types.StorageGun

	// Sealed payloads index metadata-only: this daemon holds no key to
	// open them and never re-serves them.
	if !rec.Meta.Encrypted && len(n.Data) > 0 {
		var data types.RecordData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			s.writeJSON(w, http.StatusOK, peerAck{Err: "malformed data"})
			return
		}
		rec.Data = gun.DecodeData(data)
	}

	existing, err := s.cfg.Store.GetRecord(r.Context(), string(did))
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	if existing != nil {
		if owner := ownerKey(existing); owner != "" && owner != ownerKey(rec) {
			s.writeJSON(w, http.StatusOK, peerAck{Err: "not the owner"})
			return
		}
		if existing.AccessControl != nil && rec.AccessControl != nil &&
			existing.AccessControl.Version >= rec.AccessControl.Version {
			s.writeJSON(w, http.StatusOK, peerAck{Err: "version conflict"})
			return
		}
	}

	if err := s.cfg.Indexer.IndexRecord(r.Context(), rec, "peer"); err != nil {
		if errors.Is(err, types.ErrValidation) {
			s.writeJSON(w, http.StatusOK, peerAck{Err: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, peerAck{OK: true})
}

// withheld reports whether a record must not be served to peers.
func withheld(rec *types.Record) bool {
	return rec.Private() || (rec.Meta != nil && rec.Meta.Encrypted)
}

func ownerKey(rec *types.Record) string {
	if rec.AccessControl == nil {
		return ""
	}
	return rec.AccessControl.OwnerPublicKey
}
