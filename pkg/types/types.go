package types

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StorageType identifies a record's backing store.
type StorageType string

const (
	StorageArweave StorageType = "arweave"
	StorageGun     StorageType = "gun"
)

// PublishDestination names a target of a multi-destination publish.
// Mirror is not a storage method; mirrored records keep their primary DID.
type PublishDestination string

const (
	DestinationArweave PublishDestination = "arweave"
	DestinationGun     PublishDestination = "gun"
	DestinationMirror  PublishDestination = "mirror"
)

// RecordVersion is stamped into oip.ver on publish.
const RecordVersion = "0.8.0"

// Record types with system-level meaning. recordType is otherwise open
// (recipe, workout, exercise, post, ...).
const (
	RecordTypeTemplate            = "template"
	RecordTypeCreatorRegistration = "creatorRegistration"
	RecordTypeDeleteMessage       = "deleteMessage"
)

// RecordData maps template name to field name to value. Values are
// scalars, arrays of scalars, DID reference strings, or nested maps.
type RecordData map[string]map[string]any

// Record is the atomic unit of publication and query.
type Record struct {
	Data          RecordData     `json:"data"`
	Meta          *RecordMeta    `json:"oip"`
	AccessControl *AccessControl `json:"accessControl,omitempty"`
}

// RecordMeta is the system metadata carried under the oip key.
type RecordMeta struct {
	DID            DID         `json:"did"`
	RecordType     string      `json:"recordType"`
	Storage        StorageType `json:"storage"`
	IndexedAt      time.Time   `json:"indexedAt"`
	Ver            string      `json:"ver"`
	Creator        *CreatorRef `json:"creator,omitempty"`
	InArweaveBlock int64       `json:"inArweaveBlock,omitempty"`
	Signature      string      `json:"signature,omitempty"`
	Encrypted      bool        `json:"encrypted,omitempty"`
}

// CreatorRef identifies the publisher of a record.
type CreatorRef struct {
	DIDAddress string `json:"didAddress"`
	PublicKey  string `json:"publicKey"`
}

// AccessLevel controls peer-graph record visibility.
type AccessLevel string

const (
	AccessPublic  AccessLevel = "public"
	AccessPrivate AccessLevel = "private"
)

// AccessControl is present on peer-graph records only.
type AccessControl struct {
	AccessLevel           AccessLevel `json:"access_level"`
	OwnerPublicKey        string      `json:"owner_public_key"`
	CreatedTimestamp      int64       `json:"created_timestamp"`
	LastModifiedTimestamp int64       `json:"last_modified_timestamp"`
	Version               int64       `json:"version"`
}

// MatchMode selects how multi-term filters combine.
type MatchMode string

const (
	MatchAND MatchMode = "AND"
	MatchOR  MatchMode = "OR"
)

// ParseMatchMode validates a match mode string, defaulting empty input.
func ParseMatchMode(s string, def MatchMode) (MatchMode, error) {
	switch strings.ToUpper(s) {
	case "":
		return def, nil
	case string(MatchAND):
		return MatchAND, nil
	case string(MatchOR):
		return MatchOR, nil
	default:
		return def, fmt.Errorf("%w: match mode must be AND or OR, got %q", ErrValidation, s)
	}
}

// Private reports whether the record is visible only to its owner.
func (r *Record) Private() bool {
	return r.AccessControl != nil && r.AccessControl.AccessLevel == AccessPrivate
}

// Section returns one template's field map from data, or nil.
func (r *Record) Section(template string) map[string]any {
	if r.Data == nil {
		return nil
	}
	return r.Data[template]
}

// BasicField returns a field from the conventional basic template.
func (r *Record) BasicField(field string) (any, bool) {
	basic := r.Section("basic")
	if basic == nil {
		return nil, false
	}
	v, ok := basic[field]
	return v, ok
}

// Name returns data.basic.name, or empty.
func (r *Record) Name() string {
	v, _ := r.BasicField("name")
	s, _ := v.(string)
	return s
}

// Description returns data.basic.description, or empty.
func (r *Record) Description() string {
	v, _ := r.BasicField("description")
	s, _ := v.(string)
	return s
}

// Tags returns data.basic.tagItems as strings. Decoded peer-graph
// records and freshly built records both pass through here, so both
// []string and []any element shapes are accepted.
func (r *Record) Tags() []string {
	v, ok := r.BasicField("tagItems")
	if !ok {
		return nil
	}
	return StringSlice(v)
}

// StringSlice coerces an array value into its string elements.
// Non-string elements are rendered with fmt.Sprint so numeric tags
// survive JSON decoding.
func StringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	default:
		return nil
	}
}

// NumericValue coerces JSON scalar shapes into a float64.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ValueAtPath walks a dotted path ("data.basic.name", "oip.recordType")
// through the record. Map steps use key lookup; other shapes end the walk.
func (r *Record) ValueAtPath(path string) (any, bool) {
	head, rest, _ := strings.Cut(path, ".")
	var cur any
	switch head {
	case "data":
		m := make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			m[k] = v
		}
		cur = m
	case "oip":
		if r.Meta == nil {
			return nil, false
		}
		cur = jsonView(r.Meta)
	case "accessControl":
		if r.AccessControl == nil {
			return nil, false
		}
		cur = jsonView(r.AccessControl)
	default:
		return nil, false
	}
	if rest == "" {
		return cur, true
	}
	for _, part := range strings.Split(rest, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		case RecordData:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy. Data maps are copied via JSON round-trip so
// the copy shares no mutable structure with the original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		// Records come from JSON; re-marshal cannot fail for them.
		panic("types: clone marshal: " + err.Error())
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("types: clone unmarshal: " + err.Error())
	}
	return &out
}

// jsonView converts a struct to its JSON map form for path walking.
func jsonView(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// ContentHash computes a stable 43-char base64url digest of record data.
// encoding/json sorts map keys, so equal data yields equal hashes.
func ContentHash(data RecordData) string {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte{}
	}
	sum := sha256.Sum256(raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Template is the stored form of a schema definition. Templates are
// themselves records on the blockchain; FieldsJSON holds the raw schema
// mapping (field name to type code, index_<field> entries, <field>Values
// enum domains).
type Template struct {
	DID        DID            `json:"did"`
	TxID       string         `json:"txid"`
	Name       string         `json:"name"`
	FieldsJSON map[string]any `json:"fieldsJson"`
	Creator    *CreatorRef    `json:"creator,omitempty"`
	IndexedAt  time.Time      `json:"indexedAt"`
}

// Creator is an indexed publisher identity.
type Creator struct {
	DIDAddress   string    `json:"didAddress"`
	PublicKey    string    `json:"publicKey"`
	Handle       string    `json:"handle,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// SyncProgress is the block-walk cursor, a singleton in the index store.
type SyncProgress struct {
	LatestIndexedBlock int64     `json:"latestIndexedBlock"`
	LatestTx           string    `json:"latestTx"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// JobStatus is the lifecycle state of an async publish job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed || s == JobCancelled
}

// Job tracks one asynchronous publish. Jobs are in-memory only and
// TTL-expire after reaching a terminal status.
type Job struct {
	JobID       string         `json:"jobId"`
	Kind        string         `json:"kind"`
	Owner       string         `json:"-"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"currentStep,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Result      *PublishResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// PublishStatus summarizes a multi-destination publish.
type PublishStatus string

const (
	PublishSuccess PublishStatus = "success"
	PublishPartial PublishStatus = "partial"
	PublishFailed  PublishStatus = "failed"
)

// PublishResult is the terminal payload of a publish call or job.
type PublishResult struct {
	Status        PublishStatus       `json:"status"`
	DID           DID                 `json:"did,omitempty"`
	TransactionID string              `json:"transactionId,omitempty"`
	Storage       StorageType         `json:"storage,omitempty"`
	Destinations  []DestinationResult `json:"destinations,omitempty"`
}

// DestinationResult is the per-destination outcome of a multi-destination
// publish.
type DestinationResult struct {
	Destination PublishDestination `json:"destination"`
	Status      PublishStatus      `json:"status"`
	DID         DID                `json:"did,omitempty"`
	Error       string             `json:"error,omitempty"`
	Gateway     string             `json:"gateway"`
}
