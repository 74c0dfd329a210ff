package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	return &Record{
		Data: RecordData{
			"basic": {
				"name":     "Greek Salad",
				"tagItems": []any{"greek", "salad"},
			},
			"recipe": {
				"cuisine":    "Mediterranean",
				"ingredient": []any{"did:arweave:" + testTxID},
			},
		},
		Meta: &RecordMeta{
			DID:        ArweaveDID(testTxID),
			RecordType: "recipe",
			Storage:    StorageArweave,
			Ver:        RecordVersion,
			IndexedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// TestRecordJSONShape verifies the wire shape: data/oip/accessControl keys
func TestRecordJSONShape(t *testing.T) {
	rec := sampleRecord()
	rec.AccessControl = &AccessControl{
		AccessLevel:    AccessPrivate,
		OwnerPublicKey: "keyA",
		Version:        1,
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "data")
	assert.Contains(t, m, "oip")
	assert.Contains(t, m, "accessControl")

	oip := m["oip"].(map[string]any)
	assert.Equal(t, "recipe", oip["recordType"])
	assert.Equal(t, "arweave", oip["storage"])

	ac := m["accessControl"].(map[string]any)
	assert.Equal(t, "private", ac["access_level"])
	assert.Equal(t, "keyA", ac["owner_public_key"])
}

func TestRecordJSONOmitsEmptyAccessControl(t *testing.T) {
	raw, err := json.Marshal(sampleRecord())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotContains(t, m, "accessControl")
}

// TestValueAtPath tests dotted-path traversal over record shapes
func TestValueAtPath(t *testing.T) {
	rec := sampleRecord()

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{
			name:   "basic name",
			path:   "data.basic.name",
			want:   "Greek Salad",
			wantOK: true,
		},
		{
			name:   "recipe cuisine",
			path:   "data.recipe.cuisine",
			want:   "Mediterranean",
			wantOK: true,
		},
		{
			name:   "oip record type",
			path:   "oip.recordType",
			want:   "recipe",
			wantOK: true,
		},
		{
			name:   "missing field",
			path:   "data.basic.nonexistent",
			wantOK: false,
		},
		{
			name:   "missing template",
			path:   "data.workout.duration",
			wantOK: false,
		},
		{
			name:   "missing access control",
			path:   "accessControl.version",
			wantOK: false,
		},
		{
			name:   "unknown root",
			path:   "meta.did",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rec.ValueAtPath(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK && tt.want != nil {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRecordClone(t *testing.T) {
	rec := sampleRecord()
	clone := rec.Clone()

	require.NotNil(t, clone)
	assert.Equal(t, rec.Name(), clone.Name())

	// Mutating the clone must not touch the original.
	clone.Data["basic"]["name"] = "changed"
	assert.Equal(t, "Greek Salad", rec.Name())
	assert.Equal(t, "changed", clone.Name())
}

func TestRecordAccessors(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, "Greek Salad", rec.Name())
	assert.False(t, rec.Private())

	rec.AccessControl = &AccessControl{AccessLevel: AccessPrivate}
	assert.True(t, rec.Private())

	rec.AccessControl.AccessLevel = AccessPublic
	assert.False(t, rec.Private())

	var empty Record
	assert.Equal(t, "", empty.Name())
	assert.Nil(t, empty.Section("basic"))
}

// TestContentHashStability verifies deterministic DID derivation
func TestContentHashStability(t *testing.T) {
	a := RecordData{"basic": {"name": "x", "n": float64(3)}}
	b := RecordData{"basic": {"n": float64(3), "name": "x"}}

	ha := ContentHash(a)
	hb := ContentHash(b)
	assert.Equal(t, ha, hb, "hash must not depend on map iteration order")
	assert.Len(t, ha, 43)
	assert.True(t, isBase64url(ha))

	c := RecordData{"basic": {"name": "y", "n": float64(3)}}
	assert.NotEqual(t, ha, ContentHash(c))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobProcessing.Terminal())
	assert.True(t, JobComplete.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
}

func TestValidationErrors(t *testing.T) {
	ve := ValidationErrors{
		{Template: "recipe", Field: "cuisine", Reason: "not in enum"},
		{Template: "recipe", Field: "servings", Reason: "expected long"},
	}

	assert.True(t, errors.Is(ve, ErrValidation))
	assert.Contains(t, ve.Error(), "recipe.cuisine")
	assert.Contains(t, ve.Error(), "and 1 more")

	var empty ValidationErrors
	assert.Equal(t, "validation failed", empty.Error())
}
