package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/template"
	"github.com/cuemby/burrow/pkg/types"
)

// Indexer is the shared ingest path. Both sync loops hand fetched
// records here; publish pre-indexing reuses it so blockchain, peer,
// and locally published records all land in the index through the
// same validation and normalization.
//
// IndexRecord's error classes drive the caller's cursor decision:
//
//	nil                    indexed, advance
//	ErrValidation          permanently bad, skip and advance
//	ErrUpstreamUnavailable transient, stop the pass without advancing
//	ErrStore               fatal, halt and surface
type Indexer struct {
	store     storage.Store
	templates *template.Registry
	broker    *events.Broker
	logger    zerolog.Logger
}

// NewIndexer creates the shared ingest path. broker may be nil when no
// one listens for lifecycle events.
func NewIndexer(store storage.Store, templates *template.Registry, broker *events.Broker) *Indexer {
	return &Indexer{
		store:     store,
		templates: templates,
		broker:    broker,
		logger:    log.WithComponent("indexer"),
	}
}

// IndexRecord validates, normalizes, and upserts one fetched record.
// System record types (template, creatorRegistration, deleteMessage)
// have fixed shapes checked structurally; everything else validates
// against its on-chain templates.
func (ix *Indexer) IndexRecord(ctx context.Context, rec *types.Record, source string) error {
	if rec == nil || rec.Meta == nil || rec.Meta.DID == "" {
		return fmt.Errorf("%w: record carries no identity", types.ErrValidation)
	}
	if rec.Meta.RecordType == "" {
		ix.skip(rec.Meta.DID, source, "missing recordType")
		return fmt.Errorf("record %s: missing recordType: %w", rec.Meta.DID, types.ErrValidation)
	}

	switch rec.Meta.RecordType {
	case types.RecordTypeTemplate:
		return ix.indexTemplate(ctx, rec, source)
	case types.RecordTypeCreatorRegistration:
		return ix.indexCreatorRegistration(ctx, rec, source)
	case types.RecordTypeDeleteMessage:
		return ix.indexDeleteMessage(ctx, rec, source)
	default:
		return ix.indexRegular(ctx, rec, source)
	}
}

// indexRegular is the common path for content records.
func (ix *Indexer) indexRegular(ctx context.Context, rec *types.Record, source string) error {
	violations, err := ix.templates.ValidateRecord(ctx, rec)
	if err != nil {
		// Infrastructure failure, not a verdict on the record.
		return err
	}
	if len(violations) > 0 {
		verr := types.ValidationErrors(violations)
		ix.skip(rec.Meta.DID, source, verr.Error())
		return fmt.Errorf("record %s: %w", rec.Meta.DID, verr)
	}

	if err := ix.ensureCreator(ctx, rec.Meta.Creator, ""); err != nil {
		return err
	}
	return ix.upsert(ctx, rec, source)
}

// indexTemplate registers a template definition. Templates live in
// their own index, not the records index.
func (ix *Indexer) indexTemplate(ctx context.Context, rec *types.Record, source string) error {
	tpl, err := template.ParseTemplateRecord(rec)
	if err != nil {
		ix.skip(rec.Meta.DID, source, err.Error())
		return err
	}
	if err := ix.ensureCreator(ctx, rec.Meta.Creator, ""); err != nil {
		return err
	}
	if err := ix.templates.Register(ctx, tpl); err != nil {
		return err
	}

	ix.logger.Info().
		Str("template", tpl.Name).
		Str("did", string(tpl.DID)).
		Msg("Template indexed")
	if ix.broker != nil {
		ix.broker.Publish(&events.Event{
			Type:     events.EventTemplateIndexed,
			DID:      tpl.DID,
			Metadata: map[string]string{"name": tpl.Name, "source": source},
		})
	}
	metrics.SyncRecordsIndexed.WithLabelValues(source).Inc()
	return nil
}

// indexCreatorRegistration upserts the creator identity, then indexes
// the registration record itself so it stays queryable. Identity
// registration happens first: a registration with odd extra fields
// still names a publisher.
func (ix *Indexer) indexCreatorRegistration(ctx context.Context, rec *types.Record, source string) error {
	handle := ""
	if section := rec.Section(types.RecordTypeCreatorRegistration); section != nil {
		handle, _ = section["handle"].(string)
	}
	if err := ix.ensureCreator(ctx, rec.Meta.Creator, handle); err != nil {
		return err
	}
	return ix.upsert(ctx, rec, source)
}

// indexDeleteMessage applies a creator's deletion to its target, then
// indexes the message itself. Only the target's own creator may delete
// it; mismatches leave the target in place.
func (ix *Indexer) indexDeleteMessage(ctx context.Context, rec *types.Record, source string) error {
	target, err := ix.deleteTarget(rec)
	if err != nil {
		ix.skip(rec.Meta.DID, source, err.Error())
		return err
	}

	existing, err := ix.store.GetRecord(ctx, string(target))
	switch {
	case errors.Is(err, types.ErrNotFound):
		// Target never indexed or already deleted; nothing to apply.
	case err != nil:
		return err
	case !sameCreator(existing, rec):
		ix.logger.Warn().
			Str("did", string(target)).
			Str("deleteMessage", string(rec.Meta.DID)).
			Msg("Delete refused, signer is not the record's creator")
		metrics.SyncRecordsSkipped.WithLabelValues(source, "ownership").Inc()
	default:
		if err := ix.store.DeleteRecord(ctx, string(target)); err != nil {
			return err
		}
		ix.logger.Info().
			Str("did", string(target)).
			Str("deleteMessage", string(rec.Meta.DID)).
			Msg("Record deleted by creator")
		if ix.broker != nil {
			ix.broker.RecordDeleted(target, "deleteMessage "+string(rec.Meta.DID))
		}
	}

	return ix.upsert(ctx, rec, source)
}

// ApplyTombstone removes a peer-graph record whose soul now reads as
// deleted. Already-gone records are fine.
func (ix *Indexer) ApplyTombstone(ctx context.Context, did types.DID) error {
	err := ix.store.DeleteRecord(ctx, string(did))
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	ix.logger.Info().Str("did", string(did)).Msg("Record dropped, soul tombstoned")
	if ix.broker != nil {
		ix.broker.RecordDeleted(did, "tombstone")
	}
	return nil
}

// upsert normalizes and writes one record into the index.
func (ix *Indexer) upsert(ctx context.Context, rec *types.Record, source string) error {
	rec.Meta.IndexedAt = time.Now().UTC()

	if err := ix.store.PutRecord(ctx, rec); err != nil {
		return err
	}

	ix.logger.Debug().
		Str("did", string(rec.Meta.DID)).
		Str("recordType", rec.Meta.RecordType).
		Str("source", source).
		Msg("Record indexed")
	if ix.broker != nil {
		ix.broker.RecordIndexed(rec.Meta.DID, source)
	}
	metrics.SyncRecordsIndexed.WithLabelValues(source).Inc()
	return nil
}

// ensureCreator upserts the publisher identity referenced by a record.
// Creators are created on first sight; a later registration record may
// fill in the handle.
func (ix *Indexer) ensureCreator(ctx context.Context, ref *types.CreatorRef, handle string) error {
	if ref == nil || ref.PublicKey == "" {
		return nil
	}

	existing, err := ix.store.GetCreatorByPublicKey(ctx, ref.PublicKey)
	switch {
	case errors.Is(err, types.ErrNotFound):
		creator := &types.Creator{
			DIDAddress:   ref.DIDAddress,
			PublicKey:    ref.PublicKey,
			Handle:       handle,
			RegisteredAt: time.Now().UTC(),
		}
		if err := ix.store.PutCreator(ctx, creator); err != nil {
			return err
		}
		ix.logger.Info().
			Str("creator", ref.DIDAddress).
			Str("handle", handle).
			Msg("Creator seen")
		if ix.broker != nil {
			ix.broker.Publish(&events.Event{
				Type:     events.EventCreatorSeen,
				Metadata: map[string]string{"didAddress": ref.DIDAddress, "handle": handle},
			})
		}
		return nil
	case err != nil:
		return err
	case handle != "" && existing.Handle == "":
		existing.Handle = handle
		return ix.store.PutCreator(ctx, existing)
	default:
		return nil
	}
}

// deleteTarget extracts and checks the DID a deleteMessage points at.
func (ix *Indexer) deleteTarget(rec *types.Record) (types.DID, error) {
	section := rec.Section(types.RecordTypeDeleteMessage)
	if section == nil {
		return "", fmt.Errorf("%w: deleteMessage %s has no deleteMessage section",
			types.ErrValidation, rec.Meta.DID)
	}
	didTx, _ := section["didTx"].(string)
	if didTx == "" {
		return "", fmt.Errorf("%w: deleteMessage %s missing didTx", types.ErrValidation, rec.Meta.DID)
	}
	target := types.DID(didTx)
	if err := target.Validate(); err != nil {
		return "", fmt.Errorf("deleteMessage %s: bad didTx: %w", rec.Meta.DID, err)
	}
	return target, nil
}

func (ix *Indexer) skip(did types.DID, source, reason string) {
	ix.logger.Warn().
		Str("did", string(did)).
		Str("source", source).
		Str("reason", reason).
		Msg("Record skipped")
	if ix.broker != nil {
		ix.broker.RecordSkipped(did, reason)
	}
	metrics.SyncRecordsSkipped.WithLabelValues(source, "validation").Inc()
}

func sameCreator(target, deleteMsg *types.Record) bool {
	if target.Meta == nil || target.Meta.Creator == nil ||
		deleteMsg.Meta == nil || deleteMsg.Meta.Creator == nil {
		return false
	}
	return target.Meta.Creator.PublicKey == deleteMsg.Meta.Creator.PublicKey
}
