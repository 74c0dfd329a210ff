package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/burrow/pkg/jobs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/sync"
	"github.com/cuemby/burrow/pkg/template"
	"github.com/cuemby/burrow/pkg/types"
)

// asyncTimeout bounds a background publish job end to end.
const asyncTimeout = 5 * time.Minute

// Request is one publish call. Record carries the data and optional
// access control; the pipeline fills in identity, version, and
// signature.
type Request struct {
	Record *types.Record

	// RecordType names the primary template. Empty means derive it
	// from the data sections.
	RecordType string

	// Storage picks the destination of a single-target publish.
	// Empty means the blockchain.
	Storage types.StorageType

	// Destinations, when set, requests a multi-destination publish
	// and overrides Storage.
	Destinations []types.PublishDestination

	// LocalID addresses the peer-graph soul; empty means content hash.
	LocalID string

	// Tags are stamped onto blockchain data items.
	Tags map[string]string

	// ReaderPublicKey selects who can open a private peer-graph record.
	ReaderPublicKey string

	// Owner scopes the job of an async publish.
	Owner string
}

// Backends wires the write targets. Nil entries make the destination
// unavailable rather than the publisher unusable.
type Backends struct {
	Arweave storage.Backend
	Gun     storage.Backend
	Mirror  *Mirror
}

// Publisher runs the publish pipeline: validate, sign, submit,
// pre-index. One instance serves both the synchronous API call and
// background jobs.
type Publisher struct {
	registry *template.Registry
	indexer  *sync.Indexer
	keyring  *security.Keyring
	tracker  *jobs.Tracker
	backends Backends
	logger   zerolog.Logger
}

// NewPublisher creates a publisher over the given identity and write
// targets.
func NewPublisher(registry *template.Registry, indexer *sync.Indexer, keyring *security.Keyring, tracker *jobs.Tracker, backends Backends) *Publisher {
	return &Publisher{
		registry: registry,
		indexer:  indexer,
		keyring:  keyring,
		tracker:  tracker,
		backends: backends,
		logger:   log.WithComponent("publish"),
	}
}

// Publish runs the pipeline synchronously. The error is non-nil for
// request problems and when every destination failed; partial results
// come back with a nil error and Status partial.
func (p *Publisher) Publish(ctx context.Context, req Request) (*types.PublishResult, error) {
	rec, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	p.sign(rec)

	dests, err := req.destinations()
	if err != nil {
		return nil, err
	}

	result := p.submit(ctx, rec, req, dests)
	p.preindex(ctx, rec, result.Destinations)

	if result.Status == types.PublishFailed {
		return result, fmt.Errorf("publish %s: %w: %s",
			rec.Meta.RecordType, types.ErrUpstreamUnavailable, destinationErrors(result.Destinations))
	}
	return result, nil
}

// PublishAsync registers a job and runs the pipeline in the
// background. Request problems that need no upstream call fail
// synchronously so the caller gets a 4xx instead of a doomed job.
func (p *Publisher) PublishAsync(req Request) (*types.Job, error) {
	if req.Record == nil || len(req.Record.Data) == 0 {
		return nil, fmt.Errorf("publish: %w: record has no data", types.ErrValidation)
	}
	if _, err := req.destinations(); err != nil {
		return nil, err
	}

	job, err := p.tracker.Create("publish", req.Owner)
	if err != nil {
		return nil, err
	}
	go p.runJob(job.JobID, req)
	return job, nil
}

// runJob is the worker behind PublishAsync. Cancellation is checked
// between steps; a cancelled job skips everything that remains.
func (p *Publisher) runJob(jobID string, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
	defer cancel()

	step := func(progress int, name string) bool {
		if p.tracker.Cancelled(jobID) {
			p.logger.Info().Str("jobId", jobID).Str("step", name).Msg("Publish job cancelled")
			return false
		}
		return p.tracker.Update(jobID, progress, name) == nil
	}

	if !step(10, "validating") {
		return
	}
	rec, err := p.prepare(ctx, req)
	if err != nil {
		p.tracker.Fail(jobID, err)
		return
	}

	if !step(30, "signing") {
		return
	}
	p.sign(rec)

	dests, err := req.destinations()
	if err != nil {
		p.tracker.Fail(jobID, err)
		return
	}

	if !step(55, "submitting") {
		return
	}
	result := p.submit(ctx, rec, req, dests)
	if result.Status == types.PublishFailed {
		p.tracker.Fail(jobID, fmt.Errorf("all destinations failed: %s", destinationErrors(result.Destinations)))
		return
	}

	if !step(85, "indexing") {
		return
	}
	p.preindex(ctx, rec, result.Destinations)

	p.tracker.Complete(jobID, result)
}

// prepare validates the request and returns a normalized record
// carrying the publisher's identity, ready to sign.
func (p *Publisher) prepare(ctx context.Context, req Request) (*types.Record, error) {
	if req.Record == nil || len(req.Record.Data) == 0 {
		return nil, fmt.Errorf("publish: %w: record has no data", types.ErrValidation)
	}

	rec := req.Record.Clone()
	recordType, err := resolveRecordType(req.RecordType, rec.Data)
	if err != nil {
		return nil, err
	}

	if rec.Meta == nil {
		rec.Meta = &types.RecordMeta{}
	}
	rec.Meta.RecordType = recordType
	rec.Meta.Ver = types.RecordVersion
	rec.Meta.Creator = &types.CreatorRef{
		DIDAddress: p.keyring.DIDAddress(),
		PublicKey:  p.keyring.PublicKey(),
	}

	if err := p.validate(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// validate checks content records against their templates; system
// records have fixed shapes checked structurally, same as on ingest.
func (p *Publisher) validate(ctx context.Context, rec *types.Record) error {
	switch rec.Meta.RecordType {
	case types.RecordTypeTemplate:
		_, err := template.ParseTemplateRecord(rec)
		return err
	case types.RecordTypeCreatorRegistration:
		return nil
	case types.RecordTypeDeleteMessage:
		section := rec.Section(types.RecordTypeDeleteMessage)
		target, _ := section["didTx"].(string)
		if !types.IsDID(target) {
			return fmt.Errorf("publish deleteMessage: %w: didTx %q is not a DID", types.ErrValidation, target)
		}
		return nil
	}

	violations, err := p.registry.ValidateRecord(ctx, rec)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("publish %s: %w", rec.Meta.RecordType, types.ValidationErrors(violations))
	}
	return nil
}

// sign stamps the ed25519 signature over the canonical data bytes.
// encoding/json sorts map keys, so verification against a re-marshal
// of the stored data holds.
func (p *Publisher) sign(rec *types.Record) {
	payload, err := json.Marshal(rec.Data)
	if err != nil {
		payload = []byte{}
	}
	rec.Meta.Signature = p.keyring.Sign(payload)
}

// submit fans the signed record out to every destination concurrently
// and aggregates the outcome. Destinations are independent; one
// failing never cancels the others.
func (p *Publisher) submit(ctx context.Context, rec *types.Record, req Request, dests []types.PublishDestination) *types.PublishResult {
	results := make([]types.DestinationResult, len(dests))
	var g errgroup.Group
	for i, dest := range dests {
		i, dest := i, dest
		g.Go(func() error {
			results[i] = p.publishTo(ctx, dest, rec, req)
			return nil
		})
	}
	g.Wait()

	return aggregate(results)
}

// publishTo writes the record to one destination and reports the
// outcome. Every attempt is counted by destination and status.
func (p *Publisher) publishTo(ctx context.Context, dest types.PublishDestination, rec *types.Record, req Request) types.DestinationResult {
	res := types.DestinationResult{Destination: dest, Status: types.PublishFailed}

	switch dest {
	case types.DestinationArweave:
		if p.backends.Arweave == nil {
			res.Error = "blockchain backend not configured"
			break
		}
		res.Gateway = gatewayOf(p.backends.Arweave)
		clone := rec.Clone()
		clone.Meta.Storage = types.StorageArweave
		did, err := p.backends.Arweave.Put(ctx, clone, storage.PutOptions{Tags: req.Tags})
		if err != nil {
			res.Error = err.Error()
			break
		}
		res.Status = types.PublishSuccess
		res.DID = did

	case types.DestinationGun:
		if p.backends.Gun == nil {
			res.Error = "peer-graph backend not configured"
			break
		}
		res.Gateway = gatewayOf(p.backends.Gun)
		clone := rec.Clone()
		clone.Meta.Storage = types.StorageGun
		did, err := p.backends.Gun.Put(ctx, clone, storage.PutOptions{
			LocalID:         req.LocalID,
			ReaderPublicKey: req.ReaderPublicKey,
		})
		if err != nil {
			res.Error = err.Error()
			break
		}
		res.Status = types.PublishSuccess
		res.DID = did

	case types.DestinationMirror:
		if p.backends.Mirror == nil {
			res.Error = "mirror not configured"
			break
		}
		res.Gateway = p.backends.Mirror.URL()
		if err := p.backends.Mirror.Push(ctx, rec); err != nil {
			res.Error = err.Error()
			break
		}
		// Mirrors replicate; they do not mint a DID.
		res.Status = types.PublishSuccess

	default:
		res.Error = fmt.Sprintf("unknown destination %q", dest)
	}

	metrics.PublishTotal.WithLabelValues(string(dest), string(res.Status)).Inc()
	if res.Status == types.PublishSuccess {
		p.logger.Info().
			Str("destination", string(dest)).
			Str("did", string(res.DID)).
			Str("recordType", rec.Meta.RecordType).
			Msg("Record published")
	} else {
		p.logger.Warn().
			Str("destination", string(dest)).
			Str("error", res.Error).
			Msg("Destination failed")
	}
	return res
}

// preindex upserts each successfully written record version into the
// local index so it is queryable before the next sync pass. An index
// failure degrades to a warning; the upstream write already happened
// and sync will reconcile.
func (p *Publisher) preindex(ctx context.Context, rec *types.Record, results []types.DestinationResult) {
	for _, res := range results {
		if res.Status != types.PublishSuccess || res.DID == "" {
			continue
		}
		clone := rec.Clone()
		clone.Meta.DID = res.DID
		clone.Meta.Storage = res.DID.Method()
		if err := p.indexer.IndexRecord(ctx, clone, "publish"); err != nil {
			p.logger.Warn().
				Err(err).
				Str("did", string(res.DID)).
				Msg("Pre-index failed")
		}
	}
}

// destinations resolves the effective target list: explicit
// Destinations win, then Storage, then the blockchain.
func (req Request) destinations() ([]types.PublishDestination, error) {
	if len(req.Destinations) > 0 {
		seen := make(map[types.PublishDestination]bool, len(req.Destinations))
		out := make([]types.PublishDestination, 0, len(req.Destinations))
		for _, dest := range req.Destinations {
			switch dest {
			case types.DestinationArweave, types.DestinationGun, types.DestinationMirror:
			default:
				return nil, fmt.Errorf("publish: %w: unknown destination %q", types.ErrValidation, dest)
			}
			if seen[dest] {
				continue
			}
			seen[dest] = true
			out = append(out, dest)
		}
		return out, nil
	}

	switch req.Storage {
	case "", types.StorageArweave:
		return []types.PublishDestination{types.DestinationArweave}, nil
	case types.StorageGun:
		return []types.PublishDestination{types.DestinationGun}, nil
	default:
		return nil, fmt.Errorf("publish: %w: unknown storage %q", types.ErrValidation, req.Storage)
	}
}

// resolveRecordType derives the record type when the caller named
// none: the single non-basic section, or basic alone.
func resolveRecordType(explicit string, data types.RecordData) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	var candidates []string
	for section := range data {
		if section != "basic" {
			candidates = append(candidates, section)
		}
	}
	switch len(candidates) {
	case 0:
		return "basic", nil
	case 1:
		return candidates[0], nil
	default:
		sort.Strings(candidates)
		return "", fmt.Errorf("publish: %w: recordType is ambiguous across sections %s",
			types.ErrValidation, strings.Join(candidates, ", "))
	}
}

// aggregate folds per-destination outcomes into the overall result.
// The first successful destination, in request order, supplies the
// primary DID.
func aggregate(results []types.DestinationResult) *types.PublishResult {
	out := &types.PublishResult{
		Status:       types.PublishFailed,
		Destinations: results,
	}

	succeeded := 0
	for _, res := range results {
		if res.Status == types.PublishSuccess {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results) && succeeded > 0:
		out.Status = types.PublishSuccess
	case succeeded > 0:
		out.Status = types.PublishPartial
	}

	for _, res := range results {
		if res.Status != types.PublishSuccess || res.DID == "" {
			continue
		}
		out.DID = res.DID
		out.Storage = res.DID.Method()
		if out.Storage == types.StorageArweave {
			out.TransactionID = res.DID.Reference()
		}
		break
	}
	return out
}

func destinationErrors(results []types.DestinationResult) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		if res.Error != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", res.Destination, res.Error))
		}
	}
	return strings.Join(parts, "; ")
}

// gatewayOf reads the endpoint a backend writes to, for the
// per-destination result.
func gatewayOf(b storage.Backend) string {
	type addressed interface{ URL() string }
	if a, ok := b.(addressed); ok {
		return a.URL()
	}
	return ""
}
