package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/httppool"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

// MirrorClientName is the governor slot mirror pushes run through.
const MirrorClientName = "mirror"

const pushTimeout = 30 * time.Second

// Mirror replicates signed records to an external HTTP endpoint.
// Mirrors are write-only from this node's point of view; they accept
// the record as published and never mint a DID of their own.
type Mirror struct {
	url    string
	pool   *httppool.Pool
	logger zerolog.Logger
}

// NewMirror returns a mirror client pushing to url.
func NewMirror(url string, pool *httppool.Pool) *Mirror {
	return &Mirror{
		url:    strings.TrimRight(url, "/"),
		pool:   pool,
		logger: log.WithComponent("mirror"),
	}
}

// URL returns the mirror endpoint.
func (m *Mirror) URL() string {
	return m.url
}

// Push replicates one signed record. Any 2xx response counts as
// accepted; everything else wraps types.ErrUpstreamUnavailable.
func (m *Mirror) Push(ctx context.Context, rec *types.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", types.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	if err := m.pool.Wait(ctx, m.url); err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.pool.Client(MirrorClientName).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return fmt.Errorf("%w: mirror returned %s", types.ErrUpstreamUnavailable, resp.Status)
	}
	buf, err := m.pool.Buffers().ReadResponse(resp)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", types.ErrUpstreamUnavailable, err)
	}
	buf.Release()

	m.logger.Debug().Int("bytes", len(body)).Msg("record mirrored")
	return nil
}
