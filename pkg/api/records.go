package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuemby/burrow/pkg/publish"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/types"
)

type authInfo struct {
	Authenticated bool    `json:"authenticated"`
	User          *Claims `json:"user,omitempty"`
}

// queryEnvelope is the GET /records response.
type queryEnvelope struct {
	Message                string            `json:"message"`
	LatestArweaveBlockInDB int64             `json:"latestArweaveBlockInDB"`
	IndexingProgress       string            `json:"indexingProgress"`
	TotalRecords           int               `json:"totalRecords"`
	SearchResults          int               `json:"searchResults"`
	PageSize               int               `json:"pageSize"`
	CurrentPage            int               `json:"currentPage"`
	TotalPages             int               `json:"totalPages"`
	QueryParams            map[string]string `json:"queryParams"`
	Auth                   authInfo          `json:"auth"`
	Records                []map[string]any  `json:"records"`
	TagSummary             []query.TagCount  `json:"tagSummary,omitempty"`
	TagTotal               int               `json:"tagTotal,omitempty"`
}

func (s *Server) handleQueryRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// A bad or missing token downgrades to anonymous; queries never
	// fail on auth, they just see less.
	claims := s.authenticate(r)

	params, err := query.ParseParams(r.URL.Query(), s.cfg.QueryDefaults)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.cfg.Query.Query(r.Context(), params, callerOf(claims))
	if err != nil {
		s.writeError(w, err)
		return
	}

	records := result.Records
	if records == nil {
		records = []map[string]any{}
	}

	indexed := s.indexedBlock(r.Context())
	s.writeJSON(w, http.StatusOK, queryEnvelope{
		Message:                "Records retrieved successfully",
		LatestArweaveBlockInDB: indexed,
		IndexingProgress:       s.indexingProgress(r.Context(), indexed),
		TotalRecords:           result.TotalRecords,
		SearchResults:          result.SearchResults,
		PageSize:               result.PageSize,
		CurrentPage:            result.CurrentPage,
		TotalPages:             result.TotalPages,
		QueryParams:            flattenParams(r.URL.Query()),
		Auth:                   authInfo{Authenticated: claims != nil, User: claims},
		Records:                records,
		TagSummary:             result.TagSummary,
		TagTotal:               result.TagTotal,
	})
}

// indexedBlock reads the block-walk cursor; zero before the first
// sync pass completes.
func (s *Server) indexedBlock(ctx context.Context) int64 {
	progress, err := s.cfg.Store.GetProgress(ctx)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Progress read failed")
		}
		return 0
	}
	return progress.LatestIndexedBlock
}

// indexingProgress renders the cursor as a percentage of the last
// observed gateway height, "unknown" before any height observation.
func (s *Server) indexingProgress(ctx context.Context, indexed int64) string {
	height := s.observedHeight(ctx)
	if height <= 0 {
		return "unknown"
	}
	pct := float64(indexed) / float64(height) * 100
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%.2f%%", pct)
}

func flattenParams(values url.Values) map[string]string {
	flat := make(map[string]string, len(values))
	for key, vals := range values {
		flat[key] = strings.Join(vals, ",")
	}
	return flat
}

// publishRequest is the POST /records/newRecord body.
type publishRequest struct {
	Data          types.RecordData     `json:"data"`
	AccessControl *types.AccessControl `json:"accessControl,omitempty"`
}

type asyncAccepted struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireWriter(w, r)
	if !ok {
		return
	}

	req, err := s.parsePublishRequest(r, claims)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.cfg.Publisher.Publish(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePublishAsync(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireWriter(w, r)
	if !ok {
		return
	}

	req, err := s.parsePublishRequest(r, claims)
	if err != nil {
		s.writeError(w, err)
		return
	}

	job, err := s.cfg.Publisher.PublishAsync(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, asyncAccepted{
		JobID:     job.JobID,
		StatusURL: "/jobs/" + job.JobID,
	})
}

// requireWriter gates mutating endpoints. With an authenticator
// configured, writes demand a valid token. Without one the daemon is
// in single-operator mode and writes are open.
func (s *Server) requireWriter(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	claims := s.authenticate(r)
	if s.cfg.Auth != nil && claims == nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return nil, false
	}
	return claims, true
}

func (s *Server) parsePublishRequest(r *http.Request, claims *Claims) (publish.Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return publish.Request{}, fmt.Errorf("%w: read body: %v", types.ErrValidation, err)
	}

	var payload publishRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return publish.Request{}, fmt.Errorf("%w: request body is not valid JSON", types.ErrValidation)
	}

	q := r.URL.Query()
	req := publish.Request{
		Record:          &types.Record{Data: payload.Data, AccessControl: payload.AccessControl},
		RecordType:      q.Get("recordType"),
		Storage:         types.StorageType(q.Get("storage")),
		LocalID:         q.Get("localId"),
		ReaderPublicKey: q.Get("readerPublicKey"),
	}
	if raw := q.Get("destinations"); raw != "" {
		for _, dest := range strings.Split(raw, ",") {
			dest = strings.TrimSpace(dest)
			if dest != "" {
				req.Destinations = append(req.Destinations, types.PublishDestination(dest))
			}
		}
	}
	if claims != nil {
		req.Owner = claims.DIDAddress
	}
	return req, nil
}
