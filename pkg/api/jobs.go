package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

type jobList struct {
	Jobs []*types.Job `json:"jobs"`
}

// handleListJobs serves GET /jobs. With an authenticator configured
// the list is scoped to the caller's jobs; in single-operator mode it
// covers everything the tracker holds.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims := s.authenticate(r)
	if s.cfg.Auth != nil && claims == nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", types.ErrValidation))
			return
		}
		limit = parsed
	}

	owner := ""
	if claims != nil {
		owner = claims.DIDAddress
	}

	jobs := s.cfg.Jobs.List(owner, limit)
	if jobs == nil {
		jobs = []*types.Job{}
	}
	s.writeJSON(w, http.StatusOK, jobList{Jobs: jobs})
}

// handleJob serves GET and DELETE on /jobs/{jobId}.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		s.writeError(w, fmt.Errorf("%w: job id required", types.ErrValidation))
		return
	}

	switch r.Method {
	case http.MethodGet:
		// Job IDs are unguessable; holding one is taken as authority
		// to read it, matching the statusUrl handed out at submit.
		job, err := s.cfg.Jobs.Get(jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, job)

	case http.MethodDelete:
		claims := s.authenticate(r)
		if s.cfg.Auth != nil && claims == nil {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		job, err := s.cfg.Jobs.Get(jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if claims != nil && job.Owner != "" && job.Owner != claims.DIDAddress {
			s.writeError(w, fmt.Errorf("%w: job belongs to another caller", types.ErrOwnershipDenied))
			return
		}
		if err := s.cfg.Jobs.Cancel(jobID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": string(types.JobCancelled)})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
