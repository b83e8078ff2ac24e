package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// listVisited handles GET /status/visited?limit=&offset=. It returns
// {"total": n, "visited": [...]} sorted by URL, or 400 for a bad page window.
func (s *Server) listVisited(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	visited := s.run.Store().ListVisited()
	sort.Slice(visited, func(i, j int) bool { return visited[i].URL < visited[j].URL })
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(visited),
		"visited": page(visited, limit, offset),
	})
}

// listErrored handles GET /status/errored?limit=&offset=.
func (s *Server) listErrored(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errored := s.run.Store().ListErrored()
	sort.Slice(errored, func(i, j int) bool { return errored[i].URL < errored[j].URL })
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(errored),
		"errored": page(errored, limit, offset),
	})
}

// listDeadLetters handles GET /status/dead-letters?limit=&offset=. Entries keep
// the order in which they were dead-lettered.
func (s *Server) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs := s.run.DeadLetters()
	dtos := make([]deadLetterDTO, 0, len(jobs))
	for _, job := range jobs {
		dto := deadLetterDTO{URL: job.Name, Attempts: job.RetryCount}
		if job.LastErr != nil {
			dto.LastError = job.LastErr.Error()
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":        len(dtos),
		"dead_letters": page(dtos, limit, offset),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

type deadLetterDTO struct {
	URL       string `json:"url"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}
