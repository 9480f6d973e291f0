package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/aora/pkg/metrics"
	"github.com/ssargent/aora/pkg/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Server holds the API server state
type Server struct {
	service *Service
	config  ServerConfig
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewServer creates a new API server. A nil logger discards request logs.
func NewServer(service *Service, config ServerConfig, metrics *metrics.Recorder, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		service: service,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RecordHealthCheck(true)
	}
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleAppend godoc
//
//	@Summary		Append a record
//	@Description	Append the request body as a new record and return its key
//	@Tags			records
//	@Accept			octet-stream
//	@Produce		json
//	@Param			body	body		[]byte	true	"Record"
//	@Success		201		{object}	AppendResponse
//	@Failure		413		{object}	map[string]string
//	@Failure		500		{object}	map[string]string
//	@Router			/records [post]
//	@Security		ApiKeyAuth
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, fmt.Sprintf("Record exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	key, err := s.service.Append(body)
	if err != nil {
		s.logger.Error("append failed", "error", err)
		sendError(w, fmt.Sprintf("Failed to append record: %v", err), http.StatusInternalServerError)
		return
	}

	sendCreated(w, AppendResponse{Key: key})
}

// handleGet godoc
//
//	@Summary		Get a record
//	@Description	Return the raw bytes of the record stored under key
//	@Tags			records
//	@Produce		octet-stream
//	@Param			key	path		string	true	"Key"
//	@Success		200	{string}	string
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/records/{key} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	value, found, err := s.service.Get(key)
	switch {
	case errors.Is(err, ErrInvalidKey):
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error("get failed", "key", key, "error", err)
		sendError(w, fmt.Sprintf("Failed to get record: %v", err), http.StatusInternalServerError)
		return
	case !found:
		sendError(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(value)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

// handleList godoc
//
//	@Summary		List keys
//	@Description	List keys in insertion order, one page at a time
//	@Tags			records
//	@Produce		json
//	@Param			offset	query		int	false	"Keys to skip"
//	@Param			limit	query		int	false	"Page size (max 1000)"
//	@Success		200		{object}	ListResponse
//	@Failure		400		{object}	map[string]string
//	@Router			/records [get]
//	@Security		ApiKeyAuth
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		sendError(w, "Invalid offset", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		sendError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	keys, total := s.service.Keys(offset, limit)
	if keys == nil {
		keys = []string{}
	}
	sendSuccess(w, ListResponse{Keys: keys, Total: total, Offset: offset, Limit: limit})
}

// handleStats godoc
//
//	@Summary		Get store statistics
//	@Description	Key and record counts, log size and the outcome of recovery
//	@Tags			diagnostics
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Router			/stats [get]
//	@Security		ApiKeyAuth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, newStatsResponse(s.service))
}

func newStatsResponse(svc *Service) StatsResponse {
	stats := svc.Stats()
	resp := StatsResponse{
		KeyMode:  svc.KeyMode(),
		Keys:     stats.Keys,
		Records:  stats.Records,
		DataSize: stats.DataSize,
	}
	if rec := svc.Recovery(); rec != nil {
		resp.Recovery = newRecoveryResponse(rec)
	}
	return resp
}

func newRecoveryResponse(rec *store.RecoveryResult) RecoveryResponse {
	path := make([]string, len(rec.Path))
	for i, state := range rec.Path {
		path[i] = state.String()
	}
	return RecoveryResponse{
		State:            rec.State().String(),
		Path:             path,
		RecordsValidated: rec.RecordsValidated,
		BytesTruncated:   rec.BytesTruncated,
		RecoveryTime:     rec.RecoveryTime,
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
