package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/crmbridge/sql-to-soql/lib/plog"
	"github.com/crmbridge/sql-to-soql/lib/salesforce"
	"github.com/crmbridge/sql-to-soql/lib/schema"
	"github.com/crmbridge/sql-to-soql/lib/soql"
)

// Config is the service configuration, read from a JSON file. Tables is the
// inline schema mapping; SchemaFile points at a schema document instead and
// enables live reload. Salesforce is optional: without it the service only
// translates.
type Config struct {
	ListenAddr  string               `json:"listenAddr"`
	SchemaFile  string               `json:"schemaFile"`
	Tables      map[string][]string  `json:"tables"`
	ForeignKeys []schema.ForeignKey  `json:"foreignKeys"`
	Limit       int                  `json:"limit"`
	EnsureID    *bool                `json:"ensureId"`
	Salesforce  *salesforce.Config   `json:"salesforce"`
	LogLevel    string               `json:"logLevel"`
}

// Server handles the translation API.
type Server struct {
	mux     *http.ServeMux
	store   *schema.Store
	watcher *schema.Watcher
	sf      *salesforce.Client
	opts    soql.Options
	log     plog.Logger
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config, logger plog.Logger) (*Server, error) {
	if logger == nil {
		logger = plog.Nop{}
	}

	var store *schema.Store
	var err error
	if strings.TrimSpace(cfg.SchemaFile) != "" {
		store, err = schema.LoadFile(cfg.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema file: %w", err)
		}
	} else {
		store, err = schema.NewStore(cfg.Tables, cfg.ForeignKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to create schema store: %w", err)
		}
	}

	ensureID := true
	if cfg.EnsureID != nil {
		ensureID = *cfg.EnsureID
	}

	srv := &Server{
		mux:   http.NewServeMux(),
		store: store,
		opts: soql.Options{
			Schema:       store,
			EnsureID:     ensureID,
			DefaultLimit: cfg.Limit,
		},
		log: logger,
	}

	if cfg.Salesforce != nil {
		sfCfg := *cfg.Salesforce
		sfCfg.FromEnv()
		srv.sf = salesforce.NewClient(sfCfg, logger)
	}

	if strings.TrimSpace(cfg.SchemaFile) != "" {
		srv.watcher, err = schema.WatchFile(store, cfg.SchemaFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to watch schema file: %w", err)
		}
	}

	srv.mux.HandleFunc("/healthz", withSecurityHeaders(srv.handleHealth))
	srv.mux.HandleFunc("/api/v1/sql-to-soql", withSecurityHeaders(srv.handleQuery))
	srv.mux.HandleFunc("/api/v1/tables", withSecurityHeaders(srv.handleTables))
	srv.mux.HandleFunc("/api/v1/config", withSecurityHeaders(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		srv.writeJSON(w, http.StatusOK, map[string]any{
			"limit":    cfg.Limit,
			"ensureId": ensureID,
			"execute":  srv.sf != nil,
		})
	}))
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops the schema watcher, if one is running.
func (s *Server) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Server) setSalesforceHTTPClient(client *http.Client) {
	if s.sf != nil {
		s.sf.SetHTTPClient(client)
	}
}

// withSecurityHeaders middleware adds security headers to responses
func withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next(w, r)
	}
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	SOQL  string              `json:"soql,omitempty"`
	Table string              `json:"table,omitempty"`
	Data  []salesforce.Record `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("failed to decode request: %v", err)
		s.writeJSON(w, http.StatusBadRequest, queryResponse{Error: "invalid request payload"})
		return
	}
	sqlText := strings.TrimSpace(req.SQL)
	if sqlText == "" {
		s.writeJSON(w, http.StatusBadRequest, queryResponse{Error: "sql query is required"})
		return
	}

	result, err := soql.Translate(sqlText, s.opts)
	if err != nil {
		s.log.Errorf("translation failed: %v", err)
		s.writeError(w, err, "translation failed")
		return
	}

	resp := queryResponse{SOQL: result.SOQL, Table: result.Table}
	if s.sf != nil {
		records, err := s.sf.Query(r.Context(), result.SOQL)
		if err != nil {
			s.log.Errorf("query execution failed: %v", err)
			s.writeError(w, err, "query execution failed")
			return
		}
		resp.Data = records
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error, fallback string) {
	var te *soql.TranslationError
	var ae *salesforce.APIError
	switch {
	case errors.As(err, &te):
		s.writeJSON(w, te.Code, queryResponse{Error: te.Message})
	case errors.As(err, &ae):
		s.writeJSON(w, ae.Code, queryResponse{Error: ae.Message})
	default:
		s.writeJSON(w, http.StatusInternalServerError, queryResponse{Error: fallback})
	}
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tables := make(map[string][]string)
	for _, name := range s.store.Tables() {
		cols, _ := s.store.ColumnsFor(name)
		tables[name] = cols
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("failed to encode JSON response: %v", err)
	}
}
