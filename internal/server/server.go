// Package server exposes code execution and registered-file retrieval
// over a local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/config"
	"github.com/codefionn/kernelrunner/internal/gateway"
	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/registry"
	"github.com/codefionn/kernelrunner/internal/storage"
	"github.com/codefionn/kernelrunner/internal/workspace"
	"github.com/julienschmidt/httprouter"
)

// Server provides the HTTP interface for code execution.
type Server struct {
	addr   string
	cfg    *config.Config
	chats  chatstore.Store
	files  registry.Registry
	blobs  storage.Provider
	router *httprouter.Router
	server *http.Server
	log    *logger.Logger
}

// New creates a server listening on addr.
func New(addr string, cfg *config.Config, chats chatstore.Store, files registry.Registry, blobs storage.Provider) *Server {
	s := &Server{
		addr:   addr,
		cfg:    cfg,
		chats:  chats,
		files:  files,
		blobs:  blobs,
		router: httprouter.New(),
		log:    logger.Global().WithPrefix("server"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.POST("/api/v1/execute", s.handleExecute)
	s.router.GET("/api/v1/files/:id/content", s.handleFileContent)
	s.router.GET("/healthz", s.handleHealth)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	s.log.Info("starting server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type executeRequest struct {
	Code   string `json:"code"`
	ChatID string `json:"chat_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	pred := workspace.TrackPredicate{
		FormatKeywords: s.cfg.FormatKeywords,
		SaveKeywords:   s.cfg.SaveKeywords,
	}
	session := gateway.NewSession(gateway.Options{
		GatewayURL:        s.cfg.GatewayURL,
		Code:              req.Code,
		Token:             s.cfg.Token,
		Timeout:           time.Duration(s.cfg.TimeoutSeconds) * time.Second,
		KernelName:        s.cfg.KernelName,
		Username:          s.cfg.Username,
		ChatID:            req.ChatID,
		UserID:            req.UserID,
		DataDir:           s.cfg.DataDir,
		KernelInitCode:    s.cfg.KernelInitCode,
		Chats:             s.chats,
		Files:             s.files,
		Blobs:             s.blobs,
		TrackedExtensions: s.cfg.TrackedExtensions,
		TrackPredicate:    &pred,
	})

	result := session.Run(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")

	record, err := s.files.LookupByID(r.Context(), id)
	if err != nil {
		s.log.Error("file lookup %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "file lookup failed")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	path, err := s.blobs.Resolve(record.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file storage path not found")
		return
	}

	if ct, ok := record.Meta["content_type"].(string); ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
