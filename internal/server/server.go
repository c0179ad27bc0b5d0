package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ragchat/internal/service"
)

// Server exposes the retrieval pipeline over the JSON HTTP surface:
// POST /upload, POST /chat, POST /guardrails. Internal error details never
// reach the response body; they are logged and a generic 500 is returned.
type Server struct {
	pipeline   *service.Pipeline
	uploadsDir string
	log        *slog.Logger
}

func New(pipeline *service.Pipeline, uploadsDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pipeline: pipeline, uploadsDir: uploadsDir, log: logger}
}

// Router builds the chi handler with permissive CORS, matching the
// browser-facing deployment this backend was written for.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	r.Post("/upload", s.handleUpload)
	r.Post("/chat", s.handleChat)
	r.Post("/guardrails", s.handleGuardrails)
	return r
}

type chatRequest struct {
	Message string `json:"message"`
}

type guardrailsRequest struct {
	Settings string `json:"settings"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		s.internalError(w, "upload", err)
		return
	}
	dst := filepath.Join(s.uploadsDir, name)
	out, err := os.Create(dst)
	if err != nil {
		s.internalError(w, "upload", err)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.internalError(w, "upload", err)
		return
	}
	if err := out.Close(); err != nil {
		s.internalError(w, "upload", err)
		return
	}

	count, err := s.pipeline.Ingest(r.Context(), dst)
	if err != nil {
		s.internalError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File '%s' uploaded successfully. Indexed %d chunks.", name, count),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	reply, err := s.pipeline.Respond(r.Context(), req.Message)
	if err != nil {
		s.internalError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleGuardrails(w http.ResponseWriter, r *http.Request) {
	var req guardrailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.pipeline.SetGuardrails(req.Settings); err != nil {
		s.internalError(w, "guardrails", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Guardrails saved successfully."})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", "op", op, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
