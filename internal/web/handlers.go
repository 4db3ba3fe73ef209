package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finsightlab/finsight/internal/detect"
	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/logging"
	"github.com/finsightlab/finsight/internal/session"
	mw "github.com/finsightlab/finsight/internal/web/middleware"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart file upload and opens an import session.
// The response carries the detected mapping and the full preview.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: file too large or invalid form", errBadRequest))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	sess, err := s.svc.Upload(r.Context(), owner, header.Filename, data)
	if err != nil {
		// The session survives in failed state; expose its id so the
		// client can still inspect it.
		if sess != nil {
			w.Header().Set("X-Import-Session", sess.ID.String())
		}
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, sess)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())

	limit := s.cfg.Import.SessionListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, r, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))
			return
		}
		limit = min(n, s.cfg.Import.SessionListLimit)
	}

	sessions, err := s.svc.ListSessions(r.Context(), owner, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	id, err := pathUUID(r, "sessionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess, err := s.svc.GetPreview(r.Context(), owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// handleUpdateMapping applies manual column role overrides and returns the
// reprocessed preview.
func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	id, err := pathUUID(r, "sessionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		Overrides map[detect.Role]int `json:"overrides"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid mapping body: %v", errBadRequest, err))
		return
	}
	if len(req.Overrides) == 0 {
		s.respondError(w, r, fmt.Errorf("%w: overrides must not be empty", errBadRequest))
		return
	}

	sess, err := s.svc.UpdateMapping(r.Context(), owner, id, req.Overrides)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	id, err := pathUUID(r, "sessionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var opts session.ConfirmOptions
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			s.respondError(w, r, fmt.Errorf("%w: invalid confirm body: %v", errBadRequest, err))
			return
		}
	}

	result, err := s.svc.Confirm(r.Context(), owner, id, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	id, err := pathUUID(r, "sessionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.svc.Cancel(r.Context(), owner, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionTransactions(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	id, err := pathUUID(r, "sessionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	txs, err := s.dir.ListSessionTransactions(r.Context(), owner, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())

	entities, err := s.dir.ListEntities(r.Context(), owner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entities": entities})
}

// handleCreateEntity registers a counterparty up front so corrections can
// target it before any import has resolved to it. Idempotent per
// normalized name.
func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())

	var req struct {
		Name string            `json:"name"`
		Type ledger.EntityType `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid entity body: %v", errBadRequest, err))
		return
	}
	if req.Name == "" {
		s.respondError(w, r, fmt.Errorf("%w: entity name is required", errBadRequest))
		return
	}
	switch req.Type {
	case ledger.EntityCustomer, ledger.EntitySupplier, ledger.EntityBoth:
	case "":
		req.Type = ledger.EntityBoth
	default:
		s.respondError(w, r, fmt.Errorf("%w: type must be customer, supplier, or both", errBadRequest))
		return
	}

	ent, err := s.dir.EnsureEntity(r.Context(), owner, req.Name, req.Type)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())

	categories, err := s.dir.Categories(r.Context(), owner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())

	var req struct {
		Name string              `json:"name"`
		Kind ledger.CategoryKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid category body: %v", errBadRequest, err))
		return
	}
	if req.Name == "" {
		s.respondError(w, r, fmt.Errorf("%w: category name is required", errBadRequest))
		return
	}
	switch req.Kind {
	case ledger.CategoryExpense, ledger.CategoryRevenue:
	default:
		s.respondError(w, r, fmt.Errorf("%w: kind must be expense or revenue", errBadRequest))
		return
	}

	cat, err := s.dir.CreateCategory(r.Context(), owner, req.Name, req.Kind)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, cat)
}

// handleCorrectEntity pins a transaction to an entity and records the
// correction rule for future imports.
func (s *Server) handleCorrectEntity(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	txID, err := pathUUID(r, "transactionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		EntityID uuid.UUID `json:"entity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntityID == uuid.Nil {
		s.respondError(w, r, fmt.Errorf("%w: entity_id is required", errBadRequest))
		return
	}

	if err := s.svc.CorrectEntity(r.Context(), owner, txID, req.EntityID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCorrectCategory(w http.ResponseWriter, r *http.Request) {
	owner, _ := mw.OwnerFromContext(r.Context())
	txID, err := pathUUID(r, "transactionID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		CategoryID uuid.UUID `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CategoryID == uuid.Nil {
		s.respondError(w, r, fmt.Errorf("%w: category_id is required", errBadRequest))
		return
	}

	if err := s.svc.CorrectCategory(r.Context(), owner, txID, req.CategoryID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses a UUID URL parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

// writeJSON encodes v as JSON. Encoding errors are logged since headers are
// already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode", "error", err)
	}
}
