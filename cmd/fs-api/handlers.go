package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"FlowSentry/internal/engine/manager"
	"FlowSentry/internal/model"
	"FlowSentry/internal/query"
	"FlowSentry/internal/report"
	"FlowSentry/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 32 << 20

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	manager        *manager.Manager
	previews       *store.Previews
	querier        query.Querier
	reportDir      string
	maxUploadBytes int64
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRouter(h *APIHandler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/batches", h.uploadHandler).Methods("POST")
	r.HandleFunc("/api/v1/batches/{id}", h.previewHandler).Methods("GET")
	r.HandleFunc("/api/v1/reports/{batch}/{name}", h.reportHandler).Methods("GET")
	r.HandleFunc("/api/v1/attackers", h.attackersHandler).Methods("GET")
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle("/metrics", metrics).Methods("GET")
	return r
}

// uploadHandler classifies an uploaded CSV table.
func (h *APIHandler) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part in the request")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "invalid file type, please upload a .csv file")
		return
	}

	name := report.SafeName(header.Filename)
	res, err := h.manager.ClassifyBatch(r.Context(), file, name)
	if err != nil {
		log.Printf("Batch '%s' failed: %v", name, err)
		status := http.StatusInternalServerError
		if model.IsInputError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	h.previews.Put(res.Preview)
	log.Printf("Batch %s ('%s'): %d flows, %d DDoS, %d alerts", res.Batch.ID, name,
		res.Batch.Summary.Total, res.Batch.Summary.DDoS, res.Batch.Summary.Alerts)
	writeJSON(w, http.StatusOK, res.Preview)
}

// previewHandler returns a cached batch preview.
func (h *APIHandler) previewHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := h.previews.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("batch '%s' not found", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// reportHandler serves a report file of one batch.
func (h *APIHandler) reportHandler(w http.ResponseWriter, r *http.Request) {
	batch, name := mux.Vars(r)["batch"], mux.Vars(r)["name"]
	if batch != report.SafeName(batch) || name != report.SafeName(name) ||
		!(strings.HasPrefix(name, report.FullPrefix) || strings.HasPrefix(name, report.AlertPrefix)) {
		writeError(w, http.StatusBadRequest, "invalid report name")
		return
	}

	f, err := os.Open(filepath.Join(h.reportDir, batch, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open report")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stat report")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// attackersHandler returns the cross-batch attacker ranking.
func (h *APIHandler) attackersHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		writeError(w, http.StatusServiceUnavailable, "attacker history requires the clickhouse sink")
		return
	}

	req := query.TopAttackersRequest{SourceName: r.URL.Query().Get("source")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		req.Limit = limit
	}

	attackers, err := h.querier.TopAttackers(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query attackers: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attackers": attackers})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
