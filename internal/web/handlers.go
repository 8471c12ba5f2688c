package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spendlog/spendlog/internal/importer"
	"github.com/spendlog/spendlog/internal/report"
)

// handlePreview accepts a multipart upload, parses it, and opens an
// import session in the Preview state.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read file")
		return
	}

	resp, err := s.imports.Preview(r.Context(), userID(r), header.Filename, data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStart confirms the options and launches the run in the
// background. The response returns immediately; progress is streamed
// separately.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var opts importer.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid options payload")
		return
	}

	if err := s.imports.Start(r.Context(), userID(r), sessionID, opts); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": sessionID})
}

// handleProgress streams run progress via Server-Sent Events. Event ids
// are the progress percentage so a reconnecting client can skip events
// it already has via lastEventId.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	lastEventID, _ := strconv.Atoi(lastEventIDStr)

	progressCh, err := s.imports.SubscribeProgress(sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, open := <-progressCh:
			if !open {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if lastEventIDStr != "" && percent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleResult blocks until the run completes and returns the final
// counts and errors.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := s.imports.Result(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleErrorsCSV serves the downloadable error report for a completed
// run: row,message pairs in row order.
func (s *Server) handleErrorsCSV(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	errs, err := s.imports.Errors(sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="import-errors.csv"`)

	if err := report.WriteErrorsCSV(w, errs); err != nil {
		logError(r, err)
	}
}

// handleDiscard drops a session the user abandoned in Preview.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.imports.Discard(userID(r), sessionID); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExport serves the user's ledger as a flat CSV or a two-sheet
// workbook, in exactly the shape the importer accepts back.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	uid := userID(r)
	expenses, err := s.store.ListExpenses(r.Context(), uid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	categories, err := s.store.ListCategories(r.Context(), uid)
	if err != nil {
		respondError(w, r, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
		err = report.WriteExpensesCSV(w, expenses, categories)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.xlsx"`)
		err = report.WriteWorkbook(w, expenses, categories)
	default:
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
		return
	}
	if err != nil {
		logError(r, err)
	}
}

// handleListCategories returns the user's current category set, which the
// preview UI shows next to the mapping.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
