package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/JonMunkholm/drupalmigrate/internal/source"
	"github.com/go-chi/chi/v5"
)

// maxMultipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const maxMultipartMemory = 32 << 20

var (
	errUnknownImporter = errors.New("unknown importer")
	errNoDrupalSource  = errors.New("drupal source not configured (set DRUPAL_DSN)")
	errNoSourceQuery   = errors.New("drupal source: importer has no source query")
	errNoFile          = errors.New("empty file: no export provided")
)

// runResponse is returned when a run started but aborted part way.
type runResponse struct {
	Report *core.Report   `json:"report"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

func (s *Server) handleListImporters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListImporters())
}

// handleStartRun runs an importer over an uploaded export (multipart "file"
// field or raw CSV body), or over the live Drupal database with ?from=drupal.
// ?preview=true resolves everything without writing.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	reg, ok := core.Get(key)
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s", errUnknownImporter, key), http.StatusNotFound)
		return
	}

	preview, err := parseBoolParam(r, "preview")
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var (
		input   core.RecordReader
		srcName string
	)
	if r.URL.Query().Get("from") == "drupal" {
		rows, err := s.openDrupal(r, reg.Info)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		defer rows.Close()
		input, srcName = rows, "drupal:"+reg.Info.Key
	} else {
		body, name, err := s.uploadedFile(w, r)
		if err != nil {
			respondError(w, r, err, uploadStatus(err))
			return
		}
		defer body.Close()

		csvr, err := source.NewCSVReader(body)
		if err != nil {
			respondError(w, r, err, uploadStatus(err))
			return
		}
		input, srcName = csvr, name
	}

	ctx := WithRequester(r.Context(), r)
	report, err := s.service.Import(ctx, key, input, core.RunRequest{
		Preview: preview,
		Source:  srcName,
	})
	if err != nil {
		if report == nil {
			respondError(w, r, err, statusFor(err))
			return
		}
		resp := newErrorResponse(err)
		writeJSON(w, statusFor(err), runResponse{Report: report, Error: &resp})
		return
	}

	status := http.StatusCreated
	if preview {
		status = http.StatusOK
	}
	writeJSON(w, status, report)
}

func (s *Server) openDrupal(r *http.Request, info core.ImporterInfo) (*source.RowsReader, error) {
	if s.drupal == nil {
		return nil, errNoDrupalSource
	}
	if info.Query == "" {
		return nil, errNoSourceQuery
	}
	return s.drupal.Query(r.Context(), info.Query)
}

// uploadedFile returns the export body, capped at the configured size.
func (s *Server) uploadedFile(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return nil, "", errNoFile
		}
		return r.Body, "upload", nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errNoFile, err)
	}
	return file, header.Filename, nil
}

// uploadStatus is 413 for an oversized body and 400 for anything else wrong
// with the upload.
func uploadStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)

	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRewriteRules serves a run's rewrite rules as a text file ready to
// paste into .htaccess.
func (s *Server) handleRewriteRules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	rules, err := s.service.RewriteRules(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rewrite-%s.txt"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rules)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s parameter %q", name, val)
	}
	return b, nil
}
