package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/dgallion1/wikiport/internal/dokuwiki"
	"github.com/dgallion1/wikiport/internal/parser"
)

// maxConvertBytes bounds a single ad-hoc conversion request.
const maxConvertBytes = 8 << 20

// handleConvert converts one markup document in the request body and
// returns the DokuWiki text. Nothing is written to the wiki.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	format := parser.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = formatFromContentType(r.Header.Get("Content-Type"))
	}
	if _, err := parser.ForFormat(format, nil); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	title := r.URL.Query().Get("title")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConvertBytes))
	if err != nil {
		jsonError(w, "failed to read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	start := time.Now()
	res, err := s.conv.ConvertSource(bytes.NewReader(body), format, title)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.orchestrator.Stats().Since(start, 1, res.Warnings)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"title":    title,
		"format":   format,
		"dokuwiki": res.Text,
		"warnings": res.Warnings,
	})
}

func formatFromContentType(ct string) parser.Format {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return parser.FormatWikitext
	}
	switch mt {
	case "text/markdown", "text/x-markdown":
		return parser.FormatMarkdown
	case "text/html":
		return parser.FormatHTML
	case "text/csv":
		return parser.FormatCSV
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return parser.FormatDOCX
	case "application/pdf":
		return parser.FormatPDF
	}
	return parser.FormatWikitext
}

// handleRebuildChanges regenerates both aggregate change logs from the
// per-page indexes on disk. It refuses to run while an import is queued
// or running, since the indexes would still be incomplete.
func (s *Server) handleRebuildChanges(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator.Busy() {
		jsonError(w, "an import is in progress; retry when it completes", http.StatusConflict)
		return
	}
	store, err := dokuwiki.Open(s.cfg.Root, s.conv, s.log)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pages, err := store.RebuildChanges(r.Context())
	if err != nil {
		jsonError(w, "rebuild page changes: "+err.Error(), http.StatusInternalServerError)
		return
	}
	media, err := store.RebuildMediaChanges(r.Context())
	if err != nil {
		jsonError(w, "rebuild media changes: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"page_entries":  pages,
		"media_entries": media,
	})
}
