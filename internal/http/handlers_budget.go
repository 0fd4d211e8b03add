package http

import (
	"net/http"
	"strconv"
	"strings"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/stats"
)

// maxTrendMonths bounds ?months= on /api/stats.
const maxTrendMonths = 60

// handleBudgets reads (GET) or replaces (PUT) the budget mapping. The PUT body
// is the mapping itself, category to amount.
func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
		return
	}
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPut {
		var b core.Budgets
		if err := decodeJSON(w, r, &b); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		if err := s.svc.SetBudgets(r.Context(), uid, b); err != nil {
			writeError(w, r, log.OpBudgets, err)
			return
		}
	}

	b, err := s.svc.Budgets(r.Context(), uid)
	if err != nil {
		writeError(w, r, log.OpBudgets, err)
		return
	}
	if b == nil {
		b = core.Budgets{}
	}
	resp := map[string]any{"budgets": b}
	if r.Method == http.MethodPut {
		resp["message"] = "Budgets updated"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStats returns the dashboard summary. ?months= sets the trend length.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	months := stats.DefaultTrendMonths
	if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTrendMonths {
			writeError(w, r, log.OpRead, &core.ValidationError{
				Field:  "months",
				Reason: "must be between 1 and " + strconv.Itoa(maxTrendMonths),
			})
			return
		}
		months = n
	}

	summary, err := s.svc.Summary(r.Context(), uid, months)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExport downloads the user's records. ?format= picks csv (default),
// json or yaml.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	export, err := s.svc.Export(r.Context(), uid, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Body)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := requireUser(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.svc.Categories()})
}
