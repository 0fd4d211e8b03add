package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
)

// expenseRequest is the body of POST and PUT /api/expenses. Amount may be a
// JSON number or a string such as "12,50".
type expenseRequest struct {
	ID          string          `json:"id"`
	Description *string         `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Category    *string         `json:"category"`
	Date        *string         `json:"date"`
}

func parseAmountField(raw json.RawMessage) (*decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, &core.ValidationError{Field: "amount", Reason: "not a number"}
		}
	}
	d, err := core.ParseAmount(text)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDateField(s *string) (*core.Date, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := core.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (req expenseRequest) toNewExpense() (ledger.NewExpense, error) {
	var in ledger.NewExpense
	amount, err := parseAmountField(req.Amount)
	if err != nil {
		return in, err
	}
	if amount == nil {
		return in, &core.ValidationError{Field: "amount", Reason: "is required"}
	}
	date, err := parseDateField(req.Date)
	if err != nil {
		return in, err
	}

	in.Amount = *amount
	if req.Description != nil {
		in.Description = sanitizeInput(*req.Description)
	}
	if req.Category != nil {
		in.Category = sanitizeInput(*req.Category)
	}
	if date != nil {
		in.Date = *date
	}
	return in, nil
}

func (req expenseRequest) toPatch() (ledger.Patch, error) {
	var p ledger.Patch
	amount, err := parseAmountField(req.Amount)
	if err != nil {
		return p, err
	}
	date, err := parseDateField(req.Date)
	if err != nil {
		return p, err
	}
	p.Amount = amount
	p.Date = date
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		p.Description = &d
	}
	if req.Category != nil {
		c := sanitizeInput(*req.Category)
		p.Category = &c
	}
	return p, nil
}

// handleExpenses serves the record collection. Methods other than GET, POST,
// PUT and DELETE get 405 with an Allow header.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
		return
	}

	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := log.WithContext(r.Context(), log.FromContext(r.Context()).With(log.FieldUserID, uid))
	r = r.WithContext(ctx)

	switch r.Method {
	case http.MethodGet:
		s.listExpenses(w, r, uid)
	case http.MethodPost:
		s.createExpense(w, r, uid)
	case http.MethodPut:
		s.updateExpense(w, r, uid)
	case http.MethodDelete:
		s.deleteExpense(w, r, uid)
	}
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request, uid string) {
	items, err := s.svc.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": items})
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request, uid string) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	in, err := req.toNewExpense()
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.svc.Add(r.Context(), uid, in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Expense created", Expense: &created})
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request, uid string) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		id = strings.TrimSpace(req.ID)
	}
	if id == "" {
		writeError(w, r, log.OpUpdate, &core.ValidationError{Field: "id", Reason: "is required"})
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	updated, err := s.svc.Update(r.Context(), uid, id, patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense updated", Expense: &updated})
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request, uid string) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, r, log.OpDelete, &core.ValidationError{Field: "id", Reason: "is required"})
		return
	}
	if err := s.svc.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense deleted"})
}
