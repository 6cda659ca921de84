package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
	// TimeoutMS overrides the default query timeout for this call only.
	// Zero is honoured as an immediate timeout.
	TimeoutMS *int64 `json:"timeout_ms,omitempty"`
}

// QueryResponse is the success body of POST /query.
type QueryResponse struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Operation string `json:"operation,omitempty"`
	MS        int64  `json:"ms,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body QueryRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errs.ErrKindInvalidInput.String(), "invalid JSON body: "+err.Error())
		return
	}

	req, err := toRequest(body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	res, err := s.guard.Do(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Columns:  res.Columns,
		Rows:     res.Rows,
		RowCount: res.Len(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.guard.Do(r.Context(), database.NewRequest("SELECT 1")); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.guard.Stats())
}

// toRequest validates body and converts JSON numbers in args to int64 or
// float64 so drivers can bind them.
func toRequest(body QueryRequest) (database.Request, error) {
	if body.SQL == "" {
		return database.Request{}, errs.New(errs.ErrKindInvalidInput, "sql is required")
	}

	args := make([]any, len(body.Args))
	for i, a := range body.Args {
		args[i] = normalizeArg(a)
	}
	req := database.NewRequest(body.SQL, args...)

	if body.TimeoutMS != nil {
		if *body.TimeoutMS < 0 {
			return database.Request{}, errs.New(errs.ErrKindInvalidInput, "timeout_ms must not be negative")
		}
		req = req.WithTimeout(time.Duration(*body.TimeoutMS) * time.Millisecond)
	}
	return req, nil
}

func normalizeArg(a any) any {
	n, ok := a.(json.Number)
	if !ok {
		return a
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// writeFailure maps err to a status. Guard timeouts answer 504 with the
// phase and bound; driver errors answer by kind.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	id := requestID(r.Context())

	if te, ok := database.AsTimeout(err); ok {
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{
			Error:     te.Error(),
			Kind:      errs.ErrKindTimeout.String(),
			Operation: string(te.Operation),
			MS:        te.Timeout.Milliseconds(),
			RequestID: id,
		})
		return
	}

	kind := errs.KindOf(err)
	if kind == errs.ErrKindUnknown {
		kind = s.classify(err)
	}
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("query failed", err, map[string]interface{}{"request_id": id, "kind": kind.String()})
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Kind:      kind.String(),
		RequestID: id,
	})
}

func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput, errs.ErrKindQueryFailed:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // connection may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}
