package httpapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/gateway"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		observ.Error("http_encode_failed", err, nil)
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// isCallerError reports whether err is the caller's fault rather than ours.
func isCallerError(err error) bool {
	return errors.Is(err, gateway.ErrEmptySymbol) ||
		errors.Is(err, gateway.ErrInvalidSymbol) ||
		errors.Is(err, gateway.ErrInvalidRange) ||
		errors.Is(err, gateway.ErrEmptyQuery)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isCallerError(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// client went away; nobody reads the body
		observ.Debug("http_request_canceled", map[string]any{"path": r.URL.Path})
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request canceled"})
	default:
		observ.Error("http_handler_failed", err, map[string]any{"path": r.URL.Path})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Fields: fields})
}

func sortedQuotes(quotes map[string]*adapters.Quote) []*adapters.Quote {
	out := make([]*adapters.Quote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

// statusRecorder captures the response status. It passes Hijack through
// so the websocket upgrade still works behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
