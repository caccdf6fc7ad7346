package routing

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    ErrorEnvelopeMeta `json:"meta"`
	Details any               `json:"details,omitempty"`
}

type ErrorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func WriteError(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string) {
	WriteErrorDetails(w, r, rc, status, code, message, nil)
}

// WriteErrorDetails writes the error envelope with an extra details payload.
// Details are dropped from HTML responses.
func WriteErrorDetails(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string, details any) {
	message = normalizeErrorMessage(code, message)
	if isJSONOnly(rc) || wantsJSON(r) {
		WriteJSON(w, status, ErrorEnvelope{
			Code:    code,
			Message: message,
			TraceID: traceIDFromRequest(r),
			Meta: ErrorEnvelopeMeta{
				Path:   r.URL.Path,
				Method: r.Method,
			},
			Details: details,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<!doctype html><html><body>"))
	_, _ = w.Write([]byte(html.EscapeString(message)))
	_, _ = w.Write([]byte("</body></html>"))
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json" || r.Header.Get("Accept") == "application/json; charset=utf-8"
}

func isJSONOnly(rc RouteClass) bool {
	return rc == RouteClassInternalAPI || rc == RouteClassPublicAPI || rc == RouteClassOps
}

func traceIDFromRequest(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}

func normalizeErrorMessage(code string, message string) string {
	if !isGenericErrorMessage(code, message) {
		return message
	}
	if known := knownErrorMessage(code); known != "" {
		return known
	}
	return humanizeErrorCode(code)
}

func isGenericErrorMessage(code string, message string) bool {
	m := strings.TrimSpace(message)
	if m == "" {
		return true
	}
	if strings.EqualFold(m, strings.TrimSpace(code)) {
		return true
	}
	if m == "internal_error" {
		return true
	}
	if !strings.Contains(m, " ") && strings.Contains(m, "_") {
		return true
	}
	words := strings.Fields(m)
	last := strings.ToLower(words[len(words)-1])
	return len(words) <= 3 && (last == "failed" || last == "error")
}

func knownErrorMessage(code string) string {
	switch strings.TrimSpace(code) {
	case "unauthorized":
		return "Session expired, sign in again."
	case "forbidden":
		return "You do not have permission to perform this action."
	case "invalid_request":
		return "The request is invalid. Check the input and retry."
	case "validation_failed":
		return "Some fields are invalid. Fix them and submit again."
	case "submit_in_progress":
		return "A save is already in progress."
	case "fetch_failed":
		return "Failed to load the auth hooks configuration."
	case "submit_failed":
		return "Failed to save the auth hooks configuration."
	case "session_not_found":
		return "The editing session was not found. Open a new one."
	case "session_closed":
		return "The editing session is closed."
	default:
		return ""
	}
}

func humanizeErrorCode(code string) string {
	code = strings.TrimSpace(code)
	words := strings.FieldsFunc(code, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	if len(words) == 0 {
		return "Request failed."
	}
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	if len(words) == 1 && (words[0] == "failed" || words[0] == "error") {
		return "Request " + words[0] + "."
	}
	s := titleCaseWords(words)
	return capitalizeWord(s) + "."
}

func titleCaseWords(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		switch w {
		case "api", "db", "uuid", "uri", "url", "id", "http", "jwt":
			out[i] = strings.ToUpper(w)
		default:
			out[i] = w
		}
	}
	if len(out) > 0 {
		out[0] = capitalizeWord(out[0])
	}
	return strings.Join(out, " ")
}

func capitalizeWord(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
