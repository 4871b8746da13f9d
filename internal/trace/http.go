package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware continues or starts a trace for each HTTP request and echoes the trace id
// in the response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := FromMap(map[string]string{
			TraceparentKey: r.Header.Get(TraceparentKey),
			TraceIDKey:     r.Header.Get(TraceIDKey),
			SpanIDKey:      r.Header.Get(SpanIDKey),
		})
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// ExtractFromJSON reads trace_id from a WebSocket message, reporting whether one was set.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return Context{
		TraceID: msg.TraceID,
		SpanID:  generateSpanID(),
	}, true
}
