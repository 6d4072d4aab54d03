package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithRequestLogging(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"client error", http.StatusNotFound, zapcore.WarnLevel},
		{"server error", http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := WithRequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("hello"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/chat/d1?x=1", nil)
			req = req.WithContext(WithSessionID(req.Context(), "sid-1"))
			h.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			e := entries[0]
			if e.Level != tc.wantLevel {
				t.Errorf("level = %v; want %v", e.Level, tc.wantLevel)
			}
			fields := e.ContextMap()
			if fields["uri"] != "/chat/d1?x=1" || fields["status"] != int64(tc.status) || fields["size"] != int64(5) {
				t.Errorf("fields = %v", fields)
			}
			if fields["sid"] != "sid-1" {
				t.Errorf("sid = %v; want sid-1", fields["sid"])
			}
		})
	}
}
