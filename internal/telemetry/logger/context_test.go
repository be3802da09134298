package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestFromContext(t *testing.T) {
	l, buf := newBuffered(t, "info", "json")

	FromContext(WithLogger(context.Background(), l)).Info("hello")
	if buf.Len() == 0 {
		t.Error("logger from context produced no output")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield slog.Default")
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" || ConnIDFromContext(ctx) != "" {
		t.Fatal("empty context carries IDs")
	}
	ctx = WithConnID(WithRequestID(ctx, "req-1"), "01HZX")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request id = %q", got)
	}
	if got := ConnIDFromContext(ctx); got != "01HZX" {
		t.Errorf("conn id = %q", got)
	}
}

func TestL(t *testing.T) {
	tests := []struct {
		name      string
		requestID string
		connID    string
	}{
		{"no ids", "", ""},
		{"request id", "req-1", ""},
		{"conn id", "", "conn-1"},
		{"both", "req-2", "conn-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBuffered(t, "info", "json")
			ctx := WithLogger(context.Background(), l)
			if tt.requestID != "" {
				ctx = WithRequestID(ctx, tt.requestID)
			}
			if tt.connID != "" {
				ctx = WithConnID(ctx, tt.connID)
			}

			L(ctx).Info("hello")
			entry := decode(t, buf)
			for key, want := range map[string]string{"request_id": tt.requestID, "conn_id": tt.connID} {
				got, present := entry[key]
				if want == "" {
					if present {
						t.Errorf("%s present: %v", key, got)
					}
					continue
				}
				if got != want {
					t.Errorf("%s = %v, want %s", key, got, want)
				}
			}
		})
	}
}

func TestEnrich(t *testing.T) {
	l, buf := newBuffered(t, "info", "json")
	ctx := WithConnID(context.Background(), "01HZX")

	Enrich(ctx, l).Info("saved")
	if got := decode(t, buf)["conn_id"]; got != "01HZX" {
		t.Errorf("conn_id = %v", got)
	}

	buf.Reset()
	Enrich(context.Background(), l).Info("saved")
	if _, ok := decode(t, buf)["conn_id"]; ok {
		t.Error("conn_id attached without one in context")
	}
}
