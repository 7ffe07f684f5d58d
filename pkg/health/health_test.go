package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical bool
		err      error
		want     Status
	}{
		{"all up", true, nil, StatusUp},
		{"optional down", false, errors.New("refused"), StatusDegraded},
		{"critical down", true, errors.New("refused"), StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.Register("index", func(ctx context.Context) ComponentHealth {
				return ComponentHealth{Status: StatusUp}
			})
			c.RegisterPinger("redis", pingerFunc(func(context.Context) error { return tt.err }), tt.critical)
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != 2 {
				t.Errorf("components = %d", len(report.Components))
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterPinger("postgres", pingerFunc(func(context.Context) error { return errors.New("down") }), true)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Components["postgres"].Message != "down" {
		t.Errorf("message = %q", report.Components["postgres"].Message)
	}
}
