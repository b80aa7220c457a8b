package health

import (
	"context"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service encapsulates health-related checks.
type Service struct {
	DB       Pinger
	Provider string
	Timeout  time.Duration
}

// NewService constructs a new health service. db may be nil when the
// process runs on the memory store.
func NewService(db Pinger, provider string) *Service {
	return &Service{DB: db, Provider: provider, Timeout: 2 * time.Second}
}

// Status reports whether the process can reach its dependencies.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	out := map[string]any{"ok": true, "provider": s.Provider}
	if s.DB == nil {
		out["database"] = "memory"
		return out, true
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		out["ok"] = false
		out["database"] = "unreachable"
		return out, false
	}
	out["database"] = "ok"
	return out, true
}
