package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"payrecon/kit/observability"
)

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

type Result struct {
	At     time.Time         `json:"at"`
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// Service runs the registered checks concurrently and caches the result for
// ttl. Each check gets at most timeout.
type Service struct {
	logger  *zap.Logger
	checks  map[string]CheckFunc
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu          sync.Mutex
	nextCheckAt time.Time
	lastResult  Result
}

func NewService(ttl, timeout time.Duration, checks map[string]CheckFunc, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		logger:     observability.Component(logger, "service", "health"),
		checks:     checks,
		ttl:        ttl,
		timeout:    timeout,
		now:        time.Now,
		lastResult: Result{Checks: map[string]string{}},
	}
}

func (s *Service) Check(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().Before(s.nextCheckAt) {
		return s.lastResult
	}

	res := Result{At: s.now().UTC(), OK: true, Checks: make(map[string]string, len(s.checks))}
	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
	)
	for name, fn := range s.checks {
		if fn == nil {
			res.OK = false
			res.Checks[name] = "invalid check"
			continue
		}
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			err := fn(cctx)

			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				res.OK = false
				res.Checks[name] = err.Error()
				s.logger.Warn("check failed", zap.String("method", "Check"), zap.String("check", name), zap.Error(err))
				return
			}
			res.Checks[name] = "ok"
		}(name, fn)
	}
	wg.Wait()

	s.lastResult = res
	s.nextCheckAt = s.now().Add(s.ttl)
	return res
}
