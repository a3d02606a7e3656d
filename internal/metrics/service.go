package metrics

import (
	"strings"

	"go.uber.org/zap"

	"payrecon/kit/observability"
)

const prefix = "payrecon_"

type Service struct {
	m      *observability.Metrics
	logger *zap.Logger
}

func NewService(m *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{m: m, logger: observability.Component(logger, "service", "metrics")}
}

// Snapshot returns the current value of every payrecon counter and gauge,
// keyed without the namespace. Labelled series are summed.
func (s *Service) Snapshot() map[string]float64 {
	out := map[string]float64{}
	if s.m == nil {
		return out
	}
	families, err := s.m.Registry.Gather()
	if err != nil {
		s.logger.Error("gather error", zap.String("method", "Snapshot"), zap.Error(err))
		return out
	}
	for _, mf := range families {
		name, ok := strings.CutPrefix(mf.GetName(), prefix)
		if !ok {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[name] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[name] += m.GetGauge().GetValue()
			}
		}
	}
	return out
}

// Log writes the snapshot at info level.
func (s *Service) Log() {
	snap := s.Snapshot()
	fields := make([]zap.Field, 0, len(snap)+1)
	fields = append(fields, zap.String("method", "Log"))
	for k, v := range snap {
		fields = append(fields, zap.Float64(k, v))
	}
	s.logger.Info("metrics snapshot", fields...)
}

// IncEvent counts one domain event by name.
func (s *Service) IncEvent(name string) {
	if s.m != nil {
		s.m.Events.WithLabelValues(name).Inc()
	}
}
