package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"payrecon/kit/observability"
)

// Entry is one line of the audit trail.
type Entry struct {
	At     time.Time      `json:"at"`
	Event  string         `json:"event"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Service records domain events to the log and, when opened with a path, to
// an append-only JSONL file.
type Service struct {
	logger *zap.Logger
	now    func() time.Time

	fileMu sync.Mutex
	f      *os.File
}

func NewService(logger *zap.Logger) *Service {
	return &Service{logger: observability.Component(logger, "service", "audit"), now: time.Now}
}

func NewServiceWithFile(logger *zap.Logger, path string) (*Service, error) {
	s := NewService(logger)
	log := s.logger.With(zap.String("method", "NewServiceWithFile"), zap.String("path", path))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Error("audit error", zap.Error(err))
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error("audit error", zap.Error(err))
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *Service) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	if err != nil {
		s.logger.Error("audit error", zap.String("method", "Close"), zap.Error(err))
	}
	s.f = nil
	return err
}

func (s *Service) Record(ctx context.Context, eventName string, fields map[string]any) {
	s.logger.Info("audit", zap.String("event", eventName), zap.Any("fields", fields))

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.f == nil {
		return
	}
	b, err := json.Marshal(Entry{At: s.now().UTC(), Event: eventName, Fields: fields})
	if err != nil {
		s.logger.Error("audit error", zap.String("method", "Record"), zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		s.logger.Error("audit error", zap.String("method", "Record"), zap.String("event", eventName), zap.Error(err))
	}
}
