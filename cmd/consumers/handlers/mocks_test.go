package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"payrecon/internal/payout"
)

type AuditorMock struct {
	mock.Mock
	AuditorContract
}

func (m *AuditorMock) Record(ctx context.Context, eventName string, fields map[string]any) {
	m.Called(ctx, eventName, fields)
}

type NotifierMock struct {
	mock.Mock
	NotifierContract
}

func (m *NotifierMock) Notify(ctx context.Context, accountID, transactionID, text string) {
	m.Called(ctx, accountID, transactionID, text)
}

type MetricsMock struct {
	mock.Mock
	MetricsContract
}

func (m *MetricsMock) IncEvent(name string) {
	m.Called(name)
}

type RecovererMock struct {
	mock.Mock
	RecovererContract
}

func (m *RecovererMock) Recover(ctx context.Context) (*payout.RecoverReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.RecoverReport), args.Error(1)
}
