package handlers

import (
	"payrecon/internal/events"
	"payrecon/kit/broker"
)

// Set is the consumer handlers one process subscribes. Nil members are
// skipped.
type Set struct {
	Audit        *AuditEvent
	Metrics      *MetricsEvent
	Notification *NotificationEvent
	Recovery     *RecoveryEvent
}

func Register(bus *broker.Bus, s Set) {
	if s.Audit != nil {
		for _, evt := range events.All() {
			bus.Subscribe(evt.Name(), s.Audit.HandleAny)
		}
	}
	if s.Metrics != nil {
		bus.SubscribeAll(s.Metrics.HandleAny)
	}
	if s.Notification != nil {
		bus.Subscribe((events.DepositCompleted{}).Name(), s.Notification.HandleDepositCompleted)
		bus.Subscribe((events.PayoutCompleted{}).Name(), s.Notification.HandlePayoutCompleted)
		bus.Subscribe((events.PayoutFailed{}).Name(), s.Notification.HandlePayoutFailed)
		bus.Subscribe((events.PayoutStuck{}).Name(), s.Notification.HandlePayoutStuck)
	}
	if s.Recovery != nil {
		bus.Subscribe((events.RecoveryRequested{}).Name(), s.Recovery.HandleRecoveryRequested)
	}
}
