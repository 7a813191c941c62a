package ngsi

// NotificationMessage is the body the broker POSTs to notification
// targets, and the payload accepted by time-series sinks such as
// QuantumLeap's notify endpoint.
type NotificationMessage struct {
	SubscriptionID string   `json:"subscriptionId" yaml:"subscriptionId"`
	Data           []Entity `json:"data"           yaml:"data"`
}

// Validate checks that the message references its subscription and
// carries at least one entity.
func (m *NotificationMessage) Validate() error {
	if m.SubscriptionID == "" {
		return &ValidationError{Field: "subscriptionId", Reason: "must not be empty"}
	}

	if len(m.Data) == 0 {
		return &ValidationError{Field: "data", Reason: "at least one entity is required"}
	}

	return nil
}
