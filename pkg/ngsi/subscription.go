package ngsi

import (
	"fmt"
	"net/url"
	"time"
)

// SubscriptionStatus is the broker-observed lifecycle state of a
// subscription. The broker drives the transitions; clients only set
// active or inactive through explicit updates.
type SubscriptionStatus string

// Subscription states.
const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionFailed   SubscriptionStatus = "failed"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionOneshot  SubscriptionStatus = "oneshot"
)

// AttrsFormat selects the entity representation used in notifications.
type AttrsFormat string

// Notification payload formats.
const (
	AttrsFormatNormalized AttrsFormat = "normalized"
	AttrsFormatKeyValues  AttrsFormat = "keyValues"
	AttrsFormatValues     AttrsFormat = "values"
)

// SubjectEntity selects the entities a subscription watches, either by
// explicit id or by pattern.
type SubjectEntity struct {
	ID          string `json:"id,omitempty"          yaml:"id,omitempty"`
	IDPattern   string `json:"idPattern,omitempty"   yaml:"idPattern,omitempty"`
	Type        string `json:"type,omitempty"        yaml:"type,omitempty"`
	TypePattern string `json:"typePattern,omitempty" yaml:"typePattern,omitempty"`
}

// Validate checks that exactly one of id and idPattern is set, and at
// most one of type and typePattern.
func (s SubjectEntity) Validate() error {
	if s.ID == "" && s.IDPattern == "" {
		return &ValidationError{Field: "subject.entities", Reason: "entity needs an id or an idPattern"}
	}

	if s.ID != "" && s.IDPattern != "" {
		return &ValidationError{Field: "subject.entities", Reason: "id and idPattern are mutually exclusive"}
	}

	if s.Type != "" && s.TypePattern != "" {
		return &ValidationError{Field: "subject.entities", Reason: "type and typePattern are mutually exclusive"}
	}

	return nil
}

// FilterExpression is the condition expression block: a simple-query
// string plus optional geo clauses.
type FilterExpression struct {
	Q        string `json:"q,omitempty"        yaml:"q,omitempty"`
	MQ       string `json:"mq,omitempty"       yaml:"mq,omitempty"`
	GeoRel   string `json:"georel,omitempty"   yaml:"georel,omitempty"`
	Geometry string `json:"geometry,omitempty" yaml:"geometry,omitempty"`
	Coords   string `json:"coords,omitempty"   yaml:"coords,omitempty"`
}

// SubjectCondition narrows the attribute changes that trigger a
// notification.
type SubjectCondition struct {
	Attrs      []string          `json:"attrs,omitempty"      yaml:"attrs,omitempty"`
	Expression *FilterExpression `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// SubscriptionSubject describes which entities and attribute changes a
// subscription covers.
type SubscriptionSubject struct {
	Entities  []SubjectEntity   `json:"entities"            yaml:"entities"`
	Condition *SubjectCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Validate checks that the subject covers at least one entity and that
// every entity descriptor is well formed.
func (s SubscriptionSubject) Validate() error {
	if len(s.Entities) == 0 {
		return &ValidationError{Field: "subject.entities", Reason: "at least one entity is required"}
	}

	for _, entity := range s.Entities {
		err := entity.Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// NotificationHTTP is the plain HTTP notification target.
type NotificationHTTP struct {
	URL string `json:"url" yaml:"url"`
}

// NotificationHTTPCustom is the templated HTTP notification target with
// custom headers, query string, method, and payload.
type NotificationHTTPCustom struct {
	URL     string            `json:"url"               yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	QS      map[string]string `json:"qs,omitempty"      yaml:"qs,omitempty"`
	Method  string            `json:"method,omitempty"  yaml:"method,omitempty"`
	Payload string            `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// NotificationMQTT is the MQTT notification target.
type NotificationMQTT struct {
	URL    string `json:"url"              yaml:"url"`
	Topic  string `json:"topic"            yaml:"topic"`
	QoS    int    `json:"qos,omitempty"    yaml:"qos,omitempty"`
	User   string `json:"user,omitempty"   yaml:"user,omitempty"`
	Passwd string `json:"passwd,omitempty" yaml:"passwd,omitempty"`
}

// SubscriptionNotification describes where and how notifications are
// delivered. The delivery counters are broker-owned and only ever
// populated from decoded responses.
type SubscriptionNotification struct {
	HTTP        *NotificationHTTP       `json:"http,omitempty"        yaml:"http,omitempty"`
	HTTPCustom  *NotificationHTTPCustom `json:"httpCustom,omitempty"  yaml:"httpCustom,omitempty"`
	MQTT        *NotificationMQTT       `json:"mqtt,omitempty"        yaml:"mqtt,omitempty"`
	Attrs       []string                `json:"attrs,omitempty"       yaml:"attrs,omitempty"`
	ExceptAttrs []string                `json:"exceptAttrs,omitempty" yaml:"exceptAttrs,omitempty"`
	AttrsFormat AttrsFormat             `json:"attrsFormat,omitempty" yaml:"attrsFormat,omitempty"`

	TimesSent         int    `json:"timesSent,omitempty"         yaml:"timesSent,omitempty"`
	LastNotification  string `json:"lastNotification,omitempty"  yaml:"lastNotification,omitempty"`
	LastSuccess       string `json:"lastSuccess,omitempty"       yaml:"lastSuccess,omitempty"`
	LastSuccessCode   int    `json:"lastSuccessCode,omitempty"   yaml:"lastSuccessCode,omitempty"`
	LastFailure       string `json:"lastFailure,omitempty"       yaml:"lastFailure,omitempty"`
	LastFailureReason string `json:"lastFailureReason,omitempty" yaml:"lastFailureReason,omitempty"`
}

// Validate checks that exactly one notification target is set, that the
// target URL parses, and that attrs and exceptAttrs are not combined.
func (n SubscriptionNotification) Validate() error {
	targets := 0
	target := ""

	if n.HTTP != nil {
		targets++
		target = n.HTTP.URL
	}

	if n.HTTPCustom != nil {
		targets++
		target = n.HTTPCustom.URL
	}

	if n.MQTT != nil {
		targets++
		target = n.MQTT.URL
	}

	if targets == 0 {
		return &ValidationError{Field: "notification", Reason: "a notification target is required"}
	}

	if targets > 1 {
		return &ValidationError{Field: "notification", Reason: "http, httpCustom, and mqtt are mutually exclusive"}
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ValidationError{Field: "notification.url", Reason: fmt.Sprintf("%q is not a valid endpoint", target)}
	}

	if n.MQTT != nil && n.MQTT.Topic == "" {
		return &ValidationError{Field: "notification.mqtt", Reason: "a topic is required"}
	}

	if len(n.Attrs) > 0 && len(n.ExceptAttrs) > 0 {
		return &ValidationError{Field: "notification", Reason: "attrs and exceptAttrs are mutually exclusive"}
	}

	return nil
}

// Subscription is an NGSIv2 subscription: the subject to watch, the
// notification to deliver, and the lifecycle options. ID and Status are
// assigned by the broker.
type Subscription struct {
	ID           string                   `json:"id,omitempty"          yaml:"id,omitempty"`
	Description  string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Subject      SubscriptionSubject      `json:"subject"               yaml:"subject"`
	Notification SubscriptionNotification `json:"notification"          yaml:"notification"`
	Expires      *time.Time               `json:"expires,omitempty"     yaml:"expires,omitempty"`
	Throttling   int64                    `json:"throttling,omitempty"  yaml:"throttling,omitempty"`
	Status       SubscriptionStatus       `json:"status,omitempty"      yaml:"status,omitempty"`
}

// NewSubscription builds a subscription from a subject and a
// notification target, validating both.
func NewSubscription(subject SubscriptionSubject, notification SubscriptionNotification) (*Subscription, error) {
	sub := &Subscription{Subject: subject, Notification: notification}

	err := sub.Validate()
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// Validate checks the subscription against the constraints the broker
// enforces on submission.
func (s *Subscription) Validate() error {
	err := s.Subject.Validate()
	if err != nil {
		return err
	}

	err = s.Notification.Validate()
	if err != nil {
		return err
	}

	if s.Throttling < 0 {
		return &ValidationError{Field: "throttling", Reason: "must not be negative"}
	}

	switch s.Status {
	case "", SubscriptionActive, SubscriptionInactive, SubscriptionOneshot:
	case SubscriptionFailed, SubscriptionExpired:
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("%q is broker-assigned and cannot be submitted", s.Status)}
	default:
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s.Status)}
	}

	return nil
}
