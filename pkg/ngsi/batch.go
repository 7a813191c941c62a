package ngsi

import (
	"fmt"
	"strings"
)

// BatchAction selects the broker-side operation applied to every entity
// in a batch update.
type BatchAction string

// Batch actions accepted by POST /v2/op/update.
const (
	ActionAppend       BatchAction = "append"
	ActionAppendStrict BatchAction = "appendStrict"
	ActionUpdate       BatchAction = "update"
	ActionDelete       BatchAction = "delete"
	ActionReplace      BatchAction = "replace"
)

// Validate checks that the action is one the broker understands.
func (a BatchAction) Validate() error {
	switch a {
	case ActionAppend, ActionAppendStrict, ActionUpdate, ActionDelete, ActionReplace:
		return nil
	default:
		return &ValidationError{Field: "actionType", Reason: fmt.Sprintf("unknown batch action %q", a)}
	}
}

// BatchRequest is the wire body of POST /v2/op/update.
type BatchRequest struct {
	ActionType BatchAction `json:"actionType" yaml:"actionType"`
	Entities   []Entity    `json:"entities"   yaml:"entities"`
}

// BatchQueryRequest is the wire body of POST /v2/op/query.
type BatchQueryRequest struct {
	Entities   []SubjectEntity   `json:"entities,omitempty"   yaml:"entities,omitempty"`
	Attrs      []string          `json:"attrs,omitempty"      yaml:"attrs,omitempty"`
	Expression *FilterExpression `json:"expression,omitempty" yaml:"expression,omitempty"`
	Metadata   []string          `json:"metadata,omitempty"   yaml:"metadata,omitempty"`
}

// BatchResult summarizes one batch exchange: the action, how many
// entities were submitted, how many the broker applied, and the
// failures in submission order.
type BatchResult struct {
	Action    BatchAction    `json:"action"           yaml:"action"`
	Submitted int            `json:"submitted"        yaml:"submitted"`
	Succeeded int            `json:"succeeded"        yaml:"succeeded"`
	Failed    []FailedEntity `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Err returns a BatchError listing the failed entities, or nil when
// every entity was applied.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}

	return &BatchError{Action: r.Action, Failed: r.Failed}
}

// batchFailurePrefix starts the description the broker returns when a
// batch action references entities it does not hold.
const batchFailurePrefix = "do not exist: "

// ParseBatchFailures extracts per-entity failures from a broker batch
// error description of the form "do not exist: E1 [entity itself], E2/T2
// [entity itself]". Descriptions in any other shape yield no entries.
func ParseBatchFailures(description string) []FailedEntity {
	rest, ok := strings.CutPrefix(description, batchFailurePrefix)
	if !ok {
		return nil
	}

	var failed []FailedEntity

	for _, item := range strings.Split(rest, ", ") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		ref := item
		reason := "does not exist"

		if idx := strings.Index(item, " ["); idx >= 0 && strings.HasSuffix(item, "]") {
			ref = item[:idx]
			reason = fmt.Sprintf("does not exist: %s", item[idx+2:len(item)-1])
		}

		id, entityType, _ := strings.Cut(ref, "/")
		failed = append(failed, FailedEntity{ID: id, Type: entityType, Reason: reason})
	}

	return failed
}
