package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FilterOperator is the comparison applied by a leaf rule.
type FilterOperator string

const (
	OpEquals      FilterOperator = "equals"
	OpNotEquals   FilterOperator = "not_equals"
	OpContains    FilterOperator = "contains"
	OpNotContains FilterOperator = "not_contains"
	OpGreaterThan FilterOperator = "greater_than"
	OpLessThan    FilterOperator = "less_than"
	OpIn          FilterOperator = "in"
	OpNotIn       FilterOperator = "not_in"
	OpBetween     FilterOperator = "between"
)

// GroupOperator combines the children of a filter group.
type GroupOperator string

const (
	GroupAnd GroupOperator = "and"
	GroupOr  GroupOperator = "or"
)

// FilterRule is a leaf of the filter tree.
type FilterRule struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
	Label    string         `json:"label,omitempty"`
}

// FilterGroup combines rules and nested groups with and/or.
// Trees are built top-down and never point upward, so no cycles.
type FilterGroup struct {
	Operator GroupOperator `json:"operator"`
	Children []FilterNode  `json:"children"`
}

// FilterNode is the tagged union of rule and group. Exactly one side is set.
type FilterNode struct {
	Rule  *FilterRule
	Group *FilterGroup
}

// UnmarshalJSON picks the variant by shape: groups carry "children".
func (n *FilterNode) UnmarshalJSON(data []byte) error {
	var probe struct {
		Children json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Children != nil {
		var g FilterGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		n.Group = &g
		n.Rule = nil
		return nil
	}
	var r FilterRule
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	n.Rule = &r
	n.Group = nil
	return nil
}

func (n FilterNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Group != nil:
		return json.Marshal(n.Group)
	case n.Rule != nil:
		return json.Marshal(n.Rule)
	}
	return nil, fmt.Errorf("filter node has neither rule nor group")
}

// AudienceDefinition names a filter tree over the recipient pool.
// EstimatedSize/LastCalculatedAt cache the last resolution result; they go
// stale when the pool or the filters change and the caller must re-resolve.
type AudienceDefinition struct {
	ID               string      `db:"id" json:"id"`
	Name             string      `db:"name" json:"name"`
	Filters          FilterGroup `db:"filters" json:"filters"`
	EstimatedSize    int         `db:"estimated_size" json:"estimated_size"`
	LastCalculatedAt *time.Time  `db:"last_calculated_at" json:"last_calculated_at,omitempty"`
	Tags             []string    `db:"tags" json:"tags,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// PoolRecord is one recipient attribute record yielded by the pool provider.
type PoolRecord struct {
	UserID     string         `json:"user_id"`
	Attributes map[string]any `json:"attributes"`
}
