package report

import (
	"context"
	"time"
)

type ScopeKind string

const (
	ScopeContact      ScopeKind = "contact"
	ScopeContactList  ScopeKind = "contact_list"
	ScopeOrganization ScopeKind = "organization"
)

// DataQuery selects the metric values a report renders.
type DataQuery struct {
	ScopeKind  ScopeKind `json:"scope" validate:"required,oneof=contact contact_list organization"`
	ScopeID    string    `json:"scope_id" validate:"required"`
	MetricKeys []string  `json:"metrics" validate:"dive,metrickey"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to" validate:"omitempty,gtefield=From"`
}

// DataSource supplies metric values for charts, tables & metric cards.
type DataSource interface {
	Fetch(ctx context.Context, query DataQuery) ([]Series, error)
}

// GenerateRequest is what an AI text element sends to the content generator.
type GenerateRequest struct {
	Prompt         string             `json:"prompt"`
	ContextMetrics map[string]float64 `json:"context_metrics"`
	Format         string             `json:"format"`
}
