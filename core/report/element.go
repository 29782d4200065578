package report

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type ElementType string

// Element types
const (
	TypeText       ElementType = "text"
	TypeImage      ElementType = "image"
	TypeChart      ElementType = "chart"
	TypeTable      ElementType = "table"
	TypeMetricCard ElementType = "metric_card"
	TypeAIText     ElementType = "ai_text"
	TypeSpacer     ElementType = "spacer"
)

var ElementTypes = []ElementType{TypeText, TypeImage, TypeChart, TypeTable, TypeMetricCard, TypeAIText, TypeSpacer}

var ErrUnknownElementType = errors.New("unknown element type")

func (t ElementType) Valid() bool {
	for _, et := range ElementTypes {
		if t == et {
			return true
		}
	}
	return false
}

type (
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	Size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	Style struct {
		Background  string  `json:"background,omitempty" validate:"max=64"`
		BorderColor string  `json:"border_color,omitempty" validate:"max=64"`
		BorderWidth float64 `json:"border_width,omitempty" validate:"min=0,max=50"`
		Radius      float64 `json:"radius,omitempty" validate:"min=0,max=500"`
		Padding     float64 `json:"padding,omitempty" validate:"min=0,max=500"`
	}

	// Element is a typed visual block placed on a Page.
	// Config always holds the config struct matching Type.
	Element struct {
		ID       string
		Type     ElementType
		Position Position
		Size     Size
		Style    Style
		Config   Config
		Locked   bool
		Hidden   bool
	}
)

// Config is the closed set of element configurations: one struct per ElementType.
type Config interface {
	ElementType() ElementType
	isConfig()
}

type (
	TextConfig struct {
		Content    string `json:"content"`
		FontSize   int    `json:"font_size" validate:"min=6,max=200"`
		FontWeight string `json:"font_weight" validate:"oneof=normal bold"`
		Align      string `json:"align" validate:"oneof=left center right justify"`
		Color      string `json:"color" validate:"hexcolor_"`
	}

	ImageConfig struct {
		URL string `json:"url" validate:"omitempty,url"`
		Alt string `json:"alt"`
		Fit string `json:"fit" validate:"oneof=contain cover fill"`
	}

	ChartConfig struct {
		ChartType  string   `json:"chart_type" validate:"oneof=bar line pie doughnut area"`
		Title      string   `json:"title"`
		MetricKeys []string `json:"metrics" validate:"dive,metrickey"`
		ShowLegend bool     `json:"show_legend"`
	}

	TableColumn struct {
		Key   string `json:"key" validate:"required,metrickey"`
		Label string `json:"label"`
	}

	TableConfig struct {
		Title      string        `json:"title"`
		Columns    []TableColumn `json:"columns" validate:"dive"`
		ShowHeader bool          `json:"show_header"`
		Striped    bool          `json:"striped"`
	}

	MetricCardConfig struct {
		MetricKey string `json:"metric" validate:"omitempty,metrickey"`
		Label     string `json:"label"`
		Format    string `json:"format" validate:"oneof=number percent currency"`
		ShowTrend bool   `json:"show_trend"`
	}

	AITextConfig struct {
		Prompt           string     `json:"prompt" validate:"max=2000"`
		ContextMetrics   []string   `json:"context_metrics" validate:"dive,metrickey"`
		Format           string     `json:"format" validate:"oneof=paragraph bullets summary"`
		GeneratedContent string     `json:"generated_content"`
		GeneratedAt      *time.Time `json:"generated_at,omitempty"`
	}

	SpacerConfig struct{}
)

func (TextConfig) ElementType() ElementType       { return TypeText }
func (ImageConfig) ElementType() ElementType      { return TypeImage }
func (ChartConfig) ElementType() ElementType      { return TypeChart }
func (TableConfig) ElementType() ElementType      { return TypeTable }
func (MetricCardConfig) ElementType() ElementType { return TypeMetricCard }
func (AITextConfig) ElementType() ElementType     { return TypeAIText }
func (SpacerConfig) ElementType() ElementType     { return TypeSpacer }

func (TextConfig) isConfig()       {}
func (ImageConfig) isConfig()      {}
func (ChartConfig) isConfig()      {}
func (TableConfig) isConfig()      {}
func (MetricCardConfig) isConfig() {}
func (AITextConfig) isConfig()     {}
func (SpacerConfig) isConfig()     {}

// DefaultConfig returns the config a freshly added element of type t starts with.
func DefaultConfig(t ElementType) (Config, error) {
	switch t {
	case TypeText:
		return TextConfig{Content: "New text", FontSize: 16, FontWeight: "normal", Align: "left", Color: "#1f2933"}, nil
	case TypeImage:
		return ImageConfig{Fit: "contain"}, nil
	case TypeChart:
		return ChartConfig{ChartType: "bar", Title: "Chart", MetricKeys: []string{}, ShowLegend: true}, nil
	case TypeTable:
		return TableConfig{Title: "Table", Columns: []TableColumn{}, ShowHeader: true}, nil
	case TypeMetricCard:
		return MetricCardConfig{Label: "Metric", Format: "number", ShowTrend: true}, nil
	case TypeAIText:
		return AITextConfig{ContextMetrics: []string{}, Format: "paragraph"}, nil
	case TypeSpacer:
		return SpacerConfig{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownElementType, "%q", t)
}

// DefaultSize returns the size a freshly added element of type t starts with.
func DefaultSize(t ElementType) Size {
	switch t {
	case TypeText:
		return Size{Width: 300, Height: 60}
	case TypeImage:
		return Size{Width: 300, Height: 200}
	case TypeChart:
		return Size{Width: 400, Height: 300}
	case TypeTable:
		return Size{Width: 500, Height: 250}
	case TypeMetricCard:
		return Size{Width: 220, Height: 120}
	case TypeAIText:
		return Size{Width: 400, Height: 200}
	case TypeSpacer:
		return Size{Width: 400, Height: 40}
	}
	return Size{Width: 100, Height: 100}
}

// NewElement returns an element of type t with its defaults.
func NewElement(id string, t ElementType, pos Position) (Element, error) {
	cfg, err := DefaultConfig(t)
	if err != nil {
		return Element{}, err
	}
	return Element{ID: id, Type: t, Position: pos, Size: DefaultSize(t), Config: cfg}, nil
}

// Clone returns a deep copy of the element.
func (el Element) Clone() Element {
	el.Config = cloneConfig(el.Config)
	return el
}

// MetricKeys returns the metric keys the element is bound to, if any.
func (el Element) MetricKeys() []string {
	switch cfg := el.Config.(type) {
	case ChartConfig:
		return append([]string(nil), cfg.MetricKeys...)
	case TableConfig:
		keys := make([]string, 0, len(cfg.Columns))
		for _, col := range cfg.Columns {
			keys = append(keys, col.Key)
		}
		return keys
	case MetricCardConfig:
		if cfg.MetricKey == "" {
			return nil
		}
		return []string{cfg.MetricKey}
	case AITextConfig:
		return append([]string(nil), cfg.ContextMetrics...)
	}
	return nil
}

// Title returns a human label for the element.
func (el Element) Title() string {
	switch cfg := el.Config.(type) {
	case ChartConfig:
		return cfg.Title
	case TableConfig:
		return cfg.Title
	case MetricCardConfig:
		return cfg.Label
	}
	return string(el.Type)
}

func cloneConfig(c Config) Config {
	switch cfg := c.(type) {
	case ChartConfig:
		cfg.MetricKeys = cloneStrings(cfg.MetricKeys)
		return cfg
	case TableConfig:
		if cfg.Columns != nil {
			cols := make([]TableColumn, len(cfg.Columns))
			copy(cols, cfg.Columns)
			cfg.Columns = cols
		}
		return cfg
	case AITextConfig:
		cfg.ContextMetrics = cloneStrings(cfg.ContextMetrics)
		if cfg.GeneratedAt != nil {
			at := *cfg.GeneratedAt
			cfg.GeneratedAt = &at
		}
		return cfg
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

// MergeConfig applies a JSON (partial) config patch on top of base.
// Unknown keys are rejected. The returned config is a new value, base is left untouched.
func MergeConfig(t ElementType, base Config, patch []byte) (Config, error) {
	if base != nil && base.ElementType() != t {
		return nil, errors.Errorf("config of type %q does not match element type %q", base.ElementType(), t)
	}
	if base == nil {
		var err error
		if base, err = DefaultConfig(t); err != nil {
			return nil, err
		}
	}
	base = cloneConfig(base)
	if len(bytes.TrimSpace(patch)) == 0 {
		return base, nil
	}

	switch cfg := base.(type) {
	case TextConfig:
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	case ImageConfig:
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	case ChartConfig:
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	case TableConfig:
		// columns are replaced as a whole, never merged into the old ones
		if patchHas(patch, "columns") {
			cfg.Columns = nil
		}
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	case MetricCardConfig:
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	case AITextConfig:
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	case SpacerConfig:
		err := strictUnmarshal(patch, &cfg)
		return cfg, err
	}
	return nil, errors.Wrapf(ErrUnknownElementType, "%q", t)
}

// MergeStyle applies a JSON (partial) style patch on top of base.
func MergeStyle(base Style, patch []byte) (Style, error) {
	if len(bytes.TrimSpace(patch)) == 0 {
		return base, nil
	}
	err := strictUnmarshal(patch, &base)
	return base, err
}

func patchHas(patch []byte, key string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return false
	}
	_, ok := fields[key]
	return ok
}

func strictUnmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decoding config")
	}
	return nil
}

type elementJSON struct {
	ID       string          `json:"id"`
	Type     ElementType     `json:"type"`
	Position Position        `json:"position"`
	Size     Size            `json:"size"`
	Style    Style           `json:"styles"`
	Config   json.RawMessage `json:"config"`
	Locked   bool            `json:"locked"`
	Hidden   bool            `json:"hidden"`
}

func (el Element) MarshalJSON() ([]byte, error) {
	cfg := el.Config
	if cfg == nil {
		var err error
		if cfg, err = DefaultConfig(el.Type); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(elementJSON{
		ID:       el.ID,
		Type:     el.Type,
		Position: el.Position,
		Size:     el.Size,
		Style:    el.Style,
		Config:   raw,
		Locked:   el.Locked,
		Hidden:   el.Hidden,
	})
}

func (el *Element) UnmarshalJSON(data []byte) error {
	var aux elementJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if !aux.Type.Valid() {
		return errors.Wrapf(ErrUnknownElementType, "element %q: type %q", aux.ID, aux.Type)
	}
	cfg, err := MergeConfig(aux.Type, nil, aux.Config)
	if err != nil {
		return errors.Wrapf(err, "element %q", aux.ID)
	}
	*el = Element{
		ID:       aux.ID,
		Type:     aux.Type,
		Position: aux.Position,
		Size:     aux.Size,
		Style:    aux.Style,
		Config:   cfg,
		Locked:   aux.Locked,
		Hidden:   aux.Hidden,
	}
	return nil
}
