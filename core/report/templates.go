package report

import "github.com/pkg/errors"

// Built-in templates
const (
	TemplateBlank          = "blank"
	TemplateKPIOverview    = "kpi_overview"
	TemplateMonthlySummary = "monthly_summary"
)

var ErrUnknownTemplate = errors.New("unknown template")

type templateElement struct {
	typ    ElementType
	pos    Position
	size   Size
	config Config
}

var templates = map[string][][]templateElement{
	TemplateBlank: {{}},
	TemplateKPIOverview: {
		{
			{typ: TypeText, pos: Position{X: 40, Y: 40}, size: Size{Width: 714, Height: 60},
				config: TextConfig{Content: "KPI overview", FontSize: 32, FontWeight: "bold", Align: "left", Color: "#1f2933"}},
			{typ: TypeMetricCard, pos: Position{X: 40, Y: 130}, size: Size{Width: 220, Height: 120},
				config: MetricCardConfig{MetricKey: "attendance.rate", Label: "Attendance", Format: "percent", ShowTrend: true}},
			{typ: TypeMetricCard, pos: Position{X: 287, Y: 130}, size: Size{Width: 220, Height: 120},
				config: MetricCardConfig{MetricKey: "enrollment.total", Label: "Enrollment", Format: "number", ShowTrend: true}},
			{typ: TypeMetricCard, pos: Position{X: 534, Y: 130}, size: Size{Width: 220, Height: 120},
				config: MetricCardConfig{MetricKey: "fees.collected", Label: "Fees collected", Format: "currency", ShowTrend: true}},
			{typ: TypeChart, pos: Position{X: 40, Y: 280}, size: Size{Width: 714, Height: 320},
				config: ChartConfig{ChartType: "line", Title: "Attendance over time", MetricKeys: []string{"attendance.rate"}, ShowLegend: true}},
			{typ: TypeAIText, pos: Position{X: 40, Y: 630}, size: Size{Width: 714, Height: 200},
				config: AITextConfig{
					Prompt:         "Summarize the key performance indicators of the period.",
					ContextMetrics: []string{"attendance.rate", "enrollment.total", "fees.collected"},
					Format:         "summary",
				}},
		},
	},
	TemplateMonthlySummary: {
		{
			{typ: TypeText, pos: Position{X: 40, Y: 40}, size: Size{Width: 714, Height: 60},
				config: TextConfig{Content: "Monthly summary", FontSize: 32, FontWeight: "bold", Align: "left", Color: "#1f2933"}},
			{typ: TypeTable, pos: Position{X: 40, Y: 130}, size: Size{Width: 714, Height: 260},
				config: TableConfig{
					Title: "Key figures",
					Columns: []TableColumn{
						{Key: "enrollment.total", Label: "Enrollment"},
						{Key: "attendance.rate", Label: "Attendance"},
						{Key: "grades.average", Label: "Average grade"},
					},
					ShowHeader: true,
					Striped:    true,
				}},
			{typ: TypeChart, pos: Position{X: 40, Y: 420}, size: Size{Width: 714, Height: 320},
				config: ChartConfig{ChartType: "bar", Title: "Average grade", MetricKeys: []string{"grades.average"}, ShowLegend: false}},
		},
		{
			{typ: TypeText, pos: Position{X: 40, Y: 40}, size: Size{Width: 714, Height: 60},
				config: TextConfig{Content: "Highlights", FontSize: 24, FontWeight: "bold", Align: "left", Color: "#1f2933"}},
			{typ: TypeAIText, pos: Position{X: 40, Y: 120}, size: Size{Width: 714, Height: 300},
				config: AITextConfig{
					Prompt:         "Write the highlights of the month as bullet points.",
					ContextMetrics: []string{"enrollment.total", "attendance.rate", "grades.average"},
					Format:         "bullets",
				}},
			{typ: TypeSpacer, pos: Position{X: 40, Y: 440}, size: Size{Width: 714, Height: 40}, config: SpacerConfig{}},
			{typ: TypeText, pos: Position{X: 40, Y: 500}, size: Size{Width: 714, Height: 120},
				config: TextConfig{Content: "Notes", FontSize: 14, FontWeight: "normal", Align: "left", Color: "#52606d"}},
		},
	},
}

// BuildPages returns the pages of the named template with fresh ids. An empty name means blank.
func BuildPages(name string, newID func() string) ([]Page, error) {
	if name == "" {
		name = TemplateBlank
	}
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTemplate, "%q", name)
	}

	pages := make([]Page, 0, len(tmpl))
	for _, tmplPage := range tmpl {
		page := Page{ID: newID(), Settings: DefaultPageSettings(), Elements: make([]Element, 0, len(tmplPage))}
		for _, te := range tmplPage {
			page.Elements = append(page.Elements, Element{
				ID:       newID(),
				Type:     te.typ,
				Position: te.pos,
				Size:     te.size,
				Config:   cloneConfig(te.config),
			})
		}
		pages = append(pages, page)
	}
	return pages, nil
}
