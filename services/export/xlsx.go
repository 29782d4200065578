package exportsvc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/report"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	fetchLimit      = 4
)

// exported elements, in page order
var exportable = map[report.ElementType]bool{
	report.TypeChart:      true,
	report.TypeTable:      true,
	report.TypeMetricCard: true,
}

// SheetName returns the sheet name of the page at index i.
func SheetName(i int) string {
	return fmt.Sprintf("Page %d", i+1)
}

// WriteXLSX writes a workbook with one sheet per page: every chart, table & metric card gets a block
// holding its title then a row per series point. q scopes the data (its metric keys are ignored).
func WriteXLSX(ctx context.Context, w io.Writer, r report.Report, source report.DataSource, q report.DataQuery) error {
	data, err := fetch(ctx, r, source, q)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}})
	if err != nil {
		return errors.Wrap(err, "creating title style")
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E4E7EB"}},
	})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	for i, page := range r.Pages {
		sheet := SheetName(i)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return errors.Wrap(err, "renaming first sheet")
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return errors.Wrapf(err, "creating sheet %q", sheet)
		}

		sw := sheetWriter{f: f, sheet: sheet, row: 1}
		if err := sw.cell(1, r.Name, titleStyle); err != nil {
			return err
		}
		sw.row += 2

		for _, el := range page.Elements {
			if !exportable[el.Type] || el.Hidden {
				continue
			}
			if err := sw.block(el, data[el.ID], titleStyle, headerStyle); err != nil {
				return err
			}
		}
		if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
			return errors.Wrap(err, "setting column width")
		}
		if err := f.SetColWidth(sheet, "B", "C", 16); err != nil {
			return errors.Wrap(err, "setting column width")
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

func fetch(ctx context.Context, r report.Report, source report.DataSource, q report.DataQuery) (map[string][]report.Series, error) {
	var (
		mu   sync.Mutex
		data = make(map[string][]report.Series)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for _, page := range r.Pages {
		for _, el := range page.Elements {
			keys := el.MetricKeys()
			if !exportable[el.Type] || el.Hidden || len(keys) == 0 {
				continue
			}
			elID := el.ID
			g.Go(func() error {
				eq := q
				eq.MetricKeys = keys
				series, err := source.Fetch(gctx, eq)
				if err != nil {
					return errors.Wrapf(err, "fetching data of element %s", elID)
				}
				mu.Lock()
				data[elID] = series
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, core.NewExternalServiceError("data", err)
	}
	return data, nil
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func (sw *sheetWriter) cell(col int, value interface{}, style int) error {
	name, err := excelize.CoordinatesToCellName(col, sw.row)
	if err != nil {
		return errors.Wrap(err, "computing cell name")
	}
	if err := sw.f.SetCellValue(sw.sheet, name, value); err != nil {
		return errors.Wrapf(err, "setting cell %s", name)
	}
	if style > 0 {
		if err := sw.f.SetCellStyle(sw.sheet, name, name, style); err != nil {
			return errors.Wrapf(err, "styling cell %s", name)
		}
	}
	return nil
}

func (sw *sheetWriter) block(el report.Element, series []report.Series, titleStyle, headerStyle int) error {
	if err := sw.cell(1, el.Title(), titleStyle); err != nil {
		return err
	}
	sw.row++
	for col, header := range []string{"Metric", "Label", "Value"} {
		if err := sw.cell(col+1, header, headerStyle); err != nil {
			return err
		}
	}
	sw.row++
	for _, s := range series {
		for _, p := range s.Points {
			for col, v := range []interface{}{s.Label, p.Label, p.Value} {
				if err := sw.cell(col+1, v, 0); err != nil {
					return err
				}
			}
			sw.row++
		}
	}
	sw.row++ // blank line between blocks
	return nil
}
