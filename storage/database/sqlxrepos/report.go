package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
)

const reportColumns = `id, name, status, organization_id, data_mode, document, collaborators, comments,
	public_id, published_at, created_by, created_at, updated_at`

var reportOrderings = []string{"name", "status", "created_at", "updated_at"}

type (
	reportRepository struct {
		db *sqlx.DB
	}

	// document holds the layout of a report, stored as a single JSONB value.
	document struct {
		Branding report.Branding `json:"branding"`
		Zoom     float64         `json:"zoom"`
		ShowGrid bool            `json:"show_grid"`
		Pages    []report.Page   `json:"pages"`
	}

	reportRow struct {
		ID             string         `db:"id"`
		Name           string         `db:"name"`
		Status         string         `db:"status"`
		OrganizationID string         `db:"organization_id"`
		DataMode       string         `db:"data_mode"`
		Document       types.JSONText `db:"document"`
		Collaborators  types.JSONText `db:"collaborators"`
		Comments       types.JSONText `db:"comments"`
		PublicID       null.String    `db:"public_id"`
		PublishedAt    null.Time      `db:"published_at"`
		CreatedBy      null.String    `db:"created_by"`
		CreatedAt      time.Time      `db:"created_at"`
		UpdatedAt      time.Time      `db:"updated_at"`
	}
)

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) report.Repository {
	return &reportRepository{db: db}
}

func toReportRow(r report.Report) (reportRow, error) {
	doc, err := json.Marshal(document{Branding: r.Branding, Zoom: r.Zoom, ShowGrid: r.ShowGrid, Pages: r.Pages})
	if err != nil {
		return reportRow{}, errors.Wrap(err, "encoding document")
	}
	collabs := r.Collaborators
	if collabs == nil {
		collabs = []report.Collaborator{}
	}
	collabsJSON, err := json.Marshal(collabs)
	if err != nil {
		return reportRow{}, errors.Wrap(err, "encoding collaborators")
	}
	comments := r.Comments
	if comments == nil {
		comments = []comment.Comment{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return reportRow{}, errors.Wrap(err, "encoding comments")
	}

	return reportRow{
		ID:             r.ID,
		Name:           r.Name,
		Status:         string(r.Status),
		OrganizationID: r.OrganizationID,
		DataMode:       string(r.DataMode),
		Document:       doc,
		Collaborators:  collabsJSON,
		Comments:       commentsJSON,
		PublicID:       null.NewString(r.PublicID, r.PublicID != ""),
		PublishedAt:    null.NewTime(r.PublishedAt.UTC(), !r.PublishedAt.IsZero()),
		CreatedBy:      null.NewString(r.CreatedBy, r.CreatedBy != ""),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

func (row reportRow) report() (report.Report, error) {
	r := report.Report{
		ID:             row.ID,
		Name:           row.Name,
		Status:         report.Status(row.Status),
		OrganizationID: row.OrganizationID,
		DataMode:       report.DataMode(row.DataMode),
		PublicID:       row.PublicID.String,
		PublishedAt:    row.PublishedAt.Time.UTC(),
		CreatedBy:      row.CreatedBy.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}

	var doc document
	if err := row.Document.Unmarshal(&doc); err != nil {
		return report.Report{}, errors.Wrapf(err, "decoding document of report %s", row.ID)
	}
	r.Branding, r.Zoom, r.ShowGrid, r.Pages = doc.Branding, doc.Zoom, doc.ShowGrid, doc.Pages
	if err := row.Collaborators.Unmarshal(&r.Collaborators); err != nil {
		return report.Report{}, errors.Wrapf(err, "decoding collaborators of report %s", row.ID)
	}
	if err := row.Comments.Unmarshal(&r.Comments); err != nil {
		return report.Report{}, errors.Wrapf(err, "decoding comments of report %s", row.ID)
	}
	return r, nil
}

func (repo *reportRepository) CreateReport(ctx context.Context, r report.Report) (report.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row, err := toReportRow(r)
	if err != nil {
		return report.Report{}, err
	}
	q := `INSERT INTO report (` + reportColumns + `)
		VALUES (:id, :name, :status, :organization_id, :data_mode, :document, :collaborators, :comments,
			:public_id, :published_at, :created_by, :created_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return report.Report{}, errors.Wrap(err, "inserting report")
	}
	return r, nil
}

func (repo *reportRepository) getOne(ctx context.Context, where string, args ...interface{}) (report.Report, error) {
	var row reportRow
	q := `SELECT ` + reportColumns + ` FROM report WHERE ` + where + ` LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		return report.Report{}, trapNoRowsErr(err, report.ErrNotFound, "finding report")
	}
	return row.report()
}

func (repo *reportRepository) GetReport(ctx context.Context, id string) (report.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return report.Report{}, report.ErrNotFound
	}
	return repo.getOne(ctx, `id = ?`, id)
}

func (repo *reportRepository) GetReportByPublicID(ctx context.Context, publicID string) (report.Report, error) {
	return repo.getOne(ctx, `public_id = ?`, publicID)
}

func (repo *reportRepository) QueryReports(ctx context.Context, filter *report.QueryFilter, ordering []core.DBOrdering) ([]report.Report, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, `name ILIKE ?`)
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Status != "" {
			conds = append(conds, `status = ?`)
			args = append(args, string(filter.Status))
		}
		if filter.OrganizationID != "" {
			conds = append(conds, `organization_id = ?`)
			args = append(args, filter.OrganizationID)
		}
		if filter.CollaboratorID != "" {
			member, err := json.Marshal([]map[string]string{{"user_id": filter.CollaboratorID}})
			if err != nil {
				return nil, errors.Wrap(err, "encoding collaborator filter")
			}
			conds = append(conds, `collaborators @> ?::jsonb`)
			args = append(args, string(member))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := `SELECT ` + reportColumns + ` FROM report` + whereClause(conds) + orderByClause(ordering, reportOrderings...)
	var rows []reportRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	reports := make([]report.Report, 0, len(rows))
	for _, row := range rows {
		r, err := row.report()
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (repo *reportRepository) UpdateReport(ctx context.Context, r report.Report) (report.Report, error) {
	row, err := toReportRow(r)
	if err != nil {
		return report.Report{}, err
	}
	q := `UPDATE report SET name = :name, status = :status, organization_id = :organization_id,
		data_mode = :data_mode, document = :document, collaborators = :collaborators, comments = :comments,
		public_id = :public_id, published_at = :published_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return report.Report{}, errors.Wrap(err, "updating report")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return report.Report{}, report.ErrNotFound
	}
	return r, nil
}

func (repo *reportRepository) DeleteReportsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM report WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting reports")
	}
	return nil
}
