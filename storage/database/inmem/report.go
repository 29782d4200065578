package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/report"
)

type reportRepository struct {
	db *reportTable
}

var _ report.Repository = (*reportRepository)(nil)

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db.report}
}

func (repo *reportRepository) CreateReport(_ context.Context, r report.Report) (report.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := r.Clone()
	repo.db.table[r.ID] = &stored
	return r.Clone(), nil
}

func (repo *reportRepository) GetReport(_ context.Context, id string) (report.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.table[id]; ok {
		return r.Clone(), nil
	}
	return report.Report{}, report.ErrNotFound
}

func (repo *reportRepository) GetReportByPublicID(_ context.Context, publicID string) (report.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.table {
		if publicID != "" && r.PublicID == publicID {
			return r.Clone(), nil
		}
	}
	return report.Report{}, report.ErrNotFound
}

func (repo *reportRepository) QueryReports(_ context.Context, filter *report.QueryFilter, ordering []core.DBOrdering) ([]report.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reports := make([]report.Report, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		if filter == nil || matchReport(*r, filter) {
			reports = append(reports, r.Clone())
		}
	}
	sortSlice(reports, ordering, reportLess, func(i int) time.Time { return reports[i].CreatedAt })
	return reports, nil
}

func matchReport(r report.Report, filter *report.QueryFilter) bool {
	if filter.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Search)) {
		return false
	}
	if filter.Status != "" && r.Status != filter.Status {
		return false
	}
	if filter.OrganizationID != "" && r.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.CollaboratorID != "" && r.RoleOf(filter.CollaboratorID) == "" {
		return false
	}
	if !filter.CreatedFrom.IsZero() && r.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && r.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

var reportLess = map[string]func(a, b report.Report) bool{
	"name":       func(a, b report.Report) bool { return a.Name < b.Name },
	"status":     func(a, b report.Report) bool { return a.Status < b.Status },
	"created_at": func(a, b report.Report) bool { return a.CreatedAt.Before(b.CreatedAt) },
	"updated_at": func(a, b report.Report) bool { return a.UpdatedAt.Before(b.UpdatedAt) },
}

func (repo *reportRepository) UpdateReport(_ context.Context, r report.Report) (report.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[r.ID]; !ok {
		return report.Report{}, report.ErrNotFound
	}
	stored := r.Clone()
	repo.db.table[r.ID] = &stored
	return r.Clone(), nil
}

func (repo *reportRepository) DeleteReportsByID(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
