// Package inmemdb holds in-memory repositories, used by tests & the `inmem` database engine.
package inmemdb

import (
	"sync"

	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
)

type (
	DB struct {
		user   *userTable
		report *reportTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	reportTable struct {
		mutex sync.RWMutex
		table map[string]*report.Report
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		report: &reportTable{table: make(map[string]*report.Report)},
	}
}
