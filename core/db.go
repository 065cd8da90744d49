package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination is an offset/limit window with the metadata returned to callers.
type Pagination struct {
	Page  int `json:"page" query:"page"`
	Limit int `json:"limit" query:"limit"`
}

func (p *Pagination) Clean(defaultLimit, maxLimit int) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }

// PageMeta describes a returned page.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPageMeta(p Pagination, total int) PageMeta {
	if p.Limit < 1 { // unpaginated query, everything is one page
		return PageMeta{Page: 1, Limit: total, Total: total, TotalPages: 1}
	}
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	return PageMeta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
