package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"costmanager/internal/core"
	"costmanager/internal/log"
)

const selectCosts = `SELECT id, sum, category, description, date FROM costs`

// Insert persists c and returns the ID assigned by the database. IDs are
// never reused, even after the record is deleted.
func (s *CostStore) Insert(ctx context.Context, c core.NewCost) (int64, error) {
	if err := c.Date.Validate(); err != nil {
		return 0, err
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO costs (sum, category, description, date) VALUES (?, ?, ?, ?)`,
		c.Sum.String(), c.Category, c.Description, c.Date.String())
	if err != nil {
		return 0, storageErr("insert", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert", err)
	}

	fields := log.NewFields().
		WithComponent(log.ComponentStorage).
		WithOperation(log.OpInsert).
		WithCost(c.Sum.String(), c.Category, c.Date.String())
	slog.InfoContext(ctx, "Cost saved", append(fields.ToSlice(), log.FieldCostID, id)...)

	return id, nil
}

// QueryByMonth returns the costs dated in the given month of year, oldest
// first. A month outside 1-12 matches nothing.
func (s *CostStore) QueryByMonth(ctx context.Context, month, year int) ([]core.Cost, error) {
	if core.ValidateMonth(month) != nil || core.ValidateYear(year) != nil {
		return []core.Cost{}, nil
	}
	from, to := core.MonthRange(month, year)
	return s.queryRange(ctx, "query by month", from, to)
}

// QueryByYear returns the costs dated in year, oldest first.
func (s *CostStore) QueryByYear(ctx context.Context, year int) ([]core.Cost, error) {
	if core.ValidateYear(year) != nil {
		return []core.Cost{}, nil
	}
	from, to := core.YearRange(year)
	return s.queryRange(ctx, "query by year", from, to)
}

// QueryLastN sorts every cost by date ascending and returns the first n,
// i.e. the n earliest costs. n <= 0 selects DefaultLastN. Use QueryRecent
// for the newest costs.
func (s *CostStore) QueryLastN(ctx context.Context, n int) ([]core.Cost, error) {
	if n <= 0 {
		n = DefaultLastN
	}
	return s.query(ctx, "query last n",
		selectCosts+` ORDER BY date ASC, id ASC LIMIT ?`, n)
}

// QueryRecent returns the n most recent costs, newest first. n <= 0 selects
// DefaultLastN.
func (s *CostStore) QueryRecent(ctx context.Context, n int) ([]core.Cost, error) {
	if n <= 0 {
		n = DefaultLastN
	}
	return s.query(ctx, "query recent",
		selectCosts+` ORDER BY date DESC, id DESC LIMIT ?`, n)
}

// All returns every cost, oldest first.
func (s *CostStore) All(ctx context.Context) ([]core.Cost, error) {
	return s.query(ctx, "query all", selectCosts+` ORDER BY date ASC, id ASC`)
}

// ByCategory returns the costs filed under category, oldest first.
func (s *CostStore) ByCategory(ctx context.Context, category string) ([]core.Cost, error) {
	return s.query(ctx, "query by category",
		selectCosts+` WHERE category = ? ORDER BY date ASC, id ASC`, category)
}

// Get returns the cost with the given ID or ErrNotFound.
func (s *CostStore) Get(ctx context.Context, id int64) (core.Cost, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return core.Cost{}, err
	}

	c, err := scanCost(db.QueryRowContext(ctx, selectCosts+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Cost{}, fmt.Errorf("get cost %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Cost{}, storageErr("get", err)
	}
	return c, nil
}

// DeleteByID removes the cost with the given ID. Deleting an ID that does
// not exist succeeds.
func (s *CostStore) DeleteByID(ctx context.Context, id int64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM costs WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.DebugContext(ctx, "Delete matched no cost",
			log.FieldComponent, log.ComponentStorage,
			log.FieldCostID, id)
		return nil
	}

	slog.InfoContext(ctx, "Cost deleted",
		log.FieldComponent, log.ComponentStorage,
		log.FieldOperation, log.OpDelete,
		log.FieldCostID, id)
	return nil
}

// queryRange scans [from, to) on the date index. ISO dates sort lexically
// only up to year 9999, so a range ending past it is open-ended.
func (s *CostStore) queryRange(ctx context.Context, op string, from, to core.Date) ([]core.Cost, error) {
	if to.Year() > 9999 {
		return s.query(ctx, op,
			selectCosts+` WHERE date >= ? ORDER BY date ASC, id ASC`, from.String())
	}
	return s.query(ctx, op,
		selectCosts+` WHERE date >= ? AND date < ? ORDER BY date ASC, id ASC`,
		from.String(), to.String())
}

func (s *CostStore) query(ctx context.Context, op, query string, args ...any) ([]core.Cost, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	costs := []core.Cost{}
	for rows.Next() {
		c, err := scanCost(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	return costs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCost(row rowScanner) (core.Cost, error) {
	var (
		c    core.Cost
		date string
	)
	if err := row.Scan(&c.ID, &c.Sum, &c.Category, &c.Description, &date); err != nil {
		return core.Cost{}, err
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Cost{}, fmt.Errorf("cost %d: %w", c.ID, err)
	}
	c.Date = d
	return c, nil
}
