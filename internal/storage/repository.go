// Package storage is the SQLite implementation of the store ports. All
// timestamps are persisted as RFC3339 UTC strings so date comparisons
// stay lexicographic.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// timeLayout is fixed-width: RFC3339Nano trims trailing fractional
// zeros, which breaks lexicographic ordering across sub-second values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

const transactionColumns = `id, user_id, amount_paise, category, tx_date, is_income, budget_id,
	payment_method, location, receipt_image, notes, external_id, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tx                       core.Transaction
		txDate, created, updated string
		isIncome                 int64
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount.Paise, &tx.Category, &txDate, &isIncome,
		&tx.BudgetID, &tx.PaymentMethod, &tx.Location, &tx.ReceiptImage, &tx.Notes,
		&tx.ExternalID, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Date = decodeTime(txDate)
	tx.IsIncome = isIncome != 0
	tx.CreatedAt = decodeTime(created)
	tx.UpdatedAt = decodeTime(updated)
	return tx, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount_paise, category, tx_date, is_income, budget_id,
			payment_method, location, receipt_image, notes, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Amount.Paise, tx.Category, encodeTime(tx.Date), boolToInt(tx.IsIncome),
		tx.BudgetID, tx.PaymentMethod, tx.Location, tx.ReceiptImage, tx.Notes, tx.ExternalID,
		encodeTime(tx.CreatedAt), encodeTime(tx.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount_paise = ?, category = ?, tx_date = ?, is_income = ?, budget_id = ?,
			payment_method = ?, location = ?, receipt_image = ?, notes = ?, external_id = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?`,
		tx.Amount.Paise, tx.Category, encodeTime(tx.Date), boolToInt(tx.IsIncome), tx.BudgetID,
		tx.PaymentMethod, tx.Location, tx.ReceiptImage, tx.Notes, tx.ExternalID,
		encodeTime(tx.UpdatedAt), tx.ID, tx.UserID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res)
}

// filterClause builds the WHERE clause shared by list and count.
func filterClause(f store.TransactionFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{f.UserID}
	if !f.From.IsZero() {
		clauses = append(clauses, "tx_date >= ?")
		args = append(args, encodeTime(f.From))
	}
	if !f.To.IsZero() {
		// Inclusive through the end of the To calendar day.
		clauses = append(clauses, "tx_date < ?")
		args = append(args, encodeTime(f.To.AddDate(0, 0, 1)))
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.BudgetID != "" {
		clauses = append(clauses, "budget_id = ?")
		args = append(args, f.BudgetID)
	}
	if f.IsIncome != nil {
		clauses = append(clauses, "is_income = ?")
		args = append(args, boolToInt(*f.IsIncome))
	}
	return strings.Join(clauses, " AND "), args
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	where, args := filterClause(f)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where +
		` ORDER BY tx_date DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, f store.TransactionFilter) (int64, error) {
	where, args := filterClause(f)
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, name, total_amount_paise, start_date, end_date,
			is_active, is_recurring, recurring_period, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.TotalAmount.Paise, encodeTime(b.StartDate), encodeTime(b.EndDate),
		boolToInt(b.IsActive), boolToInt(b.IsRecurring), string(b.Period), b.Revision,
		encodeTime(b.CreatedAt), encodeTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	if err := insertCategories(ctx, dbtx, b); err != nil {
		return err
	}
	return dbtx.Commit()
}

func insertCategories(ctx context.Context, dbtx *sql.Tx, b core.Budget) error {
	for i, c := range b.Categories {
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO budget_categories (id, budget_id, position, name, amount_paise,
				spent_paise, color, icon, is_essential)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, b.ID, i, c.Name, c.Amount.Paise, c.Spent.Paise, c.Color, c.Icon,
			boolToInt(c.IsEssential))
		if err != nil {
			return fmt.Errorf("insert category %s: %w", c.Name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, total_amount_paise, start_date, end_date,
			is_active, is_recurring, recurring_period, revision, created_at, updated_at
		FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, store.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	if err := r.loadCategories(ctx, &b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func scanBudget(row interface{ Scan(...any) error }) (core.Budget, error) {
	var (
		b                            core.Budget
		start, end, created, updated string
		isActive, isRecurring        int64
		period                       string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.TotalAmount.Paise, &start, &end,
		&isActive, &isRecurring, &period, &b.Revision, &created, &updated)
	if err != nil {
		return core.Budget{}, err
	}
	b.StartDate = decodeTime(start)
	b.EndDate = decodeTime(end)
	b.IsActive = isActive != 0
	b.IsRecurring = isRecurring != 0
	b.Period = core.RecurringPeriod(period)
	b.CreatedAt = decodeTime(created)
	b.UpdatedAt = decodeTime(updated)
	return b, nil
}

func (r *SQLiteRepository) loadCategories(ctx context.Context, b *core.Budget) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, amount_paise, spent_paise, color, icon, is_essential
		FROM budget_categories WHERE budget_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c           core.Category
			isEssential int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Amount.Paise, &c.Spent.Paise,
			&c.Color, &c.Icon, &isEssential); err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		c.IsEssential = isEssential != 0
		b.Categories = append(b.Categories, c)
	}
	return rows.Err()
}

// UpdateBudget is compare-and-swap on the revision column: the UPDATE
// only matches when the stored revision equals the caller's, and bumps it
// by one. Categories are replaced wholesale inside the same SQL
// transaction, keeping the budget-level write atomic.
func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.ExecContext(ctx, `
		UPDATE budgets
		SET name = ?, total_amount_paise = ?, start_date = ?, end_date = ?,
			is_active = ?, is_recurring = ?, recurring_period = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ? AND user_id = ? AND revision = ?`,
		b.Name, b.TotalAmount.Paise, encodeTime(b.StartDate), encodeTime(b.EndDate),
		boolToInt(b.IsActive), boolToInt(b.IsRecurring), string(b.Period),
		encodeTime(b.UpdatedAt), b.ID, b.UserID, b.Revision)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int64
		err := dbtx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM budgets WHERE id = ? AND user_id = ?`, b.ID, b.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check budget existence: %w", err)
		}
		if exists == 0 {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}

	if _, err := dbtx.ExecContext(ctx,
		`DELETE FROM budget_categories WHERE budget_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	if err := insertCategories(ctx, dbtx, b); err != nil {
		return err
	}
	return dbtx.Commit()
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id string) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	// Explicit cleanup: foreign_keys pragma is off by default in sqlite.
	if _, err := dbtx.ExecContext(ctx,
		`DELETE FROM budget_categories WHERE budget_id = ?`, id); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	return dbtx.Commit()
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return r.queryBudgets(ctx, `
		SELECT id, user_id, name, total_amount_paise, start_date, end_date,
			is_active, is_recurring, recurring_period, revision, created_at, updated_at
		FROM budgets WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
}

func (r *SQLiteRepository) ActiveBudget(ctx context.Context, userID string, at time.Time) (core.Budget, error) {
	budgets, err := r.queryBudgets(ctx, `
		SELECT id, user_id, name, total_amount_paise, start_date, end_date,
			is_active, is_recurring, recurring_period, revision, created_at, updated_at
		FROM budgets WHERE user_id = ? AND is_active = 1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return core.Budget{}, err
	}
	for _, b := range budgets {
		if b.Covers(at) {
			return b, nil
		}
	}
	return core.Budget{}, store.ErrNotFound
}

func (r *SQLiteRepository) ListRecurringEnded(ctx context.Context, before time.Time) ([]core.Budget, error) {
	budgets, err := r.queryBudgets(ctx, `
		SELECT id, user_id, name, total_amount_paise, start_date, end_date,
			is_active, is_recurring, recurring_period, revision, created_at, updated_at
		FROM budgets WHERE is_active = 1 AND is_recurring = 1
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []core.Budget
	for _, b := range budgets {
		if !b.EndDate.AddDate(0, 0, 1).After(before) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) ListActiveBudgets(ctx context.Context, at time.Time) ([]core.Budget, error) {
	budgets, err := r.queryBudgets(ctx, `
		SELECT id, user_id, name, total_amount_paise, start_date, end_date,
			is_active, is_recurring, recurring_period, revision, created_at, updated_at
		FROM budgets WHERE is_active = 1
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []core.Budget
	for _, b := range budgets {
		if b.Covers(at) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) queryBudgets(ctx context.Context, query string, args ...any) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadCategories(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListUnexportedTransactions feeds the spreadsheet mirror.
func (r *SQLiteRepository) ListUnexportedTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE sheet_synced = 0 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkTransactionExported(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sheet_synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction exported: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
