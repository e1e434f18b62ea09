package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/database"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrNotFound is returned when the user has no account or portfolio
	ErrNotFound = errors.New("portfolio not found")
	// ErrVersionConflict is returned when the stored portfolio changed since it was read
	ErrVersionConflict = errors.New("portfolio was modified concurrently")
)

// Repository persists accounts, portfolio documents and the transaction log in portfolio.db.
// Assets are stored as one msgpack document per user.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// storedPosition is the msgpack document shape of a Position.
// Decimals are kept as strings so no precision is lost.
type storedPosition struct {
	Symbol     string `msgpack:"symbol"`
	Name       string `msgpack:"name"`
	Kind       string `msgpack:"kind"`
	Quantity   string `msgpack:"quantity"`
	AvgPrice   string `msgpack:"avg_price"`
	LastPrice  string `msgpack:"last_price"`
	TotalValue string `msgpack:"total_value"`
}

func encodeAssets(assets []Position) ([]byte, error) {
	stored := make([]storedPosition, 0, len(assets))
	for _, a := range assets {
		stored = append(stored, storedPosition{
			Symbol:     a.Symbol,
			Name:       a.Name,
			Kind:       string(a.Kind),
			Quantity:   a.Quantity.String(),
			AvgPrice:   a.AvgPrice.String(),
			LastPrice:  a.LastPrice.String(),
			TotalValue: a.TotalValue.String(),
		})
	}
	return msgpack.Marshal(stored)
}

func decodeAssets(blob []byte) ([]Position, error) {
	var stored []storedPosition
	if len(blob) > 0 {
		if err := msgpack.Unmarshal(blob, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode assets: %w", err)
		}
	}

	assets := make([]Position, 0, len(stored))
	for _, s := range stored {
		p := Position{
			Symbol: s.Symbol,
			Name:   s.Name,
			Kind:   domain.ParseInstrumentKind(s.Kind),
		}
		var err error
		if p.Quantity, err = decimal.NewFromString(s.Quantity); err != nil {
			return nil, fmt.Errorf("bad quantity for %s: %w", s.Symbol, err)
		}
		if p.AvgPrice, err = decimal.NewFromString(s.AvgPrice); err != nil {
			return nil, fmt.Errorf("bad avg_price for %s: %w", s.Symbol, err)
		}
		if p.LastPrice, err = decimal.NewFromString(s.LastPrice); err != nil {
			return nil, fmt.Errorf("bad last_price for %s: %w", s.Symbol, err)
		}
		if p.TotalValue, err = decimal.NewFromString(s.TotalValue); err != nil {
			return nil, fmt.Errorf("bad total_value for %s: %w", s.Symbol, err)
		}
		assets = append(assets, p)
	}
	return assets, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CreateAccount registers userID with an empty portfolio and the given balance.
// It is idempotent: an existing account is returned unchanged with created=false.
func (r *Repository) CreateAccount(ctx context.Context, userID, displayName string, balance decimal.Decimal, now time.Time) (Account, bool, error) {
	created := false
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO accounts (user_id, display_name, virtual_balance, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			userID, displayName, balance.String(), now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = true
		}

		empty, err := encodeAssets(nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO portfolios (user_id, assets, total_value, version, created_at, last_updated)
			VALUES (?, ?, '0', 0, ?, ?)`,
			userID, empty, now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert portfolio: %w", err)
		}
		return nil
	})
	if err != nil {
		return Account{}, false, err
	}

	account, err := r.ReadAccount(ctx, userID)
	if err != nil {
		return Account{}, false, err
	}
	if created {
		r.log.Info().Str("user_id", userID).Str("balance", balance.String()).Msg("Account created")
	}
	return account, created, nil
}

// ReadAccount returns the account for userID
func (r *Repository) ReadAccount(ctx context.Context, userID string) (Account, error) {
	return readAccount(ctx, r.db, userID)
}

func readAccount(ctx context.Context, q queryer, userID string) (Account, error) {
	var (
		a                  Account
		balance            string
		createdAt, updated int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, display_name, virtual_balance, created_at, updated_at
		FROM accounts WHERE user_id = ?`, userID,
	).Scan(&a.UserID, &a.DisplayName, &balance, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to read account: %w", err)
	}

	if a.VirtualBalance, err = decimal.NewFromString(balance); err != nil {
		return Account{}, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return a, nil
}

// ReadBalance returns the user's cash balance
func (r *Repository) ReadBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	a, err := r.ReadAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return a.VirtualBalance, nil
}

// WriteBalance overwrites the user's cash balance
func (r *Repository) WriteBalance(ctx context.Context, userID string, balance decimal.Decimal, now time.Time) error {
	return writeBalance(ctx, r.db, userID, balance, now)
}

func writeBalance(ctx context.Context, q queryer, userID string, balance decimal.Decimal, now time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET virtual_balance = ?, updated_at = ? WHERE user_id = ?`,
		balance.String(), now.UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReadPortfolio returns the user's portfolio with its full transaction log
func (r *Repository) ReadPortfolio(ctx context.Context, userID string) (Portfolio, error) {
	return readPortfolio(ctx, r.db, userID)
}

func readPortfolio(ctx context.Context, q queryer, userID string) (Portfolio, error) {
	var (
		p                    Portfolio
		blob                 []byte
		total                string
		createdAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, assets, total_value, version, created_at, last_updated
		FROM portfolios WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &blob, &total, &p.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Portfolio{}, ErrNotFound
	}
	if err != nil {
		return Portfolio{}, fmt.Errorf("failed to read portfolio: %w", err)
	}

	if p.Assets, err = decodeAssets(blob); err != nil {
		return Portfolio{}, fmt.Errorf("corrupt portfolio for %s: %w", userID, err)
	}
	if p.TotalValue, err = decimal.NewFromString(total); err != nil {
		return Portfolio{}, fmt.Errorf("corrupt total value for %s: %w", userID, err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.LastUpdated = time.UnixMilli(updatedAt).UTC()

	if p.Transactions, err = listTransactions(ctx, q, userID, 0, false); err != nil {
		return Portfolio{}, err
	}
	return p, nil
}

// WritePortfolio stores p if the stored version still equals p.Version.
// The stored version is incremented; transactions are not touched.
func (r *Repository) WritePortfolio(ctx context.Context, p Portfolio) (int64, error) {
	return writePortfolio(ctx, r.db, p)
}

func writePortfolio(ctx context.Context, q queryer, p Portfolio) (int64, error) {
	blob, err := encodeAssets(p.Assets)
	if err != nil {
		return 0, fmt.Errorf("failed to encode assets: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE portfolios
		SET assets = ?, total_value = ?, version = version + 1, last_updated = ?
		WHERE user_id = ? AND version = ?`,
		blob, p.TotalValue.String(), p.LastUpdated.UnixMilli(), p.UserID, p.Version)
	if err != nil {
		return 0, fmt.Errorf("failed to write portfolio: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM portfolios WHERE user_id = ?`, p.UserID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check portfolio: %w", err)
		}
		return 0, ErrVersionConflict
	}
	return p.Version + 1, nil
}

// LoadState reads portfolio and balance from one consistent snapshot
func (r *Repository) LoadState(ctx context.Context, userID string) (State, error) {
	var state State
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		p, err := readPortfolio(ctx, tx, userID)
		if err != nil {
			return err
		}
		a, err := readAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		state = State{Portfolio: p, Balance: a.VirtualBalance}
		return nil
	})
	return state, err
}

// CommitTrade atomically writes the post-trade portfolio and balance and appends txn.
// next.Portfolio.Version must be the version the trade was computed from.
func (r *Repository) CommitTrade(ctx context.Context, next State, txn Transaction) (State, error) {
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		version, err := writePortfolio(ctx, tx, next.Portfolio)
		if err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, next.Portfolio.UserID, next.Balance, next.Portfolio.LastUpdated); err != nil {
			return err
		}
		if err := insertTransaction(ctx, tx, next.Portfolio.UserID, txn); err != nil {
			return err
		}
		next.Portfolio.Version = version
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return next, nil
}

func insertTransaction(ctx context.Context, q queryer, userID string, t Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions
			(id, user_id, side, symbol, name, quantity, price, base_amount, commission, total_amount, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, userID, string(t.Type), t.Symbol, t.Name,
		t.Quantity.String(), t.Price.String(), t.BaseAmount.String(),
		t.Commission.String(), t.TotalAmount.String(), t.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// Reset empties the portfolio, clears the transaction log and restores the balance.
// A missing account is created.
func (r *Repository) Reset(ctx context.Context, userID string, balance decimal.Decimal, now time.Time) (State, error) {
	empty, err := encodeAssets(nil)
	if err != nil {
		return State{}, err
	}

	var state State
	err = database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (user_id, display_name, virtual_balance, created_at, updated_at)
			VALUES (?, '', ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET virtual_balance = excluded.virtual_balance, updated_at = excluded.updated_at`,
			userID, balance.String(), now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to reset balance: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO portfolios (user_id, assets, total_value, version, created_at, last_updated)
			VALUES (?, ?, '0', 0, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				assets = excluded.assets, total_value = '0',
				version = portfolios.version + 1, last_updated = excluded.last_updated`,
			userID, empty, now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to reset portfolio: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear transactions: %w", err)
		}

		p, err := readPortfolio(ctx, tx, userID)
		if err != nil {
			return err
		}
		state = State{Portfolio: p, Balance: balance}
		return nil
	})
	if err != nil {
		return State{}, err
	}

	r.log.Info().Str("user_id", userID).Msg("Portfolio reset")
	return state, nil
}

// ListTransactions returns the user's transactions, newest first.
// limit <= 0 returns all of them.
func (r *Repository) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return listTransactions(ctx, r.db, userID, limit, true)
}

func listTransactions(ctx context.Context, q queryer, userID string, limit int, newestFirst bool) ([]Transaction, error) {
	query := `SELECT id, side, symbol, name, quantity, price, base_amount, commission, total_amount, executed_at
		FROM transactions WHERE user_id = ?`
	if newestFirst {
		query += ` ORDER BY seq DESC`
	} else {
		query += ` ORDER BY seq ASC`
	}
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

func scanTransaction(rows *sql.Rows) (Transaction, error) {
	var (
		t                                         Transaction
		side, qty, price, base, commission, total string
		executedAt                                int64
	)
	if err := rows.Scan(&t.ID, &side, &t.Symbol, &t.Name, &qty, &price, &base, &commission, &total, &executedAt); err != nil {
		return Transaction{}, err
	}

	t.Type = TradeSide(side)
	t.Timestamp = time.UnixMilli(executedAt).UTC()

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{qty, &t.Quantity},
		{price, &t.Price},
		{base, &t.BaseAmount},
		{commission, &t.Commission},
		{total, &t.TotalAmount},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Transaction{}, fmt.Errorf("corrupt amount in transaction %s: %w", t.ID, err)
		}
		*f.dst = d
	}
	return t, nil
}
