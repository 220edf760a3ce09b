package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"auctionsearch/internal/domain"
)

type SortField int

const (
	SortTextScore SortField = iota
	SortMake
	SortCreatedAt
	SortAuctionEnd
)

// Sort orders by Field; Desc is ignored for SortTextScore, which always
// puts the most relevant match first.
type Sort struct {
	Field SortField
	Desc  bool
}

// ItemQuery is a store-level search. Sorts are listed in the order they were
// requested; a later entry takes precedence and earlier ones break its ties.
type ItemQuery struct {
	Text             string
	Sorts            []Sort
	AuctionEndAfter  *time.Time // exclusive
	AuctionEndBefore *time.Time // exclusive
	Seller           string
	Winner           string
	Limit            int
	Offset           int
}

type ItemRepo struct {
	db       *sqlx.DB
	ftsReady atomic.Bool
	fallback atomic.Bool
}

func NewItemRepo(db *sqlx.DB) *ItemRepo { return &ItemRepo{db: db} }

type itemRow struct {
	ID             string `db:"id"`
	Make           string `db:"make"`
	Model          string `db:"model"`
	Color          string `db:"color"`
	Year           int    `db:"year"`
	Mileage        int    `db:"mileage"`
	ImageURL       string `db:"image_url"`
	ReservePrice   int    `db:"reserve_price"`
	CurrentHighBid int    `db:"current_high_bid"`
	SoldAmount     int    `db:"sold_amount"`
	Seller         string `db:"seller"`
	Winner         string `db:"winner"`
	Status         string `db:"status"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
	AuctionEnd     int64  `db:"auction_end"`
}

const itemColumns = `i.id, i.make, i.model, i.color, i.year, i.mileage, i.image_url,
    i.reserve_price, i.current_high_bid, i.sold_amount, i.seller, i.winner, i.status,
    i.created_at, i.updated_at, i.auction_end`

func toRow(it domain.Item) itemRow {
	return itemRow{
		ID: it.ID, Make: it.Make, Model: it.Model, Color: it.Color,
		Year: it.Year, Mileage: it.Mileage, ImageURL: it.ImageURL,
		ReservePrice: it.ReservePrice, CurrentHighBid: it.CurrentHighBid, SoldAmount: it.SoldAmount,
		Seller: it.Seller, Winner: it.Winner, Status: string(it.Status),
		CreatedAt: toNanos(it.CreatedAt), UpdatedAt: toNanos(it.UpdatedAt), AuctionEnd: toNanos(it.AuctionEnd),
	}
}

func (r itemRow) toDomain() domain.Item {
	return domain.Item{
		ID: r.ID, Make: r.Make, Model: r.Model, Color: r.Color,
		Year: r.Year, Mileage: r.Mileage, ImageURL: r.ImageURL,
		ReservePrice: r.ReservePrice, CurrentHighBid: r.CurrentHighBid, SoldAmount: r.SoldAmount,
		Seller: r.Seller, Winner: r.Winner, Status: domain.Status(r.Status),
		CreatedAt: fromNanos(r.CreatedAt), UpdatedAt: fromNanos(r.UpdatedAt), AuctionEnd: fromNanos(r.AuctionEnd),
	}
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// EnsureTextIndex creates the full-text index over make, model and color.
// Safe to call repeatedly; when FTS5 is missing, search falls back to LIKE.
func (r *ItemRepo) EnsureTextIndex(ctx context.Context) error {
	var existing int
	if err := r.db.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'items_fts'`); err != nil {
		return fmt.Errorf("failed to inspect text index: %w", err)
	}

	_, err := r.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			make,
			model,
			color,
			content='items',
			content_rowid='seq',
			tokenize='porter unicode61'
		)
	`)
	if err != nil {
		log.Warn().Err(err).Msg("FTS5 not available, using fallback search")
		r.fallback.Store(true)
		return nil
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS items_ai AFTER INSERT ON items BEGIN
			INSERT INTO items_fts(rowid, make, model, color)
			VALUES (new.seq, new.make, new.model, new.color);
		END`,
		`CREATE TRIGGER IF NOT EXISTS items_ad AFTER DELETE ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, make, model, color)
			VALUES ('delete', old.seq, old.make, old.model, old.color);
		END`,
		`CREATE TRIGGER IF NOT EXISTS items_au AFTER UPDATE ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, make, model, color)
			VALUES ('delete', old.seq, old.make, old.model, old.color);
			INSERT INTO items_fts(rowid, make, model, color)
			VALUES (new.seq, new.make, new.model, new.color);
		END`,
	}
	for _, trigger := range triggers {
		if _, err := r.db.ExecContext(ctx, trigger); err != nil {
			return fmt.Errorf("failed to create text index trigger: %w", err)
		}
	}

	if existing == 0 {
		// rows written before the index existed
		if _, err := r.db.ExecContext(ctx, `INSERT INTO items_fts(items_fts) VALUES('rebuild')`); err != nil {
			return fmt.Errorf("failed to rebuild text index: %w", err)
		}
	}
	r.ftsReady.Store(true)
	return nil
}

// UpsertMany writes the batch in one transaction, keyed by id. A row is only
// overwritten by a version whose updatedAt is not older than the stored one.
// Returns the number of rows inserted or changed.
func (r *ItemRepo) UpsertMany(ctx context.Context, items []domain.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO items(
			id, make, model, color, year, mileage, image_url,
			reserve_price, current_high_bid, sold_amount, seller, winner, status,
			created_at, updated_at, auction_end
		) VALUES (
			:id, :make, :model, :color, :year, :mileage, :image_url,
			:reserve_price, :current_high_bid, :sold_amount, :seller, :winner, :status,
			:created_at, :updated_at, :auction_end
		)
		ON CONFLICT(id) DO UPDATE SET
			make = excluded.make,
			model = excluded.model,
			color = excluded.color,
			year = excluded.year,
			mileage = excluded.mileage,
			image_url = excluded.image_url,
			reserve_price = excluded.reserve_price,
			current_high_bid = excluded.current_high_bid,
			sold_amount = excluded.sold_amount,
			seller = excluded.seller,
			winner = excluded.winner,
			status = excluded.status,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			auction_end = excluded.auction_end
		WHERE excluded.updated_at >= items.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	applied := 0
	for _, it := range items {
		if it.ID == "" {
			return 0, errors.New("item without id")
		}
		res, err := stmt.ExecContext(ctx, toRow(it))
		if err != nil {
			return 0, fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
		n, _ := res.RowsAffected()
		applied += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return applied, nil
}

// LatestUpdatedAt returns the watermark: the newest updatedAt in the replica,
// or nil when the replica is empty.
func (r *ItemRepo) LatestUpdatedAt(ctx context.Context) (*time.Time, error) {
	var latest sql.NullInt64
	if err := r.db.GetContext(ctx, &latest, `SELECT MAX(updated_at) FROM items`); err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := fromNanos(latest.Int64)
	return &t, nil
}

func (r *ItemRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`)
	return n, err
}

// Get returns sql.ErrNoRows when the id is unknown.
func (r *ItemRepo) Get(ctx context.Context, id string) (domain.Item, error) {
	var row itemRow
	err := r.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id)
	if err != nil {
		return domain.Item{}, err
	}
	return row.toDomain(), nil
}

// Search returns one page of matches and the number of matches before paging.
func (r *ItemRepo) Search(ctx context.Context, q ItemQuery) ([]domain.Item, int, error) {
	from, where, args, scored := r.buildFilter(q)
	order := buildOrder(q.Sorts, scored)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin search: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM `+from+` WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	out := []domain.Item{}
	if total == 0 || q.Offset >= total {
		return out, total, nil
	}

	query := `SELECT ` + itemColumns + ` FROM ` + from + ` WHERE ` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	var rows []itemRow
	if err := tx.SelectContext(ctx, &rows, query, append(args, q.Limit, q.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to search items: %w", err)
	}
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, total, nil
}

func (r *ItemRepo) buildFilter(q ItemQuery) (from, where string, args []any, scored bool) {
	from = `items i`
	conds := []string{}

	if q.Text != "" {
		terms := textTerms(q.Text)
		switch {
		case len(terms) == 0:
			conds = append(conds, `0`)
		case r.ftsReady.Load() && !r.fallback.Load():
			quoted := make([]string, len(terms))
			for i, t := range terms {
				quoted[i] = `"` + t + `"`
			}
			from = `items i JOIN (
				SELECT rowid AS seq, bm25(items_fts) AS score FROM items_fts WHERE items_fts MATCH ?
			) f ON f.seq = i.seq`
			args = append(args, strings.Join(quoted, " OR "))
			scored = true
		default:
			likes := make([]string, 0, len(terms))
			for _, t := range terms {
				likes = append(likes, `(i.make LIKE ? OR i.model LIKE ? OR i.color LIKE ?)`)
				p := "%" + t + "%"
				args = append(args, p, p, p)
			}
			conds = append(conds, `(`+strings.Join(likes, ` OR `)+`)`)
		}
	}
	if q.AuctionEndAfter != nil {
		conds = append(conds, `i.auction_end > ?`)
		args = append(args, toNanos(*q.AuctionEndAfter))
	}
	if q.AuctionEndBefore != nil {
		conds = append(conds, `i.auction_end < ?`)
		args = append(args, toNanos(*q.AuctionEndBefore))
	}
	if q.Seller != "" {
		conds = append(conds, `i.seller = ?`)
		args = append(args, q.Seller)
	}
	if q.Winner != "" {
		conds = append(conds, `i.winner = ?`)
		args = append(args, q.Winner)
	}

	if len(conds) == 0 {
		return from, `1`, args, scored
	}
	return from, strings.Join(conds, ` AND `), args, scored
}

func buildOrder(sorts []Sort, scored bool) string {
	seen := map[SortField]bool{}
	keys := []string{}
	for i := len(sorts) - 1; i >= 0; i-- {
		s := sorts[i]
		if seen[s.Field] {
			continue
		}
		seen[s.Field] = true

		var col string
		switch s.Field {
		case SortTextScore:
			if scored {
				// bm25: lower is more relevant
				keys = append(keys, `f.score ASC`)
			}
			continue
		case SortMake:
			col = `i.make`
		case SortCreatedAt:
			col = `i.created_at`
		case SortAuctionEnd:
			col = `i.auction_end`
		default:
			continue
		}
		if s.Desc {
			col += ` DESC`
		} else {
			col += ` ASC`
		}
		keys = append(keys, col)
	}
	return strings.Join(append(keys, `i.id ASC`), `, `)
}

// textTerms splits a search term into letter/digit tokens safe to quote in
// an FTS5 MATCH expression.
func textTerms(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
