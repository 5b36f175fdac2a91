package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shortly/pkg/events"
)

const linkColumns = `id, short_code, original_url, owner_id, password_hash, title, clicks,
	expires_at, is_active, is_custom, created_at, updated_at, last_accessed_at`

// Whitelist for FindByOwner ordering; anything else falls back to created_at.
var sortColumns = map[string]string{
	"created_at":       "created_at",
	"clicks":           "clicks",
	"last_accessed_at": "last_accessed_at",
}

type PostgresStore struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, opTimeout time.Duration) *PostgresStore {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &PostgresStore{pool: pool, opTimeout: opTimeout}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*Link, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1`
	link, err := scanLink(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return link, nil
}

func (s *PostgresStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists)
	return exists, err
}

// Insert persists the link and increments the owner's links_created counter
// in one transaction.
func (s *PostgresStore) Insert(ctx context.Context, link *Link) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO links (short_code, original_url, owner_id, password_hash, title, expires_at, is_active, is_custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, query,
		link.ShortCode, link.OriginalURL, link.OwnerID, link.PasswordHash,
		link.Title, link.ExpiresAt, link.IsActive, link.IsCustom,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET links_created = links_created + 1, updated_at = now() WHERE id = $1`,
		link.OwnerID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Update(ctx context.Context, link *Link) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `UPDATE links
		SET original_url = $2, title = $3, expires_at = $4, is_active = $5, password_hash = $6, updated_at = now()
		WHERE short_code = $1
		RETURNING updated_at`
	return s.pool.QueryRow(ctx, query,
		link.ShortCode, link.OriginalURL, link.Title, link.ExpiresAt,
		link.IsActive, link.PasswordHash,
	).Scan(&link.UpdatedAt)
}

// SoftDelete disables the link and decrements the owner's counter (floored
// at zero) in one transaction. The row itself is kept so the short code
// stays reserved.
func (s *PostgresStore) SoftDelete(ctx context.Context, code string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin soft delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var owner uuid.UUID
	err = tx.QueryRow(ctx,
		`UPDATE links SET is_active = false, updated_at = now() WHERE short_code = $1 RETURNING owner_id`,
		code).Scan(&owner)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET links_created = GREATEST(links_created - 1, 0), updated_at = now() WHERE id = $1`,
		owner)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) UpdateLastAccessed(ctx context.Context, code string, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `UPDATE links SET last_accessed_at = $2 WHERE short_code = $1`, code, at)
	return err
}

func (s *PostgresStore) AddClicks(ctx context.Context, code string, n int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `UPDATE links SET clicks = clicks + $2 WHERE short_code = $1`, code, n)
	return err
}

func (s *PostgresStore) FindByOwner(ctx context.Context, owner uuid.UUID, page, size int, sortBy, order string) ([]*Link, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	col, ok := sortColumns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if order == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM links WHERE owner_id = $1 ORDER BY %s %s NULLS LAST LIMIT $2 OFFSET $3`,
		linkColumns, col, dir)
	rows, err := s.pool.Query(ctx, query, owner, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) CountByOwner(ctx context.Context, owner uuid.UUID) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM links WHERE owner_id = $1`, owner).Scan(&n)
	return n, err
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT id, username, email, plan, links_created, links_limit, created_at, updated_at
		FROM users WHERE id = $1`
	var u User
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.Plan, &u.LinksCreated, &u.LinksLimit, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// InsertClickEvents writes a batch of analytics events. Called from the
// event dispatcher's flush path, never from a request handler.
func (s *PostgresStore) InsertClickEvents(ctx context.Context, evs []events.ClickEvent) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, ev := range evs {
		batch.Queue(
			`INSERT INTO click_events (short_code, link_id, ip_address, user_agent, referer, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ev.ShortCode, ev.LinkID, ev.IPAddress, ev.UserAgent, ev.Referer, ev.Timestamp)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func scanLink(row pgx.Row) (*Link, error) {
	var link Link
	err := row.Scan(
		&link.ID, &link.ShortCode, &link.OriginalURL, &link.OwnerID, &link.PasswordHash,
		&link.Title, &link.Clicks, &link.ExpiresAt, &link.IsActive, &link.IsCustom,
		&link.CreatedAt, &link.UpdatedAt, &link.LastAccessedAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// userStoreAdapter narrows PostgresStore to the UserStore interface.
type userStoreAdapter struct {
	*PostgresStore
}

func (a userStoreAdapter) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindUserByID(ctx, id)
}

// Users returns the UserStore view of this store.
func (s *PostgresStore) Users() UserStore {
	return userStoreAdapter{s}
}
