package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/citypulse/citypulse/internal/domain"
)

// Repository implements domain.PulseRepository and domain.CursorStore using
// PostgreSQL. Pulse ids are snowflake-assigned on insert.
type Repository struct {
	db   *sqlx.DB
	node *snowflake.Node
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, ensures the schema, and returns a new Repository. The caller
// should call Close when the repository is no longer needed.
func NewRepository(databaseURL string, nodeID int64) (*Repository, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}

	r := &Repository{db: db, node: node}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pulses (
		id BIGINT PRIMARY KEY,
		city TEXT NOT NULL,
		neighborhood TEXT,
		mood TEXT NOT NULL,
		tag TEXT NOT NULL,
		message TEXT NOT NULL,
		author TEXT NOT NULL,
		user_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		poll JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_pulses_city_created_at ON pulses (city, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_pulses_user_created_at ON pulses (user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS changefeed_cursors (
		service TEXT PRIMARY KEY,
		cursor_value BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`

	_, err := r.db.Exec(schema)
	return err
}

type pulseRow struct {
	ID           int64           `db:"id"`
	City         string          `db:"city"`
	Neighborhood sql.NullString  `db:"neighborhood"`
	Mood         string          `db:"mood"`
	Tag          string          `db:"tag"`
	Message      string          `db:"message"`
	Author       string          `db:"author"`
	UserID       sql.NullString  `db:"user_id"`
	CreatedAt    time.Time       `db:"created_at"`
	ExpiresAt    sql.NullTime    `db:"expires_at"`
	Lat          sql.NullFloat64 `db:"lat"`
	Lng          sql.NullFloat64 `db:"lng"`
	Poll         []byte          `db:"poll"`
}

func (row pulseRow) toDomain() (domain.Pulse, error) {
	p := domain.Pulse{
		ID:           row.ID,
		City:         row.City,
		Neighborhood: row.Neighborhood.String,
		Mood:         row.Mood,
		Tag:          domain.Category(row.Tag),
		Message:      row.Message,
		Author:       row.Author,
		UserID:       row.UserID.String,
		CreatedAt:    row.CreatedAt.UTC(),
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time.UTC()
		p.ExpiresAt = &t
	}
	if row.Lat.Valid && row.Lng.Valid {
		p.Location = &domain.Coordinate{Lat: row.Lat.Float64, Lng: row.Lng.Float64}
	}
	if len(row.Poll) > 0 {
		var poll domain.Poll
		if err := json.Unmarshal(row.Poll, &poll); err != nil {
			return domain.Pulse{}, fmt.Errorf("pulse %d: unmarshal poll: %w", row.ID, err)
		}
		p.Poll = &poll
	}
	if err := p.Validate(); err != nil {
		return domain.Pulse{}, err
	}
	return p, nil
}

// CreatePulse inserts a new pulse and assigns its id.
func (r *Repository) CreatePulse(ctx context.Context, p *domain.Pulse) error {
	if p.ID == 0 {
		p.ID = r.node.Generate().Int64()
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pulse: %w", err)
	}

	query := `
		INSERT INTO pulses (id, city, neighborhood, mood, tag, message, author, user_id, created_at, expires_at, lat, lng, poll)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	var expiresAt sql.NullTime
	if p.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *p.ExpiresAt, Valid: true}
	}
	var lat, lng sql.NullFloat64
	if p.Location != nil {
		lat = sql.NullFloat64{Float64: p.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: p.Location.Lng, Valid: true}
	}
	var poll []byte
	if p.Poll != nil {
		b, err := json.Marshal(p.Poll)
		if err != nil {
			return fmt.Errorf("marshal poll: %w", err)
		}
		poll = b
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.City, p.Neighborhood, p.Mood, string(p.Tag),
		p.Message, p.Author, p.UserID, p.CreatedAt, expiresAt, lat, lng, poll,
	)
	return err
}

// GetPulse retrieves a single pulse by id.
func (r *Repository) GetPulse(ctx context.Context, id int64) (*domain.Pulse, error) {
	var row pulseRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM pulses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pulse: %w", err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("coerce pulse row: %w", err)
	}
	return &p, nil
}

// DeletePulse removes a pulse by id; no-op if already absent.
func (r *Repository) DeletePulse(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pulses WHERE id = $1`, id)
	return err
}

// ListCityPulses retrieves a city's pulses inside the coarse fetch window,
// newest first. A non-nil before acts as the load-more cursor: only rows
// strictly older are returned.
func (r *Repository) ListCityPulses(ctx context.Context, city string, limit int, before *time.Time) ([]domain.Pulse, error) {
	from, until := domain.FetchWindowBounds(time.Now().UTC(), time.UTC)

	var (
		rows []pulseRow
		err  error
	)

	if before != nil {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM pulses
			WHERE city = $1 AND created_at >= $2 AND created_at < $3 AND created_at < $4
			ORDER BY created_at DESC, id DESC
			LIMIT $5`,
			city, from, until, *before, limit,
		)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM pulses
			WHERE city = $1 AND created_at >= $2 AND created_at < $3
			ORDER BY created_at DESC, id DESC
			LIMIT $4`,
			city, from, until, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query city pulses: %w", err)
	}

	pulses := make([]domain.Pulse, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			// A malformed row never crosses into core logic.
			continue
		}
		pulses = append(pulses, p)
	}
	return pulses, nil
}

// UserPostTimes returns the creation timestamps of a user's pulses since the
// given instant, bounded to the most recent 365.
func (r *Repository) UserPostTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := r.db.SelectContext(ctx, &times, `
		SELECT created_at FROM pulses
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 365`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query user post times: %w", err)
	}
	return times, nil
}

// CountUserPulses returns how many pulses the user has ever posted.
func (r *Repository) CountUserPulses(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM pulses WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("count user pulses: %w", err)
	}
	return count, nil
}

// DeleteExpiredPulses removes pulses that have aged out of the fetch window.
// Expired pulses stay in the table until then; expiry only hides them from
// feeds, so a late vote or moderation lookup can still find the row.
// Returns the total rows deleted.
func (r *Repository) DeleteExpiredPulses(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pulses WHERE created_at < $1`,
		now.Add(-domain.FetchWindow),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired pulses: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// GetCursor retrieves the saved change-feed cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.GetContext(ctx, &cursor,
		`SELECT cursor_value FROM changefeed_cursors WHERE service = $1`, service,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the change-feed cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO changefeed_cursors (service, cursor_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (service) DO UPDATE SET cursor_value = $2, updated_at = $3`,
		service, cursor, time.Now().UTC(),
	)
	return err
}
