package imagestore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is the durable Store. Pending frames survive gateway restarts,
// which matters for devices that upload a frame and reconnect before
// speaking.
type Postgres struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgres connects, runs pending migrations, and returns the store.
// ttl <= 0 selects DefaultTTL.
func NewPostgres(ctx context.Context, dsn string, ttl time.Duration) (*Postgres, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse image store dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect image store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping image store: %w", err)
	}
	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool, ttl: ttl}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("image store migrations: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("image store migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, sessionID string, jpeg []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO pending_images (session_id, image, uploaded_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id)
		DO UPDATE SET image = excluded.image, uploaded_at = excluded.uploaded_at`,
		sessionID, jpeg)
	if err != nil {
		return fmt.Errorf("store pending image: %w", err)
	}
	return nil
}

func (p *Postgres) TakePending(ctx context.Context, sessionID string) ([]byte, error) {
	// Delete-returning makes the take atomic across gateway instances.
	var jpeg []byte
	var uploadedAt time.Time
	err := p.pool.QueryRow(ctx, `
		DELETE FROM pending_images
		WHERE session_id = $1
		RETURNING image, uploaded_at`,
		sessionID).Scan(&jpeg, &uploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take pending image: %w", err)
	}
	if time.Since(uploadedAt) > p.ttl {
		return nil, nil
	}
	return jpeg, nil
}

func (p *Postgres) Discard(ctx context.Context, sessionID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM pending_images WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("discard pending image: %w", err)
	}
	return nil
}

// Sweep drops frames older than the ttl. Intended for a periodic job.
func (p *Postgres) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM pending_images WHERE uploaded_at < now() - $1::interval`,
		p.ttl.String())
	if err != nil {
		return 0, fmt.Errorf("sweep pending images: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
