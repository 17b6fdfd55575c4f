package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stracadev/straca/pkg/store"
)

const repoLogPrefix = "db:repository"

// Repository is a store.MessageStore backed by the messages table.
type Repository struct {
	pool *pgxpool.Pool
}

var _ store.MessageStore = (*Repository)(nil)

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Save inserts msg, replacing any message with the same messageUid.
func (r *Repository) Save(ctx context.Context, msg *store.Message) error {
	if msg.Meta.MessageUID == "" {
		return fmt.Errorf("%s - message without messageUid", repoLogPrefix)
	}
	slog.Debug(fmt.Sprintf("%s - Save uid=%s type=%s", repoLogPrefix, msg.Meta.MessageUID, msg.Meta.MessageType))

	row := rowFromMessage(msg, time.Now().UTC())
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (message_uid, message_type, device, creator, created, expires, content)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (message_uid) DO UPDATE SET
		   message_type = EXCLUDED.message_type,
		   device = EXCLUDED.device,
		   creator = EXCLUDED.creator,
		   created = EXCLUDED.created,
		   expires = EXCLUDED.expires,
		   content = EXCLUDED.content`,
		row.MessageUID, row.MessageType, row.Device, row.Creator, row.Created, row.Expires, row.Content)
	if err != nil {
		return fmt.Errorf("%s - save %s failed: %w", repoLogPrefix, msg.Meta.MessageUID, err)
	}
	return nil
}

// LoadByExample returns unexpired messages matching example in save order.
func (r *Repository) LoadByExample(ctx context.Context, example *store.Message) ([]*store.Message, error) {
	slog.Debug(fmt.Sprintf("%s - LoadByExample type=%s uid=%s", repoLogPrefix, example.Meta.MessageType, example.Meta.MessageUID))

	rows, err := r.pool.Query(ctx,
		`SELECT message_uid, message_type, device, creator, created, expires, content
		 FROM messages
		 WHERE message_type LIKE $1 ESCAPE '\'
		   AND ($2::text = '' OR message_uid = $2)
		   AND (expires IS NULL OR expires > now())
		 ORDER BY seq`,
		likePrefix(example.Meta.MessageType), example.Meta.MessageUID)
	if err != nil {
		return nil, fmt.Errorf("%s - load failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// DeleteByExample deletes messages matching example, expired ones included.
func (r *Repository) DeleteByExample(ctx context.Context, example *store.Message) (int64, error) {
	slog.Debug(fmt.Sprintf("%s - DeleteByExample type=%s uid=%s", repoLogPrefix, example.Meta.MessageType, example.Meta.MessageUID))

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM messages
		 WHERE message_type LIKE $1 ESCAPE '\'
		   AND ($2::text = '' OR message_uid = $2)`,
		likePrefix(example.Meta.MessageType), example.Meta.MessageUID)
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]*store.Message, error) {
	var out []*store.Message
	for rows.Next() {
		var m messageRow
		if err := rows.Scan(&m.MessageUID, &m.MessageType, &m.Device, &m.Creator, &m.Created, &m.Expires, &m.Content); err != nil {
			return nil, fmt.Errorf("%s - scan message failed: %w", repoLogPrefix, err)
		}
		out = append(out, m.message())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - iterate messages failed: %w", repoLogPrefix, err)
	}
	return out, nil
}

// likePrefix escapes LIKE wildcards in prefix and appends %.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
