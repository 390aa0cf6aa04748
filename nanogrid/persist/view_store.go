package persist

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

const viewTable = "view_documents"

var viewColumns = []string{"id", "type", "name", "value", "created_at", "updated_at"}

// ErrViewNotFound is returned for unknown view ids
var ErrViewNotFound = errors.New("view not found")

// View is a named, saved bundle of component state. Several components can
// persist into one view, each under its own path.
type View struct {
	ID        string         `json:"id" yaml:"id"`
	Type      string         `json:"type" yaml:"type"`
	Name      string         `json:"name" yaml:"name"`
	Value     map[string]any `json:"value" yaml:"value"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

// ViewStore saves views in a SQLite database. It backs the view provider.
type ViewStore struct {
	db       *sql.DB
	builder  *sqlBuilder
	timeFunc func() time.Time
}

// ViewStoreOption customizes a ViewStore
type ViewStoreOption func(*ViewStore)

// WithTimeFunc sets the clock used for view timestamps and ids
func WithTimeFunc(fn func() time.Time) ViewStoreOption {
	return func(s *ViewStore) {
		s.timeFunc = fn
	}
}

// OpenViewStore opens or creates the view database at path
func OpenViewStore(path string, opts ...ViewStoreOption) (*ViewStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + viewTable + ` (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create %s: %w", viewTable, err)
	}

	s := &ViewStore{db: db, builder: newSQLBuilder(), timeFunc: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create saves a new view. ID and timestamps are assigned.
func (s *ViewStore) Create(ctx context.Context, viewType, name string, value map[string]any) (*View, error) {
	now := s.timeFunc()
	v := &View{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Type:      viewType,
		Name:      name,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v.Value == nil {
		v.Value = map[string]any{}
	}
	data, err := json.Marshal(v.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view value: %w", err)
	}

	query, args, err := s.builder.buildInsert(viewTable, viewColumns,
		[]any{v.ID, v.Type, v.Name, string(data), now.UnixMilli(), now.UnixMilli()})
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert view: %w", err)
	}
	return v, nil
}

// Get loads a view by id
func (s *ViewStore) Get(ctx context.Context, id string) (*View, error) {
	query, args, err := s.builder.buildSelect(viewTable, viewColumns, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	v, err := scanView(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return v, err
}

// Update replaces a view's value
func (s *ViewStore) Update(ctx context.Context, id string, value map[string]any) error {
	if value == nil {
		value = map[string]any{}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode view value: %w", err)
	}
	query, args, err := s.builder.buildUpdate(viewTable, map[string]any{
		"value":      string(data),
		"updated_at": s.timeFunc().UnixMilli(),
	}, squirrel.Eq{"id": id})
	if err != nil {
		return err
	}
	return s.execOne(ctx, id, query, args)
}

// List returns the views of a type ordered by name. An empty type lists
// every view.
func (s *ViewStore) List(ctx context.Context, viewType string) ([]*View, error) {
	where := squirrel.Eq{}
	if viewType != "" {
		where["type"] = viewType
	}
	query, args, err := s.builder.buildSelect(viewTable, viewColumns, where, "name", "id")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Delete removes a view
func (s *ViewStore) Delete(ctx context.Context, id string) error {
	query, args, err := s.builder.buildDelete(viewTable, squirrel.Eq{"id": id})
	if err != nil {
		return err
	}
	return s.execOne(ctx, id, query, args)
}

// Close releases the database
func (s *ViewStore) Close() error {
	return s.db.Close()
}

func (s *ViewStore) execOne(ctx context.Context, id, query string, args []any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write view %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner) (*View, error) {
	var (
		v                View
		value            string
		created, updated int64
	)
	if err := row.Scan(&v.ID, &v.Type, &v.Name, &value, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(value), &v.Value); err != nil {
		return nil, fmt.Errorf("failed to decode view %s: %w", v.ID, err)
	}
	v.CreatedAt = time.UnixMilli(created)
	v.UpdatedAt = time.UnixMilli(updated)
	return &v, nil
}
