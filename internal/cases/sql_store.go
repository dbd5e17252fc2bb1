package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// SQLStore serves case definitions stored as JSON documents in PostgreSQL
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore connects to PostgreSQL through lib/pq
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing connection
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the underlying connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Get loads and validates one case
func (s *SQLStore) Get(ctx context.Context, id string) (*models.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tags, definition FROM case_definitions WHERE id = $1`, id)

	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simerr.New(simerr.KindCaseNotFound, "case %s", id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns cases ordered by id. A non-empty tag filters on the tags column.
func (s *SQLStore) List(ctx context.Context, tag string) ([]*models.Case, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tag == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, tags, definition FROM case_definitions ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, tags, definition FROM case_definitions WHERE $1 = ANY(tags) ORDER BY id`, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var result []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cases: %w", err)
	}
	return result, nil
}

// Put validates and upserts a case definition
func (s *SQLStore) Put(ctx context.Context, c *models.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}

	def, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode case: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO case_definitions (id, title, tags, definition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, tags = EXCLUDED.tags, definition = EXCLUDED.definition
	`, c.ID, c.Title, pq.Array(c.Tags), def)
	if err != nil {
		return fmt.Errorf("failed to save case: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*models.Case, error) {
	var (
		id   string
		tags []string
		def  []byte
	)
	if err := row.Scan(&id, pq.Array(&tags), &def); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}

	var c models.Case
	if err := json.Unmarshal(def, &c); err != nil {
		return nil, simerr.New(simerr.KindInvalidCaseData, "case %s: %v", id, err)
	}
	c.ID = id
	c.Tags = tags

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
