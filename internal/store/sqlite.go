package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on top of SQLite.
// An empty path keeps the database in memory for the lifetime of the store.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite works best with a single writer, and an
	// in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: path}, nil
}

// Path returns the database path, or "" for an in-memory store.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// AddIndividual adds an individual to the store.
func (s *SQLiteStore) AddIndividual(ctx context.Context, ind Individual) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ind.ID == "" {
		return "", fmt.Errorf("individual ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM individuals WHERE id = ?`, ind.ID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check individual: %w", err)
	}
	if exists > 0 {
		return "", &DuplicateIndividualError{ID: ind.ID}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO individuals (id, created_at) VALUES (?, ?)`,
		ind.ID, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("failed to insert individual: %w", err)
	}
	if err := writeBody(ctx, tx, ind); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit individual: %w", err)
	}
	return ind.ID, nil
}

// writeBody inserts the classes and data values of ind.
func writeBody(ctx context.Context, tx *sql.Tx, ind Individual) error {
	for pos, class := range ind.Classes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO individual_classes (individual_id, position, class_iri) VALUES (?, ?, ?)`,
			ind.ID, pos, class); err != nil {
			return fmt.Errorf("failed to insert class %s: %w", class, err)
		}
	}
	for prop, values := range ind.Data {
		if err := insertValues(ctx, tx, ind.ID, prop, values); err != nil {
			return err
		}
	}
	return nil
}

func insertValues(ctx context.Context, tx *sql.Tx, id, prop string, values []Literal) error {
	for pos, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_values (individual_id, property, position, lexical, datatype) VALUES (?, ?, ?, ?, ?)`,
			id, prop, pos, v.Lexical, v.Datatype); err != nil {
			return fmt.Errorf("failed to insert value for %s: %w", prop, err)
		}
	}
	return nil
}

// UpdateIndividual replaces the classes and data of an existing individual.
// Relations are left untouched.
func (s *SQLiteStore) UpdateIndividual(ctx context.Context, ind Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM individuals WHERE id = ?`, ind.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check individual: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("individual not found: %s", ind.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM individual_classes WHERE individual_id = ?`, ind.ID); err != nil {
		return fmt.Errorf("failed to clear classes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM data_values WHERE individual_id = ?`, ind.ID); err != nil {
		return fmt.Errorf("failed to clear data values: %w", err)
	}
	if err := writeBody(ctx, tx, ind); err != nil {
		return err
	}
	return tx.Commit()
}

// GetIndividual retrieves an individual by ID. Returns nil if not found.
func (s *SQLiteStore) GetIndividual(ctx context.Context, id string) (*Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getIndividualUnlocked(ctx, id)
}

func (s *SQLiteStore) getIndividualUnlocked(ctx context.Context, id string) (*Individual, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM individuals WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to get individual: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	ind := Individual{ID: id}

	rows, err := s.db.QueryContext(ctx,
		`SELECT class_iri FROM individual_classes WHERE individual_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	for rows.Next() {
		var class string
		if err := rows.Scan(&class); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		ind.Classes = append(ind.Classes, class)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	valueRows, err := s.db.QueryContext(ctx,
		`SELECT property, lexical, datatype FROM data_values WHERE individual_id = ? ORDER BY property, position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query data values: %w", err)
	}
	defer valueRows.Close()
	for valueRows.Next() {
		var prop string
		var lit Literal
		if err := valueRows.Scan(&prop, &lit.Lexical, &lit.Datatype); err != nil {
			return nil, fmt.Errorf("failed to scan data value: %w", err)
		}
		if ind.Data == nil {
			ind.Data = make(map[string][]Literal)
		}
		ind.Data[prop] = append(ind.Data[prop], lit)
	}
	return &ind, valueRows.Err()
}

// DeleteIndividual removes an individual; its classes, values and relations cascade.
func (s *SQLiteStore) DeleteIndividual(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM individuals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete individual: %w", err)
	}
	return nil
}

// QueryIndividuals returns individuals with classIRI asserted, sorted by ID.
func (s *SQLiteStore) QueryIndividuals(ctx context.Context, classIRI string) ([]Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if classIRI == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM individuals ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT individual_id FROM individual_classes WHERE class_iri = ? ORDER BY individual_id`, classIRI)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query individuals: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan individual id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]Individual, 0, len(ids))
	for _, id := range ids {
		ind, err := s.getIndividualUnlocked(ctx, id)
		if err != nil {
			return nil, err
		}
		if ind != nil {
			results = append(results, *ind)
		}
	}
	return results, nil
}

// SetData replaces all values of a data property on an individual.
func (s *SQLiteStore) SetData(ctx context.Context, id, property string, values []Literal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM individuals WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check individual: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("individual not found: %s", id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM data_values WHERE individual_id = ? AND property = ?`, id, property); err != nil {
		return fmt.Errorf("failed to clear %s: %w", property, err)
	}
	if err := insertValues(ctx, tx, id, property, values); err != nil {
		return err
	}
	return tx.Commit()
}

// AddRelation adds a relation. Adding an existing relation is a no-op.
func (s *SQLiteStore) AddRelation(ctx context.Context, rel Relation) error {
	if err := validateRelation(rel); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{rel.Subject, rel.Object} {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM individuals WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check individual: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("relation endpoint not found: %s", id)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO relations (subject, predicate, object) VALUES (?, ?, ?)`,
		rel.Subject, rel.Predicate, rel.Object)
	if err != nil {
		return fmt.Errorf("failed to add relation: %w", err)
	}
	return nil
}

// RemoveRelation removes the relation matching subject, predicate and object.
func (s *SQLiteStore) RemoveRelation(ctx context.Context, subject, predicate, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM relations WHERE subject = ? AND predicate = ? AND object = ?`,
		subject, predicate, object)
	if err != nil {
		return fmt.Errorf("failed to remove relation: %w", err)
	}
	return nil
}

// GetRelations returns relations connected to an individual in insertion order.
func (s *SQLiteStore) GetRelations(ctx context.Context, id string, direction Direction, predicate string) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where string
	switch direction {
	case DirectionOutbound:
		where = `subject = ?1`
	case DirectionInbound:
		where = `object = ?1`
	case DirectionBoth:
		where = `(subject = ?1 OR object = ?1)`
	default:
		return nil, fmt.Errorf("invalid direction: %s", direction)
	}
	query := `SELECT subject, predicate, object FROM relations WHERE ` + where
	args := []any{id}
	if predicate != "" {
		query += ` AND predicate = ?2`
		args = append(args, predicate)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	results := make([]Relation, 0)
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.Subject, &r.Predicate, &r.Object); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ImportDeclarations records schema declarations not yet known to the store.
func (s *SQLiteStore) ImportDeclarations(ctx context.Context, decls []Declaration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, d := range decls {
		if d.IRI == "" {
			return 0, fmt.Errorf("declaration IRI is required")
		}
		parents, err := json.Marshal(d.Parents)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal parents of %s: %w", d.IRI, err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO declarations (iri, kind, parents) VALUES (?, ?, ?)`,
			d.IRI, string(d.Kind), string(parents))
		if err != nil {
			return 0, fmt.Errorf("failed to insert declaration %s: %w", d.IRI, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit declarations: %w", err)
	}
	return added, nil
}

// Declarations returns every recorded declaration sorted by IRI.
func (s *SQLiteStore) Declarations(ctx context.Context) ([]Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT iri, kind, parents FROM declarations ORDER BY iri`)
	if err != nil {
		return nil, fmt.Errorf("failed to query declarations: %w", err)
	}
	defer rows.Close()

	out := make([]Declaration, 0)
	for rows.Next() {
		var d Declaration
		var kind string
		var parents sql.NullString
		if err := rows.Scan(&d.IRI, &kind, &parents); err != nil {
			return nil, fmt.Errorf("failed to scan declaration: %w", err)
		}
		d.Kind = DeclarationKind(kind)
		if parents.Valid && parents.String != "" && parents.String != "null" {
			if err := json.Unmarshal([]byte(parents.String), &d.Parents); err != nil {
				return nil, fmt.Errorf("failed to decode parents of %s: %w", d.IRI, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
