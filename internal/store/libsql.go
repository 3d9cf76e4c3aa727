package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// LibSQLStore implements Store on an embedded libSQL database.
type LibSQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLStore opens the database at dbPath, a file URI such as
// "file:/path/to/flowcanvas.db". Call Migrate before use.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return a row, so they go through QueryRow.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		var ignored string
		_ = db.QueryRow(p).Scan(&ignored)
	}

	return &LibSQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies pending schema migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum compacts the database file.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

// SaveWorkflow inserts the workflow or replaces the document and descriptive
// fields of an existing one. CreatedAt is kept on update.
func (s *LibSQLStore) SaveWorkflow(ctx context.Context, wf *Workflow) error {
	if wf == nil || wf.Document == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no document")
	}
	if wf.ID == "" {
		wf.ID = wf.Document.ID
	}
	if wf.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow id is empty")
	}
	doc, err := json.Marshal(wf.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	now := s.now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, current_version_id, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   current_version_id = COALESCE(excluded.current_version_id, workflows.current_version_id),
		   document = excluded.document,
		   updated_at = excluded.updated_at`,
		wf.ID, wf.Name, wf.Description, nullStr(wf.CurrentVersionID), string(doc), wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return storeError("save workflow", wf.ID, err)
	}
	return nil
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, current_version_id, document, created_at, updated_at
		 FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, storeError("get workflow", id, err)
	}
	return wf, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	query := `SELECT id, name, description, current_version_id, document, created_at, updated_at FROM workflows`
	var args []any
	if filter.NameContains != "" {
		query += ` WHERE name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(filter.NameContains)+"%")
	}
	query += ` ORDER BY updated_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list workflows", "", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, storeError("list workflows", "", err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow and all of its versions.
func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("delete workflow", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_versions WHERE workflow_id = ?`, id); err != nil {
		return storeError("delete versions", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return storeError("delete workflow", id, err)
	}
	if err := checkRowsAffected(res, "workflow", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Versions ---

// CreateVersion snapshots a document under the next version number of its
// workflow (when v.Version is zero). With setCurrent the workflow's document
// and current version point at the snapshot.
func (s *LibSQLStore) CreateVersion(ctx context.Context, v *WorkflowVersion, setCurrent bool) error {
	if v == nil || v.Document == nil {
		return schema.NewError(schema.ErrCodeValidation, "version has no document")
	}
	doc, err := json.Marshal(v.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("create version", v.WorkflowID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, v.WorkflowID).Scan(&exists)
	if err != nil {
		return storeError("create version", v.WorkflowID, err)
	}
	if exists == 0 {
		return storeNotFound("workflow", v.WorkflowID)
	}

	if v.Version == 0 {
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM workflow_versions WHERE workflow_id = ?`, v.WorkflowID,
		).Scan(&v.Version)
		if err != nil {
			return storeError("next version", v.WorkflowID, err)
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workflow_versions (id, workflow_id, version, description, document, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.WorkflowID, v.Version, v.Description, string(doc), v.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeStore, "workflow %q already has version %d", v.WorkflowID, v.Version).WithCause(err)
		}
		return storeError("create version", v.WorkflowID, err)
	}

	if setCurrent {
		_, err = tx.ExecContext(ctx,
			`UPDATE workflows SET current_version_id = ?, document = ?, updated_at = ? WHERE id = ?`,
			v.ID, string(doc), s.now(), v.WorkflowID,
		)
		if err != nil {
			return storeError("set current version", v.WorkflowID, err)
		}
	}
	return tx.Commit()
}

// ListVersions returns the versions of a workflow, oldest first.
func (s *LibSQLStore) ListVersions(ctx context.Context, workflowID string) ([]*WorkflowVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, version, description, document, created_at
		 FROM workflow_versions WHERE workflow_id = ? ORDER BY version`, workflowID)
	if err != nil {
		return nil, storeError("list versions", workflowID, err)
	}
	defer rows.Close()

	var out []*WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, storeError("list versions", workflowID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) GetVersion(ctx context.Context, workflowID string, version int) (*WorkflowVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, version, description, document, created_at
		 FROM workflow_versions WHERE workflow_id = ? AND version = ?`, workflowID, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("version", fmt.Sprintf("%s@%d", workflowID, version))
	}
	if err != nil {
		return nil, storeError("get version", workflowID, err)
	}
	return v, nil
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*Workflow, error) {
	wf := &Workflow{}
	var (
		current sql.NullString
		doc     string
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &current, &doc, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.CurrentVersionID = current.String
	if err := json.Unmarshal([]byte(doc), &wf.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return wf, nil
}

func scanVersion(row scanner) (*WorkflowVersion, error) {
	v := &WorkflowVersion{}
	var doc string
	if err := row.Scan(&v.ID, &v.WorkflowID, &v.Version, &v.Description, &doc, &v.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &v.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return v, nil
}

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op, id string, err error) *schema.FlowError {
	fe := schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
	if id != "" {
		fe.Details = map[string]any{"id": id}
	}
	return fe
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
