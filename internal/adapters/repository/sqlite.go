package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/okian/teamcap/pkg/metrics"
)

const defaultBusyTimeout = 5 * time.Second

const schema = `
	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		skills TEXT NOT NULL DEFAULT '[]',
		max_capacity REAL NOT NULL DEFAULT 0,
		meeting_hours_7d REAL NOT NULL DEFAULT 0,
		task_hours_7d REAL NOT NULL DEFAULT 0,
		performance_rating REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS work_units (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		required_skills TEXT NOT NULL DEFAULT '[]',
		estimated_hours REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'todo',
		assignee_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_work_units_status ON work_units(status);

	CREATE TABLE IF NOT EXISTS availability (
		person_id TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		week_start TEXT NOT NULL,
		busy_slots TEXT NOT NULL DEFAULT '[]',
		days_off TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (person_id, week_start)
	);
	CREATE INDEX IF NOT EXISTS idx_availability_week ON availability(week_start);

	CREATE TABLE IF NOT EXISTS commits (
		id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);
`

// SQLiteStore persists planning data in a SQLite file.
type SQLiteStore struct {
	conn        *sql.DB
	path        string
	busyTimeout time.Duration
	log         logger.Logger
}

// OpenSQLite opens or creates the database at path. ":memory:" keeps it in memory.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{path: path, busyTimeout: defaultBusyTimeout, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrInvalidRecord)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps pragmas and in-memory databases consistent
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.conn = conn
	s.log.Info(context.Background(), "sqlite store opened", logger.String("path", path))
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertPeople inserts or replaces people in one transaction.
func (s *SQLiteStore) UpsertPeople(ctx context.Context, people []model.Person) error {
	defer observe("upsert_people", time.Now())
	for _, p := range people {
		if err := validatePerson(p); err != nil {
			return err
		}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range people {
			skills, err := encodeList(p.Skills)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO people (id, name, skills, max_capacity, meeting_hours_7d, task_hours_7d, performance_rating)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					skills = excluded.skills,
					max_capacity = excluded.max_capacity,
					meeting_hours_7d = excluded.meeting_hours_7d,
					task_hours_7d = excluded.task_hours_7d,
					performance_rating = excluded.performance_rating`,
				p.ID, p.Name, skills, p.MaxCapacity, p.MeetingHours7d, p.TaskHours7d, p.PerformanceRating)
			if err != nil {
				return fmt.Errorf("failed to upsert person %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err == nil {
		s.refreshGauges(ctx)
	}
	return err
}

const personColumns = `id, name, skills, max_capacity, meeting_hours_7d, task_hours_7d, performance_rating`

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (model.Person, error) {
	var p model.Person
	var skills string
	if err := row.Scan(&p.ID, &p.Name, &skills, &p.MaxCapacity, &p.MeetingHours7d, &p.TaskHours7d, &p.PerformanceRating); err != nil {
		return model.Person{}, err
	}
	var err error
	p.Skills, err = decodeList(skills)
	return p, err
}

// GetPerson returns one person.
func (s *SQLiteStore) GetPerson(ctx context.Context, id string) (model.Person, error) {
	p, err := scanPerson(s.conn.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Person{}, fmt.Errorf("%w: person %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Person{}, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// ListPeople returns every person in insertion order.
func (s *SQLiteStore) ListPeople(ctx context.Context) ([]model.Person, error) {
	defer observe("list_people", time.Now())
	rows, err := s.conn.QueryContext(ctx, `SELECT `+personColumns+` FROM people ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	out := make([]model.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertWorkUnits inserts or replaces work units in one transaction.
func (s *SQLiteStore) UpsertWorkUnits(ctx context.Context, units []model.WorkUnit) error {
	defer observe("upsert_work_units", time.Now())
	for _, wu := range units {
		if err := validateWorkUnit(wu); err != nil {
			return err
		}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, wu := range units {
			skills, err := encodeList(wu.RequiredSkills)
			if err != nil {
				return err
			}
			status := wu.Status
			if status == "" {
				status = model.StatusTodo
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO work_units (id, title, description, required_skills, estimated_hours, status, assignee_id)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title,
					description = excluded.description,
					required_skills = excluded.required_skills,
					estimated_hours = excluded.estimated_hours,
					status = excluded.status,
					assignee_id = excluded.assignee_id`,
				wu.ID, wu.Title, wu.Description, skills, wu.EstimatedHours, status, wu.AssigneeID)
			if err != nil {
				return fmt.Errorf("failed to upsert work unit %s: %w", wu.ID, err)
			}
		}
		return nil
	})
	if err == nil {
		s.refreshGauges(ctx)
	}
	return err
}

const workUnitColumns = `id, title, description, required_skills, estimated_hours, status, assignee_id`

func scanWorkUnit(row scanner) (model.WorkUnit, error) {
	var wu model.WorkUnit
	var skills string
	if err := row.Scan(&wu.ID, &wu.Title, &wu.Description, &skills, &wu.EstimatedHours, &wu.Status, &wu.AssigneeID); err != nil {
		return model.WorkUnit{}, err
	}
	var err error
	wu.RequiredSkills, err = decodeList(skills)
	return wu, err
}

// GetWorkUnit returns one work unit.
func (s *SQLiteStore) GetWorkUnit(ctx context.Context, id string) (model.WorkUnit, error) {
	wu, err := scanWorkUnit(s.conn.QueryRowContext(ctx, `SELECT `+workUnitColumns+` FROM work_units WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.WorkUnit{}, fmt.Errorf("%w: work unit %s", ErrNotFound, id)
	}
	if err != nil {
		return model.WorkUnit{}, fmt.Errorf("failed to get work unit: %w", err)
	}
	return wu, nil
}

// ListWorkUnits returns the requested units in order, or all of them.
func (s *SQLiteStore) ListWorkUnits(ctx context.Context, ids []string) ([]model.WorkUnit, error) {
	defer observe("list_work_units", time.Now())
	if len(ids) > 0 {
		out := make([]model.WorkUnit, 0, len(ids))
		for _, id := range ids {
			wu, err := s.GetWorkUnit(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, wu)
		}
		return out, nil
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT `+workUnitColumns+` FROM work_units ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list work units: %w", err)
	}
	defer rows.Close()

	out := make([]model.WorkUnit, 0)
	for rows.Next() {
		wu, err := scanWorkUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work unit: %w", err)
		}
		out = append(out, wu)
	}
	return out, rows.Err()
}

// PutAvailability replaces each person's record for its week.
func (s *SQLiteStore) PutAvailability(ctx context.Context, records []model.AvailabilityRecord) error {
	defer observe("put_availability", time.Now())
	for _, r := range records {
		if err := validateAvailability(r); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			if err := exists(ctx, tx, `SELECT 1 FROM people WHERE id = ?`, r.PersonID); err != nil {
				return fmt.Errorf("%w: person %s", err, r.PersonID)
			}
			slots, err := encodeList(r.BusySlots)
			if err != nil {
				return err
			}
			days, err := encodeList(r.DaysOff)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO availability (person_id, week_start, busy_slots, days_off)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(person_id, week_start) DO UPDATE SET
					busy_slots = excluded.busy_slots,
					days_off = excluded.days_off`,
				r.PersonID, r.WeekStart, slots, days)
			if err != nil {
				return fmt.Errorf("failed to put availability for %s: %w", r.PersonID, err)
			}
		}
		return nil
	})
}

// ListAvailability returns the records of week, or all of them.
func (s *SQLiteStore) ListAvailability(ctx context.Context, week string) ([]model.AvailabilityRecord, error) {
	defer observe("list_availability", time.Now())
	query := `SELECT person_id, week_start, busy_slots, days_off FROM availability`
	var args []any
	if week != "" {
		query += ` WHERE week_start = ?`
		args = append(args, week)
	}
	rows, err := s.conn.QueryContext(ctx, query+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	defer rows.Close()

	out := make([]model.AvailabilityRecord, 0)
	for rows.Next() {
		var r model.AvailabilityRecord
		var slots, days string
		if err := rows.Scan(&r.PersonID, &r.WeekStart, &slots, &days); err != nil {
			return nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		if r.BusySlots, err = decodeList(slots); err != nil {
			return nil, err
		}
		if r.DaysOff, err = decodeList(days); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyCommit writes accepted proposals back in one transaction.
func (s *SQLiteStore) ApplyCommit(ctx context.Context, commitID string, assignments []Assignment) error {
	defer observe("apply_commit", time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if commitID != "" {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO commits (id, applied_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
				commitID, time.Now().UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("failed to record commit: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: %s", ErrDuplicate, commitID)
			}
		}
		for _, a := range assignments {
			if err := exists(ctx, tx, `SELECT 1 FROM work_units WHERE id = ?`, a.WorkUnitID); err != nil {
				return fmt.Errorf("%w: work unit %s", err, a.WorkUnitID)
			}
			for _, m := range a.Team {
				if m.AllocatedHours < 0 {
					return fmt.Errorf("%w: negative hours for %s", ErrInvalidRecord, m.PersonID)
				}
				res, err := tx.ExecContext(ctx,
					`UPDATE people SET task_hours_7d = task_hours_7d + ? WHERE id = ?`, m.AllocatedHours, m.PersonID)
				if err != nil {
					return fmt.Errorf("failed to add task hours: %w", err)
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return fmt.Errorf("%w: person %s", ErrNotFound, m.PersonID)
				}
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE work_units SET status = ?, assignee_id = ? WHERE id = ?`,
				model.StatusAssigned, assigneeOf(a.Team), a.WorkUnitID)
			if err != nil {
				return fmt.Errorf("failed to assign work unit: %w", err)
			}
		}
		return nil
	})
}

// Count summarizes the store.
func (s *SQLiteStore) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM people),
			(SELECT COUNT(*) FROM work_units),
			(SELECT COUNT(*) FROM availability)`).Scan(&c.People, &c.WorkUnits, &c.Availability)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) refreshGauges(ctx context.Context) {
	c, err := s.Count(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to refresh store gauges", logger.Error(err))
		return
	}
	metrics.UpdatePeopleTotal(c.People)
	metrics.UpdateWorkUnitsTotal(c.WorkUnits)
}

func exists(ctx context.Context, tx *sql.Tx, query string, arg string) error {
	var one int
	err := tx.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	var v []string
	if s == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}
