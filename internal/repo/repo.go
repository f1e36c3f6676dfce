package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wayfinder/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) UpsertAlgorithm(ctx context.Context, a domain.Algorithm) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO algorithms(name,description,source,score,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET description=excluded.description, source=excluded.source, score=excluded.score, updated_at=excluded.updated_at`,
		a.Name, nullable(a.Description), a.Source, a.Score, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAlgorithm(ctx context.Context, name string) (domain.Algorithm, error) {
	var a domain.Algorithm
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT name,description,source,score,created_at,updated_at FROM algorithms WHERE name=?`, name).
		Scan(&a.Name, &desc, &a.Source, &a.Score, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if desc.Valid {
		a.Description = desc.String
	}
	return a, err
}

func (r Repo) ListAlgorithms(ctx context.Context) ([]domain.Algorithm, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name,description,source,score,created_at,updated_at FROM algorithms ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Algorithm
	for rows.Next() {
		var a domain.Algorithm
		var desc sql.NullString
		if err := rows.Scan(&a.Name, &desc, &a.Source, &a.Score, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			a.Description = desc.String
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) DeleteAlgorithm(ctx context.Context, name string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM algorithms WHERE name=?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertRepairJob(ctx context.Context, j domain.RepairJob) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO repair_jobs(id,task_id,algorithm,provider,status,iterations,final_score,final_source,history_json,error,elapsed_seconds,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.TaskID, j.Algorithm, j.Provider, j.Status, j.Iterations, j.FinalScore, j.FinalSource,
		nullable(j.HistoryJSON), nullable(j.Error), j.Elapsed, j.CreatedAt)
	return err
}

func (r Repo) GetRepairJob(ctx context.Context, id string) (domain.RepairJob, error) {
	var j domain.RepairJob
	var history, errMsg sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,algorithm,provider,status,iterations,final_score,final_source,history_json,error,elapsed_seconds,created_at FROM repair_jobs WHERE id=?`, id).
		Scan(&j.ID, &j.TaskID, &j.Algorithm, &j.Provider, &j.Status, &j.Iterations, &j.FinalScore, &j.FinalSource, &history, &errMsg, &j.Elapsed, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if history.Valid {
		j.HistoryJSON = history.String
	}
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	return j, nil
}

type RepairJobFilters struct {
	Algorithm string
	Status    string
	Limit     int
}

func (r Repo) ListRepairJobs(ctx context.Context, f RepairJobFilters) ([]domain.RepairJob, error) {
	var clauses []string
	var args []any
	if f.Algorithm != "" {
		clauses = append(clauses, "algorithm=?")
		args = append(args, f.Algorithm)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,task_id,algorithm,provider,status,iterations,final_score,final_source,history_json,error,elapsed_seconds,created_at FROM repair_jobs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RepairJob
	for rows.Next() {
		var j domain.RepairJob
		var history, errMsg sql.NullString
		if err := rows.Scan(&j.ID, &j.TaskID, &j.Algorithm, &j.Provider, &j.Status, &j.Iterations, &j.FinalScore, &j.FinalSource, &history, &errMsg, &j.Elapsed, &j.CreatedAt); err != nil {
			return nil, err
		}
		if history.Valid {
			j.HistoryJSON = history.String
		}
		if errMsg.Valid {
			j.Error = errMsg.String
		}
		res = append(res, j)
	}
	return res, nil
}

// LatestEvents returns journal entries newest first, optionally
// filtered by type and entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		res = append(res, e)
	}
	return res, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
