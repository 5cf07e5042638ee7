// Package images implements the prompt to stored image flow: generate,
// download, persist the bytes and the record, and later list, review or
// delete them.
package images

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stupiduntilnot/streamchat/internal/control"
)

// Record is one generated image. Records are never updated.
type Record struct {
	ID       int64
	Prompt   string
	Filename string
}

// Repo stores image records in the images table.
type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Insert stores a record and returns its id.
func (r *Repo) Insert(ctx context.Context, prompt, filename string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO images (prompt, filename) VALUES (?, ?)`,
		prompt, filename,
	)
	if err != nil {
		return 0, control.Store("images.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, control.Store("images.insert", err)
	}
	return id, nil
}

// All returns every record in id order.
func (r *Repo) All(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, prompt, filename FROM images ORDER BY id`)
	if err != nil {
		return nil, control.Store("images.all", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Prompt, &rec.Filename); err != nil {
			return nil, control.Store("images.all", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, control.Store("images.all", err)
	}
	return out, nil
}

// Get returns the record with id. The bool is false when there is none.
func (r *Repo) Get(ctx context.Context, id int64) (Record, bool, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx,
		`SELECT id, prompt, filename FROM images WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Prompt, &rec.Filename)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, control.Store("images.get", err)
	}
	return rec, true, nil
}

// Delete removes the record with id and reports whether it existed.
func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return false, control.Store("images.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, control.Store("images.delete", err)
	}
	return n > 0, nil
}
