package task

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/media"
)

var (
	ErrFileNotFound = errors.New("file does not exist")
	ErrTaskNotFound = errors.New("task does not exist")
)

// Store is the durable record of files and tasks. All mutations are
// committed before returning; consistency under concurrent access
// from the scheduler and the HTTP handlers is delegated to Postgres
// row-level atomicity.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (store *Store) CreateFile(db database.Queryable, file *File) error {
	_, err := db.Exec(`
		INSERT INTO files(id, file_name, file_path, mime_type, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, file.ID, file.FileName, file.FilePath, file.MimeType, file.Metadata)
	if err != nil {
		return fmt.Errorf("failed to insert new file: %w", err)
	}

	return nil
}

func (store *Store) GetFile(db database.Queryable, id string) (*File, error) {
	var file File
	if err := db.Get(&file, `SELECT id, file_name, file_path, mime_type, metadata FROM files WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}

		return nil, err
	}

	return &file, nil
}

func (store *Store) ListFiles(db database.Queryable) ([]*File, error) {
	var files []*File
	if err := db.Select(&files, `SELECT id, file_name, file_path, mime_type, metadata FROM files ORDER BY id`); err != nil {
		return nil, err
	}

	return files, nil
}

// FileUpdate is a partial update of a file row; nil fields are left
// untouched. This is how the swap policy commits a replacement
// without clobbering metadata when the output probe failed.
type FileUpdate struct {
	FileName *string
	FilePath *string
	MimeType *string
	Metadata *database.JsonColumn[media.FileMetadata]
}

func (store *Store) UpdateFile(db database.Queryable, id string, update FileUpdate) error {
	builder := squirrel.Update("files").
		Set("updated_at", squirrel.Expr("current_timestamp")).
		Where("id=?", id).
		PlaceholderFormat(squirrel.Dollar)

	if update.FileName != nil {
		builder = builder.Set("file_name", *update.FileName)
	}
	if update.FilePath != nil {
		builder = builder.Set("file_path", *update.FilePath)
	}
	if update.MimeType != nil {
		builder = builder.Set("mime_type", *update.MimeType)
	}
	if update.Metadata != nil {
		builder = builder.Set("metadata", *update.Metadata)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct file update query: %w", err)
	}

	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update file %s: %w", id, err)
	}

	return nil
}

// SetFileMetadata overwrites the probed metadata columns of a file.
func (store *Store) SetFileMetadata(db database.Queryable, id string, mimeType string, metadata any) error {
	_, err := db.Exec(`
		UPDATE files SET mime_type=$2, metadata=$3, updated_at=current_timestamp WHERE id=$1
	`, id, mimeType, metadata)
	if err != nil {
		return fmt.Errorf("failed to update metadata of file %s: %w", id, err)
	}

	return nil
}

func (store *Store) DeleteFile(db database.Queryable, id string) error {
	if _, err := db.Exec(`DELETE FROM files WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", id, err)
	}

	return nil
}

func (store *Store) CreateTask(db database.Queryable, t *Task) error {
	row := db.QueryRowx(`
		INSERT INTO tasks(code, file_id, operation, args, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, t.Code, t.FileID, t.Operation, t.Args, StatusQueued)
	if err := row.Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to insert new task: %w", err)
	}

	t.Status = StatusQueued
	return nil
}

// CreateTasks inserts the provided tasks in order inside the ambient
// query context. Insertion order matters: the serial id is the FIFO
// tiebreak for per-file ordering.
func (store *Store) CreateTasks(db database.Queryable, tasks []*Task) error {
	for _, t := range tasks {
		if err := store.CreateTask(db, t); err != nil {
			return err
		}
	}

	return nil
}

func (store *Store) GetTask(db database.Queryable, id int64) (*Task, error) {
	var t Task
	if err := db.Get(&t, `SELECT id, code, file_id, operation, args, status, pid, error FROM tasks WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}

		return nil, err
	}

	return &t, nil
}

func (store *Store) ListTasks(db database.Queryable) ([]*Task, error) {
	var tasks []*Task
	if err := db.Select(&tasks, `SELECT id, code, file_id, operation, args, status, pid, error FROM tasks ORDER BY id`); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (store *Store) GetTasksForFile(db database.Queryable, fileID string) ([]*Task, error) {
	var tasks []*Task
	if err := db.Select(&tasks, `SELECT id, code, file_id, operation, args, status, pid, error FROM tasks WHERE file_id=$1 ORDER BY id`, fileID); err != nil {
		return nil, err
	}

	return tasks, nil
}

// TaskUpdate is a partial update of a task row; nil fields are left
// untouched.
type TaskUpdate struct {
	Status *Status
	Pid    *int
	Error  *string
}

func (store *Store) UpdateTask(db database.Queryable, id int64, update TaskUpdate) error {
	builder := squirrel.Update("tasks").
		Set("updated_at", squirrel.Expr("current_timestamp")).
		Where("id=?", id).
		PlaceholderFormat(squirrel.Dollar)

	if update.Status != nil {
		builder = builder.Set("status", *update.Status)
	}
	if update.Pid != nil {
		builder = builder.Set("pid", *update.Pid)
	}
	if update.Error != nil {
		builder = builder.Set("error", *update.Error)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct task update query: %w", err)
	}

	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}

	return nil
}

// NextQueued returns up to limit queued tasks whose owning file is
// not in the exclude set, in ascending id order. This is the
// foreground scheduler's claim query.
func (store *Store) NextQueued(db database.Queryable, excludeFileIDs []string, limit int) ([]*Task, error) {
	builder := squirrel.Select("id", "code", "file_id", "operation", "args", "status", "pid", "error").
		From("tasks").
		Where("status=?", StatusQueued).
		OrderBy("id ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	if len(excludeFileIDs) > 0 {
		builder = builder.Where(squirrel.NotEq{"file_id": excludeFileIDs})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct queued tasks query: %w", err)
	}

	var tasks []*Task
	if err := db.Select(&tasks, query, args...); err != nil {
		return nil, err
	}

	return tasks, nil
}

// MarkQueuedUnreachable cascades a sibling failure: every still-queued
// task for the file moves to the terminal unreachable state.
// Processing and completed rows are not touched.
func (store *Store) MarkQueuedUnreachable(db database.Queryable, fileID string) error {
	_, err := db.Exec(`
		UPDATE tasks SET status=$3, updated_at=current_timestamp WHERE file_id=$1 AND status=$2
	`, fileID, StatusQueued, StatusUnreachable)
	if err != nil {
		return fmt.Errorf("failed to cascade failure to queued tasks of file %s: %w", fileID, err)
	}

	return nil
}

// RestoreProcessing re-enqueues any task left mid-flight by a crash.
// Called once at startup, before the scheduler starts claiming.
func (store *Store) RestoreProcessing(db database.Queryable) (int64, error) {
	result, err := db.Exec(`
		UPDATE tasks SET status=$2, pid=NULL, updated_at=current_timestamp WHERE status=$1
	`, StatusProcessing, StatusQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to restore processing tasks: %w", err)
	}

	restored, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return restored, nil
}

func (store *Store) DeleteTasksForFile(db database.Queryable, fileID string) error {
	if _, err := db.Exec(`DELETE FROM tasks WHERE file_id=$1`, fileID); err != nil {
		return fmt.Errorf("failed to delete tasks for file %s: %w", fileID, err)
	}

	return nil
}
