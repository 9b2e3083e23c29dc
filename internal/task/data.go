package task

import (
	"github.com/clipforge/clipforge/internal/database"
	"github.com/jmoiron/sqlx"
)

// Data binds the store to a live connection so consumers can call
// methods without threading a Queryable through every signature.
type Data struct {
	db    database.Manager
	store *Store
}

func NewData(db database.Manager, store *Store) *Data {
	return &Data{db: db, store: store}
}

func (d *Data) q() database.Queryable { return d.db.GetSqlxDb() }

func (d *Data) CreateFile(file *File) error      { return d.store.CreateFile(d.q(), file) }
func (d *Data) GetFile(id string) (*File, error) { return d.store.GetFile(d.q(), id) }
func (d *Data) ListFiles() ([]*File, error)      { return d.store.ListFiles(d.q()) }
func (d *Data) UpdateFile(id string, update FileUpdate) error {
	return d.store.UpdateFile(d.q(), id, update)
}
func (d *Data) SetFileMetadata(id string, mimeType string, metadata any) error {
	return d.store.SetFileMetadata(d.q(), id, mimeType, metadata)
}
func (d *Data) DeleteFile(id string) error { return d.store.DeleteFile(d.q(), id) }

func (d *Data) CreateTask(t *Task) error { return d.store.CreateTask(d.q(), t) }

// CreateTasks inserts a plan atomically: either the whole chain (or
// bulk fan-out) becomes visible to the scheduler, or none of it does.
func (d *Data) CreateTasks(tasks []*Task) error {
	return d.db.WrapTx(func(tx *sqlx.Tx) error {
		return d.store.CreateTasks(tx, tasks)
	})
}

func (d *Data) GetTask(id int64) (*Task, error) { return d.store.GetTask(d.q(), id) }
func (d *Data) ListTasks() ([]*Task, error)     { return d.store.ListTasks(d.q()) }
func (d *Data) GetTasksForFile(fileID string) ([]*Task, error) {
	return d.store.GetTasksForFile(d.q(), fileID)
}
func (d *Data) UpdateTask(id int64, update TaskUpdate) error {
	return d.store.UpdateTask(d.q(), id, update)
}
func (d *Data) NextQueued(excludeFileIDs []string, limit int) ([]*Task, error) {
	return d.store.NextQueued(d.q(), excludeFileIDs, limit)
}
func (d *Data) MarkQueuedUnreachable(fileID string) error {
	return d.store.MarkQueuedUnreachable(d.q(), fileID)
}
func (d *Data) RestoreProcessing() (int64, error) { return d.store.RestoreProcessing(d.q()) }
func (d *Data) DeleteTasksForFile(fileID string) error {
	return d.store.DeleteTasksForFile(d.q(), fileID)
}
