package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/blob"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/clipforge/clipforge/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

const signedURLExpiry = 15 * time.Minute

type (
	Store interface {
		CreateFile(file *task.File) error
		GetFile(id string) (*task.File, error)
		ListFiles() ([]*task.File, error)
		SetFileMetadata(id string, mimeType string, metadata any) error
		DeleteFile(id string) error

		ListTasks() ([]*task.Task, error)
		GetTasksForFile(fileID string) ([]*task.Task, error)
		DeleteTasksForFile(fileID string) error
	}

	Blobs interface {
		Upload(ctx context.Context, localPath string, key string, acl blob.ACL) error
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
		DeletePrefix(ctx context.Context, prefix string) error
		SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	}

	Prober interface {
		Probe(path string) (*media.FileMetadata, error)
	}

	CleanupScheduler interface {
		Schedule(label string, work func(context.Context) error) bool
	}

	// Controller owns the file-centric routes: upload, diagnostic
	// reads, metadata probing, status aggregation, streaming and
	// deletion.
	Controller struct {
		store       Store
		blobs       Blobs
		prober      Prober
		metaDirPath string
		cleanup     CleanupScheduler
		uploadLimit string
	}
)

func New(store Store, blobs Blobs, prober Prober, metaDirPath string, cleanup CleanupScheduler, uploadLimit string) *Controller {
	return &Controller{
		store:       store,
		blobs:       blobs,
		prober:      prober,
		metaDirPath: metaDirPath,
		cleanup:     cleanup,
		uploadLimit: uploadLimit,
	}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/upload", controller.upload, middleware.BodyLimit(controller.uploadLimit))

	eg.GET("/files", controller.listFiles)
	eg.GET("/files/:id", controller.getFile)
	eg.GET("/tasks", controller.listTasks)

	eg.GET("/meta/:id", controller.getMeta)
	eg.GET("/status/:id", controller.getStatus)
	eg.GET("/output/:id", controller.getOutput)
	eg.GET("/download/:id", controller.download)
	eg.DELETE("/delete/:id", controller.delete)
}

func (controller *Controller) upload(ec echo.Context) error {
	header, err := ec.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}

	source, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
	}
	defer source.Close()

	id := task.NewID()
	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	if ext == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded file must carry an extension")
	}

	key := fmt.Sprintf("%s.%s", id, ext)
	stagingPath := filepath.Join(controller.metaDirPath, key)
	if err := writeTo(stagingPath, source); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to stage upload: %v", err))
	}
	defer controller.scheduleRemoveLocal(stagingPath)

	if err := controller.blobs.Upload(ec.Request().Context(), stagingPath, key, blob.ACLPrivate); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to store upload: %v", err))
	}

	file := &task.File{
		ID:       id,
		FileName: header.Filename,
		FilePath: key,
		MimeType: media.MimeTypeFor(header.Filename),
	}
	if err := controller.store.CreateFile(file); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to record upload: %v", err))
	}

	// The metadata probe is advisory at upload time; a probe failure
	// leaves the row without metadata rather than rejecting the file.
	if meta, probeErr := controller.prober.Probe(stagingPath); probeErr == nil {
		if err := controller.store.SetFileMetadata(id, file.MimeType, meta); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to record metadata: %v", err))
		}
	}

	return ec.JSON(http.StatusOK, map[string]string{"fileId": id})
}

func (controller *Controller) listFiles(ec echo.Context) error {
	files, err := controller.store.ListFiles()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list files: %v", err))
	}

	return ec.JSON(http.StatusOK, files)
}

// getFile returns the record along with a short-lived presigned URL
// so callers can fetch the content directly from object storage. URL
// generation is advisory and never fails the request.
func (controller *Controller) getFile(ec echo.Context) error {
	file, err := controller.fetchFile(ec.Param("id"))
	if err != nil {
		return err
	}

	url, err := controller.blobs.SignedURL(ec.Request().Context(), file.FilePath, signedURLExpiry)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to presign %s: %v\n", file.FilePath, err)
	}

	return ec.JSON(http.StatusOK, fileDto{File: file, URL: url})
}

func (controller *Controller) listTasks(ec echo.Context) error {
	tasks, err := controller.store.ListTasks()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list tasks: %v", err))
	}

	return ec.JSON(http.StatusOK, tasks)
}

// getMeta probes the file's current object. The probe runs against a
// copy downloaded to the metadata directory, which is separate from
// the executor's working directory so the two can never collide on a
// basename.
func (controller *Controller) getMeta(ec echo.Context) error {
	file, err := controller.fetchFile(ec.Param("id"))
	if err != nil {
		return err
	}

	localPath := filepath.Join(controller.metaDirPath, filepath.Base(file.FilePath))
	reader, err := controller.blobs.Open(ec.Request().Context(), file.FilePath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to fetch file content: %v", err))
	}
	defer reader.Close()

	if err := writeTo(localPath, reader); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to stage file for probing: %v", err))
	}
	defer controller.scheduleRemoveLocal(localPath)

	meta, err := controller.prober.Probe(localPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to probe file: %v", err))
	}

	return ec.JSON(http.StatusOK, newMetaDto(file, meta))
}

func (controller *Controller) getStatus(ec echo.Context) error {
	id := ec.Param("id")
	if _, err := controller.store.GetFile(id); err != nil {
		if errors.Is(err, task.ErrFileNotFound) {
			return ec.JSON(http.StatusOK, statusDto{FileID: id, Status: "not-found"})
		}

		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to fetch file: %v", err))
	}

	tasks, err := controller.store.GetTasksForFile(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to fetch tasks: %v", err))
	}

	return ec.JSON(http.StatusOK, statusDto{FileID: id, Status: aggregateStatus(tasks)})
}

func (controller *Controller) getOutput(ec echo.Context) error {
	file, err := controller.fetchFile(ec.Param("id"))
	if err != nil {
		return err
	}

	reader, err := controller.blobs.Open(ec.Request().Context(), file.FilePath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to fetch file content: %v", err))
	}
	defer reader.Close()

	return ec.Stream(http.StatusOK, file.MimeType, reader)
}

// download streams the file's content then tears it down: the row,
// its tasks, and its objects are gone once the stream completes.
func (controller *Controller) download(ec echo.Context) error {
	file, err := controller.fetchFile(ec.Param("id"))
	if err != nil {
		return err
	}

	reader, err := controller.blobs.Open(ec.Request().Context(), file.FilePath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to fetch file content: %v", err))
	}
	defer reader.Close()

	ec.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.FileName))
	if err := ec.Stream(http.StatusOK, file.MimeType, reader); err != nil {
		return err
	}

	return controller.teardown(file)
}

func (controller *Controller) delete(ec echo.Context) error {
	file, err := controller.fetchFile(ec.Param("id"))
	if err != nil {
		return err
	}

	if err := controller.teardown(file); err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, map[string]bool{"success": true})
}

// teardown removes the file's durable footprint. Object deletions run
// in the background; the rows are gone before returning.
func (controller *Controller) teardown(file *task.File) error {
	if err := controller.store.DeleteTasksForFile(file.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to delete tasks: %v", err))
	}
	if err := controller.store.DeleteFile(file.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to delete file: %v", err))
	}

	key, prefix := file.FilePath, file.ID+"/"
	controller.cleanup.Schedule("delete-blob", func(ctx context.Context) error {
		return controller.blobs.Delete(ctx, key)
	})
	controller.cleanup.Schedule("delete-artifacts", func(ctx context.Context) error {
		return controller.blobs.DeletePrefix(ctx, prefix)
	})

	return nil
}

func (controller *Controller) fetchFile(id string) (*task.File, error) {
	file, err := controller.store.GetFile(id)
	if err != nil {
		if errors.Is(err, task.ErrFileNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("file %s not found", id))
		}

		return nil, echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to fetch file: %v", err))
	}

	return file, nil
}

func (controller *Controller) scheduleRemoveLocal(path string) {
	controller.cleanup.Schedule("remove-local", func(context.Context) error {
		return os.RemoveAll(path)
	})
}

func writeTo(destPath string, source io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, source)
	return err
}

// aggregateStatus folds a file's task history in to the user-facing
// status: pending while anything is still in flight, otherwise the
// most recent terminal state decides between failed and completed.
func aggregateStatus(tasks []*task.Task) string {
	for _, t := range tasks {
		if t.Status == task.StatusQueued || t.Status == task.StatusProcessing {
			return "pending"
		}
	}

	if len(tasks) > 0 {
		last := tasks[len(tasks)-1]
		if last.Status == task.StatusFailed || last.Status == task.StatusUnreachable {
			return "failed"
		}
	}

	return "completed"
}
