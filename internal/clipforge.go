package internal

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/blob"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/executor"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/scheduler"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/clipforge/clipforge/pkg/logger"
)

var log = logger.Get("Core")

type RunnableService interface {
	Run(context.Context) error
}

// ClipForge is the top-level object for the server, responsible for
// initialising the stores, database connection, object storage, the
// schedulers and the HTTP gateway, and for supervising them once
// running.
type ClipForge struct {
	config Config
}

func New(config Config) *ClipForge {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)
	return &ClipForge{config: config}
}

// Run brings the service up and does not return until it stops. To
// stop it, cancel the provided context; a crash of any supervised
// service also brings everything down.
//
// Startup order matters: the working directories are wiped before the
// database is touched, and tasks stranded in processing by a previous
// crash are re-queued before the scheduler starts claiming.
func (cf *ClipForge) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	if err := cf.prepareWorkingDirs(); err != nil {
		return err
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	db := database.New()
	if err := db.Connect(cf.config.Database); err != nil {
		return err
	}

	data := task.NewData(db, task.NewStore())

	restored, err := data.RestoreProcessing()
	if err != nil {
		return err
	}
	if restored > 0 {
		log.Emit(logger.INFO, "Restored %d tasks stranded in processing back to queued\n", restored)
	}

	log.Emit(logger.NEW, "Connecting to object storage...\n")
	blobs, err := blob.NewStore(ctx, cf.config.Blob)
	if err != nil {
		return err
	}

	prober := media.NewProber(cf.config.Pipeline.FfprobeBinaryPath)
	background := scheduler.NewBackground(cf.config.Pipeline.MaxConcurrentTasks)
	exec := executor.New(executor.Config{
		FfmpegBinPath: cf.config.Pipeline.FfmpegBinaryPath,
		TempDirPath:   cf.config.Pipeline.TempDirPath,
	}, data, blobs, prober, background)
	foreground := scheduler.NewForeground(cf.config.Pipeline.MaxConcurrentTasks, data, exec)
	gateway := api.NewRestGateway(&cf.config.API, data, blobs, prober, cf.config.Pipeline.MetaDirPath, background)

	wg := &sync.WaitGroup{}
	cf.spawnAsyncService(ctx, wg, background, "background-scheduler", crashHandler)
	cf.spawnAsyncService(ctx, wg, foreground, "foreground-scheduler", crashHandler)
	cf.spawnAsyncService(ctx, wg, gateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Services spawned!\n")

	wg.Wait()
	return nil
}

// prepareWorkingDirs wipes and recreates the transient directories so
// residue from a previous run cannot collide with, or be mistaken
// for, fresh working files.
func (cf *ClipForge) prepareWorkingDirs() error {
	for _, dir := range []string{cf.config.Pipeline.TempDirPath, cf.config.Pipeline.MetaDirPath} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to wipe working dir %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create working dir %s: %w", dir, err)
		}
	}

	return nil
}

// spawnAsyncService runs the provided service as its own goroutine,
// ensuring the service waitgroup is updated correctly and that a
// panic is treated as a crash rather than taking the process down
// silently.
func (cf *ClipForge) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
