package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge/internal/blob"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/clipforge/clipforge/pkg/logger"
)

var log = logger.Get("Executor")

type (
	// DataStore is the slice of the work store the executor mutates.
	DataStore interface {
		GetFile(id string) (*task.File, error)
		CreateFile(file *task.File) error
		UpdateFile(id string, update task.FileUpdate) error
		UpdateTask(id int64, update task.TaskUpdate) error
	}

	BlobStore interface {
		Download(ctx context.Context, key string, destPath string) error
		Upload(ctx context.Context, localPath string, key string, acl blob.ACL) error
		Delete(ctx context.Context, key string) error
	}

	// CleanupScheduler accepts best-effort deferred work (disk and
	// remote-object deletions) so the executor can commit and return
	// promptly.
	CleanupScheduler interface {
		Schedule(label string, work func(context.Context) error) bool
	}

	Config struct {
		FfmpegBinPath string
		TempDirPath   string
	}

	// Executor performs one task end to end: materialize inputs from
	// the blob store, build the argument vector, spawn the binary,
	// upload results, and commit the file/task state mutation.
	Executor struct {
		config  Config
		data    DataStore
		blobs   BlobStore
		prober  media.Prober
		cleanup CleanupScheduler
	}
)

func New(config Config, data DataStore, blobs BlobStore, prober media.Prober, cleanup CleanupScheduler) *Executor {
	return &Executor{
		config:  config,
		data:    data,
		blobs:   blobs,
		prober:  prober,
		cleanup: cleanup,
	}
}

// Execute runs the task provided to a terminal state, committing
// completed/failed (and the captured diagnostic) to the work store.
// The returned error is non-nil exactly when the task failed; the
// caller is responsible for cascading that failure to queued
// siblings.
func (ex *Executor) Execute(ctx context.Context, t *task.Task) error {
	if err := ex.execute(ctx, t); err != nil {
		log.Emit(logger.ERROR, "%s failed: %v\n", t, err)

		message := err.Error()
		failed := task.StatusFailed
		if updateErr := ex.data.UpdateTask(t.ID, task.TaskUpdate{Status: &failed, Error: &message}); updateErr != nil {
			log.Emit(logger.ERROR, "failed to record failure of %s: %v\n", t, updateErr)
		}

		return err
	}

	completed := task.StatusCompleted
	if err := ex.data.UpdateTask(t.ID, task.TaskUpdate{Status: &completed}); err != nil {
		return fmt.Errorf("failed to record completion of %s: %w", t, err)
	}

	log.Emit(logger.SUCCESS, "%s completed\n", t)
	return nil
}

func (ex *Executor) execute(ctx context.Context, t *task.Task) error {
	primary, err := ex.resolvePrimary(t)
	if err != nil {
		return err
	}

	switch t.Operation {
	case task.OpTranscode:
		return ex.runTranscode(ctx, t, primary)
	case task.OpResizeVideo:
		return ex.runResizeVideo(ctx, t, primary)
	case task.OpTrim:
		return ex.runTrim(ctx, t, primary)
	case task.OpTrimEnd:
		return ex.runTrimEnd(ctx, t, primary)
	case task.OpExtractAudio:
		return ex.runExtractAudio(ctx, t, primary)
	case task.OpRemoveAudio:
		return ex.runRemoveAudio(ctx, t, primary)
	case task.OpAddAudio:
		return ex.runAddAudio(ctx, t, primary)
	case task.OpMergeMedia:
		return ex.runMergeMedia(ctx, t, primary)
	case task.OpExtractThumbnail:
		return ex.runExtractThumbnail(ctx, t, primary)
	case task.OpDash:
		return ex.runDash(ctx, t, primary)
	case task.OpASRNormalize:
		return ex.runASRNormalize(ctx, t, primary)
	case task.OpASRAnalyze:
		return ex.runASRAnalyze(ctx, t, primary)
	case task.OpASRSegment:
		return ex.runASRSegment(ctx, t, primary)
	case task.OpVisionAnalyze:
		return ex.runVisionAnalyze(ctx, t, primary)
	case task.OpVisionSegment:
		return ex.runVisionSegment(ctx, t, primary)
	}

	return failure(InvalidArgument, "unknown operation %q", t.Operation)
}

// resolvePrimary returns the primary input file for a task. When the
// task args carry a parent, the parent file is the input: chained
// tasks are planned before the intermediate files they consume exist,
// so the actual input is only resolvable now, after the prior task in
// the chain has committed.
func (ex *Executor) resolvePrimary(t *task.Task) (*task.File, error) {
	id := t.FileID
	if parent := t.TaskArgs().Parent(); parent != "" {
		id = parent
	}

	file, err := ex.data.GetFile(id)
	if err != nil {
		return nil, failure(DownloadFailed, "failed to resolve input file %s: %v", id, err)
	}

	return file, nil
}

// materialize downloads the file's current object in to the working
// directory and returns the local path.
func (ex *Executor) materialize(ctx context.Context, file *task.File) (string, error) {
	localPath := filepath.Join(ex.config.TempDirPath, file.FilePath)
	if err := ex.blobs.Download(ctx, file.FilePath, localPath); err != nil {
		ex.scheduleRemoveLocal(localPath)
		return "", failure(DownloadFailed, "failed to download %s: %v", file.FilePath, err)
	}

	return localPath, nil
}

// outputName derives the output basename for the task: replace-mode
// outputs reuse the task code so re-runs overwrite deterministically;
// append-mode outputs take a fresh random basename which doubles as
// the new file's id.
func outputName(t *task.Task, ext string) string {
	if t.TaskArgs().Mode() == task.ModeAppend {
		id := t.TaskArgs().OutputID()
		if id == "" {
			id = task.NewID()
		}

		return fmt.Sprintf("%s.%s", id, ext)
	}

	return fmt.Sprintf("%s.%s", t.Code, ext)
}

func baseNameWithoutExt(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func extOf(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}

func (ex *Executor) runBinary(ctx context.Context, t *task.Task, args []string) (string, error) {
	cmd := ffmpeg.NewCommand(ex.config.FfmpegBinPath)
	stderr, err := cmd.Run(ctx, args, func(pid int) {
		if updateErr := ex.data.UpdateTask(t.ID, task.TaskUpdate{Pid: &pid}); updateErr != nil {
			log.Emit(logger.WARNING, "failed to record pid %d for %s: %v\n", pid, t, updateErr)
		}
	})
	if err != nil {
		return stderr, failure(ProcessFailed, "%v", err)
	}

	return stderr, nil
}

func (ex *Executor) scheduleRemoveLocal(paths ...string) {
	for _, path := range paths {
		p := path
		ex.cleanup.Schedule("remove-local", func(context.Context) error {
			return os.RemoveAll(p)
		})
	}
}

func (ex *Executor) scheduleDeleteRemote(keys ...string) {
	for _, key := range keys {
		k := key
		ex.cleanup.Schedule("delete-blob", func(ctx context.Context) error {
			return ex.blobs.Delete(ctx, k)
		})
	}
}

// probe runs the metadata prober against a local input and converts
// failure to the task error taxonomy.
func (ex *Executor) probe(path string) (*media.FileMetadata, error) {
	meta, err := ex.prober.Probe(path)
	if err != nil {
		return nil, failure(PreconditionFailed, "failed to probe input %s: %v", filepath.Base(path), err)
	}

	return meta, nil
}

// runSimpleOp is the shared skeleton for the single-output
// operations: build argv against a derived output path, run, upload,
// and commit the swap-or-append state mutation. uploadKey overrides
// the default output-basename key (used by asr-normalize); acl
// likewise.
func (ex *Executor) runSimpleOp(
	ctx context.Context,
	t *task.Task,
	primary *task.File,
	inputPaths []string,
	outputFile string,
	uploadKey string,
	acl blob.ACL,
	buildArgs func(outputPath string) []string,
) error {
	outputPath := filepath.Join(ex.config.TempDirPath, outputFile)
	if uploadKey == "" {
		uploadKey = outputFile
	}

	cleanupAll := func() {
		ex.scheduleRemoveLocal(append(append([]string{}, inputPaths...), outputPath)...)
	}

	if _, err := ex.runBinary(ctx, t, buildArgs(outputPath)); err != nil {
		cleanupAll()
		return err
	}

	if err := ex.blobs.Upload(ctx, outputPath, uploadKey, acl); err != nil {
		cleanupAll()
		return failure(UploadFailed, "failed to upload %s: %v", uploadKey, err)
	}

	if err := ex.commit(t, primary, outputPath, outputFile, uploadKey); err != nil {
		cleanupAll()
		return err
	}

	cleanupAll()
	return nil
}

// commit applies the post-success state mutation policy.
//
// Swap (mode=replace): the file's identity is rewritten in place; the
// old object is scheduled for deletion. The output probe is advisory:
// if it fails, name and path are still updated but mime/metadata are
// left as they were.
//
// Append (mode=append): a new file row is created carrying the
// output; the source file and its object are untouched.
func (ex *Executor) commit(t *task.Task, primary *task.File, outputPath string, outputFile string, uploadKey string) error {
	probed, probeErr := ex.prober.Probe(outputPath)
	if probeErr != nil {
		log.Emit(logger.WARNING, "metadata probe of %s output failed (continuing): %v\n", t, probeErr)
	}

	newFileName := fmt.Sprintf("%s.%s", baseNameWithoutExt(primary.FileName), extOf(outputFile))

	if t.TaskArgs().Mode() == task.ModeAppend {
		newFile := &task.File{
			ID:       baseNameWithoutExt(outputFile),
			FileName: newFileName,
			FilePath: uploadKey,
			MimeType: media.MimeTypeFor(outputFile),
		}
		if probed != nil {
			newFile.Metadata = database.NewJsonColumn(probed)
		}

		if err := ex.data.CreateFile(newFile); err != nil {
			return failure(UploadFailed, "failed to create file row for %s: %v", outputFile, err)
		}

		return nil
	}

	update := task.FileUpdate{
		FileName: &newFileName,
		FilePath: &uploadKey,
	}
	if probed != nil {
		mime := media.MimeTypeFor(outputFile)
		metadata := database.NewJsonColumn(probed)
		update.MimeType = &mime
		update.Metadata = &metadata
	}

	if err := ex.data.UpdateFile(primary.ID, update); err != nil {
		return failure(UploadFailed, "failed to update file row %s: %v", primary.ID, err)
	}

	if primary.FilePath != uploadKey {
		ex.scheduleDeleteRemote(primary.FilePath)
	}

	return nil
}

func (ex *Executor) runTranscode(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.TranscodeParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	if err := ffmpeg.ValidateMux(params.Format, params.VideoCodec, params.AudioCodec); err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}
	if !meta.HasVideo {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "input has no video stream to transcode")
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, params.Format), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.TranscodeArgs(inputPath, outputPath, params.VideoCodec, params.AudioCodec)
		})
}

func (ex *Executor) runResizeVideo(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.ResizeVideoParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}
	if !meta.HasVideo {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "input has no video stream to resize")
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, extOf(primary.FilePath)), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.ResizeVideoArgs(inputPath, outputPath, params.Width, params.Height)
		})
}

func (ex *Executor) runTrim(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.TrimParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, params.OutputFormat), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.TrimArgs(inputPath, outputPath, params.Start, params.Duration, params.Exact)
		})
}

func (ex *Executor) runTrimEnd(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.TrimEndParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}

	keep := meta.Duration - params.Duration
	if keep <= 0 {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "cannot trim %.3fs from media of duration %.3fs", params.Duration, meta.Duration)
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, extOf(primary.FilePath)), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.TrimEndArgs(inputPath, outputPath, keep)
		})
}

func (ex *Executor) runExtractAudio(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.ExtractAudioParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}
	if !meta.HasAudio {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "input has no audio stream to extract")
	}

	if _, err := ffmpeg.ExtractAudioArgs(inputPath, "", params.AudioFormat); err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return failure(InvalidArgument, "%v", err)
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, params.AudioFormat), "", blob.ACLPrivate,
		func(outputPath string) []string {
			built, _ := ffmpeg.ExtractAudioArgs(inputPath, outputPath, params.AudioFormat)
			return built
		})
}

func (ex *Executor) runRemoveAudio(ctx context.Context, t *task.Task, primary *task.File) error {
	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}
	if !meta.HasAudio {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "input has no audio stream to remove")
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, extOf(primary.FilePath)), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.RemoveAudioArgs(inputPath, outputPath)
		})
}

func (ex *Executor) runAddAudio(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.AddAudioParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	audioFile, err := ex.data.GetFile(params.AudioFileID)
	if err != nil {
		return failure(DownloadFailed, "failed to resolve audio input %s: %v", params.AudioFileID, err)
	}

	videoPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}
	audioPath, err := ex.materialize(ctx, audioFile)
	if err != nil {
		ex.scheduleRemoveLocal(videoPath)
		return err
	}

	videoMeta, err := ex.probe(videoPath)
	if err != nil {
		ex.scheduleRemoveLocal(videoPath, audioPath)
		return err
	}
	if !videoMeta.HasVideo {
		ex.scheduleRemoveLocal(videoPath, audioPath)
		return failure(PreconditionFailed, "primary input has no video stream")
	}

	audioMeta, err := ex.probe(audioPath)
	if err != nil {
		ex.scheduleRemoveLocal(videoPath, audioPath)
		return err
	}
	if !audioMeta.HasAudio {
		ex.scheduleRemoveLocal(videoPath, audioPath)
		return failure(PreconditionFailed, "audio input has no audio stream")
	}

	container := extOf(primary.FilePath)
	codecArgs := ffmpeg.AddAudioCodecArgs(container, audioMeta.AudioCodec)

	return ex.runSimpleOp(ctx, t, primary, []string{videoPath, audioPath}, outputName(t, container), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.AddAudioArgs(videoPath, audioPath, outputPath, codecArgs)
		})
}

func (ex *Executor) runMergeMedia(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.MergeMediaParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}
	if len(params.FileIDs) < 2 {
		return failure(InvalidArgument, "merge requires at least 2 inputs, got %d", len(params.FileIDs))
	}

	inputPaths := make([]string, 0, len(params.FileIDs))
	for _, id := range params.FileIDs {
		file, err := ex.data.GetFile(id)
		if err != nil {
			ex.scheduleRemoveLocal(inputPaths...)
			return failure(DownloadFailed, "failed to resolve merge input %s: %v", id, err)
		}

		path, err := ex.materialize(ctx, file)
		if err != nil {
			ex.scheduleRemoveLocal(inputPaths...)
			return err
		}
		inputPaths = append(inputPaths, path)
	}

	// The first input's resolution is the reference every other input
	// is scaled and padded to.
	firstMeta, err := ex.probe(inputPaths[0])
	if err != nil {
		ex.scheduleRemoveLocal(inputPaths...)
		return err
	}
	if !firstMeta.HasVideo {
		ex.scheduleRemoveLocal(inputPaths...)
		return failure(PreconditionFailed, "first merge input has no video stream")
	}

	return ex.runSimpleOp(ctx, t, primary, inputPaths, outputName(t, params.OutputFormat), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.MergeArgs(inputPaths, outputPath, firstMeta.Width, firstMeta.Height)
		})
}

func (ex *Executor) runExtractThumbnail(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.ExtractThumbnailParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}

	format := params.ImageFormat
	if format == "" {
		format = "jpg"
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}
	if !meta.HasVideo {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "input has no video stream to thumbnail")
	}

	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, format), "", blob.ACLPrivate,
		func(outputPath string) []string {
			return ffmpeg.ExtractThumbnailArgs(inputPath, outputPath, params.Timestamp)
		})
}

func (ex *Executor) runASRNormalize(ctx context.Context, t *task.Task, primary *task.File) error {
	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}

	meta, err := ex.probe(inputPath)
	if err != nil {
		ex.scheduleRemoveLocal(inputPath)
		return err
	}
	if !meta.HasAudio {
		ex.scheduleRemoveLocal(inputPath)
		return failure(PreconditionFailed, "input has no audio stream to normalize")
	}

	uploadKey := fmt.Sprintf("%s/asr/normalized.wav", t.FileID)
	return ex.runSimpleOp(ctx, t, primary, []string{inputPath}, outputName(t, "wav"), uploadKey, blob.ACLPublicRead,
		func(outputPath string) []string {
			return ffmpeg.ASRNormalizeArgs(inputPath, outputPath)
		})
}

// asrAnalysis is the persisted result of asr-analyze, consumed by
// asr-segment.
type asrAnalysis struct {
	Duration float64                `json:"duration"`
	Silences []ffmpeg.SilenceEvent  `json:"silences"`
	Segments []ffmpeg.Segment       `json:"segments"`
}

func (ex *Executor) runASRAnalyze(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.ASRAnalyzeParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}
	tunables := params.WithDefaults()

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}
	defer ex.scheduleRemoveLocal(inputPath)

	meta, err := ex.probe(inputPath)
	if err != nil {
		return err
	}

	stderr, err := ex.runBinary(ctx, t, ffmpeg.SilenceDetectArgs(inputPath, tunables.NoiseThreshold, tunables.MinSilenceDuration))
	if err != nil {
		return err
	}

	analysis := asrAnalysis{
		Duration: meta.Duration,
		Silences: ffmpeg.ParseSilenceEvents(stderr),
	}
	analysis.Segments = ffmpeg.PlanChunks(meta.Duration, tunables.MaxChunk, tunables.MinChunk, analysis.Silences)

	return ex.uploadJSON(ctx, analysis, fmt.Sprintf("%s/asr/analysis.json", t.FileID))
}

func (ex *Executor) runASRSegment(ctx context.Context, t *task.Task, primary *task.File) error {
	analysisKey := fmt.Sprintf("%s/asr/analysis.json", t.FileID)
	analysisPath := filepath.Join(ex.config.TempDirPath, analysisKey)
	if err := ex.blobs.Download(ctx, analysisKey, analysisPath); err != nil {
		return failure(DownloadFailed, "failed to download analysis %s: %v", analysisKey, err)
	}
	defer ex.scheduleRemoveLocal(analysisPath)

	raw, err := os.ReadFile(analysisPath)
	if err != nil {
		return failure(DownloadFailed, "failed to read analysis: %v", err)
	}

	var analysis asrAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return failure(PreconditionFailed, "analysis is malformed: %v", err)
	}
	if len(analysis.Segments) == 0 {
		return failure(PreconditionFailed, "analysis contains no planned segments")
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}
	defer ex.scheduleRemoveLocal(inputPath)

	return ex.produceSegments(ctx, t, inputPath, analysis.Segments, "asr", "seg", "wav")
}

// visionAnalysis is the persisted result of vision-analyze, consumed
// by vision-segment. Scene times are bookended by 0 and the total
// duration; segments are the windows between consecutive times.
type visionAnalysis struct {
	Duration float64          `json:"duration"`
	Scenes   []float64        `json:"scenes"`
	Segments []ffmpeg.Segment `json:"segments"`
}

const maxDetectedScenes = 200

func (ex *Executor) runVisionAnalyze(ctx context.Context, t *task.Task, primary *task.File) error {
	params, err := task.DecodeArgs[task.VisionAnalyzeParams](t.TaskArgs())
	if err != nil {
		return failure(InvalidArgument, "%v", err)
	}
	tunables := params.WithDefaults()

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}
	defer ex.scheduleRemoveLocal(inputPath)

	meta, err := ex.probe(inputPath)
	if err != nil {
		return err
	}
	if !meta.HasVideo {
		return failure(PreconditionFailed, "input has no video stream to analyze")
	}

	stderr, err := ex.runBinary(ctx, t, ffmpeg.SceneDetectArgs(inputPath, tunables.SceneThreshold))
	if err != nil {
		return err
	}

	sceneTimes := ffmpeg.ParseSceneTimes(stderr)
	if len(sceneTimes) == 0 {
		return failure(PreconditionFailed, "no scene changes detected at threshold %.2f", tunables.SceneThreshold)
	}
	if len(sceneTimes) > maxDetectedScenes {
		return failure(PreconditionFailed, "detected %d scenes which exceeds the limit of %d", len(sceneTimes), maxDetectedScenes)
	}

	// Bookend with the media edges so segments cover the whole file.
	scenes := append([]float64{0}, sceneTimes...)
	scenes = append(scenes, meta.Duration)

	analysis := visionAnalysis{Duration: meta.Duration, Scenes: scenes}
	for i := 0; i < len(scenes)-1; i++ {
		if scenes[i+1] <= scenes[i] {
			continue
		}
		analysis.Segments = append(analysis.Segments, ffmpeg.Segment{
			Index:    len(analysis.Segments),
			Start:    scenes[i],
			Duration: scenes[i+1] - scenes[i],
		})
	}

	return ex.uploadJSON(ctx, analysis, fmt.Sprintf("%s/vision/analysis.json", t.FileID))
}

func (ex *Executor) runVisionSegment(ctx context.Context, t *task.Task, primary *task.File) error {
	analysisKey := fmt.Sprintf("%s/vision/analysis.json", t.FileID)
	analysisPath := filepath.Join(ex.config.TempDirPath, analysisKey)
	if err := ex.blobs.Download(ctx, analysisKey, analysisPath); err != nil {
		return failure(DownloadFailed, "failed to download analysis %s: %v", analysisKey, err)
	}
	defer ex.scheduleRemoveLocal(analysisPath)

	raw, err := os.ReadFile(analysisPath)
	if err != nil {
		return failure(DownloadFailed, "failed to read analysis: %v", err)
	}

	var analysis visionAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return failure(PreconditionFailed, "analysis is malformed: %v", err)
	}
	if len(analysis.Segments) == 0 {
		return failure(PreconditionFailed, "analysis contains no planned segments")
	}

	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}
	defer ex.scheduleRemoveLocal(inputPath)

	return ex.produceSegments(ctx, t, inputPath, analysis.Segments, "vision", "scene", extOf(primary.FilePath))
}

// produceSegments cuts one clip per planned segment with stream copy,
// uploads every clip plus a manifest under the bundle prefix, and
// schedules local cleanup.
func (ex *Executor) produceSegments(ctx context.Context, t *task.Task, inputPath string, segments []ffmpeg.Segment, bundle string, stem string, ext string) error {
	workDir := filepath.Join(ex.config.TempDirPath, fmt.Sprintf("%s_%s", t.Code, bundle))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return failure(ProcessFailed, "failed to create segment dir: %v", err)
	}
	defer ex.scheduleRemoveLocal(workDir)

	type manifestEntry struct {
		Index    int     `json:"index"`
		Key      string  `json:"key"`
		Start    float64 `json:"start"`
		Duration float64 `json:"duration"`
	}
	manifest := make([]manifestEntry, 0, len(segments))

	for _, segment := range segments {
		name := fmt.Sprintf("%s_%03d.%s", stem, segment.Index, ext)
		outputPath := filepath.Join(workDir, name)

		if _, err := ex.runBinary(ctx, t, ffmpeg.SegmentCopyArgs(inputPath, outputPath, segment.Start, segment.Duration)); err != nil {
			return err
		}

		key := fmt.Sprintf("%s/%s/%s", t.FileID, bundle, name)
		if err := ex.blobs.Upload(ctx, outputPath, key, blob.ACLPublicRead); err != nil {
			return failure(UploadFailed, "failed to upload segment %s: %v", key, err)
		}

		manifest = append(manifest, manifestEntry{
			Index:    segment.Index,
			Key:      key,
			Start:    segment.Start,
			Duration: segment.Duration,
		})
	}

	return ex.uploadJSON(ctx, manifest, fmt.Sprintf("%s/%s/manifest.json", t.FileID, bundle))
}

func (ex *Executor) runDash(ctx context.Context, t *task.Task, primary *task.File) error {
	inputPath, err := ex.materialize(ctx, primary)
	if err != nil {
		return err
	}
	defer ex.scheduleRemoveLocal(inputPath)

	meta, err := ex.probe(inputPath)
	if err != nil {
		return err
	}
	if !meta.HasVideo {
		return failure(PreconditionFailed, "input has no video stream to segment for DASH")
	}

	workDir := filepath.Join(ex.config.TempDirPath, fmt.Sprintf("%s_dash", t.Code))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return failure(ProcessFailed, "failed to create DASH dir: %v", err)
	}
	defer ex.scheduleRemoveLocal(workDir)

	manifestPath := filepath.Join(workDir, "manifest.mpd")
	if _, err := ex.runBinary(ctx, t, ffmpeg.DashArgs(inputPath, manifestPath)); err != nil {
		return err
	}

	// Batch-upload everything the segmenter produced: the manifest
	// plus every media segment beside it.
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return failure(UploadFailed, "failed to enumerate DASH artifacts: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		key := fmt.Sprintf("%s/dash/%s", t.FileID, entry.Name())
		if err := ex.blobs.Upload(ctx, filepath.Join(workDir, entry.Name()), key, blob.ACLPublicRead); err != nil {
			return failure(UploadFailed, "failed to upload DASH artifact %s: %v", key, err)
		}
	}

	return nil
}

// uploadJSON serialises the value provided to a temp file and uploads
// it public-read under the key provided.
func (ex *Executor) uploadJSON(ctx context.Context, value any, key string) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return failure(UploadFailed, "failed to serialise %s: %v", key, err)
	}

	localPath := filepath.Join(ex.config.TempDirPath, strings.ReplaceAll(key, "/", "_"))
	if err := os.WriteFile(localPath, raw, 0o644); err != nil {
		return failure(UploadFailed, "failed to write %s: %v", key, err)
	}
	defer ex.scheduleRemoveLocal(localPath)

	if err := ex.blobs.Upload(ctx, localPath, key, blob.ACLPublicRead); err != nil {
		return failure(UploadFailed, "failed to upload %s: %v", key, err)
	}

	return nil
}
