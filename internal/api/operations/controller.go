package operations

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/planner"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		GetFile(id string) (*task.File, error)
		CreateTasks(tasks []*task.Task) error
	}

	// Controller owns the task-creating routes: one endpoint per
	// user-facing operation, plus chain and bulk planning. Argument
	// schemas are validated here so an invalid request never creates
	// a task row.
	Controller struct {
		store    Store
		validate *validator.Validate
	}
)

func New(store Store) *Controller {
	return &Controller{store: store, validate: validator.New()}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/transcode", controller.transcode)
	eg.POST("/resize-video", controller.resizeVideo)
	eg.POST("/trim", controller.trim)
	eg.POST("/trim-end", controller.trimEnd)
	eg.POST("/extract-audio", controller.extractAudio)
	eg.POST("/remove-audio", controller.removeAudio)
	eg.POST("/add-audio", controller.addAudio)
	eg.POST("/merge", controller.merge)
	eg.POST("/extract-thumbnail", controller.extractThumbnail)

	eg.POST("/chain", controller.chain)
	eg.POST("/bulk", controller.bulk)
}

func (controller *Controller) transcode(ec echo.Context) error {
	return submitSingle[task.TranscodeParams](controller, ec, task.OpTranscode, task.ModeReplace)
}

func (controller *Controller) resizeVideo(ec echo.Context) error {
	return submitSingle[task.ResizeVideoParams](controller, ec, task.OpResizeVideo, task.ModeReplace)
}

func (controller *Controller) trim(ec echo.Context) error {
	return submitSingle[task.TrimParams](controller, ec, task.OpTrim, task.ModeReplace)
}

func (controller *Controller) trimEnd(ec echo.Context) error {
	return submitSingle[task.TrimEndParams](controller, ec, task.OpTrimEnd, task.ModeReplace)
}

func (controller *Controller) extractAudio(ec echo.Context) error {
	return submitSingle[task.ExtractAudioParams](controller, ec, task.OpExtractAudio, task.ModeReplace)
}

func (controller *Controller) removeAudio(ec echo.Context) error {
	return submitSingle[task.RemoveAudioParams](controller, ec, task.OpRemoveAudio, task.ModeReplace)
}

// addAudio and merge default to append: both produce a combined
// artifact users typically want alongside the sources, not replacing
// them.
func (controller *Controller) addAudio(ec echo.Context) error {
	return submitSingle[task.AddAudioParams](controller, ec, task.OpAddAudio, task.ModeAppend)
}

func (controller *Controller) merge(ec echo.Context) error {
	return submitSingle[task.MergeMediaParams](controller, ec, task.OpMergeMedia, task.ModeAppend)
}

func (controller *Controller) extractThumbnail(ec echo.Context) error {
	return submitSingle[task.ExtractThumbnailParams](controller, ec, task.OpExtractThumbnail, task.ModeReplace)
}

type chainRequest struct {
	FileID     string           `json:"file_id" validate:"required"`
	Operations []map[string]any `json:"operations" validate:"required,min=1"`
}

func (controller *Controller) chain(ec echo.Context) error {
	var request chainRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := controller.fetchFile(request.FileID); err != nil {
		return err
	}

	steps := make([]planner.ChainStep, 0, len(request.Operations))
	for _, raw := range request.Operations {
		step, err := controller.decodeStep(raw)
		if err != nil {
			return err
		}

		steps = append(steps, *step)
	}

	tasks, err := planner.PlanChain(request.FileID, steps)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return controller.createTasks(ec, tasks)
}

type bulkRequest struct {
	FileIDs   []string       `json:"file_ids" validate:"required,min=1"`
	Operation map[string]any `json:"operation" validate:"required"`
}

func (controller *Controller) bulk(ec echo.Context) error {
	var request bulkRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	for _, fileID := range request.FileIDs {
		if _, err := controller.fetchFile(fileID); err != nil {
			return err
		}
	}

	step, err := controller.decodeStep(request.Operation)
	if err != nil {
		return err
	}

	tasks, err := planner.PlanBulk(request.FileIDs, step.Operation, step.Params, step.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return controller.createTasks(ec, tasks)
}

// submitSingle is the shared skeleton for the one-operation
// endpoints: bind, validate, resolve inputs, and plan a single-step
// chain.
func submitSingle[T any](controller *Controller, ec echo.Context, operation task.Operation, defaultMode task.Mode) error {
	var raw map[string]any
	if err := ec.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
	}

	mode, err := requestMode(raw, defaultMode)
	if err != nil {
		return err
	}

	params, err := task.DecodeArgs[T](task.Args(raw))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := controller.validate.Struct(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := controller.checkOperation(operation, params); err != nil {
		return err
	}

	fileID, err := controller.resolveRequestFile(operation, raw, params)
	if err != nil {
		return err
	}

	tasks, err := planner.PlanChain(fileID, []planner.ChainStep{{Operation: operation, Params: params, Mode: mode}})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return controller.createTasks(ec, tasks)
}

// resolveRequestFile determines which file a single-operation request
// targets and verifies every referenced file exists. Merge requests
// attach to their first input; everything else names file_id
// explicitly.
func (controller *Controller) resolveRequestFile(operation task.Operation, raw map[string]any, params any) (string, error) {
	if merge, ok := params.(*task.MergeMediaParams); ok {
		for _, id := range merge.FileIDs {
			if _, err := controller.fetchFile(id); err != nil {
				return "", err
			}
		}

		return merge.FileIDs[0], nil
	}

	fileID, _ := raw["file_id"].(string)
	if fileID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "file_id is required")
	}
	if _, err := controller.fetchFile(fileID); err != nil {
		return "", err
	}

	if addAudio, ok := params.(*task.AddAudioParams); ok {
		if _, err := controller.fetchFile(addAudio.AudioFileID); err != nil {
			return "", err
		}
	}

	return fileID, nil
}

// checkOperation applies cross-field argument rules which the schema
// tags cannot express.
func (controller *Controller) checkOperation(operation task.Operation, params any) error {
	if transcode, ok := params.(*task.TranscodeParams); ok && operation == task.OpTranscode {
		if err := ffmpeg.ValidateMux(transcode.Format, transcode.VideoCodec, transcode.AudioCodec); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return nil
}

// decodeStep converts one loosely-typed chain/bulk operation object
// in to a validated planner step.
func (controller *Controller) decodeStep(raw map[string]any) (*planner.ChainStep, error) {
	name, _ := raw["operation"].(string)
	if name == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "each operation must carry an 'operation' name")
	}

	mode, err := requestMode(raw, "")
	if err != nil {
		return nil, err
	}

	operation := task.Operation(name)
	params, err := controller.decodeStepParams(operation, raw)
	if err != nil {
		return nil, err
	}
	if err := controller.checkOperation(operation, params); err != nil {
		return nil, err
	}

	return &planner.ChainStep{Operation: operation, Params: params, Mode: mode}, nil
}

func (controller *Controller) decodeStepParams(operation task.Operation, raw map[string]any) (any, error) {
	decode := func(params any, err error) (any, error) {
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := controller.validate.Struct(params); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		return params, nil
	}

	args := task.Args(raw)
	switch operation {
	case task.OpTranscode:
		return decode(task.DecodeArgs[task.TranscodeParams](args))
	case task.OpResizeVideo:
		return decode(task.DecodeArgs[task.ResizeVideoParams](args))
	case task.OpTrim:
		return decode(task.DecodeArgs[task.TrimParams](args))
	case task.OpTrimEnd:
		return decode(task.DecodeArgs[task.TrimEndParams](args))
	case task.OpExtractAudio:
		return decode(task.DecodeArgs[task.ExtractAudioParams](args))
	case task.OpRemoveAudio:
		return decode(task.DecodeArgs[task.RemoveAudioParams](args))
	case task.OpAddAudio:
		return decode(task.DecodeArgs[task.AddAudioParams](args))
	case task.OpMergeMedia:
		return decode(task.DecodeArgs[task.MergeMediaParams](args))
	case task.OpExtractThumbnail:
		return decode(task.DecodeArgs[task.ExtractThumbnailParams](args))
	case task.OpDash:
		return decode(task.DecodeArgs[task.DashParams](args))
	case task.OpASRNormalize:
		return decode(task.DecodeArgs[task.ASRNormalizeParams](args))
	case task.OpASRAnalyze:
		return decode(task.DecodeArgs[task.ASRAnalyzeParams](args))
	case task.OpASRSegment:
		return decode(task.DecodeArgs[task.ASRSegmentParams](args))
	case task.OpVisionAnalyze:
		return decode(task.DecodeArgs[task.VisionAnalyzeParams](args))
	case task.OpVisionSegment:
		return decode(task.DecodeArgs[task.VisionSegmentParams](args))
	}

	return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown operation %q", operation))
}

func requestMode(raw map[string]any, fallback task.Mode) (task.Mode, error) {
	value, present := raw["mode"]
	if !present {
		return fallback, nil
	}

	mode, _ := value.(string)
	switch task.Mode(mode) {
	case task.ModeReplace, task.ModeAppend:
		return task.Mode(mode), nil
	}

	return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("mode must be one of append/replace, got %q", mode))
}

func (controller *Controller) createTasks(ec echo.Context, tasks []*task.Task) error {
	if err := controller.store.CreateTasks(tasks); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to create tasks: %v", err))
	}

	return ec.JSON(http.StatusOK, map[string]bool{"success": true})
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
