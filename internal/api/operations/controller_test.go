package operations_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/clipforge/clipforge/internal/api/operations"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	files   map[string]*task.File
	created []*task.Task
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{files: map[string]*task.File{}}
	for _, id := range ids {
		s.files[id] = &task.File{ID: id, FileName: id + ".mp4", FilePath: id + ".mp4"}
	}

	return s
}

func (s *fakeStore) GetFile(id string) (*task.File, error) {
	if f, ok := s.files[id]; ok {
		return f, nil
	}

	return nil, task.ErrFileNotFound
}

func (s *fakeStore) CreateTasks(tasks []*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.created = append(s.created, tasks...)
	return nil
}

func newRouter(store *fakeStore) *echo.Echo {
	ec := echo.New()
	operations.New(store).SetRoutes(ec.Group(""))
	return ec
}

func post(router *echo.Echo, path string, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	return recorder
}

func Test_Trim_CreatesSingleReplaceTask(t *testing.T) {
	t.Parallel()

	store := newFakeStore("root1234")
	response := post(newRouter(store), "/trim", `{"file_id":"root1234","start":5,"duration":10,"output_format":"mp4"}`)

	assert.Equal(t, http.StatusOK, response.Code)
	assert.JSONEq(t, `{"success":true}`, response.Body.String())

	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, "root1234", created.FileID)
	assert.Equal(t, task.OpTrim, created.Operation)
	assert.Equal(t, task.ModeReplace, created.TaskArgs().Mode())
}

func Test_Trim_MissingFileIs404(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	response := post(newRouter(store), "/trim", `{"file_id":"ghost123","start":0,"duration":1,"output_format":"mp4"}`)

	assert.Equal(t, http.StatusNotFound, response.Code)
	assert.Empty(t, store.created)
}

func Test_Trim_SchemaViolationIs400(t *testing.T) {
	t.Parallel()

	store := newFakeStore("root1234")
	response := post(newRouter(store), "/trim", `{"file_id":"root1234","start":5,"output_format":"ogg"}`)

	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.Empty(t, store.created)
}

func Test_Transcode_IncompatibleMuxRejectedBeforeTaskCreation(t *testing.T) {
	t.Parallel()

	store := newFakeStore("root1234")
	response := post(newRouter(store), "/transcode", `{"file_id":"root1234","format":"mp4","video_codec":"vp9"}`)

	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.Empty(t, store.created)
}

func Test_AddAudio_DefaultsToAppendAndChecksBothFiles(t *testing.T) {
	t.Parallel()

	store := newFakeStore("video001", "audio001")
	response := post(newRouter(store), "/add-audio", `{"file_id":"video001","audio_file_id":"audio001"}`)

	assert.Equal(t, http.StatusOK, response.Code)
	require.Len(t, store.created, 1)
	assert.Equal(t, task.ModeAppend, store.created[0].TaskArgs().Mode())

	missing := post(newRouter(newFakeStore("video001")), "/add-audio", `{"file_id":"video001","audio_file_id":"ghost123"}`)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func Test_Merge_RequiresAtLeastTwoInputs(t *testing.T) {
	t.Parallel()

	store := newFakeStore("filea", "fileb")

	tooFew := post(newRouter(store), "/merge", `{"file_ids":["filea"],"output_format":"mp4"}`)
	assert.Equal(t, http.StatusBadRequest, tooFew.Code)

	ok := post(newRouter(store), "/merge", `{"file_ids":["filea","fileb"],"output_format":"mp4"}`)
	assert.Equal(t, http.StatusOK, ok.Code)
	require.Len(t, store.created, 1)
	assert.Equal(t, "filea", store.created[0].FileID)
	assert.Equal(t, task.ModeAppend, store.created[0].TaskArgs().Mode())
}

func Test_Chain_PlansLinkedTasks(t *testing.T) {
	t.Parallel()

	store := newFakeStore("root1234")
	body := `{
		"file_id": "root1234",
		"operations": [
			{"operation": "extract-audio", "audio_format": "mp3", "mode": "append"},
			{"operation": "transcode", "format": "mp4"}
		]
	}`
	response := post(newRouter(store), "/chain", body)

	assert.Equal(t, http.StatusOK, response.Code)
	require.Len(t, store.created, 2)

	first, second := store.created[0], store.created[1]
	assert.Equal(t, task.OpExtractAudio, first.Operation)
	assert.Equal(t, task.OpTranscode, second.Operation)
	assert.Equal(t, "root1234", first.FileID)
	assert.Equal(t, "root1234", second.FileID)
	assert.Equal(t, first.TaskArgs().OutputID(), second.TaskArgs().Parent())
}

func Test_Chain_UnknownOperationRejected(t *testing.T) {
	t.Parallel()

	store := newFakeStore("root1234")
	response := post(newRouter(store), "/chain", `{"file_id":"root1234","operations":[{"operation":"explode"}]}`)

	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.Empty(t, store.created)
}

func Test_Bulk_FansOutOneTaskPerFile(t *testing.T) {
	t.Parallel()

	store := newFakeStore("filea", "fileb", "filec")
	body := `{"file_ids":["filea","fileb","filec"],"operation":{"operation":"resize-video","width":640,"height":360}}`
	response := post(newRouter(store), "/bulk", body)

	assert.Equal(t, http.StatusOK, response.Code)
	require.Len(t, store.created, 3)
	for i, fileID := range []string{"filea", "fileb", "filec"} {
		assert.Equal(t, fileID, store.created[i].FileID)
		assert.Equal(t, task.OpResizeVideo, store.created[i].Operation)
	}
}
