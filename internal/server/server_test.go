package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/playcapture/internal/capture"
	"github.com/audiolibrelab/playcapture/internal/config"
	"github.com/audiolibrelab/playcapture/internal/service"
	"github.com/audiolibrelab/playcapture/internal/wav"
)

type fakeService struct {
	cfg *config.Config

	startErr   error
	stopResult *capture.Result
	stopErr    error
	last       *capture.Result
	sources    []string
	profileErr error
	profile    string
	started    int
}

func (f *fakeService) StartCapture() error {
	f.started++
	return f.startErr
}

func (f *fakeService) StopCapture() (*capture.Result, error) { return f.stopResult, f.stopErr }

func (f *fakeService) GetCaptureStatus() service.CaptureStatus {
	return service.CaptureStatus{Snapshot: capture.Snapshot{State: capture.Capturing, BytesCaptured: 2048}, Message: "Recording"}
}

func (f *fakeService) LastResult() *capture.Result { return f.last }

func (f *fakeService) WaitIdle(context.Context) (*capture.Result, error) { return f.last, nil }

func (f *fakeService) Inspect() (*wav.Info, error) { return wav.Inspect(f.cfg.ContainerPath()) }

func (f *fakeService) Export(context.Context) (string, error) {
	return "", errors.New("ffmpeg not installed")
}

func (f *fakeService) Preview(context.Context) error { return nil }

func (f *fakeService) LoadProfile(profile string) error {
	f.profile = profile
	return f.profileErr
}

func (f *fakeService) GetConfig() *config.Config { return f.cfg }

func (f *fakeService) ListSources() ([]string, error) { return f.sources, nil }

func (f *fakeService) GetLastError() string { return "" }

func (f *fakeService) Close() error { return nil }

func newFake(t *testing.T) *fakeService {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	return &fakeService{cfg: cfg, sources: []string{"software:mix"}}
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestHealthz(t *testing.T) {
	w := do(t, New(newFake(t), "0"), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","state":"CAPTURING"}`, w.Body.String())
}

func TestStart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, http.StatusOK},
		{"already active", fmt.Errorf("%w (state CAPTURING)", capture.ErrAlreadyActive), http.StatusConflict},
		{"no permission", capture.ErrPermissionDenied, http.StatusForbidden},
		{"bad asset", fmt.Errorf("%w: boom", capture.ErrPlaybackSetup), http.StatusUnprocessableEntity},
		{"disk", capture.ErrIO, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFake(t)
			f.startErr = tc.err
			w := do(t, New(f, "0"), http.MethodPost, "/api/start", nil)

			assert.Equal(t, tc.code, w.Code)
			resp := decode[GenericResponse](t, w)
			assert.Equal(t, tc.err == nil, resp.Success)
			if tc.err != nil {
				assert.Contains(t, resp.Error, tc.err.Error())
			}
			assert.Equal(t, 1, f.started)
		})
	}

	w := do(t, New(newFake(t), "0"), http.MethodGet, "/api/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "start is POST only")
}

func TestStop(t *testing.T) {
	f := newFake(t)
	s := New(f, "0")

	w := do(t, s, http.MethodPost, "/api/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StopResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "Nothing to stop", resp.Message)
	assert.Nil(t, resp.Result)

	f.stopResult = &capture.Result{SessionID: "abc", ContainerPath: "/tmp/x.wav", ContainerBytes: 1044, Reason: capture.ReasonStopped}
	resp = decode[StopResponse](t, do(t, s, http.MethodPost, "/api/stop", nil))
	assert.Equal(t, "Recording saved to /tmp/x.wav", resp.Message)
	require.NotNil(t, resp.Result)
	assert.Equal(t, int64(1044), resp.Result.ContainerBytes)

	f.stopErr = errors.New("disk full")
	w = do(t, s, http.MethodPost, "/api/stop", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp = decode[StopResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "disk full", resp.Error)
}

func TestStatus(t *testing.T) {
	f := newFake(t)
	w := do(t, New(f, "0"), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CAPTURING", body["state"])
	assert.Equal(t, float64(2048), body["bytes_captured"])
	assert.Equal(t, "Recording", body["message"])
	assert.Equal(t, float64(44100), body["sample_rate"])
	assert.Equal(t, f.cfg.ContainerPath(), body["container"])
}

func TestResult(t *testing.T) {
	f := newFake(t)
	s := New(f, "0")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/result", nil).Code)

	f.last = &capture.Result{SessionID: "s1", Reason: capture.ReasonPlaybackError, Err: capture.ErrPlaybackRuntime}
	w := do(t, s, http.MethodGet, "/api/result", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, capture.ErrPlaybackRuntime.Error(), body["error"])
	assert.Equal(t, "playback-error", body["result"].(map[string]any)["reason"])
}

func TestRecording(t *testing.T) {
	f := newFake(t)
	s := New(f, "0")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/recording", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/recording/info", nil).Code)

	raw := filepath.Join(f.cfg.Output.Directory, "raw.pcm")
	require.NoError(t, os.WriteFile(raw, bytes.Repeat([]byte{0x80, 0xF0}, 500), 0o644))
	_, err := wav.WriteContainer(raw, f.cfg.ContainerPath(), wav.Params{SampleRate: 22050, Channels: 1, BitDepth: 8})
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/recording", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, 1044, w.Body.Len())

	w = do(t, s, http.MethodGet, "/api/recording/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[RecordingInfo](t, w)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 8, info.BitDepth)
	assert.Equal(t, int64(1000), info.DataLength)
	assert.Equal(t, 1000, info.Frames)
	assert.Equal(t, 112, info.Peak)
}

func TestExportFailure(t *testing.T) {
	w := do(t, New(newFake(t), "0"), http.MethodPost, "/api/recording/export", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode[GenericResponse](t, w).Error, "ffmpeg not installed")
}

func TestSources(t *testing.T) {
	w := do(t, New(newFake(t), "0"), http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"software:mix"}, decode[SourcesResponse](t, w).Sources)
}

func TestSelectProfile(t *testing.T) {
	f := newFake(t)
	s := New(f, "0")

	w := do(t, s, http.MethodPost, "/api/config/select", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/config/select", []byte(`{"profile":"studio"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "studio", f.profile)

	f.profileErr = fmt.Errorf("%w: cannot switch profile while CAPTURING", capture.ErrAlreadyActive)
	w = do(t, s, http.MethodPost, "/api/config/select", []byte(`{"profile":"studio"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
}
