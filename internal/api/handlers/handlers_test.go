package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camswitch-go/internal/models"
	"camswitch-go/internal/switcher"
)

type stubControl struct {
	status  switcher.Status
	actions []string
}

func (s *stubControl) Status() switcher.Status { return s.status }
func (s *stubControl) ForceDay() {
	s.actions = append(s.actions, "force-day")
	s.status.Mode = switcher.ModeManual
	s.status.ActiveCamera = models.CameraDay
}
func (s *stubControl) ForceNight() {
	s.actions = append(s.actions, "force-night")
	s.status.Mode = switcher.ModeManual
	s.status.ActiveCamera = models.CameraNight
}
func (s *stubControl) ResumeAuto() {
	s.actions = append(s.actions, "auto")
	s.status.Mode = switcher.ModeAuto
}

func newTestRouter(rt SwitcherControl) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewSwitcherHandler(rt)
	r.GET("/switcher/status", h.Status)
	r.POST("/switcher/force/day", h.ForceDay)
	r.POST("/switcher/force/night", h.ForceNight)
	r.POST("/switcher/auto", h.ResumeAuto)
	return r
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHealthHandler("switcher-test", "1.2.3")
	r.GET("/health", h.HealthCheck)
	r.GET("/", h.ServiceInfo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "switcher-test", resp.ServiceID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info ServiceInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Contains(t, info.Capabilities, "day_night_switching")
}

func TestSwitcherStatus(t *testing.T) {
	stub := &stubControl{status: switcher.Status{
		Mode:             switcher.ModeAuto,
		ActiveCamera:     models.CameraNight,
		LastSwitchReason: "to-night",
		WarmupRemaining:  2,
	}}
	stub.status.Stats[models.CameraDay] = switcher.BrightnessStat{
		Latest: 23.5, Avg: 30, Samples: 12, UpdatedAt: time.Now(),
	}
	r := newTestRouter(stub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/switcher/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp SwitcherStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "auto", resp.Mode)
	assert.Equal(t, "night", resp.ActiveCamera)
	assert.Equal(t, "to-night", resp.LastSwitchReason)
	assert.Equal(t, 2, resp.WarmupRemaining)
	assert.Equal(t, 23.5, resp.Day.Latest)
	assert.Equal(t, 12, resp.Day.Samples)
}

func TestSwitcherForceEndpoints(t *testing.T) {
	stub := &stubControl{}
	r := newTestRouter(stub)

	for _, tc := range []struct {
		path   string
		action string
		camera string
	}{
		{"/switcher/force/night", "force-night", "night"},
		{"/switcher/force/day", "force-day", "day"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tc.path, nil))
		require.Equal(t, http.StatusOK, w.Code, tc.path)

		var resp SwitcherStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "manual", resp.Mode)
		assert.Equal(t, tc.camera, resp.ActiveCamera)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/switcher/auto", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"force-night", "force-day", "auto"}, stub.actions)
}

func TestFrameEndpointsWithoutSharedMemory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewFrameHandler(nil, nil)
	r.GET("/frame", h.LatestFrameInfo)
	r.GET("/brightness", h.Brightness)

	for _, path := range []string{"/frame", "/brightness"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}
