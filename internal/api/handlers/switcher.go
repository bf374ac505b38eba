package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camswitch-go/internal/logging"
	"camswitch-go/internal/models"
	"camswitch-go/internal/switcher"
)

// SwitcherControl is the slice of the runtime the API needs.
type SwitcherControl interface {
	Status() switcher.Status
	ForceDay()
	ForceNight()
	ResumeAuto()
}

type SwitcherHandler struct {
	rt SwitcherControl
}

func NewSwitcherHandler(rt SwitcherControl) *SwitcherHandler {
	return &SwitcherHandler{rt: rt}
}

type cameraStatsResponse struct {
	Latest    float64   `json:"latest"`
	Avg       float64   `json:"avg"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SwitcherStatusResponse struct {
	Mode             string              `json:"mode" example:"auto"`
	ActiveCamera     string              `json:"active_camera" example:"day"`
	LastSwitchReason string              `json:"last_switch_reason" example:"to-night"`
	WarmupRemaining  int                 `json:"warmup_remaining"`
	Day              cameraStatsResponse `json:"day"`
	Night            cameraStatsResponse `json:"night"`
}

func statsResponse(s switcher.BrightnessStat) cameraStatsResponse {
	return cameraStatsResponse{
		Latest:    s.Latest,
		Avg:       s.Avg,
		Samples:   s.Samples,
		UpdatedAt: s.UpdatedAt,
	}
}

// @Summary Switcher status
// @Description Current mode, active camera and brightness statistics
// @Tags switcher
// @Produce json
// @Success 200 {object} SwitcherStatusResponse
// @Router /switcher/status [get]
func (h *SwitcherHandler) Status(c *gin.Context) {
	st := h.rt.Status()
	c.JSON(http.StatusOK, SwitcherStatusResponse{
		Mode:             st.Mode.String(),
		ActiveCamera:     st.ActiveCamera.String(),
		LastSwitchReason: st.LastSwitchReason,
		WarmupRemaining:  st.WarmupRemaining,
		Day:              statsResponse(st.Stats[models.CameraDay]),
		Night:            statsResponse(st.Stats[models.CameraNight]),
	})
}

// @Summary Force day camera
// @Description Enter manual mode with the day camera active
// @Tags switcher
// @Produce json
// @Success 200 {object} SwitcherStatusResponse
// @Router /switcher/force/day [post]
func (h *SwitcherHandler) ForceDay(c *gin.Context) {
	logging.Info(c).Str("action", "force-day").Msg("Manual switch requested")
	h.rt.ForceDay()
	h.Status(c)
}

// @Summary Force night camera
// @Description Enter manual mode with the night camera active
// @Tags switcher
// @Produce json
// @Success 200 {object} SwitcherStatusResponse
// @Router /switcher/force/night [post]
func (h *SwitcherHandler) ForceNight(c *gin.Context) {
	logging.Info(c).Str("action", "force-night").Msg("Manual switch requested")
	h.rt.ForceNight()
	h.Status(c)
}

// @Summary Resume automatic switching
// @Description Leave manual mode; hysteresis takes over from the current camera
// @Tags switcher
// @Produce json
// @Success 200 {object} SwitcherStatusResponse
// @Router /switcher/auto [post]
func (h *SwitcherHandler) ResumeAuto(c *gin.Context) {
	logging.Info(c).Str("action", "resume-auto").Msg("Manual switch requested")
	h.rt.ResumeAuto()
	h.Status(c)
}
