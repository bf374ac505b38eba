package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camswitch-go/internal/broadcast"
	"camswitch-go/internal/models"
	"camswitch-go/internal/shm"
)

type FrameHandler struct {
	ring       *shm.Ring
	brightness *broadcast.Brightness
}

func NewFrameHandler(ring *shm.Ring, brightness *broadcast.Brightness) *FrameHandler {
	return &FrameHandler{ring: ring, brightness: brightness}
}

type FrameInfoResponse struct {
	FrameNumber uint64    `json:"frame_number"`
	Camera      string    `json:"camera" example:"day"`
	Width       int32     `json:"width" example:"1920"`
	Height      int32     `json:"height" example:"1080"`
	Format      string    `json:"format" example:"nv12"`
	DataSize    uint64    `json:"data_size"`
	Brightness  float32   `json:"brightness"`
	Zone        string    `json:"zone" example:"normal"`
	Timestamp   time.Time `json:"timestamp"`
}

// @Summary Latest frame metadata
// @Description Header of the most recent frame in the shared ring, without payload
// @Tags frames
// @Produce json
// @Success 200 {object} FrameInfoResponse
// @Failure 404 {object} map[string]string
// @Router /frame [get]
func (h *FrameHandler) LatestFrameInfo(c *gin.Context) {
	if h.ring == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame ring not attached"})
		return
	}

	// Copying the full frame keeps the read torn-free; only the header
	// survives past this function.
	frame := new(models.Frame)
	if err := h.ring.ReadLatest(frame); err != nil {
		if errors.Is(err, shm.ErrEmpty) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no frames published yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, FrameInfoResponse{
		FrameNumber: frame.FrameNumber,
		Camera:      frame.CameraID.String(),
		Width:       frame.Width,
		Height:      frame.Height,
		Format:      frame.Format.String(),
		DataSize:    frame.DataSize,
		Brightness:  frame.BrightnessAvg,
		Zone:        frame.BrightnessZone.String(),
		Timestamp:   frame.Timestamp(),
	})
}

type BrightnessResponse struct {
	Camera      string    `json:"camera" example:"day"`
	FrameNumber uint64    `json:"frame_number"`
	Avg         float32   `json:"avg"`
	Lux         uint32    `json:"lux"`
	Zone        string    `json:"zone" example:"dim"`
	Timestamp   time.Time `json:"timestamp"`
}

// @Summary Latest brightness samples
// @Description Most recent brightness sample per camera from shared memory
// @Tags frames
// @Produce json
// @Success 200 {array} BrightnessResponse
// @Router /brightness [get]
func (h *FrameHandler) Brightness(c *gin.Context) {
	if h.brightness == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "brightness channel not attached"})
		return
	}

	out := make([]BrightnessResponse, 0, 2)
	for _, cam := range []models.Camera{models.CameraDay, models.CameraNight} {
		sample, _ := h.brightness.Read(cam)
		out = append(out, BrightnessResponse{
			Camera:      cam.String(),
			FrameNumber: sample.FrameNumber,
			Avg:         sample.Avg,
			Lux:         sample.Lux,
			Zone:        sample.Zone.String(),
			Timestamp:   time.Unix(0, sample.TimestampNs),
		})
	}
	c.JSON(http.StatusOK, out)
}
