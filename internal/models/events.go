package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarshalJSON renders the camera by name so bus consumers see "day"/"night"
// rather than ABI ordinals.
func (c Camera) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Camera) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "day":
		*c = CameraDay
	case "night":
		*c = CameraNight
	default:
		return fmt.Errorf("unknown camera %q", s)
	}
	return nil
}

// SwitchEvent is emitted on the message bus whenever the active camera
// changes, whether by hysteresis decision or manual override.
type SwitchEvent struct {
	From       Camera    `json:"from"`
	To         Camera    `json:"to"`
	Reason     string    `json:"reason"`
	Brightness float64   `json:"brightness"`
	Timestamp  time.Time `json:"timestamp"`
}
