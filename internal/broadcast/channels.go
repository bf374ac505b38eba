//go:build linux

package broadcast

import (
	"time"

	"camswitch-go/internal/models"
	"camswitch-go/internal/shm"
)

// brightnessTable is the cell value for the brightness channel: one sample
// slot per camera. Each capture daemon writes only its own slot, so the
// single-writer-per-byte-range contract holds even with two producers.
type brightnessTable [2]models.BrightnessSample

// Brightness is the per-camera brightness broadcast channel.
type Brightness struct {
	cell *Cell[brightnessTable]
}

// NewBrightness attaches to the brightness channel, creating it if needed.
func NewBrightness() (*Brightness, error) {
	return NewBrightnessNamed(shm.NameBrightness)
}

// NewBrightnessNamed is NewBrightness over a custom segment name, for
// side-by-side deployments and tests.
func NewBrightnessNamed(name string) (*Brightness, error) {
	cell, err := NewCell[brightnessTable](name)
	if err != nil {
		return nil, err
	}
	return &Brightness{cell: cell}, nil
}

// OpenBrightness attaches to a peer-owned brightness channel with retry.
func OpenBrightness(attempts int, backoff time.Duration) (*Brightness, error) {
	cell, err := OpenCell[brightnessTable](shm.NameBrightness, attempts, backoff)
	if err != nil {
		return nil, err
	}
	return &Brightness{cell: cell}, nil
}

// Update publishes a new sample for one camera, leaving the other camera's
// slot untouched.
func (b *Brightness) Update(cam models.Camera, sample models.BrightnessSample) {
	b.cell.mutate(func(t *brightnessTable) {
		t[cam] = sample
	})
}

// Read returns the latest sample for one camera and the channel version.
// It inherits the cell's torn-read protection: the sample is copied under
// the seqlock, so a reader racing Update never sees a half-written record.
func (b *Brightness) Read(cam models.Camera) (models.BrightnessSample, uint32) {
	table, ver := b.cell.Read()
	return table[cam], ver
}

// Version returns the channel version without copying samples.
func (b *Brightness) Version() uint32 { return b.cell.Version() }

// Role reports whether this process created the segment.
func (b *Brightness) Role() shm.Role { return b.cell.Role() }

// Close unmaps the channel.
func (b *Brightness) Close() error { return b.cell.Close() }

// Unlink removes the channel; creator only.
func (b *Brightness) Unlink() error { return b.cell.Unlink() }

// Control is the active-camera control broadcast channel. The switcher
// daemon is its single writer; capture daemons poll it to learn which of
// them should be producing the active stream.
type Control struct {
	cell *Cell[models.ControlState]
}

// NewControl attaches to the control channel, creating it if needed.
func NewControl() (*Control, error) {
	return NewControlNamed(shm.NameControl)
}

// NewControlNamed is NewControl over a custom segment name.
func NewControlNamed(name string) (*Control, error) {
	cell, err := NewCell[models.ControlState](name)
	if err != nil {
		return nil, err
	}
	return &Control{cell: cell}, nil
}

// OpenControl attaches to a peer-owned control channel with retry.
func OpenControl(attempts int, backoff time.Duration) (*Control, error) {
	cell, err := OpenCell[models.ControlState](shm.NameControl, attempts, backoff)
	if err != nil {
		return nil, err
	}
	return &Control{cell: cell}, nil
}

// Write publishes the new control state.
func (c *Control) Write(state models.ControlState) { c.cell.Write(state) }

// Read returns the current control state and version.
func (c *Control) Read() (models.ControlState, uint32) { return c.cell.Read() }

// Role reports whether this process created the segment.
func (c *Control) Role() shm.Role { return c.cell.Role() }

// Close unmaps the channel.
func (c *Control) Close() error { return c.cell.Close() }

// Unlink removes the channel; creator only.
func (c *Control) Unlink() error { return c.cell.Unlink() }
