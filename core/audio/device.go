package audio

import (
	"context"
	"fmt"
	"sync"
)

// Device plays one clip of raw audio at a time. Play blocks until the clip
// has been fully played, the device is stopped, or ctx is cancelled.
type Device interface {
	Play(ctx context.Context, clip []byte) error
	// Stop halts the clip currently being played, if any. It must be safe
	// to call concurrently with Play and when nothing is playing.
	Stop() error
	EncodingInfo() EncodingInfo
}

// ManualDevice defers playback to an external operator. Environments that
// cannot start audio unprompted (mobile autoplay restrictions) surface each
// clip through the callback and complete it only on an explicit Confirm.
type ManualDevice struct {
	onClip       func(clip []byte)
	encodingInfo EncodingInfo

	mu      sync.Mutex
	pending chan struct{}
}

func NewManualDevice(encodingInfo EncodingInfo, onClip func(clip []byte)) *ManualDevice {
	if onClip == nil {
		onClip = func([]byte) {}
	}
	return &ManualDevice{onClip: onClip, encodingInfo: encodingInfo}
}

func (d *ManualDevice) Play(ctx context.Context, clip []byte) error {
	d.mu.Lock()
	if d.pending != nil {
		d.mu.Unlock()
		return fmt.Errorf("a clip is already awaiting confirmation")
	}
	pending := make(chan struct{})
	d.pending = pending
	d.mu.Unlock()

	d.onClip(clip)

	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		d.clearPending(pending)
		return ctx.Err()
	}
}

// Confirm reports that the surfaced clip finished playing. Confirming when
// no clip is pending is a no-op.
func (d *ManualDevice) Confirm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		close(d.pending)
		d.pending = nil
	}
}

func (d *ManualDevice) Stop() error {
	d.Confirm()
	return nil
}

func (d *ManualDevice) clearPending(pending chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == pending {
		d.pending = nil
	}
}

func (d *ManualDevice) EncodingInfo() EncodingInfo {
	if d.encodingInfo.IsZero() {
		return GetDefaultEncodingInfo()
	}
	return d.encodingInfo
}
