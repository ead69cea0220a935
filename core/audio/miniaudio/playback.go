//go:build cgo

package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/tinybuddy/buddy-core/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	mu sync.Mutex

	audioMu sync.Mutex
	clip    []byte
	offset  int
	drained chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

// processAudio feeds the device from the active clip, padding with silence
// once the clip is exhausted, and signals drained after handing over the
// final bytes.
func (c *playbackClient) processAudio(bytesPerFrame int) func(pOutput, pInput []byte, frameCount uint32) {
	return func(pOutput, _ []byte, frameCount uint32) {
		n := int(frameCount) * bytesPerFrame
		if n == 0 || len(pOutput) < n {
			return
		}

		c.audioMu.Lock()
		defer c.audioMu.Unlock()

		written := 0
		if c.clip != nil && c.offset < len(c.clip) {
			written = copy(pOutput[:n], c.clip[c.offset:])
			c.offset += written
		}
		for i := written; i < n; i++ {
			pOutput[i] = 0
		}

		if c.clip != nil && c.offset >= len(c.clip) {
			c.finishClipLocked()
		}
	}
}

// Play blocks until the clip has been handed to the device in full, the
// playback is interrupted, or ctx is cancelled. Only one clip can play at
// a time.
func (c *playbackClient) Play(ctx context.Context, clip []byte) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.audioMu.Lock()
	if c.clip != nil {
		c.audioMu.Unlock()
		return fmt.Errorf("a clip is already playing")
	}
	if len(clip) == 0 {
		c.audioMu.Unlock()
		return nil
	}
	drained := make(chan struct{})
	c.clip = clip
	c.offset = 0
	c.drained = drained
	c.audioMu.Unlock()

	if !device.IsStarted() {
		if err := device.Start(); err != nil {
			c.Interrupt()
			return fmt.Errorf("failed to start playback device: %w", err)
		}
	}

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		_ = c.Interrupt()
		return ctx.Err()
	}
}

// Interrupt drops the active clip, if any.
func (c *playbackClient) Interrupt() error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.finishClipLocked()
	return nil
}

func (c *playbackClient) finishClipLocked() {
	c.clip = nil
	c.offset = 0
	if c.drained != nil {
		close(c.drained)
		c.drained = nil
	}
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	_ = c.Interrupt()
	return nil
}
