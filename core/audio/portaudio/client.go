//go:build cgo

package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/tinybuddy/buddy-core/core/audio"
)

// Client is a PortAudio-backed playback device. It writes linear16 clips
// to the default output stream one buffer at a time, which makes Play
// naturally blocking.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	out []int16

	mu          sync.Mutex
	interrupted bool
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, bufferSize, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		out:        out,
	}, nil
}

func (c *Client) Play(ctx context.Context, clip []byte) error {
	c.mu.Lock()
	c.interrupted = false
	c.mu.Unlock()

	chunkSize := c.bufferSize * 2
	for offset := 0; offset < len(clip); offset += chunkSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.mu.Lock()
		interrupted := c.interrupted
		c.mu.Unlock()
		if interrupted {
			return nil
		}

		end := offset + chunkSize
		chunk := make([]byte, chunkSize)
		if end > len(clip) {
			copy(chunk, clip[offset:])
		} else {
			copy(chunk, clip[offset:end])
		}

		if err := binary.Read(bytes.NewBuffer(chunk), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to frame clip for playback: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}

	return nil
}

func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupted = true
	return nil
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
