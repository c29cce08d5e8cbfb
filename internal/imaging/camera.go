package imaging

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync"

	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

// Facing is the camera direction requested when opening a stream.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// captureQuality is the JPEG quality applied at capture time, before the
// compressor takes over.
const captureQuality = 0.8

// Device describes one attached video input.
type Device struct {
	ID    string
	Label string
}

// Facing guesses the device direction from its label. Labels without a
// recognizable hint report FacingUser so the preview defaults to selfie
// orientation.
func (d Device) Facing() Facing {
	label := strings.ToLower(d.Label)
	if strings.Contains(label, "back") || strings.Contains(label, "rear") {
		return FacingEnvironment
	}
	return FacingUser
}

// Constraints are passed to the Opener when acquiring a stream.
type Constraints struct {
	DeviceID  string
	Facing    Facing
	Width     int
	Height    int
	FrameRate int
}

// Stream is a live video feed. Frame returns the most recent frame; Stop
// releases the underlying device and must be safe to call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Stop()
}

// Opener acquires a stream for the given constraints.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Enumerator lists the attached video devices.
type Enumerator interface {
	Devices(ctx context.Context) ([]Device, error)
}

// Session owns one live capture interaction: device enumeration, the active
// stream, and the facing state that decides whether captures are mirrored.
// At most one stream is live at a time; every transition stops the previous
// stream before opening the next.
type Session struct {
	enumerator Enumerator
	opener     Opener
	logger     *slog.Logger

	mu       sync.Mutex
	devices  []Device
	active   Stream
	facing   Facing
	deviceID string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession returns a closed session. Start must be called before Capture.
func NewSession(enumerator Enumerator, opener Opener, opts ...SessionOption) *Session {
	s := &Session{
		enumerator: enumerator,
		opener:     opener,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a stream facing the requested direction, stopping any stream
// already live. Device discovery happens once per session.
func (s *Session) Start(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices == nil {
		devices, err := s.enumerator.Devices(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to access camera")
		}
		s.devices = devices
	}
	if len(s.devices) == 0 {
		return dErrors.New(dErrors.CodeUnavailable, "no camera found on this device")
	}
	return s.openLocked(ctx, facing)
}

// Switch moves to the next camera. With a single device it toggles the
// logical facing mode and re-requests the stream with the opposite
// constraint, so capture mirroring follows even when the hardware cannot
// change. With more than one device it cycles through the device list in
// order, wrapping at the end.
func (s *Session) Switch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "camera is not active")
	}
	if len(s.devices) == 1 {
		next := FacingUser
		if s.facing == FacingUser {
			next = FacingEnvironment
		}
		return s.openDeviceLocked(ctx, s.devices[0], next)
	}

	idx := 0
	for i, d := range s.devices {
		if d.ID == s.deviceID {
			idx = (i + 1) % len(s.devices)
			break
		}
	}
	next := s.devices[idx]
	return s.openDeviceLocked(ctx, next, next.Facing())
}

// HasMultipleCameras reports whether switching is possible. It is only
// meaningful after Start.
func (s *Session) HasMultipleCameras() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices) > 1
}

// Facing reports the direction of the active stream.
func (s *Session) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Capture grabs a frame, mirrors it when the front camera is active, encodes
// it as JPEG, and stops the stream. The returned bytes go through the
// compressor before being attached to the form.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "camera is not active")
	}
	frame, err := s.active.Frame()
	if err != nil {
		s.stopLocked()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to capture image")
	}
	if s.facing == FacingUser {
		frame = mirrorHorizontal(frame)
	}
	s.stopLocked()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: int(captureQuality * 100)}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture image")
	}
	return buf.Bytes(), nil
}

// Close stops any live stream. Safe to call at any point, including before
// Start and after Capture.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) openLocked(ctx context.Context, facing Facing) error {
	device, ok := s.deviceForLocked(facing)
	if !ok {
		return dErrors.New(dErrors.CodeUnavailable, "no camera found on this device")
	}
	return s.openDeviceLocked(ctx, device, facing)
}

func (s *Session) openDeviceLocked(ctx context.Context, device Device, facing Facing) error {
	s.stopLocked()
	stream, err := s.opener.Open(ctx, Constraints{
		DeviceID:  device.ID,
		Facing:    facing,
		Width:     1280,
		Height:    720,
		FrameRate: 30,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "camera open failed", "device", device.Label, "error", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to access camera")
	}
	s.active = stream
	s.deviceID = device.ID
	s.facing = facing
	return nil
}

func (s *Session) deviceForLocked(facing Facing) (Device, bool) {
	for _, d := range s.devices {
		if d.Facing() == facing {
			return d, true
		}
	}
	// Fall back to positional choice when labels carry no hint: first device
	// for the front camera, last for the back.
	if len(s.devices) == 0 {
		return Device{}, false
	}
	if facing == FacingEnvironment {
		return s.devices[len(s.devices)-1], true
	}
	return s.devices[0], true
}

func (s *Session) stopLocked() {
	if s.active != nil {
		s.active.Stop()
		s.active = nil
	}
}

func mirrorHorizontal(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for l, r := b.Min.X, b.Max.X-1; l < r; l, r = l+1, r-1 {
			pl := dst.RGBAAt(l, y)
			dst.SetRGBA(l, y, dst.RGBAAt(r, y))
			dst.SetRGBA(r, y, pl)
		}
	}
	return dst
}
