package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

type fakeStream struct {
	frame    image.Image
	stopped  int
	frameErr error
}

func (f *fakeStream) Frame() (image.Image, error) {
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	return f.frame, nil
}

func (f *fakeStream) Stop() { f.stopped++ }

type fakeOpener struct {
	streams map[string]*fakeStream
	opened  []Constraints
	err     error
}

func (f *fakeOpener) Open(_ context.Context, c Constraints) (Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened = append(f.opened, c)
	st, ok := f.streams[c.DeviceID]
	if !ok {
		st = &fakeStream{frame: markedFrame()}
		if f.streams == nil {
			f.streams = map[string]*fakeStream{}
		}
		f.streams[c.DeviceID] = st
	}
	return st, nil
}

type fakeEnumerator struct {
	devices []Device
	err     error
}

func (f *fakeEnumerator) Devices(context.Context) ([]Device, error) {
	return f.devices, f.err
}

// markedFrame carries an asymmetric pixel so mirroring is observable.
func markedFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{A: 255})
		}
	}
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

type CameraSuite struct {
	suite.Suite
	ctx context.Context
}

func TestCameraSuite(t *testing.T) {
	suite.Run(t, new(CameraSuite))
}

func (s *CameraSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *CameraSuite) twoCameraSession() (*Session, *fakeOpener) {
	opener := &fakeOpener{}
	enum := &fakeEnumerator{devices: []Device{
		{ID: "cam-front", Label: "Front Camera"},
		{ID: "cam-back", Label: "Back Camera"},
	}}
	return NewSession(enum, opener), opener
}

func (s *CameraSuite) TestStartPicksDeviceByFacing() {
	sess, opener := s.twoCameraSession()

	s.Require().NoError(sess.Start(s.ctx, FacingEnvironment))
	s.Require().Len(opener.opened, 1)
	s.Equal("cam-back", opener.opened[0].DeviceID)
	s.Equal(1280, opener.opened[0].Width)
	s.Equal(720, opener.opened[0].Height)
	s.Equal(30, opener.opened[0].FrameRate)
	s.Equal(FacingEnvironment, sess.Facing())
	s.True(sess.HasMultipleCameras())

	sess.Close()
}

func (s *CameraSuite) TestStartWithNoDevices() {
	sess := NewSession(&fakeEnumerator{}, &fakeOpener{})
	err := sess.Start(s.ctx, FacingUser)
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *CameraSuite) TestStartWhenEnumerationFails() {
	sess := NewSession(&fakeEnumerator{err: errors.New("no permission")}, &fakeOpener{})
	err := sess.Start(s.ctx, FacingUser)
	s.Require().Error(err)
	s.Contains(dErrors.MessageOf(err), "failed to access camera")
}

func (s *CameraSuite) TestSwitchTogglesFacingAndStopsPriorStream() {
	sess, opener := s.twoCameraSession()
	s.Require().NoError(sess.Start(s.ctx, FacingUser))
	front := opener.streams["cam-front"]

	s.Require().NoError(sess.Switch(s.ctx))

	s.Equal(FacingEnvironment, sess.Facing())
	s.Equal(1, front.stopped)
	s.Require().Len(opener.opened, 2)
	s.Equal("cam-back", opener.opened[1].DeviceID)

	sess.Close()
}

func (s *CameraSuite) TestSwitchCyclesThreeDevicesWithWraparound() {
	opener := &fakeOpener{}
	enum := &fakeEnumerator{devices: []Device{
		{ID: "a", Label: "Front Camera"},
		{ID: "b", Label: "Back Camera"},
		{ID: "c", Label: "Back Telephoto"},
	}}
	sess := NewSession(enum, opener)
	s.Require().NoError(sess.Start(s.ctx, FacingUser))

	s.Require().NoError(sess.Switch(s.ctx))
	s.Require().NoError(sess.Switch(s.ctx))
	s.Require().NoError(sess.Switch(s.ctx))

	var ids []string
	for _, c := range opener.opened {
		ids = append(ids, c.DeviceID)
	}
	s.Equal([]string{"a", "b", "c", "a"}, ids)

	sess.Close()
}

func (s *CameraSuite) TestSwitchWithSingleCameraTogglesFacing() {
	opener := &fakeOpener{}
	enum := &fakeEnumerator{devices: []Device{{ID: "only", Label: "Integrated Camera"}}}
	sess := NewSession(enum, opener)
	s.Require().NoError(sess.Start(s.ctx, FacingUser))
	s.False(sess.HasMultipleCameras())
	stream := opener.streams["only"]

	s.Require().NoError(sess.Switch(s.ctx))

	s.Equal(FacingEnvironment, sess.Facing())
	s.Equal(1, stream.stopped)
	s.Require().Len(opener.opened, 2)
	s.Equal("only", opener.opened[1].DeviceID)
	s.Equal(FacingEnvironment, opener.opened[1].Facing)

	// Switching again lands back on the front-facing mode.
	s.Require().NoError(sess.Switch(s.ctx))
	s.Equal(FacingUser, sess.Facing())

	sess.Close()
}

func (s *CameraSuite) TestCaptureMirrorsFrontCameraAndStopsStream() {
	sess, opener := s.twoCameraSession()
	s.Require().NoError(sess.Start(s.ctx, FacingUser))

	data, err := sess.Capture(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, opener.streams["cam-front"].stopped)

	img, err := jpeg.Decode(bytes.NewReader(data))
	s.Require().NoError(err)
	// The marker started at the left edge; mirroring moves it to the right.
	left := brightness(img, 0, 0)
	right := brightness(img, img.Bounds().Max.X-1, 0)
	s.Greater(right, left)
}

func (s *CameraSuite) TestCaptureDoesNotMirrorBackCamera() {
	sess, _ := s.twoCameraSession()
	s.Require().NoError(sess.Start(s.ctx, FacingEnvironment))

	data, err := sess.Capture(s.ctx)
	s.Require().NoError(err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	s.Require().NoError(err)
	left := brightness(img, 0, 0)
	right := brightness(img, img.Bounds().Max.X-1, 0)
	s.Greater(left, right)
}

func (s *CameraSuite) TestCaptureWithoutStart() {
	sess, _ := s.twoCameraSession()
	_, err := sess.Capture(s.ctx)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
}

func (s *CameraSuite) TestCaptureFrameFailureStopsStream() {
	opener := &fakeOpener{streams: map[string]*fakeStream{
		"cam-front": {frameErr: errors.New("device lost")},
	}}
	enum := &fakeEnumerator{devices: []Device{{ID: "cam-front", Label: "Front Camera"}}}
	sess := NewSession(enum, opener)
	s.Require().NoError(sess.Start(s.ctx, FacingUser))

	_, err := sess.Capture(s.ctx)
	s.Require().Error(err)
	s.Equal(1, opener.streams["cam-front"].stopped)

	// A second capture finds no live stream.
	_, err = sess.Capture(s.ctx)
	s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
}

func (s *CameraSuite) TestCloseIsIdempotent() {
	sess, opener := s.twoCameraSession()
	s.Require().NoError(sess.Start(s.ctx, FacingUser))

	sess.Close()
	sess.Close()
	s.Equal(1, opener.streams["cam-front"].stopped)
}

func brightness(img image.Image, x, y int) uint32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return r + g + b
}
