package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/landmarks"
	"github.com/ayusman/mudra/internal/session"
)

// LandmarkSource paces a camera at its frame rate and runs each frame
// through a landmark detector. It implements session.FrameSource.
type LandmarkSource struct {
	camera   Camera
	detector detector.Detector
	gate     *MotionGate
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	ticker *time.Ticker
	last   []landmarks.Hand
}

// NewLandmarkSource combines a camera and a detector. log may be nil.
func NewLandmarkSource(camera Camera, det detector.Detector, config Config, log *zap.Logger) *LandmarkSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &LandmarkSource{
		camera:   camera,
		detector: det,
		gate:     NewMotionGate(config.MotionThreshold, config.MaxStillFrames),
		log:      log.Named("capture"),
		now:      time.Now,
	}
}

// Open opens the camera and starts frame pacing.
func (s *LandmarkSource) Open() error {
	if err := s.camera.Open(); err != nil {
		return err
	}

	fps := s.camera.FPS()
	if fps <= 0 {
		fps = DefaultConfig().FPS
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = time.NewTicker(time.Second / time.Duration(fps))
	s.last = nil
	s.gate.Reset()

	s.log.Info("camera opened", zap.Int("fps", fps))
	return nil
}

// Next waits for the next tick, reads a frame and detects hands on it.
func (s *LandmarkSource) Next(ctx context.Context) (session.Frame, error) {
	s.mu.Lock()
	ticker := s.ticker
	s.mu.Unlock()
	if ticker == nil {
		return session.Frame{}, ErrCameraNotOpen
	}

	select {
	case <-ctx.Done():
		return session.Frame{}, ctx.Err()
	case <-ticker.C:
	}

	mat, err := s.camera.ReadFrame()
	if err != nil {
		return session.Frame{}, err
	}
	defer mat.Close()
	ts := s.now()

	hands, err := s.detect(mat)
	if err != nil {
		return session.Frame{}, fmt.Errorf("detect landmarks: %w", err)
	}
	return session.Frame{Hands: hands, Timestamp: ts}, nil
}

func (s *LandmarkSource) detect(mat *gocv.Mat) ([]landmarks.Hand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, pct := s.gate.Changed(mat)
	if !changed && s.last != nil {
		s.log.Debug("still frame, reusing hands", zap.Float64("changed_pct", pct))
		return s.last, nil
	}

	hands, err := s.detector.Detect(mat)
	if err != nil {
		s.last = nil
		return nil, err
	}
	s.last = hands
	return hands, nil
}

// Close stops pacing and closes the camera. The detector stays open.
func (s *LandmarkSource) Close() error {
	s.mu.Lock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.last = nil
	s.gate.Reset()
	s.mu.Unlock()

	s.log.Info("camera closed")
	return s.camera.Close()
}
