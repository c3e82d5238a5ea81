package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/vigil/internal/capture"
	"github.com/ayusman/vigil/internal/classifier"
	"github.com/ayusman/vigil/internal/detector"
)

type fakeAlarm struct {
	mu      sync.Mutex
	playing bool
	starts  int
	stops   int
	// failStops makes that many Stop calls fail, leaving the alarm playing.
	failStops int
}

func (f *fakeAlarm) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeAlarm) PlayLooping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.playing = true
	return nil
}

func (f *fakeAlarm) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.failStops > 0 {
		f.failStops--
		return errors.New("player stuck")
	}
	f.playing = false
	return nil
}

// fakeDisplay asks to quit after quitAfter frames (0 means never). onShow
// runs after each frame with the number shown so far.
type fakeDisplay struct {
	shown     int
	quitAfter int
	closed    bool
	onShow    func(shown int)
}

func (d *fakeDisplay) Show(frame *gocv.Mat) bool {
	d.shown++
	if d.onShow != nil {
		d.onShow(d.shown)
	}
	return d.quitAfter == 0 || d.shown < d.quitAfter
}

func (d *fakeDisplay) Close() error {
	d.closed = true
	return nil
}

// blankFrames returns n black frames at the fixture size. The caller closes them.
func blankFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := gocv.NewMatWithSize(detector.FixtureHeight, detector.FixtureWidth, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

func face(f detector.FaceLandmarks) *detector.FaceLandmarks {
	return &f
}

type harness struct {
	camera   *capture.MockCamera
	detector *detector.MockDetector
	alarm    *fakeAlarm
	display  *fakeDisplay
	results  []classifier.Result
	monitor  *Monitor
	// onResult runs after each result is recorded.
	onResult func(n int)
}

func newHarness(t *testing.T, frames int) *harness {
	t.Helper()
	h := &harness{
		camera:   capture.NewMockCamera(blankFrames(t, frames), false),
		detector: detector.NewMockDetector(),
		alarm:    &fakeAlarm{},
		display:  &fakeDisplay{},
	}

	m, err := New(Config{
		Camera:     h.camera,
		Detector:   h.detector,
		Classifier: classifier.DefaultConfig(),
		Alarm:      h.alarm,
		Display:    h.display,
		OnResult: func(r classifier.Result) {
			h.results = append(h.results, r)
			if h.onResult != nil {
				h.onResult(len(h.results))
			}
		},
	})
	require.NoError(t, err)
	h.monitor = m
	return h
}

func statuses(results []classifier.Result) []classifier.Status {
	out := make([]classifier.Status, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Detector: detector.NewMockDetector()})
	assert.Error(t, err)

	_, err = New(Config{Camera: capture.NewMockCamera(nil, false)})
	assert.Error(t, err)
}

func TestRun_ClosedEyesRaisesDrowsyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 25)
	closed := detector.ClosedEyesLandmarks()
	h.detector.SetFace(&closed)

	require.NoError(t, h.monitor.Run(context.Background()))

	require.Len(t, h.results, 25)
	for i, r := range h.results {
		wantAlert := i >= classifier.DefaultEARFrames-1
		assert.Equal(t, wantAlert, r.Alert, "frame %d", i)
		assert.Equal(t, i+1, r.ClosedFrames, "frame %d", i)
	}
	assert.Equal(t, classifier.StatusDrowsy, h.results[19].Status)
	assert.Equal(t, classifier.StatusOK, h.results[18].Status)

	// One start for the whole episode, one stop at shutdown.
	assert.Equal(t, 1, h.alarm.starts)
	assert.Equal(t, 1, h.alarm.stops)
	assert.False(t, h.alarm.IsPlaying())

	assert.True(t, h.detector.Closed())
	assert.False(t, h.camera.IsOpen())
	assert.True(t, h.display.closed)
	assert.Equal(t, 25, h.display.shown)

	stats := h.monitor.Stats()
	assert.Equal(t, Stats{Frames: 25, MissingFrames: 0, AlertFrames: 6}, stats)
}

func TestRun_StatusSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	alertFace := detector.AlertFaceLandmarks()
	yawn := detector.YawningLandmarks()
	tilt := detector.TiltedLandmarks(25)

	h := newHarness(t, 5)
	h.detector.SetSequence([]*detector.FaceLandmarks{&alertFace, &yawn, nil, &tilt, &alertFace})

	require.NoError(t, h.monitor.Run(context.Background()))

	want := []classifier.Status{
		classifier.StatusOK,
		classifier.StatusYawning,
		classifier.StatusOK,
		classifier.StatusHeadTilt,
		classifier.StatusOK,
	}
	if diff := cmp.Diff(want, statuses(h.results)); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, h.results[2].Features, "missing face carries no features")
	// Yawn starts, the no-face frame stops, the tilt starts again, then stops.
	assert.Equal(t, 2, h.alarm.starts)
	assert.Equal(t, 2, h.alarm.stops)
	assert.Equal(t, 1, h.monitor.Stats().MissingFrames)
}

func TestRun_NoFaceFreezesCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	closed := detector.ClosedEyesLandmarks()
	seq := make([]*detector.FaceLandmarks, 0, 30)
	for i := 0; i < 10; i++ {
		seq = append(seq, &closed)
	}
	for i := 0; i < 10; i++ {
		seq = append(seq, nil)
	}
	for i := 0; i < 10; i++ {
		seq = append(seq, &closed)
	}

	h := newHarness(t, len(seq))
	h.detector.SetSequence(seq)

	require.NoError(t, h.monitor.Run(context.Background()))

	// Counter holds at 10 through the gap and reaches 20 on frame 29.
	assert.Equal(t, 10, h.results[19].ClosedFrames)
	assert.False(t, h.results[28].Alert)
	assert.True(t, h.results[29].Alert)
	assert.Equal(t, classifier.StatusDrowsy, h.results[29].Status)
}

func TestRun_DetectorErrorsAreMissingFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 4)
	h.detector.SetError(errors.New("service crashed"))

	require.NoError(t, h.monitor.Run(context.Background()))

	require.Len(t, h.results, 4)
	for _, r := range h.results {
		assert.Equal(t, classifier.StatusOK, r.Status)
		assert.False(t, r.Alert)
	}
	assert.Equal(t, 4, h.monitor.Stats().MissingFrames)
	assert.Zero(t, h.alarm.starts)
}

func TestRun_DegenerateLandmarksAreMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	collapsed := detector.FaceLandmarks{Points: make([]detector.Point3D, detector.NumRefinedLandmarks)}
	h := newHarness(t, 2)
	h.detector.SetFace(&collapsed)

	require.NoError(t, h.monitor.Run(context.Background()))

	require.Len(t, h.results, 2)
	assert.Nil(t, h.results[0].Features)
	assert.False(t, h.results[1].Alert)
}

func TestRun_DisplayQuit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 10)
	h.display.quitAfter = 3
	h.detector.SetFace(face(detector.YawningLandmarks()))

	require.NoError(t, h.monitor.Run(context.Background()))

	assert.Equal(t, 3, h.camera.Reads())
	assert.Len(t, h.results, 3)
	assert.False(t, h.alarm.IsPlaying(), "alarm must be silenced on quit")
	assert.True(t, h.display.closed)
}

func TestRun_ContextCancelled(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.monitor.Run(ctx))
	assert.Zero(t, h.camera.Reads())
	assert.True(t, h.detector.Closed())
	assert.False(t, h.camera.IsOpen())
}

func TestRun_Disabled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 5)
	h.detector.SetFace(face(detector.YawningLandmarks()))
	h.monitor.SetEnabled(false)
	assert.False(t, h.monitor.IsEnabled())

	require.NoError(t, h.monitor.Run(context.Background()))

	assert.Zero(t, h.detector.Calls())
	assert.Empty(t, h.results)
	assert.Zero(t, h.alarm.starts)
	assert.Equal(t, 5, h.display.shown)
}

// playingPerFrame records whether the alarm was sounding as each frame was shown.
func (h *harness) playingPerFrame() *[]bool {
	var playing []bool
	prev := h.display.onShow
	h.display.onShow = func(shown int) {
		playing = append(playing, h.alarm.IsPlaying())
		if prev != nil {
			prev(shown)
		}
	}
	return &playing
}

func TestRun_DisableStopsPlayingAlarm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 5)
	h.detector.SetFace(face(detector.YawningLandmarks()))
	h.onResult = func(n int) {
		if n == 1 {
			h.monitor.SetEnabled(false)
		}
	}
	playing := h.playingPerFrame()

	require.NoError(t, h.monitor.Run(context.Background()))

	require.Len(t, h.results, 1)
	assert.True(t, h.results[0].Alert)
	assert.Equal(t, 1, h.alarm.starts)
	assert.Equal(t, 1, h.alarm.stops)
	assert.Equal(t, []bool{true, false, false, false, false}, *playing)
}

func TestRun_DisableRetriesFailedStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 6)
	h.alarm.failStops = 1
	h.detector.SetFace(face(detector.YawningLandmarks()))
	h.onResult = func(n int) {
		if n == 1 {
			h.monitor.SetEnabled(false)
		}
	}
	playing := h.playingPerFrame()

	require.NoError(t, h.monitor.Run(context.Background()))

	// The first stop fails on frame 2; the next paused frame retries it.
	assert.Equal(t, []bool{true, true, false, false, false, false}, *playing)
	assert.Equal(t, 2, h.alarm.stops)
	assert.False(t, h.alarm.IsPlaying())
}

func TestRun_ReenableResetsClosedCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	h := newHarness(t, 8)
	h.detector.SetFace(face(detector.ClosedEyesLandmarks()))
	h.onResult = func(n int) {
		if n == 3 {
			h.monitor.SetEnabled(false)
		}
	}
	h.display.onShow = func(shown int) {
		if shown == 5 {
			h.monitor.SetEnabled(true)
		}
	}

	require.NoError(t, h.monitor.Run(context.Background()))

	got := make([]int, len(h.results))
	for i, r := range h.results {
		got[i] = r.ClosedFrames
	}
	if diff := cmp.Diff([]int{1, 2, 3, 1, 2, 3}, got); diff != "" {
		t.Errorf("closed frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, h.detector.Calls())
	assert.Equal(t, 8, h.display.shown)
}

func TestRun_PublishesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	buf := capture.NewFrameBuffer()
	cam := capture.NewMockCamera(blankFrames(t, 3), false)
	m, err := New(Config{
		Camera:     cam,
		Detector:   detector.NewMockDetector(),
		Classifier: classifier.DefaultConfig(),
		Frames:     buf,
	})
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	data, version := buf.Latest()
	assert.Equal(t, uint64(3), version)
	assert.NotEmpty(t, data)
}

func TestProcessFrame_LastResult(t *testing.T) {
	h := newHarness(t, 0)
	h.detector.SetFace(face(detector.TiltedLandmarks(-30)))

	frame := gocv.NewMatWithSize(detector.FixtureHeight, detector.FixtureWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()

	res := h.monitor.ProcessFrame(&frame)
	assert.Equal(t, classifier.StatusHeadTilt, res.Status)
	assert.True(t, res.Alert)
	assert.Equal(t, res, h.monitor.Last())
	assert.True(t, h.alarm.IsPlaying())
	assert.NotEmpty(t, h.monitor.SessionID())
}
