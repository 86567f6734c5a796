package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/mpu_datalogger/internal/console"
	"github.com/relabs-tech/mpu_datalogger/internal/control"
	"github.com/relabs-tech/mpu_datalogger/internal/fault"
	"github.com/relabs-tech/mpu_datalogger/internal/imu"
	"github.com/relabs-tech/mpu_datalogger/internal/status"
	"github.com/relabs-tech/mpu_datalogger/internal/storage"
)

// memCard is an in-memory card. failWrite makes the n-th write on any
// handle fail outright (1-based, header included).
type memCard struct {
	files map[string]*bytes.Buffer

	mountErr   error
	unmountErr error
	failWrite  int
	panicList  bool
	onRead     func()

	writes int
	closed int
}

func newMemCard() *memCard { return &memCard{files: map[string]*bytes.Buffer{}} }

func (c *memCard) Mount() error   { return c.mountErr }
func (c *memCard) Unmount() error { return c.unmountErr }
func (c *memCard) Format() error  { c.files = map[string]*bytes.Buffer{}; return nil }

func (c *memCard) List(w io.Writer) error {
	if c.panicList {
		panic("driver crashed")
	}
	for name := range c.files {
		io.WriteString(w, name+"\n")
	}
	return nil
}

func (c *memCard) FreeSpace() (uint64, error) { return 7680, nil }

func (c *memCard) ReadFile(name string, w io.Writer) error {
	if c.onRead != nil {
		c.onRead()
	}
	buf, ok := c.files[name]
	if !ok {
		return fault.New(fault.ReadFailed, "read "+name, errors.New("no such file"))
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (c *memCard) Create(name string) (storage.Handle, error) {
	buf := &bytes.Buffer{}
	c.files[name] = buf
	return &memHandle{c: c, buf: buf}, nil
}

type memHandle struct {
	c   *memCard
	buf *bytes.Buffer
}

func (h *memHandle) Write(p []byte) (int, error) {
	h.c.writes++
	if h.c.writes == h.c.failWrite {
		return 0, fault.New(fault.WriteRejected, "write", errors.New("i/o error"))
	}
	return h.buf.Write(p)
}

func (h *memHandle) Close() error { h.c.closed++; return nil }

type fakeSensor struct {
	reads  int
	failAt int
}

func (s *fakeSensor) ReadRaw() (imu.Raw, error) {
	s.reads++
	if s.reads == s.failAt {
		return imu.Raw{}, errors.New("nack")
	}
	return imu.Raw{
		Accel: [3]int16{int16(s.reads), -2, 16384},
		Gyro:  [3]int16{4, 5, -6},
		Temp:  340,
	}, nil
}

type recRenderer struct{ frames []status.Frame }

func (r *recRenderer) Render(f status.Frame) error { r.frames = append(r.frames, f); return nil }

func (r *recRenderer) last() []string {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1].Lines
}

type recIndicators struct{ states []status.Lights }

func (i *recIndicators) Set(l status.Lights) error { i.states = append(i.states, l); return nil }

func (i *recIndicators) last() status.Lights { return i.states[len(i.states)-1] }

type recSamples struct{ n int }

func (s *recSamples) PublishSample(imu.Sample) { s.n++ }

type harness struct {
	ctrl   *Controller
	card   *memCard
	sensor *fakeSensor
	r      *recRenderer
	ind    *recIndicators
	guard  *control.Guard
	arb    *control.Arbiter
	stream *console.Stream
	out    *bytes.Buffer
}

func newHarness(strict bool) *harness {
	h := &harness{
		card:   newMemCard(),
		sensor: &fakeSensor{},
		r:      &recRenderer{},
		ind:    &recIndicators{},
		guard:  &control.Guard{},
		stream: console.NewStream(),
		out:    &bytes.Buffer{},
	}
	h.arb = control.NewArbiter(h.guard, 0)
	pres := status.NewPresenter(h.r, h.ind)
	h.ctrl = NewController(h.card, h.sensor, pres, h.arb, h.guard, h.stream, Options{
		StrictMountState: strict,
		Console:          h.out,
	})
	h.ctrl.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func TestCaptureWritesHeaderAndAllSamples(t *testing.T) {
	h := newHarness(false)
	sink := &recSamples{}
	h.ctrl.AddSampleSink(sink)

	h.ctrl.Dispatch(context.Background(), control.Capture)

	lines := strings.Split(strings.TrimSuffix(h.card.files["mpu_data1.csv"].String(), "\n"), "\n")
	if len(lines) != CaptureSamples+1 {
		t.Fatalf("got %d lines, want %d", len(lines), CaptureSamples+1)
	}
	if lines[0]+"\n" != imu.CSVHeader {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "1,1,-2,16384,4,5,-6,37.53" {
		t.Fatalf("first record = %q", lines[1])
	}
	last := strings.Split(lines[CaptureSamples], ",")
	if last[0] != "128" {
		t.Fatalf("last index = %q", last[0])
	}
	if dot := strings.IndexByte(last[7], '.'); dot < 0 || len(last[7])-dot-1 != 2 {
		t.Fatalf("temperature %q does not have 2 decimals", last[7])
	}

	res := h.ctrl.LastCapture()
	if res.Bytes != h.card.files["mpu_data1.csv"].Len() || res.Samples != CaptureSamples {
		t.Fatalf("result = %+v", res)
	}
	if res.LastRecord != len(lines[CaptureSamples])+1 {
		t.Fatalf("last record = %d bytes, line %q", res.LastRecord, lines[CaptureSamples])
	}
	want := []string{"Data saved!", "Bytes written:", strconv.Itoa(res.LastRecord), "128 samples"}
	if got := h.r.last(); !reflect.DeepEqual(got, want) {
		t.Fatalf("summary = %q, want %q", got, want)
	}
	if h.ind.last() != (status.Lights{OK: true}) {
		t.Fatalf("lights = %+v", h.ind.last())
	}
	if h.card.closed != 1 || h.guard.Busy() {
		t.Fatalf("closed=%d busy=%v", h.card.closed, h.guard.Busy())
	}
	if sink.n != CaptureSamples {
		t.Fatalf("published %d samples", sink.n)
	}
}

func TestCaptureShowsProgressFrame(t *testing.T) {
	h := newHarness(false)
	h.ctrl.Dispatch(context.Background(), control.Capture)

	want := []string{"Capturing data", "Do not disconnect", "Please wait..."}
	if !reflect.DeepEqual(h.r.frames[0].Lines, want) {
		t.Fatalf("progress frame = %q", h.r.frames[0].Lines)
	}
	if h.ind.states[0] != (status.Lights{Error: true, OK: true}) {
		t.Fatalf("progress lights = %+v", h.ind.states[0])
	}
}

func TestCaptureAbortsOnWriteFailure(t *testing.T) {
	h := newHarness(false)
	h.card.failWrite = 6 // header + 4 records succeed, record 5 fails

	h.ctrl.Dispatch(context.Background(), control.Capture)

	lines := strings.Split(strings.TrimSuffix(h.card.files["mpu_data1.csv"].String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want header + 4", len(lines))
	}
	if h.sensor.reads != 5 {
		t.Fatalf("sensor read %d times after abort", h.sensor.reads)
	}
	if h.card.closed != 1 {
		t.Fatalf("handle closed %d times", h.card.closed)
	}
	if got := h.r.last(); !reflect.DeepEqual(got, []string{labelCapture, "Write rejected", "Operation failed"}) {
		t.Fatalf("error frame = %q", got)
	}
	if h.ind.last() != (status.Lights{Error: true}) {
		t.Fatalf("lights = %+v", h.ind.last())
	}
	if h.ctrl.LastFault() != fault.WriteRejected || h.guard.Busy() {
		t.Fatalf("fault=%q busy=%v", h.ctrl.LastFault(), h.guard.Busy())
	}
	if h.ctrl.LastCapture().Samples != 4 {
		t.Fatalf("samples = %d", h.ctrl.LastCapture().Samples)
	}
}

func TestCaptureAbortsOnSensorFailure(t *testing.T) {
	h := newHarness(false)
	h.sensor.failAt = 3

	h.ctrl.Dispatch(context.Background(), control.Capture)

	if h.ctrl.LastFault() != fault.BusFailure {
		t.Fatalf("fault = %q", h.ctrl.LastFault())
	}
	if h.card.closed != 1 || h.ctrl.LastCapture().Samples != 2 {
		t.Fatalf("closed=%d result=%+v", h.card.closed, h.ctrl.LastCapture())
	}
}

// shortCard writes only half of every third record.
type shortCard struct{ *memCard }

func (c shortCard) Create(name string) (storage.Handle, error) {
	h, _ := c.memCard.Create(name)
	return &shortHandle{h: h}, nil
}

type shortHandle struct {
	h storage.Handle
	n int
}

func (s *shortHandle) Write(p []byte) (int, error) {
	s.n++
	if s.n%3 == 0 {
		return s.h.Write(p[:len(p)/2])
	}
	return s.h.Write(p)
}

func (s *shortHandle) Close() error { return s.h.Close() }

func TestCaptureContinuesAfterShortWrites(t *testing.T) {
	res, err := Capture(context.Background(), shortCard{newMemCard()}, "log.csv", &fakeSensor{}, 9, nil, nil)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Samples != 9 || res.ShortWrites != 3 {
		t.Fatalf("result = %+v", res)
	}
}

func TestCapturePauseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pause := func(ctx context.Context) error { cancel(); return ctx.Err() }
	card := newMemCard()

	res, err := Capture(ctx, card, "log.csv", &fakeSensor{}, CaptureSamples, pause, nil)
	if !errors.Is(err, context.Canceled) || res.Samples != 1 || card.closed != 1 {
		t.Fatalf("res=%+v err=%v closed=%d", res, err, card.closed)
	}
}

func TestMountStateCompatFlipsRegardless(t *testing.T) {
	h := newHarness(false)
	h.card.mountErr = fault.New(fault.MountFailed, "mount", errors.New("no card"))
	h.card.unmountErr = fault.New(fault.UnmountFailed, "umount", errors.New("busy"))

	h.ctrl.Dispatch(context.Background(), control.Mount)
	if !h.ctrl.Mounted() {
		t.Fatal("mounted must be true after any mount attempt")
	}
	h.ctrl.Dispatch(context.Background(), control.Unmount)
	if h.ctrl.Mounted() {
		t.Fatal("mounted must be false after any unmount attempt")
	}
}

func TestMountStateStrictFollowsOutcome(t *testing.T) {
	h := newHarness(true)
	h.card.mountErr = fault.New(fault.MountFailed, "mount", errors.New("no card"))

	h.ctrl.Dispatch(context.Background(), control.Mount)
	if h.ctrl.Mounted() {
		t.Fatal("failed mount flipped state in strict mode")
	}
	h.card.mountErr = nil
	h.ctrl.Dispatch(context.Background(), control.Mount)
	if !h.ctrl.Mounted() {
		t.Fatal("successful mount did not set state")
	}
	if got := h.r.last(); !reflect.DeepEqual(got, []string{labelMount, "Completed!"}) {
		t.Fatalf("frame = %q", got)
	}
}

func TestButtonBFollowsMountState(t *testing.T) {
	h := newHarness(false)
	now := time.Now()

	h.arb.Edge(control.ButtonB, now)
	if cmd := h.ctrl.Step(context.Background()); cmd != control.Mount {
		t.Fatalf("first B = %s", cmd)
	}
	h.arb.Edge(control.ButtonB, now.Add(time.Second))
	if cmd := h.ctrl.Step(context.Background()); cmd != control.Unmount {
		t.Fatalf("second B = %s", cmd)
	}
}

func TestButtonWhileBusyIsDropped(t *testing.T) {
	h := newHarness(false)
	now := time.Now()

	h.guard.Acquire()
	if h.arb.Edge(control.ButtonA, now) {
		t.Fatal("edge accepted while busy")
	}
	if cmd := h.ctrl.Step(context.Background()); cmd != control.None {
		t.Fatalf("Step = %s while busy", cmd)
	}
	h.guard.Release()

	if !h.arb.Edge(control.ButtonA, now.Add(10*time.Millisecond)) {
		t.Fatal("edge rejected after release")
	}
	if cmd := h.ctrl.Step(context.Background()); cmd != control.Capture {
		t.Fatalf("Step = %s, want capture", cmd)
	}
	if h.card.files["mpu_data1.csv"] == nil {
		t.Fatal("capture did not run")
	}
}

func TestGuardedCommandRejectedWhileBusy(t *testing.T) {
	h := newHarness(false)
	h.guard.Acquire()
	h.ctrl.Dispatch(context.Background(), control.Format)
	if len(h.r.frames) != 0 {
		t.Fatalf("rendered %d frames while busy", len(h.r.frames))
	}
	if !h.guard.Busy() {
		t.Fatal("rejected command released a guard it did not hold")
	}
}

func TestUnmappedStreamCharIsNoOp(t *testing.T) {
	h := newHarness(false)
	h.stream.Feed('z')
	if cmd := h.ctrl.Step(context.Background()); cmd != control.None {
		t.Fatalf("Step = %s", cmd)
	}
	if len(h.r.frames) != 0 || h.out.Len() != 0 {
		t.Fatalf("'z' produced output: %d frames, %q", len(h.r.frames), h.out.String())
	}
}

func TestStreamOverridesButton(t *testing.T) {
	h := newHarness(false)
	h.arb.Edge(control.ButtonA, time.Now())
	h.stream.Feed('e')
	if cmd := h.ctrl.Step(context.Background()); cmd != control.FreeSpace {
		t.Fatalf("Step = %s, want free-space", cmd)
	}
	if got := h.r.last(); !reflect.DeepEqual(got, []string{"Free space", "7680 KiB", "available"}) {
		t.Fatalf("frame = %q", got)
	}
}

func TestLatestStreamCharWins(t *testing.T) {
	h := newHarness(false)
	h.stream.Feed('f')
	h.stream.Feed('e')

	if cmd := h.ctrl.Step(context.Background()); cmd != control.FreeSpace {
		t.Fatalf("Step = %s, want free-space", cmd)
	}
	if h.sensor.reads != 0 || len(h.card.files) != 0 {
		t.Fatalf("replaced capture ran: reads=%d files=%d", h.sensor.reads, len(h.card.files))
	}
	if cmd := h.ctrl.Step(context.Background()); cmd != control.None {
		t.Fatalf("second Step = %s, want none", cmd)
	}
}

func TestPanicIsUnexpectedAndReleasesGuard(t *testing.T) {
	h := newHarness(false)
	h.card.mountErr = fault.New(fault.MountFailed, "mount", errors.New("no card"))
	h.ctrl.Dispatch(context.Background(), control.Mount)
	if h.ctrl.LastFault() != fault.MountFailed {
		t.Fatalf("fault = %q", h.ctrl.LastFault())
	}

	h.card.panicList = true
	h.ctrl.Dispatch(context.Background(), control.List)

	if h.guard.Busy() {
		t.Fatal("guard held after panic")
	}
	if h.ctrl.LastFault() != fault.None {
		t.Fatalf("stale fault %q after unexpected error", h.ctrl.LastFault())
	}
	if got := h.r.last(); !reflect.DeepEqual(got, []string{labelList, "Error", "Unexpected error"}) {
		t.Fatalf("frame = %q", got)
	}
	if !strings.HasSuffix(h.out.String(), console.Prompt) {
		t.Fatal("prompt not printed after failure")
	}
}

func TestReadLogDoesNotHoldGuard(t *testing.T) {
	h := newHarness(false)
	h.ctrl.Dispatch(context.Background(), control.Capture)

	busy := true
	h.card.onRead = func() { busy = h.guard.Busy() }
	h.out.Reset()
	frames, lights := len(h.r.frames), len(h.ind.states)
	h.ctrl.Dispatch(context.Background(), control.ReadLog)

	if busy {
		t.Fatal("guard held while reading the log")
	}
	if got := h.r.frames[frames:]; len(got) != 1 || !reflect.DeepEqual(got[0].Lines, []string{labelReadLog, "Completed!"}) {
		t.Fatalf("read-log frames = %+v", got)
	}
	if h.ind.states[lights] != (status.Lights{Error: true, OK: true}) || h.ind.last() != (status.Lights{OK: true}) {
		t.Fatalf("lights = %+v", h.ind.states[lights:])
	}
	if !strings.Contains(h.out.String(), strings.TrimSuffix(imu.CSVHeader, "\n")) {
		t.Fatalf("log not printed: %q", h.out.String())
	}
}

func TestHelpReleasesGuardAndShowsWaiting(t *testing.T) {
	h := newHarness(false)
	h.guard.Acquire()
	h.ctrl.Dispatch(context.Background(), control.Help)

	if h.guard.Busy() {
		t.Fatal("help left the guard held")
	}
	if got := h.r.last(); !reflect.DeepEqual(got, []string{"Waiting for", "command..."}) {
		t.Fatalf("frame = %q", got)
	}
	if h.ind.last() != (status.Lights{OK: true}) {
		t.Fatalf("lights = %+v", h.ind.last())
	}
	if !strings.Contains(h.out.String(), "Press 'f'") {
		t.Fatal("help text not printed")
	}
}

type fakeResetter struct{ err error }

func (r fakeResetter) Reset() error { return r.err }

func TestBootEndsReady(t *testing.T) {
	h := newHarness(false)
	h.ctrl.Boot(fakeResetter{})
	if h.ind.states[0] != (status.Lights{Error: true, OK: true}) || h.ind.last() != (status.Lights{OK: true}) {
		t.Fatalf("lights = %+v", h.ind.states)
	}
	if got := h.r.last(); !reflect.DeepEqual(got, waitingFrame) {
		t.Fatalf("frame = %q", got)
	}
}

func TestBootResetFailureKeepsLoopRunning(t *testing.T) {
	h := newHarness(false)
	h.ctrl.Boot(fakeResetter{fault.New(fault.BusFailure, "reset", errors.New("nack"))})

	if h.ctrl.LastFault() != fault.BusFailure || h.ind.last() != (status.Lights{Error: true}) {
		t.Fatalf("fault=%q lights=%+v", h.ctrl.LastFault(), h.ind.last())
	}
	if got := h.r.last(); !reflect.DeepEqual(got, []string{labelBoot, "Bus failure", "Operation failed"}) {
		t.Fatalf("frame = %q", got)
	}

	h.stream.Feed('a')
	if cmd := h.ctrl.Step(context.Background()); cmd != control.Mount {
		t.Fatalf("Step after failed boot = %s, want mount", cmd)
	}
	if !h.ctrl.Mounted() || h.ctrl.LastFault() != fault.None {
		t.Fatalf("mounted=%v fault=%q", h.ctrl.Mounted(), h.ctrl.LastFault())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(false)
	h.ctrl.tick = time.Millisecond
	h.stream.Feed('a')

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.ctrl.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !h.ctrl.Mounted() {
		select {
		case <-deadline:
			t.Fatal("mount never dispatched")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}
