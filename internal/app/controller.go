// Package app wires the landmark source, the posture pipeline and the sinks
// into a monitoring session.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/posturepilot/internal/pose"
	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/retry"
	"github.com/ayusman/posturepilot/internal/sink"
	"github.com/google/uuid"
)

// Alert text.
const (
	AlertTitle      = "PosturePilot Alert"
	alertBodySuffix = ". Please adjust your posture."
)

// Sinks are the collaborators that receive results. Nil sinks are skipped.
type Sinks struct {
	Persistence sink.Persistence
	Notifier    sink.Notifier
	Indicator   sink.Indicator
	// OnError is called from the dispatcher goroutine for every failed
	// sink call.
	OnError func(error)
}

// FrameStats counts frames by outcome.
type FrameStats struct {
	Received   uint64 `json:"received"`
	Dropped    uint64 `json:"dropped"`
	NoPerson   uint64 `json:"noPerson"`
	Skipped    uint64 `json:"skipped"`
	Discarded  uint64 `json:"discarded"`
	Calibrated uint64 `json:"calibrated"`
	Classified uint64 `json:"classified"`
	SinkDrops  uint64 `json:"sinkDrops"`
	SinkErrors uint64 `json:"sinkErrors"`
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State       posture.State          `json:"state"`
	Starting    bool                   `json:"starting"`
	SessionID   uuid.UUID              `json:"sessionId"`
	Baseline    *posture.Baseline      `json:"baseline,omitempty"`
	Calibration Progress               `json:"calibration"`
	LastStatus  *posture.Status        `json:"lastStatus,omitempty"`
	Percent     *posture.MetricPercent `json:"percent,omitempty"`
	// NextAnalysis is the time until the next classification in countdown
	// mode. It is 0 in continuous mode.
	NextAnalysis time.Duration `json:"nextAnalysis"`
	Frames       FrameStats    `json:"frames"`
}

type frameMsg struct {
	gen   uint64
	frame pose.Frame
}

// feed connects one Start to the frame path. Closing cancel releases a
// source blocked in delivery.
type feed struct {
	gen    uint64
	cancel chan struct{}
}

// Controller owns one monitoring session: the landmark source, the
// calibration episode, the state machine and the sink dispatcher.
//
// Commands are serialized with a mutex. Frames are processed one at a time
// by a single goroutine; a frame that arrives while another is queued is
// dropped unless Config.QueueFrames is set.
type Controller struct {
	cfg       Config
	src       pose.Source
	sinks     Sinks
	extractor posture.Extractor
	now       func() time.Time

	mu         sync.Mutex
	session    *posture.Session
	calibrator *posture.Calibrator
	smoother   *posture.Smoother
	baseline   *posture.Baseline
	lastStatus *posture.Status
	lastAlert  time.Time
	sessionID  uuid.UUID
	generation uint64
	feed       *feed
	starting   bool
	srcOpen    bool
	closed     bool
	stats      FrameStats

	// lastIndicator is the level most recently sent to the indicator.
	lastIndicator posture.Level

	received atomic.Uint64
	dropped  atomic.Uint64
	// handled counts received frames that were processed, found stale or
	// cancelled in delivery.
	handled atomic.Uint64

	mailbox  chan frameMsg
	quit     chan struct{}
	procDone chan struct{}

	dispatch *dispatcher
	subs     subscribers
}

// New creates a Controller in Setup and starts its frame goroutine.
// Call Close to release it.
func New(cfg Config, src pose.Source, sinks Sinks) *Controller {
	cfg = cfg.withDefaults()

	c := &Controller{
		cfg:        cfg,
		src:        src,
		sinks:      sinks,
		extractor:  posture.Extractor{MinVisibility: cfg.MinVisibility},
		now:        time.Now,
		session:    posture.NewSession(cfg.MonitorInterval),
		calibrator: posture.NewCalibrator(cfg.CalibrationFrames),
		smoother:   posture.NewSmoother(cfg.SmoothingAlpha),
		mailbox:    make(chan frameMsg, 1),
		quit:       make(chan struct{}),
		procDone:   make(chan struct{}),
	}
	c.dispatch = newDispatcher(cfg.DispatchQueueSize, cfg.SinkTimeout, sinks.OnError)

	go c.processFrames()
	return c
}

// SetClock replaces the time source. It must be called before Start.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.session.SetClock(now)
}

// Start initializes the source with bounded retries and begins calibration.
// On failure it returns an *InitializationError and the controller stays in
// Setup with the source released.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.starting {
		c.mu.Unlock()
		return ErrStartInProgress
	}
	if st := c.session.State(); st != posture.StateSetup {
		c.mu.Unlock()
		return fmt.Errorf("%w: start in state %s", posture.ErrInvalidTransition, st)
	}
	c.starting = true
	gen := c.generation
	c.mu.Unlock()

	attempts, err := retry.Do(ctx, c.cfg.Init, c.src.Init)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if err != nil {
		c.releaseSource()
		log.Printf("Failed to initialize landmark source: %v", err)
		return &InitializationError{Attempts: attempts, Err: err}
	}
	if c.closed || gen != c.generation {
		c.releaseSource()
		return ErrStartAborted
	}

	c.resetEpisode()
	c.sessionID = uuid.New()
	if err := c.session.Ready(); err != nil {
		c.releaseSource()
		return err
	}

	c.feed = &feed{gen: c.generation, cancel: make(chan struct{})}
	c.srcOpen = true
	if err := c.src.Start(c.deliver(c.feed)); err != nil {
		c.teardown()
		return &InitializationError{Attempts: attempts, Err: fmt.Errorf("start source: %w", err)}
	}

	have, need := c.calibrator.Progress()
	log.Printf("Session %s calibrating (%d/%d samples)", c.sessionID, have, need)
	c.publishState()
	c.publishProgress()
	c.setIndicator(posture.LevelUnknown)
	return nil
}

// Pause stops classification while keeping the camera running.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.session.Pause(); err != nil {
		return err
	}
	log.Println("Monitoring paused")
	c.publishState()
	c.setIndicator(posture.LevelUnknown)
	return nil
}

// Resume continues classification after Pause.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.session.Resume(); err != nil {
		return err
	}
	log.Println("Monitoring resumed")
	c.publishState()
	return nil
}

// Recalibrate releases the source, discards the baseline and returns to
// Setup. It is valid in every state and idempotent. Call Start to begin a
// new calibration episode.
func (c *Controller) Recalibrate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	prev := c.session.State()
	c.teardown()
	if prev != posture.StateSetup {
		log.Println("Recalibration requested; session reset")
		c.publishState()
	}
	c.setIndicator(posture.LevelUnknown)
	return nil
}

// Stop releases the source and returns to Setup.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	prev := c.session.State()
	c.teardown()
	if prev != posture.StateSetup {
		log.Println("Monitoring stopped")
		c.publishState()
		c.setIndicator(posture.LevelUnknown)
	}
	return nil
}

// FinishCalibration completes the running calibration episode early. It
// returns posture.ErrCalibrationIncomplete if too few samples exist.
func (c *Controller) FinishCalibration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if st := c.session.State(); st != posture.StateCalibrating {
		return fmt.Errorf("%w: finish calibration in state %s", posture.ErrInvalidTransition, st)
	}
	b, err := c.calibrator.Finish(c.cfg.MinCalibrationFrames, c.now())
	if err != nil {
		return err
	}
	c.completeCalibration(b)
	return nil
}

// HandleFrame processes f synchronously on the caller's goroutine. Sources
// normally deliver frames through the frame goroutine instead.
func (c *Controller) HandleFrame(f pose.Frame) {
	c.received.Add(1)
	defer c.handled.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.process(f)
}

// Drain waits until every frame received so far has left the frame path,
// then flushes the sink dispatcher.
func (c *Controller) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for c.handled.Load()+c.dropped.Load() < c.received.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.procDone:
			return ErrClosed
		case <-ticker.C:
		}
	}
	c.dispatch.flush()
	return nil
}

// Subscribe registers fn for controller events. Events are delivered in
// order on the dispatcher goroutine; fn must not block. The returned
// function unsubscribes.
func (c *Controller) Subscribe(fn func(Event)) func() {
	return c.subs.add(fn)
}

// Snapshot returns the current controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	have, need := c.calibrator.Progress()
	snap := Snapshot{
		State:        c.session.State(),
		Starting:     c.starting,
		SessionID:    c.sessionID,
		Calibration:  Progress{Have: have, Need: need},
		NextAnalysis: c.session.Remaining(),
		Frames:       c.frameStats(),
	}
	if c.baseline != nil {
		b := *c.baseline
		snap.Baseline = &b
	}
	if c.lastStatus != nil {
		s := *c.lastStatus
		p := s.Metrics.Percent(c.cfg.Limits)
		snap.LastStatus = &s
		snap.Percent = &p
	}
	return snap
}

// Limits returns the classification thresholds in use.
func (c *Controller) Limits() posture.Limits {
	return c.cfg.Limits
}

// Flush waits until every sink call and event queued so far has run.
func (c *Controller) Flush() {
	c.dispatch.flush()
}

// Close stops the session, releases the source and waits for queued sink
// calls to finish. The controller cannot be used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.teardown()
	c.closed = true
	c.mu.Unlock()

	close(c.quit)
	<-c.procDone
	c.dispatch.close()
	return nil
}

// deliver returns the callback handed to the source for one Start.
func (c *Controller) deliver(fd *feed) func(pose.Frame) {
	return func(f pose.Frame) {
		c.received.Add(1)
		msg := frameMsg{gen: fd.gen, frame: f}

		if c.cfg.QueueFrames {
			select {
			case c.mailbox <- msg:
			case <-fd.cancel:
				c.handled.Add(1)
			case <-c.quit:
				c.handled.Add(1)
			}
			return
		}

		select {
		case c.mailbox <- msg:
		default:
			c.dropped.Add(1)
		}
	}
}

func (c *Controller) processFrames() {
	defer close(c.procDone)
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.mailbox:
			c.mu.Lock()
			if !c.closed && msg.gen == c.generation {
				c.process(msg.frame)
			}
			c.mu.Unlock()
			c.handled.Add(1)
		}
	}
}

// process runs one frame through the pipeline. c.mu must be held.
func (c *Controller) process(f pose.Frame) {
	if !f.HasLandmarks() {
		c.stats.NoPerson++
		return
	}

	if st := c.session.State(); st != posture.StateCalibrating && st != posture.StateMonitoring {
		c.stats.Discarded++
		return
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	features, err := c.extractor.Extract(f.Landmarks, ts)
	if err != nil {
		c.stats.Skipped++
		return
	}

	// Route after extraction so a skipped frame does not consume a
	// countdown tick.
	switch c.session.Route() {
	case posture.RouteDiscard:
		c.stats.Discarded++
	case posture.RouteCalibrate:
		c.stats.Calibrated++
		b, done := c.calibrator.Add(features)
		c.publishProgress()
		if done {
			c.completeCalibration(b)
		}
	case posture.RouteClassify:
		c.classify(features)
	}
}

func (c *Controller) completeCalibration(b posture.Baseline) {
	c.baseline = &b
	c.smoother.Reset()
	if err := c.session.Calibrated(); err != nil {
		log.Printf("Failed to enter monitoring: %v", err)
		return
	}
	log.Printf("Calibration complete. Scale factor: %.4f (%d samples)", b.ScaleFactor, b.Samples)

	if p := c.sinks.Persistence; p != nil {
		c.dispatch.submit("save baseline", func(ctx context.Context) error {
			if err := p.SaveBaseline(ctx, b); err != nil {
				return fmt.Errorf("%w: save baseline: %w", ErrPersistence, err)
			}
			return nil
		})
	}

	baseline := b
	c.publish(Event{Type: EventStateChanged, Baseline: &baseline})
}

func (c *Controller) classify(f posture.Features) {
	f = c.smoother.Smooth(f)
	status, err := posture.Classify(f, c.baseline.ScaleFactor, c.cfg.Limits)
	if err != nil {
		c.stats.Skipped++
		return
	}
	c.stats.Classified++
	c.lastStatus = &status

	if p := c.sinks.Persistence; p != nil {
		rec := sink.LogRecord{
			ID:           uuid.New(),
			SessionID:    c.sessionID,
			Timestamp:    f.Timestamp,
			Status:       status.Level,
			Message:      status.Message,
			Measurements: status.Measurements,
		}
		c.dispatch.submit("append posture log", func(ctx context.Context) error {
			if err := p.AppendPostureLog(ctx, rec); err != nil {
				return fmt.Errorf("%w: append posture log: %w", ErrPersistence, err)
			}
			return nil
		})
	}

	if status.ShouldNotify() && c.sinks.Notifier != nil && c.alertDue(f.Timestamp) {
		n := sink.Notification{
			Title:    AlertTitle,
			Body:     status.Message + alertBodySuffix,
			Severity: status.Level,
		}
		notifier := c.sinks.Notifier
		c.dispatch.submit("notify", func(ctx context.Context) error {
			if err := notifier.Notify(ctx, n); err != nil {
				return fmt.Errorf("%w: notify: %w", ErrNotification, err)
			}
			return nil
		})
	}

	if status.Level != c.lastIndicator {
		c.setIndicator(status.Level)
	}

	pct := status.Metrics.Percent(c.cfg.Limits)
	c.publish(Event{Type: EventStatusUpdated, Status: &status, Percent: &pct})
}

// alertDue applies the notification cooldown.
func (c *Controller) alertDue(at time.Time) bool {
	if c.cfg.NotifyCooldown > 0 && !c.lastAlert.IsZero() && at.Sub(c.lastAlert) < c.cfg.NotifyCooldown {
		return false
	}
	c.lastAlert = at
	return true
}

// setIndicator sends level to the indicator unconditionally. Classified
// frames only call it when the level changes.
func (c *Controller) setIndicator(level posture.Level) {
	c.lastIndicator = level
	ind := c.sinks.Indicator
	if ind == nil {
		return
	}
	c.dispatch.submit("set indicator", func(context.Context) error {
		if err := ind.SetIndicator(level); err != nil {
			return fmt.Errorf("%w: set indicator: %w", ErrNotification, err)
		}
		return nil
	})
}

// teardown stops frame delivery, releases the source and resets the
// session to Setup. c.mu must be held.
func (c *Controller) teardown() {
	c.generation++
	if c.feed != nil {
		close(c.feed.cancel)
		c.feed = nil
	}
	if c.srcOpen {
		if err := c.src.Stop(); err != nil {
			log.Printf("Error stopping landmark source: %v", err)
		}
		c.releaseSource()
	}
	c.session.Recalibrate()
	c.resetEpisode()
	c.sessionID = uuid.Nil
}

func (c *Controller) releaseSource() {
	if err := c.src.Close(); err != nil {
		log.Printf("Error closing landmark source: %v", err)
	}
	c.srcOpen = false
}

func (c *Controller) resetEpisode() {
	c.calibrator.Reset()
	c.smoother.Reset()
	c.baseline = nil
	c.lastStatus = nil
	c.lastAlert = time.Time{}
	c.lastIndicator = ""
}

func (c *Controller) frameStats() FrameStats {
	s := c.stats
	s.Received = c.received.Load()
	s.Dropped = c.dropped.Load()
	s.SinkDrops = c.dispatch.dropped.Load()
	s.SinkErrors = c.dispatch.failed.Load()
	return s
}

func (c *Controller) publishState() {
	c.publish(Event{Type: EventStateChanged})
}

func (c *Controller) publishProgress() {
	have, need := c.calibrator.Progress()
	c.publish(Event{Type: EventCalibrationProgress, Progress: &Progress{Have: have, Need: need}})
}

// publish stamps e with the current state and queues it for subscribers.
func (c *Controller) publish(e Event) {
	e.State = c.session.State()
	e.Time = c.now()

	fns := c.subs.snapshot()
	if len(fns) == 0 {
		return
	}
	c.dispatch.submit(string(e.Type), func(context.Context) error {
		for _, fn := range fns {
			fn(e)
		}
		return nil
	})
}
