// Package daemon implements C6: the recording state machine and main
// loop that orchestrates capture, segmentation, transcription, and
// output.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tinkertrain/sv/internal/audio"
	"github.com/tinkertrain/sv/internal/config"
	"github.com/tinkertrain/sv/internal/control"
	"github.com/tinkertrain/sv/internal/daemonerr"
	"github.com/tinkertrain/sv/internal/inject"
	"github.com/tinkertrain/sv/internal/transcribe"
	"github.com/tinkertrain/sv/internal/vad"
)

const (
	drainTick      = 100 * time.Millisecond
	ringCapacitySec = 30 // seconds of headroom between drain ticks
)

// State is the daemon's recording state, modeled as a sum type rather
// than boolean flags so the daemon is always in exactly one of Idle,
// Recording, or Stopping (spec §9). The recording buffer is a separate
// Daemon field; stopRecording clears it on the way back to Idle.
type State interface {
	isState()
}

// StateIdle is the daemon at rest: no device open, no buffer.
type StateIdle struct{}

// StateRecording is an active recording session.
type StateRecording struct {
	StartedAt      time.Time
	UtteranceIndex int
}

// StateStopping is the brief window between receiving a stop request and
// finishing the final drain, transcription, and emission.
type StateStopping struct {
	PendingFlush bool
}

func (StateIdle) isState()      {}
func (StateRecording) isState() {}
func (StateStopping) isState()  {}

// Daemon owns the state machine and all per-process resources: the
// capture pipeline, optional VAD engine, transcriber, output sink, and
// control socket.
type Daemon struct {
	cfg    *config.Config
	log    *log.Logger
	ctrl   *control.Server
	sink   *inject.Sink
	trans  *transcribe.Transcriber
	vadEng *vad.Engine
	cue    *audio.CuePlayer

	state    State
	capturer *audio.Capturer
	ring     *audio.RingBuffer
	buffer   []float32
	dropped  uint64
}

// New constructs a Daemon from cfg. Model loading happens here; a
// failure is fatal at startup (spec §7 ModelLoadFailed).
func New(cfg *config.Config, logger *log.Logger, ctrl *control.Server) (*Daemon, error) {
	trans, err := transcribe.New(transcribe.Config{
		Encoder:    cfg.WhisperEncoder(),
		Decoder:    cfg.WhisperDecoder(),
		Tokens:     cfg.WhisperTokens(),
		Language:   cfg.Language,
		Provider:   "cpu",
		NumThreads: 1,
	}, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	var vadEng *vad.Engine
	if cfg.VAD != config.VADOff {
		vadEng, err = vad.NewEngine(cfg.VADModelPath, cfg.SampleRate, cfg.VADSilenceMs)
		if err != nil {
			trans.Close()
			return nil, err
		}
	}

	var cue *audio.CuePlayer
	if cfg.AudioFeedback {
		cue, err = audio.NewCuePlayer(cfg.SampleRate)
		if err != nil {
			logger.Warn("audio feedback unavailable", "error", err)
			cue = nil
		}
	}

	return &Daemon{
		cfg:    cfg,
		log:    logger,
		ctrl:   ctrl,
		sink:   inject.New(cfg.Mode, cfg.InjectBackend),
		trans:  trans,
		vadEng: vadEng,
		cue:    cue,
		state:  StateIdle{},
	}, nil
}

// Run processes control requests and audio drain ticks until a QUIT is
// received or ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()

		case req, ok := <-d.ctrl.Requests():
			if !ok {
				d.shutdown()
				return nil
			}
			quit := d.handle(req)
			if quit {
				d.shutdown()
				return nil
			}

		case <-ticker.C:
			d.onTick()
		}
	}
}

// handle dispatches one control request and replies on it. Returns true
// if the daemon should exit.
func (d *Daemon) handle(req control.Request) bool {
	switch req.Msg {
	case control.MsgToggle:
		if _, idle := d.state.(StateIdle); idle {
			d.reply(req, d.startRecording())
		} else {
			d.reply(req, d.stopRecording())
		}
	case control.MsgStart:
		if _, idle := d.state.(StateIdle); idle {
			d.reply(req, d.startRecording())
		} else {
			req.Reply <- control.Response{OK: true}
		}
	case control.MsgStop:
		if _, idle := d.state.(StateIdle); idle {
			req.Reply <- control.Response{OK: true}
		} else {
			d.reply(req, d.stopRecording())
		}
	case control.MsgQuit:
		req.Reply <- control.Response{OK: true}
		return true
	default:
		req.Reply <- control.Response{OK: false, Reason: daemonerr.ControlProtocolError.String()}
	}
	return false
}

func (d *Daemon) reply(req control.Request, err error) {
	if err == nil {
		req.Reply <- control.Response{OK: true}
		return
	}
	kind, ok := daemonerr.KindOf(err)
	if !ok {
		kind = daemonerr.InferenceFailed
	}
	req.Reply <- control.Response{OK: false, Reason: kind.String()}
}

// startRecording transitions Idle -> Recording. A device failure leaves
// the daemon in Idle and returns a DeviceUnavailable error (spec
// scenario 5).
func (d *Daemon) startRecording() error {
	ring := audio.NewRingBuffer(d.cfg.SampleRate * ringCapacitySec)
	capturer, err := audio.NewCapturer(d.cfg.SampleRate, ring)
	if err != nil {
		d.log.Error("audio device unavailable", "error", err)
		return daemonerr.New(daemonerr.DeviceUnavailable, "daemon.startRecording", err)
	}
	if err := capturer.Start(); err != nil {
		capturer.Close()
		d.log.Error("audio device unavailable", "error", err)
		return daemonerr.New(daemonerr.DeviceUnavailable, "daemon.startRecording", err)
	}

	d.capturer = capturer
	d.ring = ring
	d.buffer = d.buffer[:0]
	d.dropped = 0
	d.state = StateRecording{StartedAt: time.Now()}

	if d.cue != nil {
		if err := d.cue.PlayStart(); err != nil {
			d.log.Warn("start cue failed", "error", err)
		}
	}
	return nil
}

// stopRecording transitions Recording -> Stopping -> Idle. Because the
// daemon loop is single-threaded, finalization runs synchronously here;
// no other control message can interleave with it.
func (d *Daemon) stopRecording() error {
	d.state = StateStopping{PendingFlush: true}

	d.capturer.Stop()
	d.drainRing()
	d.capturer.Close()
	d.capturer = nil
	d.ring = nil

	d.finalize()

	if d.cue != nil {
		if err := d.cue.PlayStop(); err != nil {
			d.log.Warn("stop cue failed", "error", err)
		}
	}

	d.buffer = nil
	d.state = StateIdle{}
	return nil
}

// onTick runs once per drainTick while Recording: drains new samples and,
// in continuous mode, commits at most one fully-bounded segment (the
// first, when VAD reports at least two).
func (d *Daemon) onTick() {
	if _, recording := d.state.(StateRecording); !recording {
		return
	}

	d.drainRing()
	d.reportOverflow()

	if d.cfg.VAD != config.VADContinuous {
		return
	}

	segments, err := d.vadEng.DetectSegments(d.buffer)
	if err != nil {
		d.log.Warn("vad engine failed, continuous segmentation paused this tick", "error", err)
		return
	}
	if len(segments) < 2 {
		return
	}

	toCommit, cutIdx := continuousCommit(segments, d.cfg.SampleRate, len(d.buffer))
	d.commitSegment(toCommit.Start, toCommit.End)
	d.buffer = d.buffer[cutIdx:]
}

// continuousCommit decides what to commit on one continuous-segmentation
// tick: the first of at least two segments, and the buffer index to trim
// to (the start of the second segment). Pulled out of onTick so the
// decision can be tested without a live VAD engine.
func continuousCommit(segments []vad.Segment, sampleRate, bufLen int) (toCommit vad.Segment, cutIdx int) {
	first, second := segments[0], segments[1]
	cutIdx = int(second.Start * float64(sampleRate))
	if cutIdx > bufLen {
		cutIdx = bufLen
	}
	if cutIdx < 0 {
		cutIdx = 0
	}
	return first, cutIdx
}

// finalize runs the flush-time finalization described in spec §4.3/§4.6
// over whatever remains in d.buffer once capture has stopped.
//
// vad=off commits the whole buffer as one utterance. vad=on treats the
// buffer as a single non-continuous recording and merges every segment
// VAD found into one span, per spec §4.6's literal wording. vad=continuous
// instead commits the complete list of segments individually — each one
// its own utterance — since continuous mode already emits one transcript
// per pause everywhere else; merging the last few segments still sitting
// in the buffer at flush would silently drop that per-pause boundary for
// whatever onTick's per-tick trickle hadn't caught up to yet.
func (d *Daemon) finalize() {
	if len(d.buffer) == 0 {
		return
	}

	if d.cfg.VAD == config.VADOff {
		d.commitSegment(0, float64(len(d.buffer))/float64(d.cfg.SampleRate))
		return
	}

	segments, err := d.vadEng.DetectSegments(d.buffer)
	if err != nil {
		d.log.Warn("vad engine failed at finalization, using full buffer", "error", err)
		d.commitSegment(0, float64(len(d.buffer))/float64(d.cfg.SampleRate))
		return
	}
	if len(segments) == 0 {
		return
	}

	if d.cfg.VAD == config.VADContinuous {
		for _, seg := range segments {
			d.commitSegment(seg.Start, seg.End)
		}
		return
	}

	first := segments[0]
	last := segments[len(segments)-1]
	d.commitSegment(first.Start, last.End)
}

// sampleRange converts a [startSec, endSec) span to a clamped sample
// index range into a buffer of length bufLen.
func sampleRange(startSec, endSec float64, sampleRate, bufLen int) (startIdx, endIdx int) {
	startIdx = int(startSec * float64(sampleRate))
	endIdx = int(endSec * float64(sampleRate))
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > bufLen {
		endIdx = bufLen
	}
	return startIdx, endIdx
}

// commitSegment transcribes samples in [startSec, endSec) and emits the
// result. Failures are logged and do not abort the session (spec §7).
func (d *Daemon) commitSegment(startSec, endSec float64) {
	startIdx, endIdx := sampleRange(startSec, endSec, d.cfg.SampleRate, len(d.buffer))
	if startIdx >= endIdx {
		return
	}

	samples := d.buffer[startIdx:endIdx]
	text, err := d.trans.Transcribe(samples)
	if err != nil {
		d.log.Warn("transcription failed, segment dropped", "error", err)
		return
	}
	if text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.sink.Deliver(ctx, text); err != nil {
		d.log.Warn("output delivery failed, transcript logged instead", "error", err, "text", text)
	}
}

func (d *Daemon) drainRing() {
	if d.ring == nil {
		return
	}
	var scratch []float32
	drained := d.ring.Drain(scratch)
	if len(drained) > 0 {
		d.buffer = append(d.buffer, drained...)
	}
}

func (d *Daemon) reportOverflow() {
	if d.ring == nil {
		return
	}
	current := d.ring.Dropped()
	if current > d.dropped {
		d.log.Warn("capture buffer overflow, samples dropped", "count", current-d.dropped, "total", current)
		d.dropped = current
	}
}

func (d *Daemon) shutdown() {
	if _, idle := d.state.(StateIdle); !idle {
		if d.capturer != nil {
			d.capturer.Stop()
			d.capturer.Close()
		}
	}
	d.trans.Close()
	if d.vadEng != nil {
		d.vadEng.Close()
	}
	if d.cue != nil {
		d.cue.Close()
	}
	d.log.Info("daemon shut down")
}
