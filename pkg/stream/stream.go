// Package stream runs the continuous capture pipeline: poll FIFO occupancy,
// drain a packet's worth of samples, assemble a sequenced packet and hand it
// to a datagram transport. At most one session runs at a time; Start and Stop
// may be called from any goroutine.
package stream

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/bytebufferpool"

	"github.com/radiostream/pkg/packet"
	"github.com/radiostream/pkg/transmit"
)

// DefaultMaxOccupancyFailures is the number of consecutive occupancy read
// failures after which a session halts.
const DefaultMaxOccupancyFailures = 1000

// FIFO is the sample source polled by the loop.
type FIFO interface {
	ReadFifoOccupancy() (uint32, error)
	DrainSample() (uint32, error)
}

// Config for a Controller.
type Config struct {
	SamplesPerPacket int
	// MaxOccupancyFailures consecutive failed occupancy reads halt the
	// session. Zero selects DefaultMaxOccupancyFailures.
	MaxOccupancyFailures int
	// PollInterval is slept when the FIFO holds less than a packet.
	// Zero busy-polls.
	PollInterval time.Duration
	// Dial opens the transport for each session. Nil uses UDP.
	Dial transmit.Dialer
	// Registerer receives the stream metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

type session struct {
	id       string
	endpoint string
	sender   transmit.Sender
	cancel   atomic.Bool
	done     chan struct{}

	// owned by the loop goroutine
	seq uint16
	buf []uint32
}

// Controller owns the streaming state machine.
type Controller struct {
	fifo    FIFO
	asm     *packet.Assembler
	cfg     Config
	pool    *ants.Pool
	metrics *metrics

	mu    sync.Mutex // serializes Start and Stop
	state atomic.Int32
	sess  atomic.Pointer[session]
	last  atomic.Pointer[Stop]
	loops atomic.Int32

	subMu sync.Mutex
	subs  map[chan Stop]struct{}

	nextSeq       atomic.Uint32
	packets       atomic.Uint64
	sendFailures  atomic.Uint64
	occFailures   atomic.Uint64
	drainFailures atomic.Uint64
	polls         atomic.Uint64
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New returns an idle controller reading from fifo.
func New(fifo FIFO, cfg Config) (*Controller, error) {
	if fifo == nil {
		return nil, fmt.Errorf("stream: fifo is required")
	}
	asm, err := packet.NewAssembler(cfg.SamplesPerPacket)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOccupancyFailures <= 0 {
		cfg.MaxOccupancyFailures = DefaultMaxOccupancyFailures
	}
	if cfg.Dial == nil {
		cfg.Dial = transmit.Dial
	}

	// a single worker: the pool is the only place a loop can run
	pool, err := ants.NewPool(1, ants.WithPanicHandler(func(p interface{}) {
		log.Printf("[ERROR] stream: loop panic: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("stream: create worker pool: %w", err)
	}

	return &Controller{
		fifo:    fifo,
		asm:     asm,
		cfg:     cfg,
		pool:    pool,
		metrics: newMetrics(cfg.Registerer),
		subs:    make(map[chan Stop]struct{}),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start opens the transport to endpoint and spawns the streaming loop. It
// returns as soon as the loop is scheduled. Starting a running controller
// returns ErrAlreadyRunning and leaves the existing session untouched.
func (c *Controller) Start(endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != Idle {
		return ErrAlreadyRunning
	}

	sender, err := c.cfg.Dial(endpoint)
	if err != nil {
		return err
	}

	s := &session{
		id:       uuid.NewString(),
		endpoint: endpoint,
		sender:   sender,
		done:     make(chan struct{}),
		buf:      make([]uint32, c.asm.Samples()),
	}
	c.nextSeq.Store(0)
	c.state.Store(int32(Running))
	c.sess.Store(s)

	if err := c.pool.Submit(func() { c.run(s) }); err != nil {
		c.state.Store(int32(Idle))
		sender.Close()
		close(s.done)
		return fmt.Errorf("stream: schedule loop: %w", err)
	}

	log.Printf("[INFO] stream: session %s streaming to %s", s.id, endpoint)
	return nil
}

// Stop requests cancellation and waits for the loop to observe it, which
// takes at most one loop iteration. Stopping an idle controller returns
// ErrNotRunning. Mapped regions are not touched.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess.Load()
	if s == nil || !c.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return ErrNotRunning
	}
	s.cancel.Store(true)
	<-s.done
	return nil
}

// Done returns a channel closed when the current (or last) session ends,
// whether by Stop or by failure.
func (c *Controller) Done() <-chan struct{} {
	if s := c.sess.Load(); s != nil {
		return s.done
	}
	return closedDone
}

// LastStop describes how the most recent session ended, or nil.
func (c *Controller) LastStop() *Stop {
	return c.last.Load()
}

// Close stops any running session and releases the worker pool.
func (c *Controller) Close() error {
	if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	c.pool.Release()
	return nil
}

// Subscribe returns a channel that receives every session end from now on,
// and a function that cancels the subscription and closes the channel. Ends
// are dropped for a subscriber whose buffer is full.
func (c *Controller) Subscribe(buffer int) (<-chan Stop, func()) {
	ch := make(chan Stop, buffer)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) publish(end Stop) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- end:
		default:
			log.Printf("[WARN] stream: subscriber full, dropped end of session %s", end.SessionID)
		}
	}
}

// Stats returns a snapshot of the controller.
func (c *Controller) Stats() Stats {
	st := Stats{
		State:             c.State().String(),
		SamplesPerPacket:  c.asm.Samples(),
		NextSequence:      uint16(c.nextSeq.Load()),
		PacketsSent:       c.packets.Load(),
		SendFailures:      c.sendFailures.Load(),
		OccupancyFailures: c.occFailures.Load(),
		DrainFailures:     c.drainFailures.Load(),
		Polls:             c.polls.Load(),
		ActiveLoops:       int(c.loops.Load()),
	}
	if s := c.sess.Load(); s != nil && c.State() != Idle {
		st.SessionID = s.id
		st.Endpoint = s.endpoint
	}
	if last := c.last.Load(); last != nil {
		st.LastStopReason = last.Reason.String()
		st.LastStopAt = last.At
		if last.Err != nil {
			st.LastError = last.Err.Error()
		}
	}
	return st
}

func (c *Controller) run(s *session) {
	c.loops.Add(1)
	c.metrics.running.Set(1)

	end := Stop{SessionID: s.id, Reason: StopRequested}
	defer func() {
		if p := recover(); p != nil {
			end.Reason = StopFailed
			end.Err = fmt.Errorf("stream loop panic: %v", p)
		}
		c.finish(s, end)
	}()

	n := uint32(c.asm.Samples())
	occFails := 0
	for !s.cancel.Load() {
		c.polls.Add(1)

		occ, err := c.fifo.ReadFifoOccupancy()
		if err != nil {
			occFails++
			c.occFailures.Add(1)
			c.metrics.registerFailures.WithLabelValues("occupancy").Inc()
			if occFails == 1 {
				log.Printf("[WARN] stream: read fifo occupancy: %v", err)
			}
			if occFails >= c.cfg.MaxOccupancyFailures {
				end.Reason = StopFailed
				end.Err = fmt.Errorf("fifo occupancy unreadable for %d polls: %w", occFails, err)
				return
			}
			c.wait()
			continue
		}
		if occFails > 0 {
			log.Printf("[INFO] stream: fifo occupancy readable again after %d failures", occFails)
			occFails = 0
		}
		c.metrics.occupancy.Set(float64(occ))

		if occ < n {
			c.wait()
			continue
		}

		// a drain failure leaves the FIFO partially consumed, so the
		// session cannot produce a coherent packet and halts
		if err := c.drain(s.buf); err != nil {
			c.drainFailures.Add(1)
			c.metrics.registerFailures.WithLabelValues("drain").Inc()
			end.Reason = StopFailed
			end.Err = err
			return
		}
		c.emit(s)
	}
}

func (c *Controller) drain(buf []uint32) error {
	for i := range buf {
		v, err := c.fifo.DrainSample()
		if err != nil {
			return fmt.Errorf("drain sample %d of %d: %w", i, len(buf), err)
		}
		buf[i] = v
	}
	return nil
}

// emit assembles and sends one packet. The sequence number advances even
// when the send fails: the packet was emitted and lost by the transport.
func (c *Controller) emit(s *session) {
	bb := bytebufferpool.Get()
	bb.B = c.asm.Append(bb.B[:0], s.seq, s.buf)
	s.seq++
	c.nextSeq.Store(uint32(s.seq))

	if err := s.sender.Send(bb.B); err != nil {
		if c.sendFailures.Add(1) == 1 {
			log.Printf("[WARN] stream: %v", err)
		} else {
			log.Printf("[DEBUG] stream: %v", err)
		}
		c.metrics.sendFailures.Inc()
	} else {
		c.packets.Add(1)
		c.metrics.packets.Inc()
		c.metrics.bytes.Add(float64(len(bb.B)))
	}
	bytebufferpool.Put(bb)
}

func (c *Controller) wait() {
	if c.cfg.PollInterval > 0 {
		time.Sleep(c.cfg.PollInterval)
		return
	}
	runtime.Gosched()
}

func (c *Controller) finish(s *session, end Stop) {
	if err := s.sender.Close(); err != nil {
		log.Printf("[WARN] stream: close transport: %v", err)
	}
	end.At = time.Now()
	c.last.Store(&end)
	c.metrics.sessions.WithLabelValues(end.Reason.String()).Inc()
	c.metrics.running.Set(0)

	if end.Reason == StopFailed {
		log.Printf("[ERROR] stream: session %s halted: %v", s.id, end.Err)
	} else {
		log.Printf("[INFO] stream: session %s stopped", s.id)
	}

	c.publish(end)

	c.nextSeq.Store(0)
	c.loops.Add(-1)
	c.state.Store(int32(Idle))
	close(s.done)
}
