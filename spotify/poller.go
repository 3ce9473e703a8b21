package spotify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is the playback polling period
const DefaultPollInterval = 2000 * time.Millisecond

const pollTimeout = 10 * time.Second

// PlaybackSource is anything that can report the current playback state
type PlaybackSource interface {
	GetCurrentPlayback(ctx context.Context) (*PlaybackState, error)
}

// Poller fetches playback state on a fixed interval and publishes each
// snapshot. It is idle until Start and returns to idle on Stop.
type Poller struct {
	source   PlaybackSource
	interval time.Duration
	publish  func(*PlaybackState)

	// newTicker is swapped in tests to drive ticks by hand
	newTicker func(time.Duration) (<-chan time.Time, func())

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates an idle poller
func NewPoller(source PlaybackSource, interval time.Duration, publish func(*PlaybackState)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		source:    source,
		interval:  interval,
		publish:   publish,
		newTicker: realTicker,
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Running reports whether the poller is in the polling state
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Start polls once immediately and then once per interval until Stop or
// until ctx is done. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		log.Debug("Poller already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	log.WithField("interval", p.interval).Info("Starting playback polling")

	ticks, stopTicker := p.newTicker(p.interval)
	go p.run(ctx, ticks, stopTicker, p.done)
}

// Stop cancels the loop and waits for the in-flight poll to finish
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	log.Info("Stopped playback polling")
}

func (p *Poller) run(ctx context.Context, ticks <-chan time.Time, stopTicker func(), done chan struct{}) {
	defer close(done)
	defer stopTicker()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	state, err := p.source.GetCurrentPlayback(ctx)
	if err != nil {
		log.WithError(err).Warn("Playback poll failed, skipping tick")
		return
	}

	if p.publish != nil {
		p.publish(state)
	}
}
