package fountain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pitscout/fountain/internal/wire"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// A Collector rebuilds payloads from scanned packets of any number of sessions.
// Packets may arrive in any order, duplicated, or not at all.
// It is safe for concurrent use. Packets of one session are folded in one at a time,
// packets of different sessions in parallel.
type Collector struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mutex    sync.RWMutex
	sessions map[string]*session
}

// NewCollector creates a Collector. Only MaxPendingPackets, Handler and Logger of the config are used.
func NewCollector(config *Config) (*Collector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = populateConfig(config)
	return &Collector{
		config:   config,
		logger:   config.Logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}, nil
}

// Ingest parses one scanned text and folds it into its session.
// Text that isn't a transfer packet is reported as VerdictMalformed.
// The error is only non-nil when the packet completed the session and the payload
// failed its checksum (ErrChecksumMismatch).
func (c *Collector) Ingest(raw string) (Status, error) {
	p, err := wire.Parse(raw)
	if err != nil {
		c.logger.Debug("dropping scanned text", zap.Error(err))
		return Status{Verdict: VerdictMalformed}, nil
	}
	return c.IngestPacket(p)
}

// IngestPacket folds an already decoded packet into its session.
func (c *Collector) IngestPacket(p *Packet) (Status, error) {
	if p == nil || p.SessionID == "" {
		return Status{Verdict: VerdictMalformed}, nil
	}
	s := c.getOrCreateSession(p.SessionID)
	s.mx.Lock()
	st, err := s.add(p, c.now())
	s.mx.Unlock()
	c.report(st, err)
	return st, err
}

func (c *Collector) report(st Status, err error) {
	h := c.config.Handler
	if h == nil {
		return
	}
	switch {
	case err != nil:
		h.HandleFailure(st.SessionID, err)
	case st.Payload != nil:
		h.HandlePayload(st.SessionID, st.Payload)
	}
}

func (c *Collector) getOrCreateSession(id string) *session {
	c.mutex.RLock()
	s, ok := c.sessions[id]
	c.mutex.RUnlock()
	if ok {
		return s
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if s, ok := c.sessions[id]; ok {
		return s
	}
	s = newSession(id, c.config.MaxPendingPackets, c.logger, c.now())
	c.sessions[id] = s
	c.logger.Debug("new session", zap.String("session", id))
	return s
}

func (c *Collector) getSession(id string) (*session, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Drop discards a session and all of its state. It reports whether the session existed.
func (c *Collector) Drop(id string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.sessions[id]
	delete(c.sessions, id)
	return ok
}

// Sweep drops every session that hasn't accepted a packet for longer than idle,
// and returns how many it dropped. Completed and failed sessions are swept as well.
func (c *Collector) Sweep(idle time.Duration) int {
	deadline := c.now().Add(-idle)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var n int
	for id, s := range c.sessions {
		s.mx.Lock()
		stale := s.lastActivity.Before(deadline)
		s.mx.Unlock()
		if stale {
			delete(c.sessions, id)
			c.logger.Debug("session expired", zap.String("session", id))
			n++
		}
	}
	return n
}

// Sessions returns the IDs of all sessions held by the collector, sorted.
func (c *Collector) Sessions() []string {
	c.mutex.RLock()
	ids := maps.Keys(c.sessions)
	c.mutex.RUnlock()
	slices.Sort(ids)
	return ids
}

// Progress returns how far a session got.
func (c *Collector) Progress(id string) (Progress, error) {
	s, err := c.getSession(id)
	if err != nil {
		return Progress{}, err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.progress(), nil
}

// IngestBatch ingests a batch of scanned texts. Sessions are processed in parallel,
// the packets of one session in the order they appear in raws.
// The returned statuses line up with raws. The error joins the checksum failures of
// the batch, or is the context's error if ctx was cancelled before the batch was done.
func (c *Collector) IngestBatch(ctx context.Context, raws []string) ([]Status, error) {
	statuses := make([]Status, len(raws))
	errs := make([]error, len(raws))

	type item struct {
		pos    int
		packet *wire.Packet
	}
	var order []string
	groups := make(map[string][]item)
	for i, raw := range raws {
		p, err := wire.Parse(raw)
		if err != nil {
			statuses[i] = Status{Verdict: VerdictMalformed}
			continue
		}
		if _, ok := groups[p.SessionID]; !ok {
			order = append(order, p.SessionID)
		}
		groups[p.SessionID] = append(groups[p.SessionID], item{pos: i, packet: p})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range order {
		items := groups[id]
		g.Go(func() error {
			for _, it := range items {
				if err := ctx.Err(); err != nil {
					return err
				}
				statuses[it.pos], errs[it.pos] = c.IngestPacket(it.packet)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return statuses, err
	}
	return statuses, errors.Join(errs...)
}

// Consume feeds every text added to q into the collector until q is closed or ctx is done.
// Checksum failures are reported to the PayloadHandler and don't stop the loop.
// After Close, Consume drains q and returns the error q was closed with.
func (c *Collector) Consume(ctx context.Context, q *ScanQueue) error {
	for {
		for {
			raw, ok := q.Peek()
			if !ok {
				break
			}
			q.Pop()
			if _, err := c.Ingest(raw); err != nil {
				c.logger.Debug("scan loop: session failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			if q.Len() == 0 {
				return q.closeErr
			}
		case <-q.hasData:
		}
	}
}
