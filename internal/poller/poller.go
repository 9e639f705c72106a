// Package poller periodically checks the mailbox for new bank notifications
// and records the transactions they carry.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bank-txn-monitor/internal/extractor"
	"bank-txn-monitor/internal/mailbox"
	"bank-txn-monitor/internal/metrics"
	"bank-txn-monitor/internal/model"
)

// DefaultInterval is used when no interval is configured
const DefaultInterval = 30 * time.Second

// ErrAuthRequired is returned by Start when the mailbox is not authenticated
var ErrAuthRequired = errors.New("authentication required")

// Store records extracted transactions
type Store interface {
	InsertIfAbsent(ctx context.Context, tx *model.Transaction) (bool, error)
}

// Status is a read-only view of the poller state
type Status struct {
	Running       bool
	Authenticated bool
	SeenCount     int
	Interval      time.Duration
	LastTick      time.Time
}

// Poller owns the monitoring state: the schedule, the running flag and the
// set of message ids already handled in this process.
type Poller struct {
	mailbox   mailbox.Mailbox
	extractor *extractor.Extractor
	store     Store
	metrics   *metrics.Metrics
	interval  time.Duration
	log       *logrus.Entry

	mu       sync.RWMutex
	cron     *cron.Cron
	stopped  context.Context
	running  bool
	lastTick time.Time

	seenMu sync.Mutex
	seen   map[string]struct{}

	tickMu sync.Mutex
	wg     sync.WaitGroup
}

// New creates an idle poller
func New(mb mailbox.Mailbox, ex *extractor.Extractor, store Store, m *metrics.Metrics, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if ex == nil {
		ex = extractor.New()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	return &Poller{
		mailbox:   mb,
		extractor: ex,
		store:     store,
		metrics:   m,
		interval:  interval,
		log:       logrus.WithField("component", "poller"),
		seen:      make(map[string]struct{}),
	}
}

// every fires at a fixed interval after the previous activation. Unlike
// cron.Every it keeps sub-second precision.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Start begins monitoring: one check right away, then one per interval.
// It returns false when monitoring was already running.
func (p *Poller) Start() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return false, nil
	}
	if !p.mailbox.IsAuthenticated() {
		return false, ErrAuthRequired
	}

	cronLog := cron.PrintfLogger(p.log)
	job := cron.NewChain(cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(p.scheduledTick))

	p.cron = cron.New(cron.WithLogger(cronLog))
	p.cron.Schedule(every(p.interval), job)
	p.cron.Start()
	p.running = true
	p.metrics.MonitorRunning.Set(1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		job.Run()
	}()

	p.log.WithField("interval", p.interval.String()).Info("Monitoring started")
	return true, nil
}

// Stop cancels future checks. A check already in progress is not
// interrupted. It returns false when monitoring was not running.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}

	p.stopped = p.cron.Stop()
	p.cron = nil
	p.running = false
	p.metrics.MonitorRunning.Set(0)

	p.log.Info("Monitoring stopped")
	return true
}

// Wait blocks until checks started before the last Stop have finished
func (p *Poller) Wait() {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()

	if stopped != nil {
		<-stopped.Done()
	}
	p.wg.Wait()
}

// IsRunning reports whether monitoring is active
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Status returns a snapshot of the poller state
func (p *Poller) Status() Status {
	p.mu.RLock()
	running, lastTick := p.running, p.lastTick
	p.mu.RUnlock()

	return Status{
		Running:       running,
		Authenticated: p.mailbox.IsAuthenticated(),
		SeenCount:     p.SeenCount(),
		Interval:      p.interval,
		LastTick:      lastTick,
	}
}

// SeenCount returns the number of message ids handled in this process
func (p *Poller) SeenCount() int {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	return len(p.seen)
}

// ResetSeen forgets every handled message id
func (p *Poller) ResetSeen() {
	p.seenMu.Lock()
	p.seen = make(map[string]struct{})
	p.seenMu.Unlock()
	p.metrics.SeenMessages.Set(0)
}

func (p *Poller) isSeen(id string) bool {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	_, ok := p.seen[id]
	return ok
}

func (p *Poller) markSeen(id string) {
	p.seenMu.Lock()
	p.seen[id] = struct{}{}
	n := len(p.seen)
	p.seenMu.Unlock()
	p.metrics.SeenMessages.Set(float64(n))
}

func (p *Poller) scheduledTick() {
	if _, err := p.Tick(context.Background()); err != nil {
		p.log.WithError(err).Error("Mailbox check failed")
	}
}

// Tick runs one mailbox check and returns the number of new transactions
// stored. Only a listing failure is returned as an error; per-message
// failures are logged and skipped.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	start := time.Now()
	defer func() {
		p.metrics.TickDuration.Observe(time.Since(start).Seconds())
		p.mu.Lock()
		p.lastTick = start
		p.mu.Unlock()
	}()
	p.metrics.PollCount.Inc()

	ids, err := p.mailbox.ListCandidateMessages(ctx)
	if err != nil {
		p.metrics.ListFailures.Inc()
		return 0, err
	}

	recorded := 0
	for _, id := range ids {
		if p.isSeen(id) {
			continue
		}
		if p.process(ctx, id) {
			recorded++
		}
	}

	if recorded > 0 {
		p.log.WithField("count", recorded).Info("Recorded new transactions")
	}
	return recorded, nil
}

// extract applies the rule for the message's sender. Backends that cannot
// report a sender fall back to the default rule.
func (p *Poller) extract(msg mailbox.Message) (*model.Transaction, bool) {
	if msg.From == "" {
		return p.extractor.Extract(msg.Body)
	}
	return p.extractor.ExtractFrom(msg.From, msg.Body)
}

// process handles one unseen message and reports whether a new transaction
// was stored.
func (p *Poller) process(ctx context.Context, id string) bool {
	log := p.log.WithField("message_id", id)

	msg, err := p.mailbox.FetchBody(ctx, id)
	if err != nil {
		p.metrics.FetchFailures.Inc()
		log.WithError(err).Warn("Failed to fetch message, will retry on next check")
		return false
	}

	tx, ok := p.extract(msg)
	if !ok {
		p.markSeen(id)
		log.Debug("Message holds no transaction")
		return false
	}
	tx.MessageID = id

	inserted, err := p.store.InsertIfAbsent(ctx, tx)
	if err != nil {
		log.WithError(err).WithField("utr", tx.Reference).Error("Failed to store transaction, will retry on next check")
		return false
	}
	p.markSeen(id)
	if !inserted {
		p.metrics.DuplicatesSkipped.Inc()
		log.WithField("utr", tx.Reference).Debug("Transaction already recorded")
		return false
	}

	p.metrics.TransactionsRecorded.Inc()
	log.WithFields(logrus.Fields{
		"utr":    tx.Reference,
		"amount": tx.Amount.StringFixed(2),
	}).Info("New transaction recorded")
	return true
}
