package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gitnotify/internal/metrics"
	rtsup "gitnotify/internal/runtime/supervisor"
	"gitnotify/internal/storage"
	kit "gitnotify/internal/transport"
	logx "gitnotify/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoTargets = errors.New("notifier has no target chats")
)

type job struct {
	to   kit.ChatTarget
	text string
	key  string
}

// Deps are the collaborators of Service. Store, Renderer and Metrics may be nil.
type Deps struct {
	Adapter  kit.Adapter
	Decider  *Decider
	Renderer Renderer
	Store    storage.Store
	Metrics  *metrics.Metrics
	Log      logx.Logger
}

// Service is the async delivery pipeline: queue + worker pool + rate limit +
// dedup. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	adapter  kit.Adapter
	decider  *Decider
	renderer Renderer
	store    storage.Store
	metrics  *metrics.Metrics

	cfg     Config
	limiter *rate.Limiter
	targets []kit.ChatTarget

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite
}

type dedupWrite struct {
	key   string
	until time.Time
}

func New(cfg Config, deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log,
		adapter:  deps.Adapter,
		decider:  deps.Decider,
		renderer: deps.Renderer,
		store:    deps.Store,
		metrics:  deps.Metrics,
		dedup:    map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Supervisor returns the internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetTargets replaces the chats that receive notifications.
func (s *Service) SetTargets(targets []kit.ChatTarget) {
	s.mu.Lock()
	s.targets = append([]kit.ChatTarget(nil), targets...)
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		// notifier failures should not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	pch := s.persistCh
	st := s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.exitReason(c, "notifier persist loop exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitReason(c, "notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// exitReason maps a loop return to an error: clean exits happen on shutdown,
// anything else is worth a restart.
func (s *Service) exitReason(c context.Context, msg string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if c.Err() != nil {
		return c.Err()
	}
	return errors.New(msg)
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	pch := s.persistCh
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain.
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Submit decides whether ev is forwarded and, if so, queues one message per
// target chat. A delivery id that was already seen within the dedup window
// yields SkipDuplicate.
func (s *Service) Submit(ctx context.Context, ev Event) (Decision, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}
	if s.decider == nil {
		return 0, errors.New("notifier: no decider")
	}

	d, err := s.decider.Decide(ev)
	if err != nil {
		return 0, err
	}
	if d != Send {
		s.log.Debug("event skipped", logx.String("platform", string(ev.Platform)), logx.String("event", ev.Name),
			logx.String("action", ev.Action), logx.String("decision", d.String()))
		return d, nil
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return 0, ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return 0, ErrStopped
	}
	q := s.queue
	targets := append([]kit.ChatTarget(nil), s.targets...)
	window := s.cfg.DedupWindow
	dedupMax := s.cfg.DedupMaxEntries
	persist := s.cfg.PersistDedup
	st := s.store
	pch := s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if len(targets) == 0 {
		return 0, ErrNoTargets
	}

	if window > 0 && ev.DeliveryID != "" {
		key := string(ev.Platform) + ":" + ev.DeliveryID
		if !s.dedupAllow(ctx, key, window, dedupMax, persist, st, pch) {
			s.metrics.Notification("deduped")
			return SkipDuplicate, nil
		}
	}

	text, err := render(ctx, s.renderer, ev)
	if err != nil {
		s.log.Warn("render failed, using summary", logx.String("template", TemplatePath(ev)), logx.Err(err))
		text = Summary(ev)
	}

	var dropped int
	for _, to := range targets {
		select {
		case q <- job{to: to, text: text, key: ev.DeliveryID}:
		default:
			dropped++
			s.metrics.Notification("dropped")
		}
	}
	if dropped == len(targets) {
		return 0, ErrQueueFull
	}
	return Send, nil
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, j)
		}
	}
}

// send makes exactly one delivery attempt.
func (s *Service) send(ctx context.Context, j job) {
	s.mu.Lock()
	lim := s.limiter
	ad := s.adapter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	if ad == nil || strings.TrimSpace(j.text) == "" {
		return
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	_, err := ad.SendText(callCtx, j.to, j.text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	cancel()
	if err != nil {
		s.metrics.Notification("failed")
		s.log.Warn("notification send failed", logx.Int64("chat_id", j.to.ChatID), logx.String("delivery", j.key), logx.Err(err))
		return
	}
	s.metrics.Notification("sent")
}

func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration, max int, persist bool, st storage.Store, pch chan dedupWrite) bool {
	now := time.Now()

	// 1) In-memory check.
	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// 2) Persistent check for cross-restart dedup.
	if persist && st != nil {
		qctx := ctx
		if qctx == nil {
			qctx = context.Background()
		}
		cctx, cancel := context.WithTimeout(qctx, 25*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	// 3) Allow and open a new window.
	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		// Evict the entry closest to expiry.
		var (
			minKey string
			minT   time.Time
		)
		for k, u := range s.dedup {
			if minKey == "" || u.Before(minT) {
				minKey, minT = k, u
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	// 4) Persist asynchronously.
	if persist && st != nil && pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}
