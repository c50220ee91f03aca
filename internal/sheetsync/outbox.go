package sheetsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var ErrDeliveryFailed = errors.New("remote sync failed")

// Sender delivers one webhook request.
type Sender interface {
	Send(ctx context.Context, url string, req webhook.Request) (*webhook.Response, error)
}

// URLResolver returns the webhook URL configured for a namespace, empty when
// sync is off.
type URLResolver func(ctx context.Context, namespace string) (string, error)

// Outbox persists webhook requests and delivers them in the order they were
// enqueued. Each namespace has its own lane, so a remote that keeps failing
// only delays its own namespace. A failed intent is marked failed and the lane
// moves on.
type Outbox struct {
	db      *gorm.DB
	sender  Sender
	resolve URLResolver
	status  *Tracker
	retry   retrier
	log     zerolog.Logger

	wake chan struct{}

	mu      sync.Mutex
	waiters map[uint64][]chan struct{}
	lanes   map[string]bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewOutbox(db *gorm.DB, sender Sender, resolve URLResolver, status *Tracker, retry RetryConfig, log zerolog.Logger) *Outbox {
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool {
			return !errors.Is(err, webhook.ErrNotConfigured)
		}
	}
	return &Outbox{
		db:      db,
		sender:  sender,
		resolve: resolve,
		status:  status,
		retry:   retrier{cfg: retry, log: log},
		log:     log,
		wake:    make(chan struct{}, 1),
		waiters: make(map[uint64][]chan struct{}),
		lanes:   make(map[string]bool),
	}
}

// Enqueue stores req for namespace and returns its sequence number.
func (o *Outbox) Enqueue(ctx context.Context, namespace string, req webhook.Request) (uint64, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("encode intent: %w", err)
	}
	it := models.SyncIntent{
		Namespace: namespace,
		Action:    string(req.Action),
		Payload:   string(payload),
		RecordIDs: joinIDs(req.RecordIDs()),
		Status:    models.IntentPending,
	}
	if err := o.db.WithContext(ctx).Create(&it).Error; err != nil {
		return 0, fmt.Errorf("store intent: %w", err)
	}

	o.status.addPending(namespace, 1)
	o.status.Set(namespace, StateSyncing, "")
	o.signal()
	return it.Seq, nil
}

func (o *Outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Start launches the delivery worker. Intents left pending by a previous run
// are delivered first.
func (o *Outbox) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	var pending []struct {
		Namespace string
		N         int64
	}
	o.db.WithContext(ctx).Model(&models.SyncIntent{}).
		Select("namespace, count(*) as n").
		Where("status = ?", models.IntentPending).
		Group("namespace").
		Scan(&pending)
	for _, p := range pending {
		o.status.setPending(p.Namespace, p.N)
	}

	go o.run(ctx, o.done)
	o.signal()
}

// Stop halts the worker and waits for it. An intent interrupted mid-delivery
// stays pending.
func (o *Outbox) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel = nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (o *Outbox) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	var lanes sync.WaitGroup
	o.log.Info().Msg("outbox worker started")
	for {
		o.dispatch(ctx, &lanes)
		select {
		case <-ctx.Done():
			lanes.Wait()
			o.log.Info().Msg("outbox worker stopped")
			return
		case <-o.wake:
		}
	}
}

// dispatch starts a lane for every namespace with pending intents and no
// running lane.
func (o *Outbox) dispatch(ctx context.Context, lanes *sync.WaitGroup) {
	var namespaces []string
	err := o.db.WithContext(ctx).Model(&models.SyncIntent{}).
		Where("status = ?", models.IntentPending).
		Distinct().
		Pluck("namespace", &namespaces).Error
	if err != nil {
		if ctx.Err() == nil {
			o.log.Error().Err(err).Msg("list pending namespaces")
		}
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ns := range namespaces {
		if o.lanes[ns] {
			continue
		}
		o.lanes[ns] = true
		lanes.Add(1)
		go func(ns string) {
			defer lanes.Done()
			o.lane(ctx, ns)
		}(ns)
	}
}

func (o *Outbox) lane(ctx context.Context, ns string) {
	emptied := o.drain(ctx, ns)
	o.mu.Lock()
	delete(o.lanes, ns)
	o.mu.Unlock()
	if emptied {
		// an intent enqueued while the lane was closing needs a new lane
		o.signal()
	}
}

// drain delivers the pending intents of ns oldest first. It reports whether
// the lane ran out of work.
func (o *Outbox) drain(ctx context.Context, ns string) bool {
	for ctx.Err() == nil {
		var it models.SyncIntent
		err := o.db.WithContext(ctx).
			Where("namespace = ? AND status = ?", ns, models.IntentPending).
			Order("seq").
			First(&it).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true
		}
		if err != nil {
			if ctx.Err() == nil {
				o.log.Error().Err(err).Str("namespace", ns).Msg("load pending intent")
			}
			return false
		}
		if !o.deliver(ctx, &it) {
			return false
		}
	}
	return false
}

// deliver returns false when ctx ended before the intent was settled.
func (o *Outbox) deliver(ctx context.Context, it *models.SyncIntent) bool {
	log := o.log.With().Uint64("seq", it.Seq).Str("action", it.Action).Str("namespace", it.Namespace).Logger()

	var resp *webhook.Response
	err := o.retry.execute(ctx, func(ctx context.Context) error {
		url, err := o.resolve(ctx, it.Namespace)
		if err != nil {
			return err
		}
		var req webhook.Request
		if err := json.Unmarshal([]byte(it.Payload), &req); err != nil {
			return fmt.Errorf("decode intent: %w", err)
		}
		it.Attempts++
		resp, err = o.sender.Send(ctx, url, req)
		return err
	})
	if ctx.Err() != nil {
		return false
	}

	now := time.Now()
	it.FinishedAt = &now
	if err != nil {
		it.Status = models.IntentFailed
		it.LastError = truncate(err.Error(), 1024)
		log.Warn().Err(err).Int("attempts", it.Attempts).Msg("sync intent failed")
		o.status.Fail(it.Namespace, err)
	} else {
		it.Status = models.IntentDelivered
		it.LastError = ""
		if resp != nil {
			it.Message = truncate(resp.Message, 255)
		}
		log.Debug().Str("message", it.Message).Msg("sync intent delivered")
		o.status.Succeed(it.Namespace, it.Message)
	}
	o.status.addPending(it.Namespace, -1)

	if err := o.db.Save(it).Error; err != nil {
		log.Error().Err(err).Msg("record intent outcome")
	}
	o.notify(it.Seq)
	return true
}

func (o *Outbox) notify(seq uint64) {
	o.mu.Lock()
	chans := o.waiters[seq]
	delete(o.waiters, seq)
	o.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// Wait blocks until intent seq is settled and returns it. A failed delivery is
// returned together with an error wrapping ErrDeliveryFailed.
func (o *Outbox) Wait(ctx context.Context, seq uint64) (*models.SyncIntent, error) {
	ch := make(chan struct{})
	o.mu.Lock()
	o.waiters[seq] = append(o.waiters[seq], ch)
	o.mu.Unlock()

	for {
		it, err := o.Get(ctx, seq)
		if err != nil {
			o.forget(seq, ch)
			return nil, err
		}
		switch it.Status {
		case models.IntentDelivered:
			o.forget(seq, ch)
			return it, nil
		case models.IntentFailed:
			o.forget(seq, ch)
			return it, fmt.Errorf("%w: %s", ErrDeliveryFailed, it.LastError)
		}

		select {
		case <-ctx.Done():
			o.forget(seq, ch)
			return it, ctx.Err()
		case <-ch:
			// settled; loop once more to read the final row
			ch = make(chan struct{})
			o.mu.Lock()
			o.waiters[seq] = append(o.waiters[seq], ch)
			o.mu.Unlock()
		}
	}
}

func (o *Outbox) forget(seq uint64, ch chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.waiters[seq]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(o.waiters, seq)
	} else {
		o.waiters[seq] = list
	}
}

// Get loads one intent.
func (o *Outbox) Get(ctx context.Context, seq uint64) (*models.SyncIntent, error) {
	var it models.SyncIntent
	if err := o.db.WithContext(ctx).First(&it, "seq = ?", seq).Error; err != nil {
		return nil, fmt.Errorf("load intent %d: %w", seq, err)
	}
	return &it, nil
}

// Recent lists the latest intents of a namespace, newest first.
func (o *Outbox) Recent(ctx context.Context, namespace string, limit int) ([]models.SyncIntent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.SyncIntent
	err := o.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("seq desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	return out, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return truncate(strings.Join(parts, ","), 2048)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
