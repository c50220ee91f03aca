// Package ledger holds the transaction collection: an ordered, newest-first
// list mirrored in full to the Local Store after every mutation.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/rs/zerolog"
)

var (
	ErrValidation = errors.New("invalid transaction")
	ErrNotFound   = errors.New("transaction not found")
)

// Draft is the user-editable part of a transaction. ID and Amount are assigned
// by the repository.
type Draft struct {
	Type     models.TransactionType `json:"type"`
	Quantity float64                `json:"quantity"`
	Price    float64                `json:"price"`
	Note     string                 `json:"note"`
	User     string                 `json:"user"`
	Date     string                 `json:"date"`
}

// Repository is safe for concurrent use; every mutation is applied and
// persisted as one step under the lock.
type Repository struct {
	mu    sync.Mutex
	st    store.Store
	key   string
	items []models.Transaction
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Repository)

// WithClock overrides time.Now for id and date assignment.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// Open loads the collection stored for namespace. Unparseable data is treated
// as an empty collection.
func Open(ctx context.Context, st store.Store, namespace string, opts ...Option) (*Repository, error) {
	r := &Repository{
		st:  st,
		key: store.Key(store.KeyTransactions, namespace),
		now: time.Now,
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}

	raw, err := st.Get(ctx, r.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	var items []models.Transaction
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		r.log.Warn().Err(err).Str("key", r.key).Msg("stored transactions unreadable, starting empty")
		return r, nil
	}
	r.items = items
	return r, nil
}

// persist writes next and swaps it in only once the store accepted it.
func (r *Repository) persist(ctx context.Context, next []models.Transaction) error {
	if len(next) == 0 {
		if err := r.st.Delete(ctx, r.key); err != nil {
			return fmt.Errorf("persist transactions: %w", err)
		}
		r.items = nil
		return nil
	}
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	if err := r.st.Set(ctx, r.key, string(b)); err != nil {
		return fmt.Errorf("persist transactions: %w", err)
	}
	r.items = next
	return nil
}

func (r *Repository) build(d Draft, id int64, fallbackDate string) (models.Transaction, error) {
	if err := d.Validate(); err != nil {
		return models.Transaction{}, err
	}
	date := fallbackDate
	if strings.TrimSpace(d.Date) != "" {
		t, _ := util.ParseDate(d.Date)
		date = models.FormatDate(t)
	}
	tx := models.Transaction{
		ID:       id,
		Type:     d.Type,
		Note:     strings.TrimSpace(d.Note),
		Date:     date,
		User:     strings.TrimSpace(d.User),
		Quantity: d.Quantity,
		Price:    d.Price,
	}
	tx.Normalize()
	return tx, nil
}

// Add records one transaction and returns it with id, date and amount set.
func (r *Repository) Add(ctx context.Context, d Draft) (models.Transaction, error) {
	added, err := r.AddBulk(ctx, []Draft{d})
	if err != nil {
		return models.Transaction{}, err
	}
	return added[0], nil
}

// AddBulk records drafts in one step. Ids are now-in-milliseconds plus the
// item index, moved past the largest existing id so no two ever collide.
// Nothing is stored if any draft is invalid.
func (r *Repository) AddBulk(ctx context.Context, drafts []Draft) ([]models.Transaction, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	base := now.UnixMilli()
	for _, tx := range r.items {
		if tx.ID >= base {
			base = tx.ID + 1
		}
	}
	created := models.FormatDate(now)

	added := make([]models.Transaction, 0, len(drafts))
	for i, d := range drafts {
		tx, err := r.build(d, base+int64(i), created)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		added = append(added, tx)
	}

	next := make([]models.Transaction, 0, len(added)+len(r.items))
	next = append(next, added...)
	next = append(next, r.items...)
	if err := r.persist(ctx, next); err != nil {
		return nil, err
	}
	return added, nil
}

// Update replaces the transaction with the given id. found is false, with no
// error, when the id does not exist.
func (r *Repository) Update(ctx context.Context, id int64, d Draft) (tx models.Transaction, found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.Transaction{}, false, nil
	}
	tx, err = r.build(d, id, r.items[idx].Date)
	if err != nil {
		return models.Transaction{}, true, err
	}

	next := make([]models.Transaction, len(r.items))
	copy(next, r.items)
	next[idx] = tx
	if err := r.persist(ctx, next); err != nil {
		return models.Transaction{}, true, err
	}
	return tx, true, nil
}

// Delete removes one transaction and returns what was removed.
func (r *Repository) Delete(ctx context.Context, id int64) (models.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.Transaction{}, false, nil
	}
	removed := r.items[idx]

	next := make([]models.Transaction, 0, len(r.items)-1)
	next = append(next, r.items[:idx]...)
	next = append(next, r.items[idx+1:]...)
	if err := r.persist(ctx, next); err != nil {
		return models.Transaction{}, true, err
	}
	return removed, true, nil
}

// DeleteBulk removes every transaction whose id is listed and reports how many went.
func (r *Repository) DeleteBulk(ctx context.Context, ids []int64) (int, error) {
	set := idSet(ids)

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]models.Transaction, 0, len(r.items))
	for _, tx := range r.items {
		if _, ok := set[tx.ID]; !ok {
			next = append(next, tx)
		}
	}
	removed := len(r.items) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := r.persist(ctx, next); err != nil {
		return 0, err
	}
	return removed, nil
}

// BulkSetCategory moves every listed transaction to newType.
func (r *Repository) BulkSetCategory(ctx context.Context, ids []int64, newType models.TransactionType) (int, error) {
	if !newType.Valid() {
		return 0, fmt.Errorf("%w: unknown type %q", ErrValidation, newType)
	}
	set := idSet(ids)

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]models.Transaction, len(r.items))
	copy(next, r.items)
	updated := 0
	for i := range next {
		if _, ok := set[next[i].ID]; ok {
			next[i].Type = newType
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}
	if err := r.persist(ctx, next); err != nil {
		return 0, err
	}
	return updated, nil
}

// Clear drops the whole collection and its persisted copy.
func (r *Repository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persist(ctx, nil)
}

// Replace overwrites the collection with a snapshot (remote fetch, restore).
// Records are kept as given, amounts included.
func (r *Repository) Replace(ctx context.Context, items []models.Transaction) error {
	next := make([]models.Transaction, len(items))
	copy(next, items)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persist(ctx, next)
}

// List returns a copy of the collection, newest first.
func (r *Repository) List() []models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Transaction, len(r.items))
	copy(out, r.items)
	return out
}

// Get looks a transaction up by id.
func (r *Repository) Get(id int64) (models.Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexOf(id); idx >= 0 {
		return r.items[idx], true
	}
	return models.Transaction{}, false
}

// Search filters by case-insensitive substring over note, user and the
// shortest decimal form of amount. A blank query matches everything.
func (r *Repository) Search(query string) []models.Transaction {
	q := strings.ToLower(strings.TrimSpace(query))

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Transaction, 0, len(r.items))
	for _, tx := range r.items {
		if q == "" || matches(tx, q) {
			out = append(out, tx)
		}
	}
	return out
}

func matches(tx models.Transaction, q string) bool {
	return strings.Contains(strings.ToLower(tx.Note), q) ||
		strings.Contains(strconv.FormatFloat(tx.Amount, 'f', -1, 64), q) ||
		strings.Contains(strings.ToLower(tx.User), q)
}

func (r *Repository) indexOf(id int64) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
