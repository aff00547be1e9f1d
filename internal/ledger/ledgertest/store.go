// Package ledgertest provides an in-memory ledger store for tests. It keeps
// the conditional-write semantics of the PostgreSQL store: status updates are
// compare-and-swap, decreases are guarded and transactions are serialized and
// all-or-nothing.
package ledgertest

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"energybot/internal/ledger"
	"energybot/internal/models"
)

type bonusKey struct {
	payID int64
	refID int64
}

type userBonusKey struct {
	userID int64
	name   string
}

type state struct {
	nextID     int64
	users      map[int64]models.User
	payments   map[string]models.Payment
	refBonuses []models.ReferralBonus
	refIndex   map[bonusKey]bool
	userBonus  map[userBonusKey]models.UserBonus
	sources    map[int64]models.UserSource
	history    []models.GenerationRecord
}

func (s *state) clone() *state {
	c := &state{
		nextID:     s.nextID,
		users:      make(map[int64]models.User, len(s.users)),
		payments:   make(map[string]models.Payment, len(s.payments)),
		refBonuses: slices.Clone(s.refBonuses),
		refIndex:   make(map[bonusKey]bool, len(s.refIndex)),
		userBonus:  make(map[userBonusKey]models.UserBonus, len(s.userBonus)),
		sources:    make(map[int64]models.UserSource, len(s.sources)),
		history:    slices.Clone(s.history),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.refIndex {
		c.refIndex[k] = v
	}
	for k, v := range s.userBonus {
		c.userBonus[k] = v
	}
	for k, v := range s.sources {
		c.sources[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store is an in-memory ledger.Store.
type Store struct {
	mu    sync.Mutex
	st    *state
	fails map[string]error
	now   func() time.Time

	// OnTxBegin, when set, is called with the store unlocked right before a
	// transaction takes the lock. Tests use it to line up racing callers.
	OnTxBegin func()
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			users:     make(map[int64]models.User),
			payments:  make(map[string]models.Payment),
			refIndex:  make(map[bonusKey]bool),
			userBonus: make(map[userBonusKey]models.UserBonus),
			sources:   make(map[int64]models.UserSource),
		},
		fails: make(map[string]error),
		now:   time.Now,
	}
}

// SetClock replaces the clock used for created_at, completed_at and
// history timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of the named method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) do(method string, fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFail(method); err != nil {
		return err
	}
	return fn(s.st)
}

func (s *Store) takeFail(method string) error {
	if err, ok := s.fails[method]; ok {
		delete(s.fails, method)
		return err
	}
	return nil
}

// InTx serializes transactions and applies fn to a copy of the state that
// replaces the live one only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if s.OnTxBegin != nil {
		s.OnTxBegin()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&txView{store: s, st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// txView runs ledger operations against a transaction's private state.
// The store lock is already held.
type txView struct {
	store *Store
	st    *state
}

func (t *txView) run(method string, fn func(st *state) error) error {
	if err := t.store.takeFail(method); err != nil {
		return err
	}
	return fn(t.st)
}

// --- seeding helpers ---

// AddUser inserts u as is, assigning an id when u.ID is zero.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.st.id()
	} else if u.ID > s.st.nextID {
		s.st.nextID = u.ID
	}
	if u.Segment == "" {
		u.Segment = models.SegmentLead
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.UpdatedAt = u.CreatedAt
	s.st.users[u.ID] = u
	return u
}

// User returns the stored user or fails the lookup with ok == false.
func (s *Store) User(id int64) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	return u, ok
}

// Payment returns the stored payment by gateway id.
func (s *Store) Payment(externalID string) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.payments[externalID]
	return p, ok
}

// ReferralBonuses returns every recorded referral bonus.
func (s *Store) ReferralBonuses() []models.ReferralBonus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.refBonuses)
}

// History returns every generation record.
func (s *Store) History() []models.GenerationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.history)
}

// Source returns the recorded start source of the user.
func (s *Store) Source(userID int64) (models.UserSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.st.sources[userID]
	return src, ok
}

// --- Store methods ---

func (s *Store) InsertPayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	err := s.do("InsertPayment", func(st *state) error {
		if _, ok := st.payments[p.ExternalPaymentID]; ok {
			return ledger.ErrDuplicateExternalID
		}
		if _, ok := st.users[p.UserID]; !ok {
			return fmt.Errorf("insert payment: user %d: %w", p.UserID, ledger.ErrUserNotFound)
		}
		p.ID = st.id()
		if p.Status == "" {
			p.Status = models.PaymentPending
		}
		p.CreatedAt = s.now()
		st.payments[p.ExternalPaymentID] = p
		return nil
	})
	return p, err
}

func (s *Store) ListPendingPayments(ctx context.Context) ([]models.Payment, error) {
	return s.listByStatus("ListPendingPayments", models.PaymentPending)
}

func (s *Store) ListSucceededPayments(ctx context.Context) ([]models.Payment, error) {
	return s.listByStatus("ListSucceededPayments", models.PaymentSucceeded)
}

func (s *Store) listByStatus(method string, status models.PaymentStatus) ([]models.Payment, error) {
	var out []models.Payment
	err := s.do(method, func(st *state) error {
		for _, p := range st.payments {
			if p.Status == status {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ListPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := s.do("ListPayments", func(st *state) error {
		for _, p := range st.payments {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *Store) ListReferralBonuses(ctx context.Context, limit int) ([]models.ReferralBonus, error) {
	var out []models.ReferralBonus
	err := s.do("ListReferralBonuses", func(st *state) error {
		for i := len(st.refBonuses) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, st.refBonuses[i])
		}
		return nil
	})
	return out, err
}

func (s *Store) GetUserByExternalID(ctx context.Context, telegramID int64) (models.User, error) {
	var u models.User
	err := s.do("GetUserByExternalID", func(st *state) error {
		for _, candidate := range st.users {
			if candidate.TelegramID == telegramID {
				u = candidate
				return nil
			}
		}
		return ledger.ErrUserNotFound
	})
	return u, err
}

func (s *Store) InsertUser(ctx context.Context, u models.User) (models.User, bool, error) {
	created := false
	err := s.do("InsertUser", func(st *state) error {
		for _, existing := range st.users {
			if existing.TelegramID == u.TelegramID {
				u = existing
				return nil
			}
		}
		u.ID = st.id()
		u.Balance = 0
		u.ReferredBy = sql.NullInt64{}
		if u.Segment == "" {
			u.Segment = models.SegmentLead
		}
		u.CreatedAt = s.now()
		u.UpdatedAt = u.CreatedAt
		st.users[u.ID] = u
		created = true
		return nil
	})
	return u, created, err
}

func (s *Store) SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	set := false
	err := s.do("SetReferrer", func(st *state) error {
		u, ok := st.users[userID]
		if !ok || u.ReferredBy.Valid || userID == referrerID {
			return nil
		}
		u.ReferredBy = sql.NullInt64{Int64: referrerID, Valid: true}
		st.users[userID] = u
		set = true
		return nil
	})
	return set, err
}

func (s *Store) InsertUserSource(ctx context.Context, userID int64, source string) (bool, error) {
	inserted := false
	err := s.do("InsertUserSource", func(st *state) error {
		if _, ok := st.sources[userID]; ok {
			return nil
		}
		st.sources[userID] = models.UserSource{ID: st.id(), UserID: userID, Source: source, CreatedAt: s.now()}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *Store) ReferralSummary(ctx context.Context, userID int64) (models.ReferralSummary, error) {
	var sum models.ReferralSummary
	err := s.do("ReferralSummary", func(st *state) error {
		for _, u := range st.users {
			if u.ReferredBy.Valid && u.ReferredBy.Int64 == userID {
				sum.Invited++
			}
		}
		for _, b := range st.refBonuses {
			if b.ReferrerUserID == userID {
				sum.BonusEarned += b.Amount
			}
		}
		return nil
	})
	return sum, err
}

func (s *Store) GetUserBonus(ctx context.Context, userID int64, name string) (models.UserBonus, bool, error) {
	var b models.UserBonus
	found := false
	err := s.do("GetUserBonus", func(st *state) error {
		b, found = st.userBonus[userBonusKey{userID, name}]
		return nil
	})
	return b, found, err
}

func (s *Store) LastGeneration(ctx context.Context, userID int64, genType string) (models.GenerationRecord, bool, error) {
	var rec models.GenerationRecord
	found := false
	err := s.do("LastGeneration", func(st *state) error {
		for i := len(st.history) - 1; i >= 0; i-- {
			r := st.history[i]
			if r.UserID == userID && r.GenType == genType && r.GenSuccessful {
				rec, found = r, true
				return nil
			}
		}
		return nil
	})
	return rec, found, err
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{
		Segments: make(map[models.Segment]int),
		Payments: models.PaymentStats{ByStatus: make(map[models.PaymentStatus]int)},
	}
	err := s.do("Stats", func(st *state) error {
		for _, u := range st.users {
			stats.TotalUsers++
			stats.Segments[u.Segment]++
		}
		for _, p := range st.payments {
			stats.Payments.Total++
			stats.Payments.ByStatus[p.Status]++
			if p.Status == models.PaymentCompleted {
				stats.Payments.RubReceived += p.RubAmount
			}
		}
		for _, b := range st.refBonuses {
			stats.Bonuses += b.Amount
		}
		return nil
	})
	return stats, err
}

// Tx methods on the store commit immediately.

func (s *Store) FindPaymentByExternalID(ctx context.Context, externalID string) (models.Payment, error) {
	var p models.Payment
	err := s.do("FindPaymentByExternalID", func(st *state) (err error) {
		p, err = findPayment(st, externalID)
		return err
	})
	return p, err
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, externalID string, from []models.PaymentStatus, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool, error) {
	var p models.Payment
	changed := false
	err := s.do("UpdatePaymentStatus", func(st *state) error {
		p, changed = updateStatus(st, s.now, externalID, from, to, completedAt)
		return nil
	})
	return p, changed, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.do("GetUser", func(st *state) (err error) {
		u, err = getUser(st, id)
		return err
	})
	return u, err
}

func (s *Store) IncreaseBalance(ctx context.Context, userID, amount int64) (int64, error) {
	var b int64
	err := s.do("IncreaseBalance", func(st *state) (err error) {
		b, err = increase(st, userID, amount)
		return err
	})
	return b, err
}

func (s *Store) ConditionalDecreaseBalance(ctx context.Context, userID, amount int64) (int64, error) {
	var b int64
	err := s.do("ConditionalDecreaseBalance", func(st *state) (err error) {
		b, err = decrease(st, userID, amount)
		return err
	})
	return b, err
}

func (s *Store) UpdateUserFields(ctx context.Context, userID int64, f models.UserFields) error {
	return s.do("UpdateUserFields", func(st *state) error {
		return updateFields(st, userID, f)
	})
}

func (s *Store) AdvanceSegment(ctx context.Context, userID int64, seg models.Segment) error {
	return s.do("AdvanceSegment", func(st *state) error {
		advance(st, userID, seg)
		return nil
	})
}

func (s *Store) InsertReferralBonus(ctx context.Context, b models.ReferralBonus) (bool, error) {
	ok := false
	err := s.do("InsertReferralBonus", func(st *state) error {
		ok = insertBonus(st, s.now, b)
		return nil
	})
	return ok, err
}

func (s *Store) GrantUserBonus(ctx context.Context, userID int64, name string, amount int64) (bool, error) {
	ok := false
	err := s.do("GrantUserBonus", func(st *state) error {
		ok = grant(st, s.now, userID, name, amount)
		return nil
	})
	return ok, err
}

func (s *Store) InsertGenerationRecord(ctx context.Context, r models.GenerationRecord) error {
	return s.do("InsertGenerationRecord", func(st *state) error {
		appendHistory(st, s.now, r)
		return nil
	})
}

// --- txView: same operations inside a transaction ---

func (t *txView) FindPaymentByExternalID(ctx context.Context, externalID string) (models.Payment, error) {
	var p models.Payment
	err := t.run("FindPaymentByExternalID", func(st *state) (err error) {
		p, err = findPayment(st, externalID)
		return err
	})
	return p, err
}

func (t *txView) UpdatePaymentStatus(ctx context.Context, externalID string, from []models.PaymentStatus, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool, error) {
	var p models.Payment
	changed := false
	err := t.run("UpdatePaymentStatus", func(st *state) error {
		p, changed = updateStatus(st, t.store.now, externalID, from, to, completedAt)
		return nil
	})
	return p, changed, err
}

func (t *txView) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := t.run("GetUser", func(st *state) (err error) {
		u, err = getUser(st, id)
		return err
	})
	return u, err
}

func (t *txView) IncreaseBalance(ctx context.Context, userID, amount int64) (int64, error) {
	var b int64
	err := t.run("IncreaseBalance", func(st *state) (err error) {
		b, err = increase(st, userID, amount)
		return err
	})
	return b, err
}

func (t *txView) ConditionalDecreaseBalance(ctx context.Context, userID, amount int64) (int64, error) {
	var b int64
	err := t.run("ConditionalDecreaseBalance", func(st *state) (err error) {
		b, err = decrease(st, userID, amount)
		return err
	})
	return b, err
}

func (t *txView) UpdateUserFields(ctx context.Context, userID int64, f models.UserFields) error {
	return t.run("UpdateUserFields", func(st *state) error {
		return updateFields(st, userID, f)
	})
}

func (t *txView) AdvanceSegment(ctx context.Context, userID int64, seg models.Segment) error {
	return t.run("AdvanceSegment", func(st *state) error {
		advance(st, userID, seg)
		return nil
	})
}

func (t *txView) InsertReferralBonus(ctx context.Context, b models.ReferralBonus) (bool, error) {
	ok := false
	err := t.run("InsertReferralBonus", func(st *state) error {
		ok = insertBonus(st, t.store.now, b)
		return nil
	})
	return ok, err
}

func (t *txView) GrantUserBonus(ctx context.Context, userID int64, name string, amount int64) (bool, error) {
	ok := false
	err := t.run("GrantUserBonus", func(st *state) error {
		ok = grant(st, t.store.now, userID, name, amount)
		return nil
	})
	return ok, err
}

func (t *txView) InsertGenerationRecord(ctx context.Context, r models.GenerationRecord) error {
	return t.run("InsertGenerationRecord", func(st *state) error {
		appendHistory(st, t.store.now, r)
		return nil
	})
}

// --- shared state mutations ---

func findPayment(st *state, externalID string) (models.Payment, error) {
	p, ok := st.payments[externalID]
	if !ok {
		return models.Payment{}, ledger.ErrPaymentNotFound
	}
	return p, nil
}

func updateStatus(st *state, now func() time.Time, externalID string, from []models.PaymentStatus, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool) {
	p, ok := st.payments[externalID]
	if !ok || !slices.Contains(from, p.Status) {
		return models.Payment{}, false
	}
	p.Status = to
	if to == models.PaymentCompleted {
		at := now()
		if completedAt != nil {
			at = *completedAt
		}
		p.CompletedAt = sql.NullTime{Time: at, Valid: true}
	}
	st.payments[externalID] = p
	return p, true
}

func getUser(st *state, id int64) (models.User, error) {
	u, ok := st.users[id]
	if !ok {
		return models.User{}, ledger.ErrUserNotFound
	}
	return u, nil
}

func increase(st *state, userID, amount int64) (int64, error) {
	u, ok := st.users[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	u.Balance += amount
	st.users[userID] = u
	return u.Balance, nil
}

func decrease(st *state, userID, amount int64) (int64, error) {
	u, ok := st.users[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	if u.Balance < amount {
		return 0, ledger.ErrInsufficientBalance
	}
	u.Balance -= amount
	st.users[userID] = u
	return u.Balance, nil
}

func updateFields(st *state, userID int64, f models.UserFields) error {
	u, ok := st.users[userID]
	if !ok {
		return ledger.ErrUserNotFound
	}
	setStr := func(dst *sql.NullString, v *string) {
		if v != nil {
			*dst = sql.NullString{String: *v, Valid: true}
		}
	}
	setStr(&u.Username, f.Username)
	setStr(&u.FirstName, f.FirstName)
	setStr(&u.LastName, f.LastName)
	setStr(&u.Name, f.Name)
	setStr(&u.Sex, f.Sex)
	setStr(&u.Email, f.Email)
	if f.Birthday != nil {
		u.Birthday = sql.NullTime{Time: *f.Birthday, Valid: true}
	}
	if f.Segment != nil {
		u.Segment = *f.Segment
	}
	st.users[userID] = u
	return nil
}

func advance(st *state, userID int64, seg models.Segment) {
	u, ok := st.users[userID]
	if !ok || !slices.Contains(seg.Below(), u.Segment) {
		return
	}
	u.Segment = seg
	st.users[userID] = u
}

func insertBonus(st *state, now func() time.Time, b models.ReferralBonus) bool {
	if b.PayID.Valid {
		key := bonusKey{payID: b.PayID.Int64, refID: b.ReferrerUserID}
		if st.refIndex[key] {
			return false
		}
		st.refIndex[key] = true
	}
	b.ID = st.id()
	b.CreatedAt = now()
	st.refBonuses = append(st.refBonuses, b)
	return true
}

func grant(st *state, now func() time.Time, userID int64, name string, amount int64) bool {
	key := userBonusKey{userID, name}
	b, ok := st.userBonus[key]
	if ok && b.Deposited {
		return false
	}
	if !ok {
		b = models.UserBonus{ID: st.id(), UserID: userID, BonusName: name, Amount: amount, CreatedAt: now()}
	}
	b.Deposited = true
	st.userBonus[key] = b
	return true
}

func appendHistory(st *state, now func() time.Time, r models.GenerationRecord) {
	r.ID = st.id()
	r.Timestamp = now()
	st.history = append(st.history, r)
}
