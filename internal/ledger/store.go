// Package ledger holds the in-memory copy of a user's transactions and profile.
//
// All state transitions happen under one mutex that is never held across a
// network call, so results are applied in completion order. Every transition
// publishes a fresh Snapshot to subscribers.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/aggregate"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/normalize"
	"github.com/rs/zerolog"
)

// Op names the store operation that produced an error.
type Op string

const (
	OpLoad          Op = "load"
	OpAdd           Op = "add"
	OpUpdate        Op = "update"
	OpDelete        Op = "delete"
	OpProfile       Op = "profile"
	OpUpdateProfile Op = "update_profile"
)

// Snapshot is a consistent, caller-owned copy of the store state.
type Snapshot struct {
	Records     []domain.TransactionRecord
	Loading     bool
	LastError   error
	LastErrorOp Op
	User        *domain.UserProfile
	Totals      aggregate.Totals
	// Version increases with every state change.
	Version uint64
}

// Store is the single source of truth for one signed-in user.
// It is safe for concurrent use.
type Store struct {
	api  API
	norm *normalize.Normalizer
	log  zerolog.Logger

	mu        sync.Mutex
	records   []domain.TransactionRecord
	user      *domain.UserProfile
	loading   int
	lastErr   error
	lastErrOp Op
	version   uint64

	// loadSeq numbers issued loads; appliedLoad is the newest one applied.
	loadSeq     uint64
	appliedLoad uint64
	// epoch changes on Reset; results from an older epoch are dropped.
	epoch uint64
	// signedOut is set by Reset and cleared by the next successful fetch.
	// Pushed records are dropped while it is set.
	signedOut bool

	subs    map[uint64]chan Snapshot
	nextSub uint64
}

// NewStore creates an empty store backed by api.
// A nil norm uses normalize.New().
func NewStore(api API, norm *normalize.Normalizer, log zerolog.Logger) *Store {
	if norm == nil {
		norm = normalize.New()
	}
	return &Store{
		api:  api,
		norm: norm,
		log:  log,
		subs: make(map[uint64]chan Snapshot),
	}
}

// Load fetches every transaction and replaces the records wholesale.
// On failure the previous records are kept and the error is recorded.
// Records that fail normalization are skipped.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq, epoch := s.loadSeq, s.epoch
	s.loading++
	s.changedLocked()
	s.mu.Unlock()

	start := time.Now()
	raws, err := s.api.ListTransactions(ctx)
	var records []domain.TransactionRecord
	if err == nil {
		records = s.normalizeAll(raws)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		s.log.Debug().Uint64("load_seq", seq).Msg("Dropping load result after reset")
		return err
	}
	s.loading--

	if seq <= s.appliedLoad {
		s.log.Debug().
			Uint64("load_seq", seq).
			Uint64("applied_seq", s.appliedLoad).
			Msg("Dropping stale load result")
		s.changedLocked()
		return err
	}

	if err != nil {
		s.failLocked(OpLoad, err)
		return fmt.Errorf("load: %w", err)
	}

	s.appliedLoad = seq
	s.records = records
	s.signedOut = false
	s.clearErrLocked(OpLoad)
	s.changedLocked()

	s.log.Info().
		Int("count", len(records)).
		Int("received", len(raws)).
		Dur("duration", time.Since(start)).
		Msg("Ledger loaded")
	return nil
}

// Add validates draft, creates it upstream and prepends the confirmed record.
// Nothing is inserted before the server confirms. When the confirmed id is
// already present, typically because the push echo arrived first, the
// existing record is returned and nothing changes.
func (s *Store) Add(ctx context.Context, draft domain.Draft) (domain.TransactionRecord, error) {
	if err := draft.Validate(); err != nil {
		return domain.TransactionRecord{}, err
	}

	epoch := s.currentEpoch()
	raw, err := s.api.CreateTransaction(ctx, draft)
	if err == nil {
		var rec domain.TransactionRecord
		if rec, err = s.normalizeOne(raw); err == nil {
			return s.commitCreated(epoch, OpAdd, rec, false), nil
		}
		err = fmt.Errorf("normalize created record: %w", err)
	}

	s.fail(epoch, OpAdd, err)
	return domain.TransactionRecord{}, fmt.Errorf("add: %w", err)
}

// Update replaces the record with the given id by the server's version of draft.
// If the id is not held locally, the updated record is prepended.
func (s *Store) Update(ctx context.Context, id string, draft domain.Draft) (domain.TransactionRecord, error) {
	if id == "" {
		return domain.TransactionRecord{}, &domain.ValidationError{Field: "id", Reason: "missing"}
	}
	if err := draft.Validate(); err != nil {
		return domain.TransactionRecord{}, err
	}

	epoch := s.currentEpoch()
	raw, err := s.api.UpdateTransaction(ctx, id, draft)
	if err == nil {
		var rec domain.TransactionRecord
		if rec, err = s.normalizeOne(raw); err == nil {
			return s.commitCreated(epoch, OpUpdate, rec, true), nil
		}
		err = fmt.Errorf("normalize updated record: %w", err)
	}

	s.fail(epoch, OpUpdate, err)
	return domain.TransactionRecord{}, fmt.Errorf("update %s: %w", id, err)
}

// Delete removes the record upstream and then locally.
// An id unknown to the store is not an error, and neither is a 404 from the API.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &domain.ValidationError{Field: "id", Reason: "missing"}
	}

	epoch := s.currentEpoch()
	if err := s.api.DeleteTransaction(ctx, id); err != nil {
		if !domain.IsNotFound(err) {
			s.fail(epoch, OpDelete, err)
			return fmt.Errorf("delete %s: %w", id, err)
		}
		s.log.Debug().Str("transaction_id", id).Msg("Transaction already deleted upstream")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return nil
	}

	s.clearErrLocked(OpDelete)
	if i := s.indexLocked(id); i >= 0 {
		s.records = slices.Delete(s.records, i, i+1)
	}
	s.changedLocked()
	return nil
}

// RefreshProfile re-fetches the signed-in user's profile.
func (s *Store) RefreshProfile(ctx context.Context) error {
	epoch := s.currentEpoch()
	raw, err := s.api.GetProfile(ctx)
	if err == nil {
		var user domain.UserProfile
		if user, err = s.norm.Profile(raw); err == nil {
			s.setUser(epoch, OpProfile, user)
			return nil
		}
	}

	s.fail(epoch, OpProfile, err)
	return fmt.Errorf("refresh profile: %w", err)
}

// UpdateProfile sends patch upstream and replaces the profile with the server's answer.
func (s *Store) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.UserProfile, error) {
	if err := patch.Validate(); err != nil {
		return domain.UserProfile{}, err
	}

	epoch := s.currentEpoch()
	raw, err := s.api.UpdateProfile(ctx, patch)
	if err == nil {
		var user domain.UserProfile
		if user, err = s.norm.Profile(raw); err == nil {
			s.setUser(epoch, OpUpdateProfile, user)
			return user, nil
		}
	}

	s.fail(epoch, OpUpdateProfile, err)
	return domain.UserProfile{}, fmt.Errorf("update profile: %w", err)
}

// ApplyRemote merges a pushed record. It inserts when the id is new and
// ignores the record otherwise. The result reports whether it inserted.
// After Reset pushed records are ignored until a Load or a profile fetch succeeds.
func (s *Store) ApplyRemote(raw normalize.RawTransaction) (bool, error) {
	rec, err := s.normalizeOne(raw)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signedOut {
		s.log.Debug().Str("transaction_id", rec.ID).Msg("Dropping pushed transaction after reset")
		return false, nil
	}
	if s.indexLocked(rec.ID) >= 0 {
		s.log.Debug().Str("transaction_id", rec.ID).Msg("Ignoring known transaction")
		return false, nil
	}
	s.records = slices.Insert(s.records, 0, rec)
	s.changedLocked()

	s.log.Debug().Str("transaction_id", rec.ID).Msg("Applied remote transaction")
	return true, nil
}

// Reset returns the store to its signed-out state.
// Operations still in flight are dropped when they complete.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.signedOut = true
	s.records = nil
	s.user = nil
	s.loading = 0
	s.lastErr = nil
	s.lastErrOp = ""
	s.appliedLoad = s.loadSeq
	s.changedLocked()
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Summary computes every aggregate over the current records.
func (s *Store) Summary(loc *time.Location, opts aggregate.SeriesOptions) aggregate.Summary {
	snap := s.Snapshot()
	return aggregate.Compute(snap.Records, snap.User, loc, opts)
}

// Subscribe returns a channel that receives the latest snapshot after every
// change, starting with the current one. Only the newest pending snapshot is
// kept, so a slow reader skips intermediate states but never blocks the store.
// The returned function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Store) commitCreated(epoch uint64, op Op, rec domain.TransactionRecord, replace bool) domain.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		s.log.Debug().Str("transaction_id", rec.ID).Str("op", string(op)).Msg("Dropping result after reset")
		return rec
	}
	s.clearErrLocked(op)
	defer s.changedLocked()

	i := s.indexLocked(rec.ID)
	switch {
	case i < 0:
		s.records = slices.Insert(s.records, 0, rec)
	case replace:
		s.records[i] = rec
	default:
		s.log.Debug().Str("transaction_id", rec.ID).Msg("Created transaction already present")
		return s.records[i]
	}
	return rec
}

func (s *Store) setUser(epoch uint64, op Op, user domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.user = &user
	s.signedOut = false
	s.clearErrLocked(op)
	s.changedLocked()
}

func (s *Store) fail(epoch uint64, op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.failLocked(op, err)
}

func (s *Store) failLocked(op Op, err error) {
	s.lastErr = err
	s.lastErrOp = op
	s.changedLocked()
	s.log.Warn().Err(err).Str("op", string(op)).Msg("Ledger operation failed")
}

func (s *Store) clearErrLocked(op Op) {
	if s.lastErrOp == op {
		s.lastErr = nil
		s.lastErrOp = ""
	}
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// changedLocked bumps the version and hands the new snapshot to every subscriber.
func (s *Store) changedLocked() {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Records:     slices.Clone(s.records),
		Loading:     s.loading > 0,
		LastError:   s.lastErr,
		LastErrorOp: s.lastErrOp,
		Version:     s.version,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	snap.Totals = aggregate.ComputeTotals(snap.Records, snap.User)
	return snap
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.records, func(r domain.TransactionRecord) bool { return r.ID == id })
}

func (s *Store) normalizeOne(raw normalize.RawTransaction) (domain.TransactionRecord, error) {
	rec, err := s.norm.Transaction(raw)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	if rec.ID == "" {
		return domain.TransactionRecord{}, &domain.ValidationError{Field: "id", Reason: "missing"}
	}
	return rec, nil
}

// normalizeAll keeps the server order and the first record of any duplicated id.
func (s *Store) normalizeAll(raws []normalize.RawTransaction) []domain.TransactionRecord {
	records := make([]domain.TransactionRecord, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, raw := range raws {
		rec, err := s.normalizeOne(raw)
		if err != nil {
			s.log.Warn().Err(err).Int("index", i).Msg("Skipping invalid transaction")
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			s.log.Warn().Str("transaction_id", rec.ID).Msg("Skipping duplicate transaction")
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}
	return records
}
