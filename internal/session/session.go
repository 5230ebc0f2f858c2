// Package session ties a credential to a ledger store and its push channel.
//
// While the credential is present the channel stays open and feeds the store.
// When the credential disappears, whether by logout or because the server
// rejected it, the channel is closed and the store is reset.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/credential"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/realtime"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Session is one signed-in period. It is safe for concurrent use.
type Session struct {
	store   *ledger.Store
	creds   *credential.Store
	channel *realtime.Channel
	log     zerolog.Logger

	stopWatch func()
	teardown  sync.Once
}

// Open starts the push channel for the current credential and begins
// watching the credential. Call Sync afterwards for the initial data.
// opts.OnAuthFailure is wrapped, not replaced; opts.Logger is set to log.
func Open(ctx context.Context, baseURL string, store *ledger.Store, creds *credential.Store, opts realtime.Options, log zerolog.Logger) (*Session, error) {
	if _, ok := creds.Token(); !ok {
		return nil, &domain.AuthError{Op: "open session", Err: domain.ErrNoCredential}
	}

	s := &Session{
		store: store,
		creds: creds,
		log:   log,
	}

	userHook := opts.OnAuthFailure
	opts.OnAuthFailure = func(err error) {
		if userHook != nil {
			userHook(err)
		}
		creds.Clear()
	}
	opts.Logger = log
	s.channel = realtime.New(baseURL, creds, store, opts)

	changes, stop := creds.Watch()
	s.stopWatch = stop

	if err := s.channel.Start(ctx); err != nil {
		stop()
		return nil, fmt.Errorf("start push channel: %w", err)
	}
	go s.watch(changes)

	log.Info().Msg("Session opened")
	return s, nil
}

// Sync loads the session's transactions and profile.
func (s *Session) Sync(ctx context.Context) error {
	return Sync(logger.WithContext(ctx, s.log), s.store)
}

// Sync loads the transactions and the profile of store concurrently.
// Both run to completion; the first error is returned.
func Sync(ctx context.Context, store *ledger.Store) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	var g errgroup.Group
	g.Go(func() error { return store.Load(ctx) })
	g.Go(func() error { return store.RefreshProfile(ctx) })
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Sync incomplete")
		return fmt.Errorf("sync: %w", err)
	}

	snap := store.Snapshot()
	log.Info().
		Int("records", len(snap.Records)).
		Str("balance", snap.Totals.Balance.StringFixed(2)).
		Dur("duration", time.Since(start)).
		Msg("Ledger synced")
	return nil
}

// Store returns the ledger store fed by this session.
func (s *Session) Store() *ledger.Store {
	return s.store
}

// ChannelState reports the push channel's state.
func (s *Session) ChannelState() realtime.State {
	return s.channel.State()
}

// Done is closed once the push channel has stopped for good.
func (s *Session) Done() <-chan struct{} {
	return s.channel.Done()
}

// Logout drops the credential, closes the channel and resets the store.
func (s *Session) Logout() {
	s.creds.Clear()
	s.end(true)
}

// Close stops the channel but keeps the store contents and the credential.
// It waits for the channel to finish or ctx to end.
func (s *Session) Close(ctx context.Context) error {
	s.end(false)
	select {
	case <-s.channel.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) watch(changes <-chan struct{}) {
	for range changes {
		if _, ok := s.creds.Token(); !ok {
			s.log.Info().Msg("Credential removed, ending session")
			s.end(true)
			return
		}
	}
}

// end must not run on the channel goroutine: with reset it waits for that
// goroutine to stop so nothing it applies can land after Reset.
func (s *Session) end(reset bool) {
	s.teardown.Do(func() {
		s.stopWatch()
		s.channel.Close()
		if reset {
			<-s.channel.Done()
			s.store.Reset()
		}
	})
}

// Ensure the store can be driven by the push channel.
var _ realtime.Applier = (*ledger.Store)(nil)
