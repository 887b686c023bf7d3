package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookbridge/library-requests/internal/model"
)

// fakeStore is an in-memory stand-in for the SQL repositories.  It
// emulates row-level exclusive locks with a one-slot channel per row
// and buffers writes inside the transaction so they only become
// visible on Commit, which is the behaviour the engine relies on.
type fakeStore struct {
	mu       sync.Mutex
	requests map[uint64]model.Request
	books    map[uint64]model.Book
	locks    map[string]chan struct{}

	beginCalls   int
	catalogCalls int

	decrementErr error // injected failure for the decrement step
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests: make(map[uint64]model.Request),
		books:    make(map[uint64]model.Book),
		locks:    make(map[string]chan struct{}),
	}
}

type fakeTx struct {
	s      *fakeStore
	held   []string
	staged []func(s *fakeStore)
	done   bool
}

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	s.beginCalls++
	s.mu.Unlock()
	return &fakeTx{s: s}, nil
}

func (t *fakeTx) Commit() error {
	if t.done {
		return errors.New("tx already finished")
	}
	t.done = true
	t.s.mu.Lock()
	for _, apply := range t.staged {
		apply(t.s)
	}
	t.s.mu.Unlock()
	t.release()
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.staged = nil
	t.release()
	return nil
}

func (t *fakeTx) release() {
	t.s.mu.Lock()
	chans := make([]chan struct{}, 0, len(t.held))
	for _, key := range t.held {
		chans = append(chans, t.s.locks[key])
	}
	t.s.mu.Unlock()
	for _, ch := range chans {
		<-ch
	}
	t.held = nil
}

// acquire blocks until the row lock for key is free or ctx expires.
func (t *fakeTx) acquire(ctx context.Context, key string) error {
	for _, k := range t.held {
		if k == key {
			return nil
		}
	}
	t.s.mu.Lock()
	ch, ok := t.s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.s.locks[key] = ch
	}
	t.s.mu.Unlock()
	select {
	case ch <- struct{}{}:
		t.held = append(t.held, key)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStore) LockRequest(ctx context.Context, tx Tx, id uint64) (*model.Request, error) {
	ft := tx.(*fakeTx)
	if err := ft.acquire(ctx, fmt.Sprintf("req:%d", id)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &req, nil
}

func (s *fakeStore) UpdateRequestStatus(ctx context.Context, tx Tx, id uint64, status model.Status) (*model.Request, error) {
	ft := tx.(*fakeTx)
	ft.staged = append(ft.staged, func(s *fakeStore) {
		req := s.requests[id]
		req.Status = status
		s.requests[id] = req
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.requests[id]
	req.Status = status
	return &req, nil
}

func (s *fakeStore) LockBookByID(ctx context.Context, tx Tx, id uint64) (*model.Book, error) {
	s.mu.Lock()
	s.catalogCalls++
	_, ok := s.books[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrBookNotFound
	}
	ft := tx.(*fakeTx)
	if err := ft.acquire(ctx, fmt.Sprintf("book:%d", id)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book := s.books[id]
	return &book, nil
}

func (s *fakeStore) LockBookByTitle(ctx context.Context, tx Tx, title string) (*model.Book, error) {
	s.mu.Lock()
	s.catalogCalls++
	var id uint64
	found := false
	for _, b := range s.books {
		if strings.EqualFold(b.Title, title) {
			id, found = b.ID, true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return nil, ErrBookNotFound
	}
	ft := tx.(*fakeTx)
	if err := ft.acquire(ctx, fmt.Sprintf("book:%d", id)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book := s.books[id]
	return &book, nil
}

func (s *fakeStore) DecrementCopies(ctx context.Context, tx Tx, bookID uint64) error {
	if s.decrementErr != nil {
		return s.decrementErr
	}
	ft := tx.(*fakeTx)
	ft.staged = append(ft.staged, func(s *fakeStore) {
		book := s.books[bookID]
		book.AvailableCopies--
		s.books[bookID] = book
	})
	return nil
}

func (s *fakeStore) book(id uint64) model.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[id]
}

func (s *fakeStore) request(id uint64) model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func seedDune(s *fakeStore, copies int) {
	s.books[1] = model.Book{ID: 1, Title: "Dune", Author: "Frank Herbert", AvailableCopies: copies}
}

func seedRequest(s *fakeStore, id uint64, title, by string) {
	s.requests[id] = model.Request{ID: id, Title: title, RequestedBy: by, RequestedOn: time.Now().UTC(), Status: model.StatusPending}
}

func newTestEngine(s *fakeStore) *Engine {
	return NewEngine(s, s, s, DefaultLockWait)
}

func TestTransitionApprove(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	eng := newTestEngine(s)

	req, noop, err := eng.Transition(context.Background(), 10, model.StatusApproved)
	require.NoError(t, err)
	assert.False(t, noop)
	assert.Equal(t, model.StatusApproved, req.Status)
	assert.Equal(t, model.StatusApproved, s.request(10).Status)
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestTransitionApproveIsIdempotent(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	eng := newTestEngine(s)

	_, noop, err := eng.Transition(context.Background(), 10, model.StatusApproved)
	require.NoError(t, err)
	require.False(t, noop)

	// Re-applying the same target must not touch the inventory again.
	req, noop, err := eng.Transition(context.Background(), 10, model.StatusApproved)
	require.NoError(t, err)
	assert.True(t, noop)
	assert.Equal(t, model.StatusApproved, req.Status)
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestTransitionApproveExhausted(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 0)
	seedRequest(s, 11, "Dune", "bob")
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 11, model.StatusApproved)
	require.ErrorIs(t, err, ErrNoCopies)
	assert.Equal(t, model.StatusPending, s.request(11).Status, "failed approval must leave the request Pending")
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestTransitionInvalidStatus(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 10, model.Status("Purchased"))
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 0, s.beginCalls, "invalid status must fail before any store access")
	assert.Equal(t, model.StatusPending, s.request(10).Status)
}

func TestTransitionRequestNotFound(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 999, model.StatusApproved)
	require.ErrorIs(t, err, ErrRequestNotFound)
	assert.Equal(t, 0, s.catalogCalls, "missing request must fail before any catalog access")
}

func TestTransitionBookNotFound(t *testing.T) {
	s := newFakeStore()
	seedRequest(s, 12, "The Dispossessed", "carol")
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 12, model.StatusApproved)
	require.ErrorIs(t, err, ErrBookNotFound)
	assert.Equal(t, model.StatusPending, s.request(12).Status)
}

func TestTransitionRejectSkipsCatalog(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	eng := newTestEngine(s)

	req, noop, err := eng.Transition(context.Background(), 10, model.StatusRejected)
	require.NoError(t, err)
	assert.False(t, noop)
	assert.Equal(t, model.StatusRejected, req.Status)
	assert.Equal(t, 0, s.catalogCalls)
	assert.Equal(t, 1, s.book(1).AvailableCopies)
}

func TestTransitionNoReclaimOnReversal(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 10, model.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, 0, s.book(1).AvailableCopies)

	// Pulling an approved request back does not return the copy.
	req, noop, err := eng.Transition(context.Background(), 10, model.StatusRejected)
	require.NoError(t, err)
	assert.False(t, noop)
	assert.Equal(t, model.StatusRejected, req.Status)
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestTransitionRollsBackOnDecrementFailure(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	s.decrementErr = errors.New("storage failure")
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 10, model.StatusApproved)
	require.Error(t, err)
	assert.Equal(t, model.StatusPending, s.request(10).Status)
	assert.Equal(t, 1, s.book(1).AvailableCopies)
}

func TestTransitionTitleMatchIsCaseInsensitive(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "dUnE", "alice")
	eng := newTestEngine(s)

	req, _, err := eng.Transition(context.Background(), 10, model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, req.Status)
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestTransitionPrefersResolvedBookID(t *testing.T) {
	s := newFakeStore()
	// Two books share a title; the request was resolved to the second
	// one at creation time and the approval must honour that.
	s.books[1] = model.Book{ID: 1, Title: "Solaris", AvailableCopies: 5}
	s.books[2] = model.Book{ID: 2, Title: "Solaris", AvailableCopies: 1}
	bookID := uint64(2)
	s.requests[20] = model.Request{ID: 20, BookID: &bookID, Title: "Solaris", RequestedBy: "dave", Status: model.StatusPending}
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 20, model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 0, s.book(2).AvailableCopies)
	assert.Equal(t, 5, s.book(1).AvailableCopies)
}

func TestTransitionFallsBackToTitleOnStaleBookID(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	stale := uint64(77) // resolved id no longer exists
	s.requests[21] = model.Request{ID: 21, BookID: &stale, Title: "Dune", RequestedBy: "erin", Status: model.StatusPending}
	eng := newTestEngine(s)

	_, _, err := eng.Transition(context.Background(), 21, model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestTransitionLockWaitExceeded(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 1)
	seedRequest(s, 10, "Dune", "alice")
	eng := NewEngine(s, s, s, 50*time.Millisecond)

	// Hold the request row lock from a competing transaction.
	blocker, err := s.Begin(context.Background())
	require.NoError(t, err)
	_, err = s.LockRequest(context.Background(), blocker, 10)
	require.NoError(t, err)
	defer blocker.Rollback()

	_, _, err = eng.Transition(context.Background(), 10, model.StatusApproved)
	require.ErrorIs(t, err, ErrLockWait)
	assert.Equal(t, model.StatusPending, s.request(10).Status)
	assert.Equal(t, 1, s.book(1).AvailableCopies)
}

func TestConcurrentApprovalsNeverOversubscribe(t *testing.T) {
	const copies = 3
	const callers = 8

	s := newFakeStore()
	seedDune(s, copies)
	for i := uint64(1); i <= callers; i++ {
		seedRequest(s, i, "Dune", fmt.Sprintf("user-%d", i))
	}
	eng := newTestEngine(s)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = eng.Transition(context.Background(), uint64(i+1), model.StatusApproved)
		}(i)
	}
	wg.Wait()

	approved, exhausted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrNoCopies):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, copies, approved, "exactly one approval per available copy")
	assert.Equal(t, callers-copies, exhausted)
	assert.Equal(t, 0, s.book(1).AvailableCopies)
}

func TestConcurrentSameRequestDecrementsOnce(t *testing.T) {
	s := newFakeStore()
	seedDune(s, 5)
	seedRequest(s, 10, "Dune", "alice")
	eng := newTestEngine(s)

	const callers = 4
	var wg sync.WaitGroup
	noops := make([]bool, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, noops[i], errs[i] = eng.Transition(context.Background(), 10, model.StatusApproved)
		}(i)
	}
	wg.Wait()

	mutations := 0
	for i, noop := range noops {
		require.NoError(t, errs[i])
		if !noop {
			mutations++
		}
	}
	assert.Equal(t, 1, mutations, "exactly one caller observes the pre-transition state")
	assert.Equal(t, 4, s.book(1).AvailableCopies)
}
