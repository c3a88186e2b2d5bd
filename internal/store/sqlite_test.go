package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ndmitriev/ratepulse/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestEnsureInstitutionReturnsSameID(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	first, err := repo.EnsureInstitution(ctx, "Tech U")
	if err != nil {
		t.Fatalf("EnsureInstitution failed: %v", err)
	}
	second, err := repo.EnsureInstitution(ctx, "Tech U")
	if err != nil {
		t.Fatalf("EnsureInstitution failed on second call: %v", err)
	}
	if first != second {
		t.Errorf("expected same id, got %d and %d", first, second)
	}

	entries, err := repo.ListInstitutions(ctx)
	if err != nil {
		t.Fatalf("ListInstitutions failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 institution, got %d", len(entries))
	}
}

func TestEnsureInstitutionConcurrent(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	const workers = 10
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids[n], errs[n] = repo.EnsureInstitution(ctx, "Tech U")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %d, want %d", i, ids[i], ids[0])
		}
	}

	entries, err := repo.ListInstitutions(ctx)
	if err != nil {
		t.Fatalf("ListInstitutions failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 institution after concurrent ensure, got %d", len(entries))
	}
}

func TestNameIsCaseAndWhitespaceSignificant(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	a, err := repo.EnsureInstitution(ctx, "Tech U")
	if err != nil {
		t.Fatalf("EnsureInstitution failed: %v", err)
	}
	b, err := repo.EnsureInstitution(ctx, "tech u")
	if err != nil {
		t.Fatalf("EnsureInstitution failed: %v", err)
	}
	if a == b {
		t.Error("expected distinct rows for names differing in case")
	}
}

func TestLinkTopicToInstitution(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	instID, err := repo.EnsureInstitution(ctx, "Tech U")
	if err != nil {
		t.Fatalf("EnsureInstitution failed: %v", err)
	}
	topicID, err := repo.EnsureTopic(ctx, "Algorithms")
	if err != nil {
		t.Fatalf("EnsureTopic failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.LinkTopicToInstitution(ctx, instID, topicID); err != nil {
			t.Fatalf("LinkTopicToInstitution attempt %d failed: %v", i, err)
		}
	}

	topics, err := repo.ListTopicsForInstitution(ctx, instID)
	if err != nil {
		t.Fatalf("ListTopicsForInstitution failed: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("expected 1 linked topic, got %d", len(topics))
	}
	if topics[0].Name != "Algorithms" {
		t.Errorf("expected Algorithms, got %q", topics[0].Name)
	}

	other, err := repo.EnsureInstitution(ctx, "State Poly")
	if err != nil {
		t.Fatalf("EnsureInstitution failed: %v", err)
	}
	topics, err = repo.ListTopicsForInstitution(ctx, other)
	if err != nil {
		t.Fatalf("ListTopicsForInstitution failed: %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("expected no topics for unlinked institution, got %d", len(topics))
	}
}

func TestLookupsReturnNotFound(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if _, err := repo.InstitutionName(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("InstitutionName: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.TopicName(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TopicName: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.InstitutionID(ctx, "nowhere"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("InstitutionID: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.TopicID(ctx, "nothing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TopicID: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetSession(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetSession: expected ErrNotFound, got %v", err)
	}
}

func TestEnsureSessionIdempotent(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := repo.EnsureSession(ctx, 100); err != nil {
			t.Fatalf("EnsureSession attempt %d failed: %v", i, err)
		}
	}

	s, err := repo.GetSession(ctx, 100)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.Ready || s.InstitutionID != nil || s.TopicID != nil || s.Awaiting != domain.AwaitNone {
		t.Errorf("expected pristine session, got %+v", s)
	}

	ids, err := repo.ListSessionUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListSessionUserIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 100 {
		t.Errorf("expected single user id 100, got %v", ids)
	}
}

func TestUpdateSessionPartialPatch(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.EnsureSession(ctx, 100); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	instID, err := repo.EnsureInstitution(ctx, "Tech U")
	if err != nil {
		t.Fatalf("EnsureInstitution failed: %v", err)
	}

	if err := repo.UpdateSession(ctx, 100, domain.SessionPatch{InstitutionID: &instID}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	s, err := repo.GetSession(ctx, 100)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.InstitutionID == nil || *s.InstitutionID != instID {
		t.Errorf("expected institution %d, got %v", instID, s.InstitutionID)
	}
	if s.Ready {
		t.Error("patch without Ready must not change the ready flag")
	}

	ready := true
	if err := repo.UpdateSession(ctx, 100, domain.SessionPatch{Ready: &ready}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	s, err = repo.GetSession(ctx, 100)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !s.Ready {
		t.Error("expected ready after patch")
	}
	if s.InstitutionID == nil || *s.InstitutionID != instID {
		t.Error("ready patch must not clear institution")
	}
}

func TestUpdateSessionUnknownUser(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)

	ready := true
	err := repo.UpdateSession(context.Background(), 999, domain.SessionPatch{Ready: &ready})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAndClearAwaiting(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.EnsureSession(ctx, 100); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}

	requestID := int64(41)
	if err := repo.SetAwaiting(ctx, 100, domain.AwaitInstitution, 42, &requestID); err != nil {
		t.Fatalf("SetAwaiting failed: %v", err)
	}

	s, err := repo.GetSession(ctx, 100)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.Awaiting != domain.AwaitInstitution {
		t.Errorf("expected awaiting institution, got %v", s.Awaiting)
	}
	if s.ResponseMessageID == nil || *s.ResponseMessageID != 42 {
		t.Errorf("expected response message 42, got %v", s.ResponseMessageID)
	}
	if s.RequestMessageID == nil || *s.RequestMessageID != 41 {
		t.Errorf("expected request message 41, got %v", s.RequestMessageID)
	}

	// A prompt with no originating request stores NULL.
	if err := repo.SetAwaiting(ctx, 100, domain.AwaitTopic, 43, nil); err != nil {
		t.Fatalf("SetAwaiting failed: %v", err)
	}
	s, err = repo.GetSession(ctx, 100)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.RequestMessageID != nil {
		t.Errorf("expected nil request message id, got %v", *s.RequestMessageID)
	}

	if err := repo.ClearAwaiting(ctx, 100); err != nil {
		t.Fatalf("ClearAwaiting failed: %v", err)
	}
	s, err = repo.GetSession(ctx, 100)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.Awaiting != domain.AwaitNone || s.ResponseMessageID != nil || s.RequestMessageID != nil {
		t.Errorf("expected cleared awaiting state, got %+v", s)
	}
}

func TestAppendRating(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.EnsureSession(ctx, 100); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	instID, _ := repo.EnsureInstitution(ctx, "Tech U")
	topicID, _ := repo.EnsureTopic(ctx, "Algorithms")

	if err := repo.AppendRating(ctx, 100, instID, topicID, 7, time.Now()); err != nil {
		t.Fatalf("AppendRating failed: %v", err)
	}

	count, err := repo.CountRatings(ctx)
	if err != nil {
		t.Fatalf("CountRatings failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 rating, got %d", count)
	}

	if err := repo.AppendRating(ctx, 100, instID, topicID, 15, time.Now()); err == nil {
		t.Error("expected out-of-range score to be rejected")
	}
	if err := repo.AppendRating(ctx, 100, instID, topicID, -1, time.Now()); err == nil {
		t.Error("expected negative score to be rejected")
	}

	count, err = repo.CountRatings(ctx)
	if err != nil {
		t.Fatalf("CountRatings failed: %v", err)
	}
	if count != 1 {
		t.Errorf("rejected scores must not append rows, got %d", count)
	}
}
