package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/serializer"
	"github.com/voxbridge/voxbridge/pkg/transport/mock"
)

func newStoreSession(t *testing.T) *session.CallSession {
	t.Helper()
	reg := serializer.NewRegistry()
	ser, err := reg.New("generic", serializer.Config{})
	if err != nil {
		t.Fatal(err)
	}
	s := session.New(context.Background(), mock.New(), mock.New(), ser, audio.NewRegistry())
	t.Cleanup(s.End)
	return s
}

func TestStoreAddGetRemove(t *testing.T) {
	t.Parallel()
	st := session.NewStore()
	s := newStoreSession(t)

	st.Add(s)
	if st.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", st.ActiveCount())
	}
	got, ok := st.Get(s.ID)
	if !ok || got != s {
		t.Fatal("Get did not return the added session")
	}

	s.Start("CA9", "", "", "inbound", nil)
	st.Index(s)
	got, ok = st.GetByCallID("CA9")
	if !ok || got != s {
		t.Fatal("GetByCallID did not return the session")
	}

	st.Remove(s.ID)
	if st.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after Remove", st.ActiveCount())
	}
	if _, ok := st.GetByCallID("CA9"); ok {
		t.Error("call_id index survived Remove")
	}
	if s.IsActive() {
		t.Error("Remove did not end the session")
	}

	// Idempotent.
	st.Remove(s.ID)
}

func TestStoreCleanup(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	live := newStoreSession(t)
	dead := newStoreSession(t)
	st.Add(live)
	st.Add(dead)
	dead.End()

	if n := st.Cleanup(); n != 1 {
		t.Fatalf("Cleanup = %d, want 1", n)
	}
	if st.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", st.ActiveCount())
	}
	if _, ok := st.Get(live.ID); !ok {
		t.Error("Cleanup removed a live session")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	sessions := make([]*session.CallSession, 16)
	for i := range sessions {
		sessions[i] = newStoreSession(t)
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.CallSession) {
			defer wg.Done()
			st.Add(s)
			st.Get(s.ID)
			st.Remove(s.ID)
		}(s)
	}
	wg.Wait()

	if st.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", st.ActiveCount())
	}
}
