package store

import (
	"testing"
	"time"

	"github.com/jmckenna/carecircle/internal/database"
)

func setupSessionTestDB(t *testing.T) (*SessionStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := NewUserStore(db)
	u, err := users.Create("casey@example.com", "Casey")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewSessionStore(db), u.ID
}

func TestSessionCreateAndGetByToken(t *testing.T) {
	ss, userID := setupSessionTestDB(t)

	sess, err := ss.Create(userID, "opaque-token", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.TokenHash == "opaque-token" {
		t.Error("token should be stored hashed, not in the clear")
	}

	got, err := ss.GetByToken("opaque-token")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.ID != sess.ID || got.UserID != userID {
		t.Fatalf("got = %+v, want session %d for user %d", got, sess.ID, userID)
	}

	if got, _ := ss.GetByToken("wrong-token"); got != nil {
		t.Fatalf("wrong token returned a session: %+v", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	ss, userID := setupSessionTestDB(t)

	if _, err := ss.Create(userID, "stale-token", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if got, _ := ss.GetByToken("stale-token"); got != nil {
		t.Fatalf("expired session returned: %+v", got)
	}

	n, err := ss.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestSessionDelete(t *testing.T) {
	ss, userID := setupSessionTestDB(t)

	sess, _ := ss.Create(userID, "token", time.Now().Add(time.Hour))
	if err := ss.Delete(sess.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if got, _ := ss.GetByToken("token"); got != nil {
		t.Fatal("deleted session should not resolve")
	}
}
