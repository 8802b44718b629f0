package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "gitnotify/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestDrivers(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.db")
			ctx := context.Background()

			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			for i, p := range []string{"push", "issues.opened", "isNotified"} {
				e := AuditEntry{At: time.Now().Add(time.Duration(i) * time.Second), ActorID: 7, ChatID: 7, Scope: "github", Path: p, OK: i != 1}
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}
			recent, err := st.RecentAudit(ctx, 2)
			if err != nil {
				t.Fatalf("RecentAudit: %v", err)
			}
			if len(recent) != 2 || recent[0].Path != "isNotified" || recent[1].Path != "issues.opened" || recent[1].OK {
				t.Fatalf("recent = %+v", recent)
			}

			now := time.Now()
			if err := st.PutDedup(ctx, "gh:abc", now.Add(time.Hour)); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			if err := st.PutDedup(ctx, "gh:old", now.Add(-time.Hour)); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			until, ok, err := st.GetDedup(ctx, "gh:abc")
			if err != nil || !ok || until.UnixMilli() != now.Add(time.Hour).UnixMilli() {
				t.Fatalf("GetDedup = %v, %v, %v", until, ok, err)
			}
			n, err := st.PruneDedup(ctx, now)
			if err != nil || n != 1 {
				t.Fatalf("PruneDedup = %d, %v", n, err)
			}
			if _, ok, _ := st.GetDedup(ctx, "gh:old"); ok {
				t.Fatalf("expired key survived prune")
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			// Dedup state must survive a reopen.
			st, err = Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()
			if _, ok, _ := st.GetDedup(ctx, "gh:abc"); !ok {
				t.Fatalf("dedup key lost across reopen")
			}
		})
	}
}
