package settings

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	logx "gitnotify/pkg/logx"
)

const githubFixture = `{
    "push": true,
    "issues": {
        "opened": false,
        "closed": true
    },
    "pull_request": {
        "opened": true,
        "closed": true,
        "reopened": false
    },
    "note": "kept as is",
    "fork": false
}
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "github-events.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

func TestParseKeepsKeyOrder(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(githubFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := strings.Join(doc.Root().Keys(), ",")
	if want := "push,issues,pull_request,note,fork"; got != want {
		t.Fatalf("keys = %q, want %q", got, want)
	}
	pr, err := doc.Get("pull_request")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := strings.Join(pr.Keys(), ","); got != "opened,closed,reopened" {
		t.Fatalf("pull_request keys = %q", got)
	}
	note, _ := doc.Get("note")
	if note.Kind() != KindRaw {
		t.Fatalf("note kind = %v, want raw", note.Kind())
	}
}

func TestMarshalIsStable(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(githubFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(a) != githubFixture {
		t.Fatalf("re-encoded document differs:\n%s", a)
	}
	again, err := Parse(a)
	if err != nil {
		t.Fatalf("Parse(re-encoded): %v", err)
	}
	b, _ := again.MarshalJSON()
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding is not deterministic")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":     "",
		"array":     `[true]`,
		"truncated": `{"push": tr`,
		"scalar":    `true`,
		"duplicate": `{"push": true, "push": false}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in)); !errors.Is(err, ErrStoreCorrupt) {
				t.Fatalf("Parse(%q) err = %v, want ErrStoreCorrupt", in, err)
			}
		})
	}
}

func TestGetPaths(t *testing.T) {
	t.Parallel()

	doc, _ := Parse([]byte(githubFixture))
	cases := []struct {
		path    string
		want    bool
		wantErr bool
	}{
		{path: "push", want: true},
		{path: "issues.closed", want: true},
		{path: "issues.opened", want: false},
		{path: "issues", wantErr: true},
		{path: "issues.missing", wantErr: true},
		{path: "push.deeper", wantErr: true},
		{path: "note", wantErr: true},
		{path: "", wantErr: true},
		{path: "issues..opened", wantErr: true},
	}
	for _, tc := range cases {
		got, err := doc.Bool(tc.path)
		if tc.wantErr {
			if !errors.Is(err, ErrPathNotFound) {
				t.Fatalf("Bool(%q) err = %v, want ErrPathNotFound", tc.path, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Bool(%q): %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("Bool(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestToggleLeafPersists(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, githubFixture)
	st := NewStore(path, logx.Nop())

	doc, err := st.Mutate("push", nil)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if v, _ := doc.Bool("push"); v {
		t.Fatalf("push still true in memory")
	}

	reloaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := reloaded.Bool("push"); v {
		t.Fatalf("push still true after reload")
	}

	on := true
	if _, err := st.Mutate("push", &on); err != nil {
		t.Fatalf("Mutate(set): %v", err)
	}
	reloaded, _ = st.Load()
	if v, _ := reloaded.Bool("push"); !v {
		t.Fatalf("explicit set did not persist")
	}
}

func TestToggleGroupIsRejectedUnchanged(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, githubFixture)
	st := NewStore(path, logx.Nop())
	before := mustRead(t, path)

	for _, p := range []string{"issues", "note", "missing", "push.deeper"} {
		if _, err := st.Mutate(p, nil); !errors.Is(err, ErrPathNotFound) {
			t.Fatalf("Mutate(%q) err = %v, want ErrPathNotFound", p, err)
		}
	}
	if after := mustRead(t, path); !bytes.Equal(before, after) {
		t.Fatalf("file changed after rejected toggles:\n%s", after)
	}
}

func TestToggleLeavesSiblingsAlone(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, githubFixture)
	st := NewStore(path, logx.Nop())

	doc, err := st.Mutate("pull_request.opened", nil)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	want := map[string]bool{
		"pull_request.opened":   false,
		"pull_request.closed":   true,
		"pull_request.reopened": false,
		"issues.opened":         false,
		"issues.closed":         true,
		"push":                  true,
		"fork":                  false,
	}
	for p, v := range want {
		if got, err := doc.Bool(p); err != nil || got != v {
			t.Fatalf("%s = %v (err %v), want %v", p, got, err, v)
		}
	}
	note, _ := doc.Get("note")
	if string(note.raw) != `"kept as is"` {
		t.Fatalf("note = %s", note.raw)
	}
}

func TestPersistFailureKeepsFileIntact(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, githubFixture)
	st := NewStore(path, logx.Nop())
	st.beforeRename = func(tmp string) error {
		// Simulate a crash halfway: the temp file is left truncated.
		if err := os.Truncate(tmp, 7); err != nil {
			return err
		}
		return errors.New("disk gone")
	}

	doc, err := st.Mutate("push", nil)
	if err == nil {
		t.Fatalf("expected persist error")
	}
	if v, _ := doc.Bool("push"); !v {
		t.Fatalf("in-memory value was not rolled back")
	}

	st.beforeRename = nil
	reloaded, err := st.Load()
	if err != nil {
		t.Fatalf("file no longer parses: %v", err)
	}
	if v, _ := reloaded.Bool("push"); !v {
		t.Fatalf("push changed on disk despite failed persist")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	missing := NewStore(filepath.Join(t.TempDir(), "nope.json"), logx.Nop())
	if _, err := missing.Load(); !errors.Is(err, ErrStoreMissing) {
		t.Fatalf("Load err = %v, want ErrStoreMissing", err)
	}
	if _, err := missing.Mutate("push", nil); !errors.Is(err, ErrStoreMissing) {
		t.Fatalf("Mutate err = %v, want ErrStoreMissing", err)
	}
	doc, _ := Parse([]byte(githubFixture))
	if err := missing.Persist(doc); !errors.Is(err, ErrStoreMissing) {
		t.Fatalf("Persist err = %v, want ErrStoreMissing", err)
	}
	if _, err := os.Stat(missing.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Persist created the file")
	}

	corrupt := NewStore(writeFixture(t, `{"push": tr`), logx.Nop())
	if _, err := corrupt.Load(); !errors.Is(err, ErrStoreCorrupt) {
		t.Fatalf("Load err = %v, want ErrStoreCorrupt", err)
	}
}

func TestSeedOnlyWhenAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conf", "settings.json")
	st := NewStore(path, logx.Nop())

	wrote, err := st.Seed([]byte(`{"isNotified": true, "notifyAllEvents": false}`))
	if err != nil || !wrote {
		t.Fatalf("Seed = %v, %v", wrote, err)
	}
	if _, err := st.Mutate("isNotified", nil); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	wrote, err = st.Seed([]byte(`{"isNotified": true, "notifyAllEvents": true}`))
	if err != nil || wrote {
		t.Fatalf("second Seed = %v, %v", wrote, err)
	}
	doc, _ := st.Load()
	if v, _ := doc.Bool("isNotified"); v {
		t.Fatalf("Seed overwrote an existing file")
	}
}

func TestConcurrentTogglesDoNotLoseUpdates(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, githubFixture)
	st := NewStore(path, logx.Nop())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Mutate("fork", nil); err != nil {
				t.Errorf("Mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// An even number of flips lands back where it started.
	if v, _ := doc.Bool("fork"); v {
		t.Fatalf("fork = true after %d toggles, an update was lost", n)
	}
}
