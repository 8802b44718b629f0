package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"gitnotify/internal/catalog"
	"gitnotify/internal/notifier"
	logx "gitnotify/pkg/logx"
)

const githubIssue = `{
  "action": "opened",
  "issue": {"title": "Crash on start", "html_url": "https://github.com/a/b/issues/1"},
  "repository": {"full_name": "a/b", "html_url": "https://github.com/a/b"},
  "sender": {"login": "octo"}
}`

const gitlabMR = `{
  "object_kind": "merge_request",
  "user": {"username": "tanuki"},
  "project": {"path_with_namespace": "g/p", "web_url": "https://gitlab.com/g/p"},
  "object_attributes": {"action": "open", "title": "Add thing", "url": "https://gitlab.com/g/p/-/merge_requests/3"}
}`

func TestParseGitHub(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("X-GitHub-Event", "issues")
	h.Set("X-GitHub-Delivery", "abc")
	h.Set("Content-Type", "application/json")

	ev, err := ParseGitHub(h, []byte(githubIssue))
	if err != nil {
		t.Fatalf("ParseGitHub: %v", err)
	}
	if ev.Platform != catalog.GitHub || ev.Name != "issues" || ev.Action != "opened" || ev.DeliveryID != "abc" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Repository != "a/b" || ev.Sender != "octo" || ev.Title != "Crash on start" || ev.URL != "https://github.com/a/b/issues/1" {
		t.Fatalf("details = %+v", ev)
	}
}

func TestParseGitHubForm(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("X-GitHub-Event", "push")
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	body := url.Values{"payload": {`{"compare": "https://x/compare", "repository": {"full_name": "a/b"}}`}}.Encode()

	ev, err := ParseGitHub(h, []byte(body))
	if err != nil {
		t.Fatalf("ParseGitHub: %v", err)
	}
	if ev.Name != "push" || ev.Action != "" || ev.URL != "https://x/compare" || ev.Repository != "a/b" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		parse parseFunc
		hdr   map[string]string
		body  string
		want  error
	}{
		{"github no header", ParseGitHub, nil, `{}`, ErrNoEvent},
		{"github array", ParseGitHub, map[string]string{"X-GitHub-Event": "push"}, `[1]`, ErrBadPayload},
		{"github empty", ParseGitHub, map[string]string{"X-GitHub-Event": "push"}, ``, ErrBadPayload},
		{"gitlab no kind", ParseGitLab, nil, `{"a": 1}`, ErrNoEvent},
		{"gitlab garbage", ParseGitLab, nil, `nope`, ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.hdr {
				h.Set(k, v)
			}
			if _, err := tt.parse(h, []byte(tt.body)); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseGitLab(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("X-Gitlab-Event-UUID", "u-1")
	ev, err := ParseGitLab(h, []byte(gitlabMR))
	if err != nil {
		t.Fatalf("ParseGitLab: %v", err)
	}
	if ev.Platform != catalog.GitLab || ev.Name != "merge_request" || ev.Action != "open" || ev.DeliveryID != "u-1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Repository != "g/p" || ev.Sender != "tanuki" || ev.Title != "Add thing" {
		t.Fatalf("details = %+v", ev)
	}

	h = http.Header{}
	h.Set("X-Gitlab-Event", "Job Hook")
	h.Set("X-Gitlab-Webhook-UUID", "u-2")
	ev, err = ParseGitLab(h, []byte(`{"project": {"path_with_namespace": "g/p"}}`))
	if err != nil {
		t.Fatalf("ParseGitLab header: %v", err)
	}
	if ev.Name != "build" || ev.DeliveryID != "u-2" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestGitlabHeaderEvent(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"Push Hook":          "push",
		"Tag Push Hook":      "tag_push",
		"Merge Request Hook": "merge_request",
		"Job Hook":           "build",
		"":                   "",
	} {
		if got := gitlabHeaderEvent(in); got != want {
			t.Fatalf("gitlabHeaderEvent(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeSubmitter struct {
	mu   sync.Mutex
	got  []notifier.Event
	resp notifier.Decision
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, ev notifier.Event) (notifier.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	return f.resp, f.err
}

func post(t *testing.T, h http.Handler, target, event, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerAcceptsDeliveries(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{resp: notifier.Send}
	srv := New(Config{}, sub, nil, logx.Nop(), "test")

	rec := post(t, srv.Handler(), "/webhook/github", "issues", githubIssue)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"decision":"send"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("request id not set")
	}

	sub.resp = notifier.SkipDisabled
	rec = post(t, srv.Handler(), "/webhook/gitlab", "", gitlabMR)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"decision":"disabled"`) {
		t.Fatalf("gitlab = %d %s", rec.Code, rec.Body.String())
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.got) != 2 || sub.got[0].Platform != catalog.GitHub || sub.got[1].Platform != catalog.GitLab {
		t.Fatalf("submitted = %+v", sub.got)
	}
}

func TestServerRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		subErr error
		event  string
		body   string
		want   int
	}{
		{"missing event", nil, "", githubIssue, http.StatusBadRequest},
		{"bad payload", nil, "push", "not json", http.StatusBadRequest},
		{"queue full", notifier.ErrQueueFull, "push", `{}`, http.StatusServiceUnavailable},
		{"disabled", notifier.ErrDisabled, "push", `{}`, http.StatusConflict},
		{"other", errors.New("boom"), "push", `{}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Config{}, &fakeSubmitter{resp: notifier.Send, err: tt.subErr}, nil, logx.Nop(), "test")
			rec := post(t, srv.Handler(), "/webhook/github", tt.event, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServerMethodAndPing(t *testing.T) {
	t.Parallel()

	srv := New(Config{}, &fakeSubmitter{resp: notifier.Send}, nil, logx.Nop(), "test")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/github", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("GET status = %d, allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/webhook/gitlab", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("ping = %d %q", rec.Code, rec.Body.String())
	}
}
