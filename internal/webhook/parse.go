package webhook

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/buger/jsonparser"

	"gitnotify/internal/catalog"
	"gitnotify/internal/notifier"
)

var (
	ErrNoEvent    = errors.New("webhook: event type missing")
	ErrBadPayload = errors.New("webhook: payload is not a JSON object")
)

// payloadJSON returns the JSON document of a delivery. GitHub may post it
// form-encoded in a "payload" field.
func payloadJSON(contentType string, body []byte) ([]byte, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		body = []byte(form.Get("payload"))
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrBadPayload
	}
	return body, nil
}

// str returns the first non-empty string among the given key paths.
func str(data []byte, paths ...[]string) string {
	for _, p := range paths {
		if v, err := jsonparser.GetString(data, p...); err == nil && v != "" {
			return v
		}
	}
	return ""
}

func path(keys ...string) []string { return keys }

// ParseGitHub builds an Event from a GitHub delivery.
func ParseGitHub(h http.Header, body []byte) (notifier.Event, error) {
	name := strings.TrimSpace(h.Get("X-GitHub-Event"))
	if name == "" {
		return notifier.Event{}, ErrNoEvent
	}
	data, err := payloadJSON(h.Get("Content-Type"), body)
	if err != nil {
		return notifier.Event{}, err
	}
	return notifier.Event{
		Platform:   catalog.GitHub,
		Name:       name,
		Action:     str(data, path("action")),
		DeliveryID: strings.TrimSpace(h.Get("X-GitHub-Delivery")),
		Repository: str(data, path("repository", "full_name")),
		Sender:     str(data, path("sender", "login")),
		URL: str(data,
			path("pull_request", "html_url"),
			path("issue", "html_url"),
			path("comment", "html_url"),
			path("release", "html_url"),
			path("discussion", "html_url"),
			path("compare"),
			path("repository", "html_url"),
		),
		Title: str(data,
			path("pull_request", "title"),
			path("issue", "title"),
			path("release", "name"),
			path("discussion", "title"),
			path("head_commit", "message"),
		),
		Payload: data,
	}, nil
}

// ParseGitLab builds an Event from a GitLab delivery. The event name comes
// from object_kind, falling back to the X-Gitlab-Event header.
func ParseGitLab(h http.Header, body []byte) (notifier.Event, error) {
	data, err := payloadJSON(h.Get("Content-Type"), body)
	if err != nil {
		return notifier.Event{}, err
	}
	name := str(data, path("object_kind"))
	if name == "" {
		name = gitlabHeaderEvent(h.Get("X-Gitlab-Event"))
	}
	if name == "" {
		return notifier.Event{}, ErrNoEvent
	}

	delivery := strings.TrimSpace(h.Get("X-Gitlab-Event-UUID"))
	if delivery == "" {
		delivery = strings.TrimSpace(h.Get("X-Gitlab-Webhook-UUID"))
	}
	return notifier.Event{
		Platform:   catalog.GitLab,
		Name:       name,
		Action:     str(data, path("object_attributes", "action"), path("action")),
		DeliveryID: delivery,
		Repository: str(data, path("project", "path_with_namespace")),
		Sender:     str(data, path("user", "username"), path("user_username")),
		URL: str(data,
			path("object_attributes", "url"),
			path("project", "web_url"),
		),
		Title: str(data,
			path("object_attributes", "title"),
			path("commits", "[0]", "title"),
			path("name"),
		),
		Payload: data,
	}, nil
}

// gitlabHeaderEvent maps "Merge Request Hook" to "merge_request". Job hooks
// report object_kind "build", so the header maps the same way.
func gitlabHeaderEvent(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, " hook")
	if h == "" {
		return ""
	}
	if h == "job" {
		return "build"
	}
	return strings.ReplaceAll(h, " ", "_")
}
