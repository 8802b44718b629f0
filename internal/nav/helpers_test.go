package nav

import (
	"testing"

	"gitnotify/internal/settings"
)

func mustDoc(t *testing.T, data []byte) *settings.Document {
	t.Helper()
	doc, err := settings.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}
