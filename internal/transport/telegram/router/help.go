package router

import (
	"strings"

	kit "gitnotify/internal/transport"
	"gitnotify/pkg/tgui"
)

// helpText lists the registered commands; owner-only ones are shown to
// owners only.
func (m *Manager) helpText(owner bool) string {
	m.mu.RLock()
	listing := append([]Command(nil), m.listing...)
	m.mu.RUnlock()

	lines := []string{tgui.JoinH(" ", tgui.Esc("📚"), tgui.B("Commands")).String(), ""}
	for _, c := range listing {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := tgui.Code(usage)
		if d := strings.TrimSpace(c.Description); d != "" {
			line = tgui.JoinH(" - ", line, tgui.Esc(d))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// sanitizeCommand maps a name onto Telegram's [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func menuCommands(listing []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(listing))
	seen := map[string]bool{}
	for _, c := range listing {
		name := sanitizeCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}
	return out
}
