package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "gitnotify/internal/transport"
	logx "gitnotify/pkg/logx"
)

// telegramTextLimit stays under Telegram's 4096 to leave room for entities.
const telegramTextLimit = 4000

// splitText packs whole lines into chunks of at most limit runes. A line
// longer than limit is cut hard; under HTML the cut moves in front of a tag
// that would otherwise straddle it.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, string(tele.ModeHTML))

	var (
		out []string
		cur []rune
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, line := range strings.Split(s, "\n") {
		rs := []rune(line)
		if len(cur) > 0 && len(cur)+1+len(rs) <= limit {
			cur = append(append(cur, '\n'), rs...)
			continue
		}
		flush()
		for len(rs) > limit {
			cut := cutPoint(rs, limit, html)
			out = append(out, string(rs[:cut]))
			rs = rs[cut:]
		}
		cur = append(cur, rs...)
	}
	flush()
	return out
}

func cutPoint(rs []rune, limit int, html bool) int {
	if !html {
		return limit
	}
	open := -1
	for _, r := range rs[:limit] {
		switch r {
		case '<':
			open = 0
		case '>':
			open = -1
		}
		if open >= 0 {
			open++
		}
	}
	// open counts the runes of an unclosed tag at the end of the window.
	if open > 0 && open < limit {
		return limit - open
	}
	return limit
}

func sendOptions(opt *kit.SendOptions, threadID int, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok && withMarkup {
		so.ReplyMarkup = rm
	}
	return so
}

// sendChunks posts chunks in order and returns the first message. The
// keyboard, if any, rides on the first chunk only when markupFirst is set.
func (a *Adapter) sendChunks(ctx context.Context, to kit.ChatTarget, chunks []string, opt *kit.SendOptions, markupFirst bool) (*tele.Message, error) {
	chat := &tele.Chat{ID: to.ChatID}
	var first *tele.Message
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(opt, to.ThreadID, markupFirst && i == 0))
		if err != nil {
			return first, err
		}
		if first == nil {
			first = msg
		}
	}
	return first, nil
}

// SendText sends text as one or more messages; the returned ref points at the
// first, which also carries the keyboard.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	first, err := a.sendChunks(ctx, to, splitText(text, telegramTextLimit, opt.ParseMode), opt, true)
	if first != nil {
		ref.MessageID = first.ID
	}
	return ref, err
}

// EditText replaces the text and keyboard of the message at ref. Text that
// does not fit one message continues in new messages below it.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitText(text, telegramTextLimit, opt.ParseMode)
	target := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(target, chunks[0], sendOptions(opt, 0, true))
	if err != nil && !errors.Is(err, tele.ErrSameMessageContent) && !strings.Contains(err.Error(), "message is not modified") {
		return err
	}
	_, err = a.sendChunks(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, chunks[1:], opt, false)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// UpdateMenuCommands publishes the command menu. It only calls Telegram when
// the list changed since the last successful call.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) == 100 {
			break
		}
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(out); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}
