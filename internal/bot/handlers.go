package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"lwbot/internal/history"
	"lwbot/internal/nl"
	"lwbot/internal/reminder"
	"lwbot/pkg/logx"
	"lwbot/pkg/tgui"
)

const (
	startText = `I schedule Last War reminders.

/lw - create a reminder
/list - pending reminders
/cancelall - cancel everything
/history - recent deliveries

You can also just tell me what to remind you about, e.g.
"truck in 2h 30m".`

	menuText          = "What should I remind you about?"
	namePrompt        = "What should I call this reminder?"
	durationPrompt    = "How long until it's done? Send a duration like 2h 30m, 1:30 or 90."
	durationInvalid   = "I couldn't read that duration. Try something like 2h 30m, 1:30 or 90."
	ministryPrompt    = "When does the ministry open? Send the server time as HH:MM or D-M-YYYY HH:MM."
	serverTimeInvalid = "I couldn't read that time. Use HH:MM or D-M-YYYY HH:MM in server time."
	leadPrompt        = "Want a heads-up before it fires? Send a lead time like 10m, or skip."
	leadInvalid       = "I couldn't read that lead time. Try something like 10m, or press Skip."
)

func (s *Service) register() {
	s.bot.Handle("/start", s.guard(s.onStart))
	s.bot.Handle("/help", s.guard(s.onStart))
	s.bot.Handle("/lw", s.guard(s.onMenu))
	s.bot.Handle("/list", s.guard(s.onList))
	s.bot.Handle("/cancelall", s.guard(s.onCancelAll))
	s.bot.Handle("/history", s.guard(s.onHistory))
	s.bot.Handle(tele.OnText, s.guard(s.onText))
	s.bot.Handle(tele.OnCallback, s.guard(s.onCallback))
}

// guard drops updates from users outside the owner allowlist.
func (s *Service) guard(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !s.allowed(sender.ID) {
			return nil
		}
		return next(c)
	}
}

func (s *Service) onStart(c tele.Context) error {
	return c.Send(startText)
}

func kindMenu() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("🚚 Truck", tgui.Data("lw", "kind", "truck")),
			tgui.Btn("🏗 Build", tgui.Data("lw", "kind", "build"))).
		Row(tgui.Btn("🔬 Research", tgui.Data("lw", "kind", "research")),
			tgui.Btn("🪖 Train", tgui.Data("lw", "kind", "train"))).
		Row(tgui.Btn("🏛 Ministry", tgui.Data("lw", "kind", "ministry")),
			tgui.Btn("✏️ Custom", tgui.Data("lw", "kind", "custom"))).
		Row(tgui.Btn("📋 List", tgui.Data("lw", "list", "")),
			tgui.Btn("🗑 Cancel all", tgui.Data("lw", "cancelall", ""))).
		Markup()
}

func durationMenu() *tele.ReplyMarkup {
	quick := []string{"30m", "1h", "2h", "4h", "8h", "1d"}
	btns := make([]tele.Btn, 0, len(quick))
	for _, q := range quick {
		btns = append(btns, tgui.Btn(q, tgui.Data("lw", "dur", q)))
	}
	return tgui.Grid2(btns)
}

func leadMenu() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("10m", tgui.Data("lw", "lead", "10m")),
			tgui.Btn("30m", tgui.Data("lw", "lead", "30m")),
			tgui.Btn("Skip", tgui.Data("lw", "lead", "skip"))).
		Markup()
}

func (s *Service) onMenu(c tele.Context) error {
	s.flows.clear(c.Chat().ID, c.Sender().ID)
	return c.Send(menuText, kindMenu())
}

func (s *Service) onText(c tele.Context) error {
	chat, user := c.Chat().ID, c.Sender().ID
	text := c.Text()

	fl, ok := s.flows.get(chat, user)
	if !ok {
		return s.onFreeText(c, text)
	}

	switch fl.step {
	case stepName:
		prompt, ok := fl.inputName(text)
		if !ok {
			return c.Send(prompt)
		}
		return c.Send(prompt, durationMenu())
	case stepDuration:
		prompt, ok := fl.inputDuration(text)
		if !ok {
			return c.Send(prompt)
		}
		return c.Send(prompt, leadMenu())
	case stepServerTime:
		prompt, ok := fl.inputServerTime(text, time.Now().In(s.location()))
		if !ok {
			return c.Send(prompt)
		}
		return c.Send(prompt, leadMenu())
	case stepLead:
		if prompt, ok := fl.inputLead(text); !ok {
			return c.Send(prompt)
		}
		return s.finish(c, fl)
	default:
		return c.Send(menuText, kindMenu())
	}
}

// onFreeText is the natural-language entry point for text outside a
// conversation.
func (s *Service) onFreeText(c tele.Context, text string) error {
	if s.interp == nil || !s.interp.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	draft, err := s.interp.Interpret(ctx, text)
	if err != nil {
		if errors.Is(err, nl.ErrNoReminder) || errors.Is(err, nl.ErrDisabled) {
			return nil
		}
		s.log.Warn("nl interpretation failed", logx.Err(err))
		return nil
	}

	fl := &flow{step: stepLead, kind: draft.Kind, taskName: draft.TaskName, duration: draft.Duration}
	s.flows.put(c.Chat().ID, c.Sender().ID, fl)

	title := draft.Kind.Title()
	if draft.Kind == reminder.KindCustom {
		title = draft.TaskName
	}
	return c.Send(fmt.Sprintf("Got it: %s in %s.\n%s", title, draft.Duration, leadPrompt), leadMenu())
}

func (s *Service) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Chat() == nil {
		return nil
	}
	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] != "lw" {
		return c.Respond(&tele.CallbackResponse{})
	}
	action := parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	switch action {
	case "kind":
		return s.onKindButton(c, payload)
	case "dur":
		return s.onDurationButton(c, payload)
	case "lead":
		return s.onLeadButton(c, payload)
	case "list":
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			return err
		}
		return s.onList(c)
	case "cancelall":
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			return err
		}
		return s.onCancelAll(c)
	case "cancel":
		return s.onCancelButton(c, payload)
	default:
		return c.Respond(&tele.CallbackResponse{})
	}
}

func (s *Service) onKindButton(c tele.Context, payload string) error {
	kind, ok := reminder.ParseKind(payload)
	if !ok || !kind.Valid() {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown reminder type"})
	}

	chat, user := c.Chat().ID, c.Sender().ID
	fl := &flow{}
	prompt := fl.selectKind(kind)
	s.flows.put(chat, user, fl)

	// Close the menu keyboard and pin the chosen kind into the message.
	_ = c.Edit(menuText + "\n» " + kind.Title())
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		return err
	}
	if fl.step == stepDuration {
		return c.Send(prompt, durationMenu())
	}
	return c.Send(prompt)
}

func (s *Service) onDurationButton(c tele.Context, payload string) error {
	chat, user := c.Chat().ID, c.Sender().ID
	fl, ok := s.flows.get(chat, user)
	if !ok || fl.step != stepDuration {
		return c.Respond(&tele.CallbackResponse{Text: "This conversation has expired"})
	}
	prompt, ok := fl.inputDuration(payload)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Bad duration"})
	}
	_ = c.Edit(durationPrompt + "\n» " + payload)
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		return err
	}
	return c.Send(prompt, leadMenu())
}

func (s *Service) onLeadButton(c tele.Context, payload string) error {
	chat, user := c.Chat().ID, c.Sender().ID
	fl, ok := s.flows.get(chat, user)
	if !ok || fl.step != stepLead {
		return c.Respond(&tele.CallbackResponse{Text: "This conversation has expired"})
	}

	chosen := payload
	if payload == "skip" {
		chosen = "no heads-up"
		payload = ""
	}
	if prompt, ok := fl.inputLead(payload); !ok {
		return c.Respond(&tele.CallbackResponse{Text: prompt})
	}
	_ = c.Edit(leadPrompt + "\n» " + chosen)
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		return err
	}
	return s.finish(c, fl)
}

// finish schedules the finished conversation and confirms with the
// pending fire times.
func (s *Service) finish(c tele.Context, fl *flow) error {
	chat, user := c.Chat().ID, c.Sender().ID
	s.flows.clear(chat, user)

	ids, label, err := s.sched.Schedule(fl.request(user, chat))
	if err != nil {
		s.log.Warn("schedule failed", logx.Err(err))
		return c.Send("Couldn't schedule that reminder: " + err.Error())
	}

	idset := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idset[id] = struct{}{}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ %s scheduled.\n", label)
	for _, j := range s.sched.List(user, chat) {
		if _, ok := idset[j.ID]; ok {
			b.WriteString(s.sched.Display(j.ID, j.FireAt))
			b.WriteByte('\n')
		}
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}

// listBody renders the pending reminders with one cancel button per job.
// ok is false when there is nothing pending.
func (s *Service) listBody(user, chat int64) (string, *tele.ReplyMarkup, bool) {
	jobs := s.sched.List(user, chat)
	if len(jobs) == 0 {
		return "No pending reminders.", nil, false
	}

	var b strings.Builder
	b.WriteString("Pending reminders:\n")
	kb := tgui.NewInline()
	for _, j := range jobs {
		line := s.sched.Display(j.ID, j.FireAt)
		b.WriteString(line)
		b.WriteByte('\n')
		// Callback data is capped at 64 bytes, so the button carries only
		// kind/epoch/role; owner and chat come from the pressing user.
		payload := fmt.Sprintf("%s:%d:%s", j.Kind, j.Epoch, j.Role)
		kb.Row(tgui.Btn("❌ "+tgui.TruncRunes(line, 24), tgui.Data("lw", "cancel", payload)))
	}
	return strings.TrimRight(b.String(), "\n"), kb.Markup(), true
}

func (s *Service) onList(c tele.Context) error {
	body, kb, ok := s.listBody(c.Sender().ID, c.Chat().ID)
	if !ok {
		return c.Send(body)
	}
	return c.Send(body, kb)
}

func (s *Service) onCancelButton(c tele.Context, payload string) error {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 {
		return c.Respond(&tele.CallbackResponse{Text: "Bad cancel request"})
	}
	kind, _ := reminder.ParseKind(parts[0])
	var epoch int64
	if _, err := fmt.Sscanf(parts[1], "%d", &epoch); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bad cancel request"})
	}
	chat, user := c.Chat().ID, c.Sender().ID
	id := reminder.JobID{
		OwnerID: user,
		ChatID:  chat,
		Kind:    kind,
		Epoch:   epoch,
		Role:    reminder.Role(parts[2]),
	}.Encode()

	if !s.sched.Cancel(id) {
		if err := c.Respond(&tele.CallbackResponse{Text: "Already gone"}); err != nil {
			return err
		}
	} else if err := c.Respond(&tele.CallbackResponse{Text: "Cancelled"}); err != nil {
		return err
	}

	// Refresh the list in place.
	body, kb, ok := s.listBody(user, chat)
	if !ok {
		return c.Edit(body)
	}
	return c.Edit(body, kb)
}

func (s *Service) onCancelAll(c tele.Context) error {
	chat, user := c.Chat().ID, c.Sender().ID
	s.flows.clear(chat, user)
	n := s.sched.CancelAll(user, chat)
	if n == 0 {
		return c.Send("Nothing to cancel.")
	}
	return c.Send(fmt.Sprintf("Cancelled %d reminder(s).", n))
}

func (s *Service) onHistory(c tele.Context) error {
	if s.hist == nil {
		return c.Send("History is not enabled.")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := s.hist.Recent(ctx, c.Chat().ID, 10)
	if err != nil {
		s.log.Warn("history query failed", logx.Err(err))
		return c.Send("Couldn't read the delivery history.")
	}
	return c.Send(history.Render(entries))
}
