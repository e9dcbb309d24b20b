// Package bot is the Telegram front end: the guided /lw conversation,
// list/cancel management, delivery history, and the optional
// natural-language entry point.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"lwbot/internal/history"
	"lwbot/internal/nl"
	"lwbot/internal/reminder"
	"lwbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// OwnerUserIDs restricts who may talk to the bot. Empty allows everyone.
	OwnerUserIDs []int64
	// Location is the game server timezone for clock-time input and display.
	Location *time.Location
}

type Service struct {
	bot    *tele.Bot
	sched  *reminder.Scheduler
	hist   *history.Service
	interp *nl.Interpreter
	log    logx.Logger

	flows *flowStore

	cfgMu sync.Mutex
	cfg   Config

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, sched *reminder.Scheduler, hist *history.Service, interp *nl.Interpreter, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		bot:    b,
		sched:  sched,
		hist:   hist,
		interp: interp,
		log:    log,
		flows:  newFlowStore(),
		cfg:    cfg,
	}
	s.register()
	return s, nil
}

// Apply updates runtime-changeable settings (config hot reload). Token
// and poll timeout changes need a restart; only the allowlist and
// timezone take effect here.
func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg.OwnerUserIDs = cfg.OwnerUserIDs
	if cfg.Location != nil {
		s.cfg.Location = cfg.Location
	}
	s.cfgMu.Unlock()
}

func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = true
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.runMu.Unlock()

	go func() {
		defer s.wg.Done()
		go func() {
			<-rctx.Done()
			s.bot.Stop()
		}()
		s.log.Info("polling started")
		s.bot.Start() // blocks until Stop() called
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	wasRunning := s.running
	s.running = false
	s.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	// Keep shutdown snappy even if the getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		s.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		s.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// SendTo delivers reminder text straight to a chat. It is the fallback
// delivery route when no webhook is configured.
func (s *Service) SendTo(_ context.Context, chatID int64, text string) error {
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

func (s *Service) location() *time.Location {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg.Location
}

// allowed checks the owner allowlist. An empty list allows everyone.
func (s *Service) allowed(userID int64) bool {
	s.cfgMu.Lock()
	owners := s.cfg.OwnerUserIDs
	s.cfgMu.Unlock()
	if len(owners) == 0 {
		return true
	}
	for _, id := range owners {
		if id == userID {
			return true
		}
	}
	return false
}
