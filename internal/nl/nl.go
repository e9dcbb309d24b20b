// Package nl turns free-form text like "remind me about the truck in 2h
// 30m" into a reminder draft by calling an OpenAI-compatible
// chat-completions endpoint. The model only extracts fields; all
// duration arithmetic stays in this process.
package nl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"lwbot/internal/reminder"
	"lwbot/internal/span"
	"lwbot/pkg/logx"
)

var (
	ErrDisabled = errors.New("natural-language input disabled")
	// ErrNoReminder means the model decided the text is not a reminder request.
	ErrNoReminder = errors.New("no reminder found in text")
)

type Config struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type Interpreter struct {
	mu  sync.Mutex
	cfg Config

	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Interpreter {
	if log.IsZero() {
		log = logx.Nop()
	}
	i := &Interpreter{log: log, http: &http.Client{}}
	i.applyLocked(cfg)
	return i
}

// Apply updates settings at runtime (config hot reload).
func (i *Interpreter) Apply(cfg Config) {
	i.mu.Lock()
	i.applyLocked(cfg)
	i.mu.Unlock()
}

func (i *Interpreter) applyLocked(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	i.cfg = cfg
	i.http.Timeout = cfg.Timeout
}

func (i *Interpreter) Enabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg.Enabled
}

// Draft is the model's extraction, ready to become a reminder request.
type Draft struct {
	Kind     reminder.Kind
	TaskName string
	Duration span.Span
}

const systemPrompt = `You extract reminder parameters from a short chat message about the mobile game Last War.
Respond with a single JSON object and nothing else:
{"kind": "truck|build|research|train|ministry|custom|none", "task_name": "", "days": 0, "hours": 0, "minutes": 0}
Use kind "custom" with a task_name when the message names something outside the known kinds.
Use kind "none" when the message is not asking for a reminder.`

// extraction mirrors the JSON shape the prompt demands.
type extraction struct {
	Kind     string `json:"kind"`
	TaskName string `json:"task_name"`
	Days     int    `json:"days"`
	Hours    int    `json:"hours"`
	Minutes  int    `json:"minutes"`
}

// chat-completions wire types, request and response.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Interpret extracts a reminder draft from text.
func (i *Interpreter) Interpret(ctx context.Context, text string) (Draft, error) {
	i.mu.Lock()
	cfg := i.cfg
	i.mu.Unlock()
	if !cfg.Enabled {
		return Draft{}, ErrDisabled
	}

	content, err := i.complete(ctx, cfg, text)
	if err != nil {
		return Draft{}, err
	}
	return draftFromJSON(content)
}

func (i *Interpreter) complete(ctx context.Context, cfg Config, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := i.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("completion endpoint returned %s", resp.Status)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// draftFromJSON maps the model's JSON to a validated draft. Models
// sometimes wrap JSON in a code fence; strip that before decoding.
func draftFromJSON(content string) (Draft, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var ex extraction
	if err := json.Unmarshal([]byte(content), &ex); err != nil {
		return Draft{}, fmt.Errorf("malformed extraction: %w", err)
	}

	if strings.EqualFold(strings.TrimSpace(ex.Kind), "none") {
		return Draft{}, ErrNoReminder
	}
	kind, ok := reminder.ParseKind(ex.Kind)
	if !ok {
		// An unrecognized kind with a usable name still makes a custom reminder.
		if strings.TrimSpace(ex.TaskName) == "" {
			return Draft{}, fmt.Errorf("unrecognized kind %q", ex.Kind)
		}
		kind = reminder.KindCustom
	}
	if kind == reminder.KindCustom && strings.TrimSpace(ex.TaskName) == "" {
		return Draft{}, errors.New("custom reminder needs a task name")
	}

	if ex.Days < 0 || ex.Hours < 0 || ex.Minutes < 0 {
		return Draft{}, errors.New("negative duration component")
	}
	d := span.New(ex.Days, ex.Hours, ex.Minutes)
	if d.IsZero() {
		return Draft{}, errors.New("extraction has no duration")
	}

	return Draft{Kind: kind, TaskName: strings.TrimSpace(ex.TaskName), Duration: d}, nil
}
