package nl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lwbot/internal/reminder"
	"lwbot/internal/span"
	"lwbot/pkg/logx"
)

func TestDraftFromJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		want    Draft
		wantErr error
	}{
		{
			name:    "plain truck",
			content: `{"kind": "truck", "task_name": "", "days": 0, "hours": 2, "minutes": 30}`,
			want:    Draft{Kind: reminder.KindTruck, Duration: span.New(0, 2, 30)},
		},
		{
			name:    "code fence",
			content: "```json\n{\"kind\": \"build\", \"task_name\": \"\", \"days\": 1, \"hours\": 0, \"minutes\": 5}\n```",
			want:    Draft{Kind: reminder.KindBuild, Duration: span.New(1, 0, 5)},
		},
		{
			name:    "custom with name",
			content: `{"kind": "custom", "task_name": "Dig site", "days": 0, "hours": 0, "minutes": 45}`,
			want:    Draft{Kind: reminder.KindCustom, TaskName: "Dig site", Duration: span.New(0, 0, 45)},
		},
		{
			name:    "unknown kind with name folds to custom",
			content: `{"kind": "expedition", "task_name": "Expedition", "days": 0, "hours": 1, "minutes": 0}`,
			want:    Draft{Kind: reminder.KindCustom, TaskName: "Expedition", Duration: span.New(0, 1, 0)},
		},
		{
			name:    "not a reminder",
			content: `{"kind": "none", "task_name": "", "days": 0, "hours": 0, "minutes": 0}`,
			wantErr: ErrNoReminder,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := draftFromJSON(tt.content)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("draftFromJSON error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("draft = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDraftFromJSONRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "the truck arrives at dawn"},
		{"zero duration", `{"kind": "truck", "task_name": "", "days": 0, "hours": 0, "minutes": 0}`},
		{"negative component", `{"kind": "truck", "task_name": "", "days": 0, "hours": -1, "minutes": 30}`},
		{"custom without name", `{"kind": "custom", "task_name": " ", "days": 0, "hours": 1, "minutes": 0}`},
		{"unknown kind without name", `{"kind": "expedition", "task_name": "", "days": 0, "hours": 1, "minutes": 0}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := draftFromJSON(tt.content); err == nil {
				t.Fatalf("draftFromJSON(%q) succeeded, want error", tt.content)
			}
		})
	}
}

func TestInterpretDisabled(t *testing.T) {
	t.Parallel()
	i := New(Config{}, logx.Nop())
	if _, err := i.Interpret(context.Background(), "truck in 2h"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestInterpretEndToEnd(t *testing.T) {
	t.Parallel()
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: `{"kind": "research", "task_name": "", "days": 0, "hours": 8, "minutes": 0}`}},
			},
		})
	}))
	defer srv.Close()

	i := New(Config{Enabled: true, Endpoint: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, logx.Nop())
	got, err := i.Interpret(context.Background(), "remind me when research finishes in 8 hours")
	if err != nil {
		t.Fatalf("Interpret error: %v", err)
	}
	if got.Kind != reminder.KindResearch || got.Duration != span.New(0, 8, 0) {
		t.Fatalf("draft = %+v", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestInterpretServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	i := New(Config{Enabled: true, Endpoint: srv.URL, Model: "gpt-4o-mini"}, logx.Nop())
	if _, err := i.Interpret(context.Background(), "truck in 2h"); err == nil {
		t.Fatal("want error on 503")
	}
}
