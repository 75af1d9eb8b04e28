package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"ragtutor/internal/tui"
)

// httpChat talks to a running ragtutor server over its /chat endpoint.
// One client instance carries one session id for the whole run.
type httpChat struct {
	base      string
	sessionID string
	name      string
	email     string
	client    *http.Client
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

type chatResponse struct {
	Text      string `json:"text"`
	Emotion   string `json:"emotion"`
	Citations []struct {
		ID     string `json:"id"`
		Source string `json:"source"`
	} `json:"citations"`
}

func (h *httpChat) Chat(message string) (tui.ChatReply, error) {
	body, err := json.Marshal(chatRequest{
		Message:   message,
		SessionID: h.sessionID,
		Name:      h.name,
		Email:     h.email,
	})
	if err != nil {
		return tui.ChatReply{}, err
	}
	resp, err := h.client.Post(h.base+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return tui.ChatReply{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tui.ChatReply{}, fmt.Errorf("chat request failed: %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return tui.ChatReply{}, err
	}
	reply := tui.ChatReply{Text: out.Text, Emotion: out.Emotion}
	for _, c := range out.Citations {
		reply.Citations = append(reply.Citations, tui.Citation{ID: c.ID, Source: c.Source})
	}
	return reply, nil
}

func main() {
	_ = godotenv.Load()

	var server, email, name string
	flag.StringVar(&server, "server", "http://localhost:8000", "Base URL of the ragtutor server")
	flag.StringVar(&email, "email", "", "Owner email whose documents to search")
	flag.StringVar(&name, "name", "you", "Display name sent with each message")
	flag.Parse()

	client := &httpChat{
		base:      server,
		sessionID: uuid.NewString(),
		name:      name,
		email:     email,
		client:    &http.Client{Timeout: 60 * time.Second},
	}

	p := tea.NewProgram(tui.New(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
