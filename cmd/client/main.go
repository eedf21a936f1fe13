package main

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/internal/logs"
	"chat-relay/persistence"
	"chat-relay/projection"
	"chat-relay/transport/ws"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	RelayURL   string        `env:"RELAY_URL,default=ws://localhost:8080/ws"`
	RoomID     string        `env:"CHAT_ROOM_ID,required=true"`
	UserID     string        `env:"CHAT_USER_ID,required=true"`
	Token      string        `env:"RELAY_TOKEN"`
	APIBaseURL string        `env:"API_BASE_URL"`
	APIToken   string        `env:"API_TOKEN"`
	APITimeout time.Duration `env:"API_TIMEOUT,default=5s"`
	LogLevel   string        `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the WebSocket client lifecycle: connect, announce, join,
// then bridge stdin to the room until interrupted.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to the relay.
	target := config.RelayURL
	if config.Token != "" {
		target += "?token=" + config.Token
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", config.RelayURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	session := &session{
		conn:     conn,
		userID:   config.UserID,
		roomID:   config.RoomID,
		statuses: make(map[string]bool),
	}

	// 4. Announce identity and join the room.
	if err := session.emit("user-online", map[string]string{"userId": config.UserID}); err != nil {
		return exitRuntime, err
	}
	if err := session.emit("join-room", map[string]string{"roomId": config.RoomID}); err != nil {
		return exitRuntime, err
	}

	color.Green.Printf(">>> Connected to %s, room %s (Ctrl+C to quit, /who for the roster)\n",
		config.RelayURL, config.RoomID)

	// 5. Receive loop: buffer early messages until the history is merged
	// in, then print live.
	go session.receive()

	// 6. Room history: fetch over the persistence API and reconcile with
	// whatever the socket already delivered.
	var api *persistence.Client
	if config.APIBaseURL != "" {
		api = persistence.NewClient(log, config.APIBaseURL, config.APIToken, config.APITimeout)
		history, err := api.GetMessages(ctx, domain.RoomID(config.RoomID))
		if err != nil {
			log.Warn("History fetch failed", "error", err)
		}
		for _, m := range session.flushBacklog(history) {
			printMessage(m)
		}
	} else {
		for _, m := range session.flushBacklog(nil) {
			printMessage(m)
		}
	}

	// 7. Input loop.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = session.emit("user-offline", map[string]string{"userId": config.UserID})
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				_ = session.emit("user-offline", map[string]string{"userId": config.UserID})
				return exitOK, nil
			}
			if line == "" {
				continue
			}
			if line == "/who" {
				session.printRoster()
				continue
			}
			if err := session.send(ctx, api, line); err != nil {
				color.Red.Printf("send failed: %v\n", err)
			}
		}
	}
}

// session tracks what the relay has told this client so far.
type session struct {
	conn   *websocket.Conn
	userID string
	roomID string

	mu       sync.Mutex
	statuses map[string]bool
	backlog  []domain.Message
	live     bool
}

func (s *session) emit(eventName string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(ws.Envelope{Event: eventName, Data: payload})
}

// send persists the message first (when an API is configured), then emits
// the fully-formed record; the relay broadcasts it to the other members.
func (s *session) send(ctx context.Context, api *persistence.Client, content string) error {
	_ = s.emit("typing", map[string]string{"userId": s.userID, "roomId": s.roomID})
	defer func() {
		_ = s.emit("stop-typing", map[string]string{"userId": s.userID, "roomId": s.roomID})
	}()

	var message domain.Message
	if api != nil {
		persisted, err := api.CreateMessage(ctx, domain.RoomID(s.roomID), content)
		if err != nil {
			return err
		}
		message = persisted
	} else {
		// No persistence API around (local testing): fabricate the record
		// the store would have returned.
		message = domain.Message{
			ID:        uuid.NewString(),
			Content:   content,
			AuthorID:  s.userID,
			RoomID:    s.roomID,
			CreatedAt: time.Now().UTC(),
		}
	}
	return s.emit("send-message", message)
}

func (s *session) receive() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env ws.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Event {
		case "new-message":
			var m domain.Message
			if err := json.Unmarshal(env.Data, &m); err != nil {
				continue
			}
			s.mu.Lock()
			if s.live {
				s.mu.Unlock()
				printMessage(m)
				continue
			}
			s.backlog = append(s.backlog, m)
			s.mu.Unlock()

		case "user-status-change":
			var p struct {
				UserID string `json:"userId"`
				Status bool   `json:"status"`
			}
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}
			s.mu.Lock()
			s.statuses[p.UserID] = p.Status
			s.mu.Unlock()
			if p.Status {
				color.Cyan.Printf("* %s is online\n", p.UserID)
			} else {
				color.Cyan.Printf("* %s went offline\n", p.UserID)
			}

		case "user-typing":
			var p struct {
				UserID string `json:"userId"`
			}
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}
			color.Magenta.Printf("* %s is typing...\n", p.UserID)

		case "user-stop-typing":
			// Quiet: the next message (or nothing) follows.
		}
	}
}

// flushBacklog merges the fetched history with messages the socket
// delivered while the fetch was in flight, switches to live printing,
// and returns the reconciled timeline.
func (s *session) flushBacklog(history []domain.Message) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := projection.Merge(history, s.backlog)
	s.backlog = nil
	s.live = true
	return merged
}

func (s *session) printRoster() {
	s.mu.Lock()
	users := make([]string, 0, len(s.statuses))
	for user := range s.statuses {
		users = append(users, user)
	}
	statuses := make(map[string]bool, len(s.statuses))
	for user, online := range s.statuses {
		statuses[user] = online
	}
	s.mu.Unlock()
	sort.Strings(users)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User", "Status"})
	for _, user := range users {
		status := "offline"
		if statuses[user] {
			status = "online"
		}
		table.Append([]string{user, status})
	}
	table.Render()
}

func printMessage(m domain.Message) {
	author := m.AuthorID
	if m.Author != nil && m.Author.Name != "" {
		author = m.Author.Name
	}
	color.Yellow.Printf("[%s] %s: ", m.CreatedAt.Local().Format("15:04:05"), author)
	fmt.Println(m.Content)
}
