package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/domain"
	"chat-relay/repositories"
	"chat-relay/router"
	"chat-relay/services"
	"chat-relay/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the prompt lifecycle, and
// centralizes error reporting so every defer executes before exit.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Message log (Postgres when a DSN is configured, BadgerDB otherwise)
	var store repositories.IMessageLog
	if config.PostgresDSN != "" {
		pg, err := repositories.OpenPostgresLog(config.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres log: %w", err)
		}
		store = pg
	} else {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.ERROR))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		store = repositories.NewBadgerLog(db, log)
	}

	// 3. Broker connection
	pubsub := transport.NewRedisPubSub(config.BrokerAddr, log)
	defer func() { _ = pubsub.Close() }()

	// 4. Session
	identity := services.Identity{ID: config.UserID, Name: config.UserName}
	if identity.Name == "" {
		identity.Name = identity.ID
	}
	session := services.New(log, identity, pubsub, store, config.SharedTopic,
		displayCallbacks(), services.Options{
			AutoReadDelay:   config.AutoReadDelay,
			TypingLinger:    config.TypingLinger,
			TrackerCapacity: config.TrackerCapacity,
		})

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("subscribing failed: %w", err)
	}
	log.Info("Subscribed", "shared_topic", config.SharedTopic, "user", identity.ID)

	color.Greenln("Welcome to the chat, " + identity.Name + "!")
	fmt.Println("Your ID: " + identity.ID)
	printHelp()

	// 6. Prompt loop
	prompt(ctx, session, identity, config.HistoryLimit)

	log.Info("Program stopped cleanly")
	return nil
}

// displayCallbacks renders inbound traffic on the terminal.
func displayCallbacks() router.Callbacks {
	return router.Callbacks{
		OnDelivered: func(m domain.Message) {
			stamp := m.CreatedAt.Local().Format("15:04:05")
			color.Greenp("[" + stamp + "] " + m.SenderName + ": ")
			fmt.Println(m.Content)
		},
		OnStatusChanged: func(e domain.StatusEvent) {
			color.Grayln(fmt.Sprintf("message %s... %s by %s",
				shortID(e.MessageID), e.Status, e.ParticipantID))
		},
		OnTyping: func(t domain.Typing) {
			name := t.ActorName
			if name == "" {
				name = t.ActorID
			}
			if t.Active {
				color.Yellowln(name + " is typing...")
			} else {
				color.Grayln(name + " stopped typing")
			}
		},
	}
}

func prompt(ctx context.Context, session *services.Session, identity services.Identity, historyLimit int) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("\n[%s] ", identity.Name)
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		switch strings.ToLower(parts[0]) {
		case "send":
			if len(parts) < 3 {
				color.Redln("usage: send <user_id> <message>")
				continue
			}
			if _, err := session.Send(ctx, parts[1], parts[2]); err != nil {
				color.Redln("send failed: " + err.Error())
				continue
			}
			fmt.Println("Message sent: " + parts[2])
		case "broadcast":
			if len(parts) < 2 {
				color.Redln("usage: broadcast <message>")
				continue
			}
			content := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
			if _, err := session.Broadcast(ctx, content); err != nil {
				color.Redln("broadcast failed: " + err.Error())
				continue
			}
			fmt.Println("Broadcast sent: " + content)
		case "history":
			limit := historyLimit
			if len(parts) > 1 {
				parsed, err := strconv.Atoi(parts[1])
				if err != nil {
					color.Redln("usage: history [limit]")
					continue
				}
				limit = parsed
			}
			messages, err := session.History(limit)
			if err != nil {
				color.Redln("history failed: " + err.Error())
				continue
			}
			printHistory(messages)
		case "status":
			printStatusReport(session)
		case "typing":
			if len(parts) < 2 {
				color.Redln("usage: typing <user_id>")
				continue
			}
			if err := session.Typing(ctx, parts[1]); err != nil {
				color.Redln("typing failed: " + err.Error())
			}
		case "help":
			printHelp()
		case "quit":
			fmt.Println("Goodbye!")
			return
		default:
			color.Redln("Invalid command. Type 'help' for available commands.")
		}
	}
}

func printHelp() {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("send <user_id> <message>  - Send message to user")
	fmt.Println("broadcast <message>       - Send message to all users")
	fmt.Println("history [limit]           - Show message history")
	fmt.Println("status                    - Show outbound message statuses")
	fmt.Println("typing <user_id>          - Send typing indicator")
	fmt.Println("help                      - Show this help")
	fmt.Println("quit                      - Exit chat")
	fmt.Println(strings.Repeat("=", 50))
}

func printHistory(messages []domain.Message) {
	table := newTable("Time", "From", "To", "Content")
	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Local().Format("15:04:05"),
			m.SenderName,
			m.ReceiverID,
			m.Content,
		})
	}
	table.Render()
}

func printStatusReport(session *services.Session) {
	table := newTable("ID", "To", "Content", "Status", "Sent at")
	for message, status := range session.StatusReport() {
		table.Append([]string{
			shortID(message.ID),
			message.ReceiverID,
			truncate(message.Content, 40),
			string(status),
			message.CreatedAt.Local().Format(time.TimeOnly),
		})
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
