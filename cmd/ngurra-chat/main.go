// Command ngurra-chat is a terminal client for the Ngurra messaging
// backend. It drives the same sync core the product UIs embed, which makes
// it a handy smoke test: optimistic sends, reconnects, typing indicators,
// and presence all behave exactly as they do in the apps.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/api"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/chat"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/middleware"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/transport"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "REST base URL")
		socketURL = flag.String("ws", "ws://localhost:8081/ws", "WebSocket URL")
		userID    = flag.String("user", "", "user id (required)")
		name      = flag.String("name", "", "display name (defaults to user id)")
		token     = flag.String("token", "", "bearer token; minted locally when empty")
		secret    = flag.String("secret", "dev-secret", "HMAC secret used to mint a token")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	displayName := *name
	if displayName == "" {
		displayName = *userID
	}

	authToken := *token
	if authToken == "" {
		minted, err := middleware.MintToken(*secret, *userID, displayName, 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
		authToken = minted
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("failed to build logger: %v", err)
		}
	}

	tr := transport.NewWebsocket(transport.Config{
		URL:    *socketURL,
		Logger: logger,
	})
	restClient, err := api.NewClient(api.Config{
		BaseURL: *serverURL,
		Token:   func() string { return authToken },
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to build api client: %v", err)
	}

	store, err := chat.NewStore(chat.Config{
		UserID:      *userID,
		DisplayName: displayName,
		Transport:   tr,
		API:         restClient,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to build store: %v", err)
	}

	ctx := context.Background()
	if err := store.Connect(ctx, authToken); err != nil {
		fmt.Printf("socket unavailable (%v), continuing over REST\n", err)
	}
	defer store.Disconnect()

	if err := store.LoadConversations(ctx); err != nil {
		log.Fatalf("failed to load conversations: %v", err)
	}

	updates, cancel := store.Subscribe()
	defer cancel()
	go printUpdates(store, updates)

	fmt.Printf("connected as %s — type /help for commands\n", *userID)
	repl(ctx, store)
}

func repl(ctx context.Context, store *chat.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			active := store.ActiveConversation()
			if active == "" {
				fmt.Println("no open conversation; use /open <id>")
				continue
			}
			store.SendTypingStop(active)
			if !store.SendMessage(active, line, model.MessageText) {
				fmt.Println("send failed; message marked failed")
			}
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "/help":
			fmt.Println("/convs  /open <id>  /new <userId>...  /read  /typing  /who  /quit")
		case "/convs":
			for _, conv := range store.Conversations() {
				marker := " "
				if conv.ID == store.ActiveConversation() {
					marker = "*"
				}
				fmt.Printf("%s %s [%s] unread=%d\n", marker, conv.ID, conv.Kind, conv.UnreadCount)
			}
			fmt.Printf("total unread: %d\n", store.TotalUnread())
		case "/open":
			if len(parts) < 2 {
				fmt.Println("usage: /open <conversationId>")
				continue
			}
			store.SetActiveConversation(parts[1])
			for _, conv := range store.Conversations() {
				if conv.ID == parts[1] {
					store.SubscribePresence(conv.ParticipantIDs())
				}
			}
		case "/new":
			if len(parts) < 2 {
				fmt.Println("usage: /new <userId> [userId...]")
				continue
			}
			conv, err := store.CreateConversation(ctx, parts[1:], "", "")
			if err != nil {
				fmt.Printf("create failed: %v\n", err)
				continue
			}
			fmt.Printf("created %s\n", conv.ID)
			store.SetActiveConversation(conv.ID)
		case "/read":
			if active := store.ActiveConversation(); active != "" {
				if err := store.MarkAsRead(ctx, active); err != nil {
					fmt.Printf("mark read failed: %v\n", err)
				}
			}
		case "/typing":
			if active := store.ActiveConversation(); active != "" {
				store.SendTypingStart(active)
			}
		case "/who":
			active := store.ActiveConversation()
			if active == "" {
				continue
			}
			for _, conv := range store.Conversations() {
				if conv.ID != active {
					continue
				}
				for _, p := range conv.Participants {
					state := "offline"
					if p.Online {
						state = "online"
					}
					fmt.Printf("%s (%s) %s\n", p.DisplayName, p.UserID, state)
				}
			}
		case "/quit":
			return
		default:
			fmt.Printf("unknown command %s\n", parts[0])
		}
	}
}

// printUpdates renders the active conversation's tail whenever the store
// changes.
func printUpdates(store *chat.Store, updates <-chan struct{}) {
	var lastPrinted string
	for range updates {
		active := store.ActiveConversation()
		if active == "" {
			continue
		}

		msgs := store.Messages(active)
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			key := last.ID + string(last.Status)
			if key != lastPrinted {
				lastPrinted = key
				fmt.Printf("\r[%s] %s: %s (%s)\n> ",
					last.CreatedAt.Format("15:04:05"), last.SenderName, last.Content, last.Status)
			}
		}

		if typing := store.TypingUsers(active); len(typing) > 0 {
			fmt.Printf("\r%s typing...\n> ", strings.Join(typing, ", "))
		}
	}
}
