// Command chatsync is a terminal chat client built on the realtime service.
//
// It logs in with CHAT_TOKEN, opens one conversation and sends every line read
// from stdin to it, printing the timeline as it changes.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-sync/internal/api"
	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/realtime"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/transport"
)

func main() {
	peer := flag.String("peer", "", "user id to open a private room with")
	room := flag.String("room", "", "room id to open")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	identity, err := identityFromToken(cfg.Token)
	if err != nil {
		log.Fatalf("invalid CHAT_TOKEN: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracing(ctx, "chat-sync-client", cfg.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	lifecycle := telemetry.NewLifecycleEmitter(publisher, cfg.RoutingKey, "chat-sync-client", cfg.Environment).
		OnError(observability.IncAMQPPublishError)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	store := auth.NewStore()
	svc := realtime.New(realtime.Config{
		TimeUnit:             cfg.TimeUnit,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconcileWindow:      cfg.ReconcileWindow,
	}, realtime.Deps{
		Auth:      store,
		Dialer:    transport.NewWebSocketDialer(cfg.WSURL),
		API:       api.NewClient(cfg.APIURL, store),
		Lifecycle: lifecycle,
	})
	defer svc.Close()

	svc.OnStateChange(func(s realtime.ConnState) { log.Printf("connection %s", s) })

	if err := store.Login(identity); err != nil {
		log.Fatalf("login failed: %v", err)
	}
	defer store.Logout()

	roomID, err := pickRoom(ctx, svc, *room, *peer)
	if err != nil {
		log.Fatalf("no room to open: %v", err)
	}

	view := svc.NewChatView()
	defer view.Close()

	printer := &timelinePrinter{printed: make(map[string]bool)}
	svc.OnMessagesChange(func(change realtime.MessagesChange) {
		if change.RoomID == view.Room() {
			printer.print(change.Messages)
		}
	})
	svc.OnTypingChange(func(change realtime.TypingChange) {
		if change.RoomID == view.Room() && len(change.UserIDs) > 0 {
			fmt.Printf("  %s typing...\n", strings.Join(change.UserIDs, ", "))
		}
	})

	detail, err := view.Open(ctx, roomID)
	if err != nil {
		log.Printf("history unavailable: %v", err)
	} else {
		fmt.Printf("chatting with %s in room %s\n", displayName(detail.Other), roomID)
	}

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := view.Send(ctx, line, models.KindText); err != nil {
				var sendErr *realtime.SendError
				if errors.As(err, &sendErr) {
					fmt.Printf("  not sent, draft kept: %q (%v)\n", sendErr.Draft, sendErr.Err)
					continue
				}
				log.Printf("send failed: %v", err)
			}
		}
	}
}

// identityFromToken accepts a JWT or, against a development backend, a bare user id.
func identityFromToken(token string) (auth.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Identity{}, errors.New("token is required")
	}
	id, err := auth.IdentityFromToken(token)
	if err == nil {
		return id, nil
	}
	if strings.Count(token, ".") == 2 {
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: token, Token: token}, nil
}

func pickRoom(ctx context.Context, svc *realtime.Service, room, peer string) (string, error) {
	if room != "" {
		return room, nil
	}
	if peer != "" {
		r, err := svc.CreateOrGetRoom(ctx, peer)
		if err != nil {
			return "", err
		}
		return r.ID, nil
	}
	convs, err := svc.LoadConversations(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range convs {
		fmt.Printf("%s  %-16s %3d unread  %s\n", c.RoomID, displayName(c.Other), c.Unread, c.LastPreview)
	}
	if len(convs) == 0 {
		return "", errors.New("no conversations, pass -peer to start one")
	}
	return convs[0].RoomID, nil
}

func displayName(p models.Participant) string {
	name := p.Username
	if name == "" {
		name = p.ID
	}
	if p.Online {
		name += " (online)"
	}
	return name
}

type timelinePrinter struct {
	mu      sync.Mutex
	printed map[string]bool
}

func (p *timelinePrinter) print(msgs []models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if m.Provisional {
			continue
		}
		key := m.ID
		if m.ClientMessageID != "" {
			key = m.ClientMessageID
		}
		if p.printed[key] {
			continue
		}
		p.printed[key] = true
		who := m.SenderID
		if m.Own {
			who = "me"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Preview())
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}
