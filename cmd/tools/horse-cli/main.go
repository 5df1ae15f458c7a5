package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/annel0/horsestore/internal/auth"
	"github.com/annel0/horsestore/internal/codec"
	"github.com/annel0/horsestore/internal/config"
	"github.com/annel0/horsestore/internal/eventbus"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/google/uuid"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config path (default $HORSESTORE_CONFIG)")
		command    = flag.String("cmd", "list", "Command: list, show, delete, tail, token, secret")
		ownerFlag  = flag.String("owner", "", "Owner UUID")
		slot       = flag.Int("slot", 0, "Slot number")
		eventTypes = flag.String("types", "", "Event types filter for tail (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop tail after N events (0 = until Ctrl-C)")
		admin      = flag.Bool("admin", false, "Issue admin token (token command)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "list", "show", "delete":
		owner, err := uuid.Parse(*ownerFlag)
		if err != nil {
			log.Fatalf("❌ -owner must be a UUID: %v", err)
		}
		store, err := storage.Open(ctx, cfg.StorageOptions())
		if err != nil {
			log.Fatalf("❌ Failed to open storage: %v", err)
		}
		defer store.Close()

		switch *command {
		case "list":
			err = listSlots(ctx, os.Stdout, store, owner)
		case "show":
			err = showSlot(ctx, os.Stdout, store, storage.Key{Owner: owner, Slot: *slot})
		case "delete":
			err = store.Delete(ctx, storage.Key{Owner: owner, Slot: *slot})
			if err == nil {
				fmt.Printf("🗑  Slot %d of %s deleted\n", *slot, owner)
			}
		}
		if err != nil {
			log.Fatalf("❌ %s failed: %v", *command, err)
		}

	case "tail":
		if err := tailEvents(ctx, cfg, parseStringList(*eventTypes), *limit); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "token":
		authn, err := cfg.Authenticator()
		if err != nil {
			log.Fatalf("❌ Invalid jwt secret: %v", err)
		}
		owner := uuid.Nil
		if !*admin || *ownerFlag != "" {
			if owner, err = uuid.Parse(*ownerFlag); err != nil {
				log.Fatalf("❌ -owner must be a UUID: %v", err)
			}
		}
		if err := issueToken(os.Stdout, authn, owner, *admin); err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}

	case "secret":
		secret, err := auth.GenerateSecureSecret()
		if err != nil {
			log.Fatalf("❌ Failed to generate secret: %v", err)
		}
		fmt.Println(secret)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: list, show, delete, tail, token, secret")
		os.Exit(1)
	}
}

// listSlots выводит занятые слоты владельца с кратким описанием
func listSlots(ctx context.Context, w io.Writer, store storage.Store, owner uuid.UUID) error {
	slots, err := store.ListSlots(ctx, owner)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "🐴 Owner %s: %d stored horse(s)\n", owner, len(slots))
	for _, slot := range slots {
		data, found, err := store.Get(ctx, storage.Key{Owner: owner, Slot: slot})
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		fmt.Fprintf(w, "  #%d %s\n", slot, describe(data))
	}
	return nil
}

// describe кратко описывает запись; испорченная запись не прерывает вывод
func describe(data []byte) string {
	st, err := codec.DecodeText(data)
	if err != nil && !codec.IsPartial(err) {
		return fmt.Sprintf("CORRUPTED (%v)", err)
	}

	name := st.Name()
	if name == "" {
		name = "<unnamed>"
	}
	out := fmt.Sprintf("%s %s/%s in %s (%.1f, %.1f, %.1f)",
		name, st.Color, st.Style, st.World, st.Position.X, st.Position.Y, st.Position.Z)
	if err != nil {
		out += " [inventory lost]"
	}
	return out
}

// showSlot печатает документ записи с отступами
func showSlot(ctx context.Context, w io.Writer, store storage.Store, key storage.Key) error {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("slot %s is empty", key)
	}

	rec, err := codec.Unmarshal(data)
	if err != nil {
		fmt.Fprintf(w, "⚠️  Record does not parse (%v), raw text:\n%s\n", err, data)
		return nil
	}
	pretty, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n%s\n", key, pretty)
	if _, err := codec.Decode(rec); err != nil {
		fmt.Fprintf(w, "⚠️  %v\n", err)
	}
	return nil
}

// tailEvents печатает события движка из JetStream
func tailEvents(ctx context.Context, cfg *config.Config, types []string, limit int) error {
	jsCfg, ok := cfg.JetStreamConfig()
	if !ok {
		return errors.New("eventbus.url is not configured")
	}
	jsCfg.Durable = "" // эфемерный консьюмер, чтобы не сдвигать позицию сервера

	bus, err := eventbus.NewJetStreamBus(jsCfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("🎬 Tailing %s/%s (limit: %d)\n", jsCfg.URL, jsCfg.Stream, limit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var count atomic.Int64
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(os.Stdout, ev)
		if n := count.Add(1); limit > 0 && n >= int64(limit) {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	fmt.Printf("\n📊 Total events: %d\n", count.Load())
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(w io.Writer, ev *eventbus.Envelope) {
	fmt.Fprintf(w, "[%s] %s [%s] %s\n", ev.Timestamp.Format(time.TimeOnly), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.TypeOwnerConnected, eventbus.TypeOwnerDisconnected:
		var p eventbus.OwnerPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			fmt.Fprintf(w, "  Owner: %s\n", p.Owner)
		}
	case eventbus.TypeRegionDeactivated:
		var p eventbus.RegionPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			fmt.Fprintf(w, "  Region: %s (%d,%d) Horses: %d\n", p.World, p.X, p.Z, len(p.Members))
		}
	}
}

// issueToken печатает токен владельца. Требует server.jwt_secret в конфигурации.
func issueToken(w io.Writer, authn *auth.Authenticator, owner uuid.UUID, admin bool) error {
	if authn == nil {
		return errors.New("server.jwt_secret is not configured")
	}
	token, err := authn.GenerateToken(owner, admin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
