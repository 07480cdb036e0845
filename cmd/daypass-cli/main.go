package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/hoponpass/daypass-backend/internal/chat"
	"github.com/hoponpass/daypass-backend/internal/client"
	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/events"
	"github.com/hoponpass/daypass-backend/internal/funnel"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/payment"
	"github.com/hoponpass/daypass-backend/internal/pickup"
	"github.com/hoponpass/daypass-backend/internal/session"
	"github.com/hoponpass/daypass-backend/internal/storage"
)

const usage = `usage: daypass-cli <command> [flags]

commands:
  login    verify a booking ID and last name and keep the session
  logout   forget the session and the cached chat conversation
  whoami   show the current session
  book     buy day passes with an authorized payment token
  pickup   request an on-demand pickup
  chat     send a support message, or -watch for replies`

// app holds the client-side collaborators shared by every command
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	api      *client.Client
	store    storage.Store
	sessions *session.Manager
	resolver *chat.Resolver
	bus      *events.PubSub
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	defer a.close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "login":
		err = a.login(ctx, args)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		err = a.whoami(ctx)
	case "book":
		err = a.book(ctx, args)
	case "pickup":
		err = a.pickup(ctx, args)
	case "chat":
		err = a.chat(ctx, args)
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %s: %v", cmd, err)
	}
}

// newApp keeps sessions in Redis when chat events are enabled so they survive
// between invocations, and in memory otherwise
func newApp(cfg *config.Config, logger *logrus.Logger) *app {
	a := &app{cfg: cfg, logger: logger, api: client.New(&cfg.Client, logger)}

	if cfg.Redis.EventsEnabled {
		rdb := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		a.store = storage.NewRedisStore(rdb, cfg.Redis.Namespace, cfg.Redis.SessionTTL)
		bus, err := events.NewRedisPubSub(rdb, "", events.NewWatermillLogger(logger))
		if err != nil {
			log.Fatalf("❌ Failed to connect to the event bus: %v", err)
		}
		a.bus = bus
	} else {
		a.store = storage.NewMemoryStore()
	}

	a.sessions = session.NewManager(a.store, a.api, cfg.Booking.Location(), logger)
	a.api.UseSessionTokens(a.sessions)

	var sub = events.NewInMemoryPubSub(events.NewWatermillLogger(logger)).Subscriber
	if a.bus != nil {
		sub = a.bus.Subscriber
	}
	a.resolver = chat.NewResolver(a.store, a.api, sub, logger)
	a.resolver.FollowSession(a.sessions)
	return a
}

func (a *app) close() {
	if a.bus != nil {
		_ = a.bus.Close()
	}
}

// ============================================================================
// SESSION
// ============================================================================

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ExitOnError)
	bookingID := fs.String("booking", "", "booking ID, e.g. AB-1234")
	lastName := fs.String("last-name", "", "last name on the booking")
	_ = fs.Parse(args)

	s, err := a.sessions.VerifyAndLogin(ctx, *bookingID, *lastName)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Welcome %s: %d pass(es) for %s, session valid until %s\n",
		s.CustomerName, s.Passes, s.VisitDate, s.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.sessions.ClearSession(ctx); err != nil {
		return err
	}
	fmt.Println("✅ Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	s, err := a.sessions.GetSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Println("Not logged in")
		return nil
	}
	fmt.Printf("%s (%s), booking %s for %s\n", s.CustomerName, s.CustomerEmail, s.BookingID, s.VisitDate)
	return nil
}

// ============================================================================
// BOOKING
// ============================================================================

func (a *app) book(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("book", pflag.ExitOnError)
	date := fs.String("date", "", "visit date YYYY-MM-DD")
	slot := fs.String("slot", "", "departure time HH:MM")
	guided := fs.Bool("guided", false, "add guided commentary")
	name := fs.String("name", "", "contact name")
	email := fs.String("email", "", "contact email")
	phone := fs.String("phone", "", "contact phone")
	passengers := fs.String("passengers", "", "comma separated Name:Type list, e.g. \"Ana Silva:Adult,Rui Silva:Child\"")
	addOns := fs.String("add-ons", "", "comma separated attraction:quantity list")
	token := fs.String("payment-token", "", "token from the hosted checkout")
	_ = fs.Parse(args)

	gateway := payment.NewPAYableGateway(&a.cfg.Payment, a.logger)
	f := funnel.New(funnel.NewConfig(&a.cfg.Booking), gateway, a.api, a.logger)

	if err := f.SubmitDateTime(*date, *slot, *guided); err != nil {
		return err
	}

	people, err := parsePassengers(*passengers)
	if err != nil {
		return err
	}
	if err := f.SubmitPassengerDetails(funnel.PassengerDetails{
		ContactName:  *name,
		Email:        *email,
		ConfirmEmail: *email,
		Phone:        *phone,
		Passengers:   people,
	}); err != nil {
		return err
	}

	selections, err := parseAddOns(*addOns)
	if err != nil {
		return err
	}
	if len(selections) == 0 {
		err = f.SkipAddOns()
	} else {
		err = f.SubmitAddOns(selections)
	}
	if err != nil {
		return err
	}

	quote, err := f.Quote()
	if err != nil {
		return err
	}
	fmt.Printf("💳 Charging %d cents...\n", quote.Total)

	booking, err := f.Pay(ctx, *token)
	if err != nil {
		var persistErr *funnel.PersistenceError
		if errors.As(err, &persistErr) {
			fmt.Println("⚠️  Payment was taken but the booking could not be saved. Quote this to support:")
		}
		return err
	}

	fmt.Printf("✅ Booking %s confirmed for %s at %s\n", booking.ID, booking.SelectedDate, booking.TimeSlot)
	for i, p := range booking.Passengers {
		if i < len(booking.QRCodes) {
			fmt.Printf("   %s (%s): ticket %s\n", p.Name, p.Type, booking.QRCodes[i])
		}
	}
	return nil
}

func parsePassengers(raw string) ([]models.Passenger, error) {
	var out []models.Passenger
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, kind, ok := strings.Cut(entry, ":")
		if !ok {
			kind = string(models.PassengerAdult)
		}
		out = append(out, models.Passenger{Name: strings.TrimSpace(name), Type: models.PassengerType(strings.TrimSpace(kind))})
	}
	return out, nil
}

func parseAddOns(raw string) ([]funnel.Selection, error) {
	var out []funnel.Selection
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, qty, ok := strings.Cut(entry, ":")
		quantity := 1
		if ok {
			if _, err := fmt.Sscanf(qty, "%d", &quantity); err != nil {
				return nil, fmt.Errorf("invalid quantity in %q", entry)
			}
		}
		out = append(out, funnel.Selection{AttractionID: strings.TrimSpace(id), Quantity: quantity})
	}
	return out, nil
}

// ============================================================================
// PICKUP
// ============================================================================

func (a *app) pickup(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("pickup", pflag.ExitOnError)
	code := fs.String("code", "", "booking code when not logged in")
	name := fs.String("name", "", "customer name (defaults to the session)")
	prefix := fs.String("prefix", pickup.DefaultPhonePrefix, "phone country code")
	phone := fs.String("phone", "", "phone number (defaults to the session)")
	location := fs.String("from", "", "pickup location")
	destination := fs.String("to", "", "optional destination")
	group := fs.Int("group", 0, "group size (defaults to the pass count)")
	_ = fs.Parse(args)

	flow := pickup.NewFlow(a.api, a.api, a.sessions, a.cfg.Pickup.MinSearchingDelay, a.logger)
	state, err := flow.Start(ctx)
	if err != nil {
		return err
	}
	if state == pickup.StateVerify {
		if err := flow.VerifyCode(ctx, *code); err != nil {
			return err
		}
	}

	if *name != "" {
		if err := flow.SetCustomerName(*name); err != nil {
			return err
		}
	}
	if *phone != "" {
		if err := flow.SetPhone(*prefix, *phone); err != nil {
			return err
		}
	}
	if err := flow.SetPickupLocation(*location); err != nil {
		return err
	}
	if *destination != "" {
		if err := flow.SetDestination(*destination); err != nil {
			return err
		}
	}
	if *group > 0 {
		if _, err := flow.SetGroupSize(*group); err != nil {
			return err
		}
	}

	fmt.Println("🚐 " + flow.Guidance())
	ref, err := flow.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Pickup %s is %s: %s\n", ref.ID, ref.Status, ref.VehicleSummary)
	return nil
}

// ============================================================================
// CHAT
// ============================================================================

func (a *app) chat(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("chat", pflag.ExitOnError)
	name := fs.String("name", "", "your name when not logged in")
	email := fs.String("email", "", "your email when not logged in")
	text := fs.String("text", "", "message to send")
	watch := fs.Bool("watch", false, "print the conversation whenever it changes")
	_ = fs.Parse(args)

	current, err := a.sessions.Identity(ctx)
	if err != nil {
		return err
	}
	identity := chat.IdentityFrom(current, chat.Identity{Name: *name, Email: *email})

	conversationID, err := a.resolver.Resolve(ctx, identity)
	if err != nil {
		return err
	}

	if *text != "" {
		if _, err := a.resolver.Send(ctx, conversationID, identity, *text); err != nil {
			return err
		}
	}

	messages, err := a.resolver.Messages(ctx, conversationID)
	if err != nil {
		return err
	}
	printMessages(messages)

	if !*watch {
		return nil
	}
	if a.bus == nil {
		return fmt.Errorf("watching needs REDIS_EVENTS_ENABLED=true")
	}
	fmt.Println("👀 Waiting for replies, Ctrl+C to stop")
	return a.resolver.Watch(ctx, conversationID, printMessages)
}

func printMessages(messages []models.ChatMessage) {
	fmt.Println("-----------------------------")
	for _, m := range messages {
		fmt.Printf("[%s] %s (%s): %s\n", m.CreatedAt.Format("15:04"), m.SenderName, m.Sender, m.Text)
	}
}
