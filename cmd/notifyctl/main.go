package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jwalitptl/contract-admin/pkg/inbox"
	"github.com/jwalitptl/contract-admin/pkg/notifyclient"
)

const usage = `usage: notifyctl [-user id] [-debug] <command>

commands:
  tail        follow live notifications
  list        print the first page
  unread      print the unread count
  read-all    mark every notification read
  clear       delete all notifications
`

func main() {
	userID := flag.Int64("user", 0, "authenticated user id (required for tail)")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := notifyclient.LoadConfig()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	client := notifyclient.New(cfg, notifyclient.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), cfg, client, *userID, logger); err != nil {
		logger.Fatal("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cmd string, cfg notifyclient.Config, client *notifyclient.Client, userID int64, logger *zap.Logger) error {
	switch cmd {
	case "list":
		page, err := client.List(ctx, 1, inbox.DefaultPageSize)
		if err != nil {
			return err
		}
		for _, n := range page.Items {
			printNotification(n)
		}
		fmt.Printf("page %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
	case "unread":
		n, err := client.UnreadCount(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
	case "read-all":
		n, err := client.MarkAllRead(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("marked %d read\n", n)
	case "clear":
		n, err := client.DeleteAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d\n", n)
	case "tail":
		if userID <= 0 {
			return fmt.Errorf("tail needs -user")
		}
		return tail(ctx, cfg, client, userID, logger)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func tail(ctx context.Context, cfg notifyclient.Config, client *notifyclient.Client, userID int64, logger *zap.Logger) error {
	ib, store, err := inbox.Open(cfg, client, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	defer ib.Close()

	if err := ib.Init(ctx, inbox.Session{UserID: userID}); err != nil {
		return err
	}
	state := ib.State()
	for i := len(state.Entries) - 1; i >= 0; i-- {
		printNotification(state.Entries[i].Notification)
	}
	fmt.Printf("-- %d unread --\n", state.Unread)

	shown := make(map[string]bool)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, t := range ib.Toasts().Active() {
				if shown[t.ID] {
					continue
				}
				shown[t.ID] = true
				fmt.Printf("[%s] %s: %s (%d unread)\n", t.Priority, t.Title, t.Message, ib.Unread())
			}
		}
	}
}

func printNotification(n notifyclient.Notification) {
	mark := " "
	if !n.Read {
		mark = "*"
	}
	fmt.Printf("%s %s [%s] %s: %s\n", mark, n.CreatedAt.Local().Format(time.DateTime), n.Priority, n.Title, n.Message)
}
