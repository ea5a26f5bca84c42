package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/koopa0/sage/internal/app"
	"github.com/koopa0/sage/internal/config"
	"github.com/koopa0/sage/internal/session"
)

// runAsk answers a one-shot question. A fresh session is created for
// the turn so the exchange is inspectable later via `sage sessions`.
func runAsk(args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("usage: sage ask <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	sess, err := a.SessionStore.CreateSession(ctx, session.DefaultTitle(time.Now()))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	_, err = a.Agent.ExecuteStream(ctx, sess.ID, question,
		func(_ context.Context, text string) error {
			_, werr := fmt.Fprint(os.Stdout, text)
			return werr
		})
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}
	fmt.Println()

	return nil
}
