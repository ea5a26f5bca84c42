package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/koopa0/sage/internal/app"
	"github.com/koopa0/sage/internal/config"
)

// runSessions lists stored conversations, newest first. With
// "delete <id>" it removes a conversation and its messages.
func runSessions(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	a, err := app.Setup(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	if len(args) > 0 && args[0] == "delete" {
		if len(args) < 2 {
			return fmt.Errorf("usage: sage sessions delete <id>")
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[1], err)
		}
		if err := a.SessionStore.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		fmt.Printf("Deleted session %s\n", id)
		return nil
	}

	sessions, err := a.SessionStore.ListSessions(ctx, 50, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Title, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
