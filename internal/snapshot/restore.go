package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/server"
	"github.com/lotas/tabkeeper/internal/storage"
)

// Restore opens every window of a stored rev in the browser, one browser
// window per saved window. It serves the extension on port and waits for it
// to connect before sending commands.
func Restore(ctx context.Context, db *sql.DB, profile string, rev int, port int) error {
	applog.Info("snapshot.restore.start", "rev", rev, "profile", profile)
	snap, err := storage.GetSnapshot(db, profile, rev)
	if err != nil {
		return err
	}

	srv := server.New(port)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe(ctx) }()

	fmt.Fprintf(os.Stderr, "Waiting for Firefox extension on port %d...\n", port)

	// The extension announces itself with a full snapshot.
	select {
	case msg := <-srv.Messages():
		if msg.Type != server.MsgSnapshot {
			return fmt.Errorf("expected initial %q message, got %q", server.MsgSnapshot, msg.Type)
		}
	case err := <-served:
		return serveFailed(port, err)
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out waiting for extension to connect")
	case <-ctx.Done():
		return ctx.Err()
	}

	tabs := 0
	for i, w := range snap.Windows {
		if len(w.Tabs) == 0 {
			continue
		}
		urls := make([]string, 0, len(w.Tabs))
		for _, t := range w.Tabs {
			urls = append(urls, t.URL)
		}
		cmd := server.OpenWindowCmd(fmt.Sprintf("open-window-%d", i), urls)
		for j, t := range w.Tabs {
			cmd.Tabs[j].Pinned = t.Pinned
		}
		if err := srv.Send(cmd); err != nil {
			return fmt.Errorf("send open-window %d: %w", i, err)
		}
		if err := awaitReply(ctx, srv, served, port, cmd.ID, 30*time.Second); err != nil {
			return err
		}
		tabs += len(urls)
	}

	applog.Info("snapshot.restore.done", "rev", rev, "windows", len(snap.Windows), "tabs", tabs)
	fmt.Fprintf(os.Stderr, "Restored %d tabs from snapshot #%d\n", tabs, rev)
	return nil
}

// awaitReply waits for the response to command id. Live events that arrive
// in between are dropped.
func awaitReply(ctx context.Context, srv *server.Server, served <-chan error, port int, id string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case resp := <-srv.Messages():
			if resp.ID != id {
				continue
			}
			if resp.Failed() {
				return fmt.Errorf("%s failed: %s", id, resp.Error)
			}
			return nil
		case err := <-served:
			return serveFailed(port, err)
		case <-deadline:
			return fmt.Errorf("timed out waiting for %s confirmation", id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// serveFailed reports the extension server stopping early, typically
// because port is taken.
func serveFailed(port int, err error) error {
	if err == nil {
		err = errors.New("server stopped")
	}
	applog.Error("snapshot.restore.serve", err, "port", port)
	return fmt.Errorf("serve extension on port %d: %w", port, err)
}
