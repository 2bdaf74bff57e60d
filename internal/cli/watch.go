package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"checklist/api/internal/checklist"
	"checklist/api/internal/poller"
	"github.com/spf13/cobra"
)

const watchHelp = `commands: check N | uncheck N | comment N text | refresh | view SESSION-ID | quit`

func newWatchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a session live and edit it",
		Long: `Follow a session live. The view refreshes on the poll interval and right
after each of your own edits. Type commands on standard input:

  ` + watchHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := &watcher{env: e, out: cmd.OutOrStdout()}
			return w.run(cmd, args[0])
		},
	}
}

type watcher struct {
	env   *env
	outMu sync.Mutex
	out   io.Writer
}

func (w *watcher) printf(format string, args ...any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

func (w *watcher) render(u poller.Update) {
	stamp := mutedStyle.Render("-- " + u.FetchedAt.Format(time.TimeOnly))
	if u.Err != nil {
		w.printf("%s %s\n", stamp, renderError(u.Err))
		return
	}
	w.printf("%s\n%s\n", stamp, renderSession(u.View))
}

func (w *watcher) run(cmd *cobra.Command, sessionID string) error {
	ctx := cmd.Context()
	viewer := poller.NewViewer(w.env.client, w.render, poller.Config{
		Interval:     w.env.settings.PollInterval,
		FetchTimeout: w.env.settings.RequestTimeout,
	})
	viewer.View(sessionID)
	defer viewer.Stop()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := w.handle(cmd, viewer, line); quit {
				return nil
			}
		}
	}
}

// handle runs one interactive command and reports whether to quit.
func (w *watcher) handle(cmd *cobra.Command, viewer *poller.Viewer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	sessionID := viewer.Current()

	switch fields[0] {
	case "quit", "q", "exit":
		return true
	case "refresh", "r":
		viewer.Refresh()
	case "view", "v":
		if len(fields) != 2 {
			w.printf("%s\n", renderError(fmt.Errorf("usage: view SESSION-ID")))
			return false
		}
		viewer.View(fields[1])
	case "check", "c", "uncheck", "u":
		if len(fields) != 2 {
			w.printf("%s\n", renderError(fmt.Errorf("usage: %s N", fields[0])))
			return false
		}
		checked := fields[0] == "check" || fields[0] == "c"
		w.mutate(cmd, viewer, sessionID, fields[1], checklist.ItemUpdate{Checked: &checked})
	case "comment":
		if len(fields) < 2 {
			w.printf("%s\n", renderError(fmt.Errorf("usage: comment N text")))
			return false
		}
		text := strings.Join(fields[2:], " ")
		w.mutate(cmd, viewer, sessionID, fields[1], checklist.ItemUpdate{Comment: &text})
	default:
		w.printf("%s\n", mutedStyle.Render(watchHelp))
	}
	return false
}

func (w *watcher) mutate(cmd *cobra.Command, viewer *poller.Viewer, sessionID, number string, update checklist.ItemUpdate) {
	index, err := parseItemNumber(number)
	if err != nil {
		w.printf("%s\n", renderError(err))
		return
	}
	progress, err := w.env.client.ApplyItemUpdate(cmd.Context(), sessionID, index, update)
	if err != nil {
		w.printf("%s\n", renderError(err))
		return
	}
	w.printf("updated item %d %s\n", index+1, summarizeProgress(progress))
	viewer.Refresh()
}
