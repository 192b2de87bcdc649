package notify

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// DesktopService shows notifications via notify-send. Freedesktop
// notifications have no cancel-by-id operation from the CLI, so Cancel only
// forgets the mapping; the desktop environment expires the toast itself.
type DesktopService struct {
	mu    sync.Mutex
	shown map[string]bool
}

func NewDesktopService() *DesktopService {
	return &DesktopService{shown: make(map[string]bool)}
}

func (d *DesktopService) Notify(id string, c Content) error {
	args := []string{"--app-name=remindd", c.Title}
	if c.Body != "" {
		args = append(args, c.Body)
	}
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		return fmt.Errorf("notify-send: %w", err)
	}
	d.mu.Lock()
	d.shown[id] = true
	d.mu.Unlock()
	return nil
}

func (d *DesktopService) Cancel(id string) error {
	d.mu.Lock()
	delete(d.shown, id)
	d.mu.Unlock()
	return nil
}

// LogService writes notifications to the structured log. Used when no
// desktop notifier is configured (headless hosts, tests).
type LogService struct {
	Logger *slog.Logger
}

func (l *LogService) log() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *LogService) Notify(id string, c Content) error {
	l.log().Info("notification", "id", id, "title", c.Title, "body", c.Body)
	return nil
}

func (l *LogService) Cancel(id string) error {
	l.log().Info("notification canceled", "id", id)
	return nil
}
