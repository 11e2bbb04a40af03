// Package desktop wraps the host machine helpers the panels need: opening
// URLs and files, collecting dropped files, user-visible messages and a
// free-space check before downloads.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned when a download would not fit.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Opener opens a URL or a local file in the user's default application.
type Opener struct {
	command string
	log     zerolog.Logger
}

// NewOpener picks the platform's open command. An empty command disables
// opening; calls are logged instead.
func NewOpener(log zerolog.Logger) *Opener {
	cmd := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "windows":
		cmd = "explorer"
	}
	if _, err := exec.LookPath(cmd); err != nil {
		cmd = ""
	}
	return &Opener{command: cmd, log: log}
}

func (o *Opener) Open(ctx context.Context, target string) error {
	if o.command == "" {
		o.log.Info().Str("target", target).Msg("no opener available")
		return nil
	}
	path, err := exec.LookPath(o.command)
	if err != nil {
		return fmt.Errorf("%s not found: %w", o.command, err)
	}
	if err := exec.CommandContext(ctx, path, target).Start(); err != nil {
		return fmt.Errorf("%s %s: %w", o.command, target, err)
	}
	return nil
}

// Notifier shows short messages outside the view. Here they go to the log.
type Notifier struct {
	log zerolog.Logger
}

func NewNotifier(log zerolog.Logger) *Notifier {
	return &Notifier{log: log}
}

func (n *Notifier) Notify(_ context.Context, message string) {
	n.log.Info().Str("message", message).Msg("notify")
}

// DropDir is the place where a drag-and-drop source leaves files for the
// host. Take claims the files present, so each drop is uploaded once.
type DropDir struct {
	dir string
}

func NewDropDir(dir string) *DropDir {
	return &DropDir{dir: dir}
}

func (d *DropDir) Dir() string { return d.dir }

// Take moves every regular file in the drop dir into a fresh claim dir and
// returns the new paths, sorted by original name.
func (d *DropDir) Take() ([]string, error) {
	if d.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading drop dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	slices.Sort(names)

	claim := filepath.Join(d.dir, ".claimed", uuid.NewString())
	if err := os.MkdirAll(claim, 0o700); err != nil {
		return nil, fmt.Errorf("creating claim dir: %w", err)
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		dst := filepath.Join(claim, name)
		if err := os.Rename(filepath.Join(d.dir, name), dst); err != nil {
			return paths, fmt.Errorf("claiming %s: %w", name, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// CheckFreeSpace fails with ErrInsufficientSpace when the filesystem
// holding dir has less than need bytes free.
func CheckFreeSpace(dir string, need uint64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("disk usage %s: %w", dir, err)
	}
	if usage.Free < need {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrInsufficientSpace, dir, usage.Free, need)
	}
	return nil
}
