package system

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// ErrNoMovieRoot is returned when no rendered scene output is found.
var ErrNoMovieRoot = errors.New("no partial movie directory found")

// Platform names understood by RevealCommand.
const (
	Linux   = "linux"
	Darwin  = "darwin"
	Windows = "windows"
	Cygwin  = "cygwin"
)

// Platform reports the OS family of this host.
func Platform(ctx context.Context) string {
	if os.Getenv("OSTYPE") == Cygwin {
		return Cygwin
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info.OS != "" {
		return info.OS
	}
	return runtime.GOOS
}

// HostSummary is a one-line description of the machine for diagnostics.
func HostSummary(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("os=%s arch=%s", runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("host=%s os=%s platform=%s %s arch=%s",
		info.Hostname, info.OS, info.Platform, info.PlatformVersion, info.KernelArch)
}

// RevealCommand returns the command that opens path, or shows it in the file
// manager when reveal is set.
func RevealCommand(platform, path string, reveal bool) (string, []string, error) {
	switch platform {
	case Linux, "freebsd", "openbsd", "netbsd":
		// xdg-open cannot select a file, so reveal opens the folder
		if reveal {
			return "xdg-open", []string{filepath.Dir(path)}, nil
		}
		return "xdg-open", []string{path}, nil
	case Cygwin:
		return "cygstart", []string{path}, nil
	case Darwin:
		if reveal {
			return "open", []string{"-R", path}, nil
		}
		return "open", []string{path}, nil
	case Windows:
		if reveal {
			return "explorer", []string{"/select," + path}, nil
		}
		return "cmd", []string{"/c", "start", "", path}, nil
	default:
		return "", nil, fmt.Errorf("don't know how to open files on %s", platform)
	}
}

// Reveal opens path with the desktop's default handler and does not wait for it.
func Reveal(ctx context.Context, path string, reveal bool) error {
	name, args, err := RevealCommand(Platform(ctx), path, reveal)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}

// FindLatestMovieRoot returns the most recently modified directory under
// mediaDir that holds a partial_movie_files folder.
func FindLatestMovieRoot(mediaDir, partialDir string) (string, error) {
	var latest string
	var latestTime time.Time

	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Name() != partialDir {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latest = filepath.Dir(path)
		}
		return filepath.SkipDir
	})
	if err != nil {
		return "", err
	}
	if latest == "" {
		return "", fmt.Errorf("%w under %s", ErrNoMovieRoot, mediaDir)
	}
	return latest, nil
}
