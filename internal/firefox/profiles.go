package firefox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lotas/tabkeeper/internal/types"
)

// FindFirefoxDir returns the platform-specific Firefox profile directory.
func FindFirefoxDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "linux":
		return filepath.Join(home, ".mozilla", "firefox")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox")
	default:
		return ""
	}
}

// iniProfile is a [ProfileN] section before paths are resolved.
type iniProfile struct {
	name       string
	path       string
	isRelative bool
	isDefault  bool
}

// parseINI reads profiles.ini. Firefox 67+ records the profile it actually
// starts in an [Install...] section; that wins over the legacy Default=1.
func parseINI(r io.Reader) ([]iniProfile, error) {
	var (
		profiles       []iniProfile
		current        *iniProfile
		inInstall      bool
		installDefault string
	)
	flush := func() {
		if current != nil {
			profiles = append(profiles, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			section := line[1 : len(line)-1]
			inInstall = strings.HasPrefix(section, "Install")
			if strings.HasPrefix(section, "Profile") {
				current = &iniProfile{}
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if inInstall {
			if key == "Default" && installDefault == "" {
				installDefault = value
			}
			continue
		}
		if current == nil {
			continue
		}
		switch key {
		case "Name":
			current.name = value
		case "Path":
			current.path = value
		case "IsRelative":
			current.isRelative = value == "1"
		case "Default":
			current.isDefault = value == "1"
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan profiles.ini: %w", err)
	}

	if installDefault != "" {
		for i := range profiles {
			profiles[i].isDefault = profiles[i].path == installDefault
		}
	}
	return profiles, nil
}

// FindSession returns the session file of a profile directory, trying the
// running session before the last closed one.
func FindSession(profileDir string) (string, time.Time, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	for _, name := range sessionFiles {
		path := filepath.Join(backupDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, info.ModTime(), nil
		}
	}
	return "", time.Time{}, fmt.Errorf("%s: %w", backupDir, ErrNoSession)
}

// ParseProfilesINI reads profiles.ini and returns the profiles that have a
// session file, with relative paths resolved against firefoxDir.
func ParseProfilesINI(iniPath, firefoxDir string) ([]types.Profile, error) {
	f, err := os.Open(iniPath)
	if err != nil {
		return nil, fmt.Errorf("open profiles.ini: %w", err)
	}
	defer f.Close()

	raw, err := parseINI(f)
	if err != nil {
		return nil, err
	}

	var usable []types.Profile
	for _, rp := range raw {
		p := types.Profile{Name: rp.name, Path: rp.path, IsDefault: rp.isDefault}
		if rp.isRelative {
			p.Path = filepath.Join(firefoxDir, rp.path)
		}
		p.Session, p.SessionAt, err = FindSession(p.Path)
		if err != nil {
			continue
		}
		usable = append(usable, p)
	}
	return usable, nil
}

// DiscoverProfiles finds and parses Firefox profiles on this system.
func DiscoverProfiles() ([]types.Profile, error) {
	dir := FindFirefoxDir()
	if dir == "" {
		return nil, fmt.Errorf("could not find Firefox directory for %s", runtime.GOOS)
	}
	return ParseProfilesINI(filepath.Join(dir, "profiles.ini"), dir)
}

// ErrNoProfile is returned by SelectProfile when nothing matches.
var ErrNoProfile = errors.New("no matching Firefox profile")

// SelectProfile picks the profile called name, or the default profile when
// name is empty. Without a default the first profile is used.
func SelectProfile(profiles []types.Profile, name string) (types.Profile, error) {
	if len(profiles) == 0 {
		return types.Profile{}, ErrNoProfile
	}
	for _, p := range profiles {
		if name != "" && p.Name == name {
			return p, nil
		}
		if name == "" && p.IsDefault {
			return p, nil
		}
	}
	if name != "" {
		return types.Profile{}, fmt.Errorf("%q: %w", name, ErrNoProfile)
	}
	return profiles[0], nil
}
