package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Medium classifies where the settings database would live.
type Medium int

const (
	MediumLocal Medium = iota
	// MediumNetwork breaks SQLite locking.
	MediumNetwork
	// MediumVolatile loses stored settings on reboot, so replay has
	// nothing to restore.
	MediumVolatile
)

func (m Medium) String() string {
	switch m {
	case MediumNetwork:
		return "network"
	case MediumVolatile:
		return "volatile"
	default:
		return "local"
	}
}

// Probe is the result of inspecting a database path.
type Probe struct {
	Path   string // nearest existing ancestor that was inspected
	FSType string
	Medium Medium
}

type fsDetector func(path string) (fsType string, medium Medium, err error)

// ProbeStatePath inspects the filesystem under path. The file itself need
// not exist yet.
func ProbeStatePath(path string) (Probe, error) {
	return probeWith(path, detectFilesystem)
}

// CheckStatePath rejects database paths on network filesystems.
func CheckStatePath(path string) error {
	p, err := ProbeStatePath(path)
	if err != nil {
		return err
	}
	return p.Err(path)
}

// Err reports a network medium as an error; local and volatile media pass.
func (p Probe) Err(path string) error {
	if p.Medium != MediumNetwork {
		return nil
	}
	return fmt.Errorf("state path %q is on %s; settings need a local filesystem for SQLite locking, point state.path (or PQD_STATE_PATH) elsewhere",
		path, p.FSType)
}

func probeWith(path string, detect fsDetector) (Probe, error) {
	if path == "" {
		return Probe{}, errors.New("sqlite path is empty")
	}
	at, err := nearestExisting(path)
	if err != nil {
		return Probe{}, fmt.Errorf("resolve state path %q: %w", path, err)
	}
	fsType, medium, err := detect(at)
	if err != nil {
		return Probe{}, fmt.Errorf("detect filesystem for %q: %w", at, err)
	}
	return Probe{Path: at, FSType: fsType, Medium: medium}, nil
}

func nearestExisting(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		candidate = parent
	}
}
