package gsettings

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// DefaultBinary is the gsettings executable looked up on PATH.
const DefaultBinary = "gsettings"

const readTimeout = 3 * time.Second

// Reader reads current values with `gsettings get`.
type Reader struct {
	catalog *Catalog
	binary  string
}

func NewReader(catalog *Catalog, binary string) *Reader {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Reader{catalog: catalog, binary: binary}
}

// Int returns the value of alias as an integer.
func (r *Reader) Int(ctx context.Context, alias string) (int64, error) {
	k, ok := r.catalog.Lookup(alias)
	if !ok {
		return 0, fmt.Errorf("gsettings: unknown key %s", alias)
	}
	raw, err := r.get(ctx, k)
	if err != nil {
		return 0, err
	}
	v, err := ParseValue(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return v, nil
}

// Bool returns the value of alias as a boolean.
func (r *Reader) Bool(ctx context.Context, alias string) (bool, error) {
	v, err := r.Int(ctx, alias)
	return v != 0, err
}

func (r *Reader) get(ctx context.Context, k Key) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, "get", k.Schema, k.Name)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gsettings get %s: %w: %s", k, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}
