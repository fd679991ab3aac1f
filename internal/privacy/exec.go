package privacy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const toolTimeout = 5 * time.Second

func run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// PropTool talks to the property service through getprop and setprop.
type PropTool struct {
	Getprop string
	Setprop string
}

func NewPropTool() PropTool { return PropTool{Getprop: "getprop", Setprop: "setprop"} }

func (p PropTool) Get(ctx context.Context, name, def string) (string, error) {
	out, err := run(ctx, p.Getprop, name)
	if err != nil {
		return "", err
	}
	if out == "" {
		return def, nil
	}
	return out, nil
}

func (p PropTool) Set(ctx context.Context, name, value string) error {
	_, err := run(ctx, p.Setprop, name, value)
	return err
}

// Amixer toggles capture switches with amixer.
type Amixer struct {
	Binary string
}

func NewAmixer() Amixer { return Amixer{Binary: "amixer"} }

func (a Amixer) SetCaptureEnabled(ctx context.Context, device, element string, enabled bool) error {
	state := "nocap"
	if enabled {
		state = "cap"
	}
	_, err := run(ctx, a.Binary, "-q", "-D", device, "sset", element, state)
	return err
}
