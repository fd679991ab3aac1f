package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/mattjoyce/pqd/internal/config"
	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/tui"
	"github.com/mattjoyce/pqd/internal/tui/watch"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "list":
		return runList(args[1:])
	case "call":
		return runCall(args[1:])
	case "digest":
		return runDigest(args[1:])
	case "tune":
		return runTune(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "version":
		fmt.Printf("pqctl version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		return runLegacy(args)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `pqctl - call the PQ service directly

Usage:
  pqctl [flags] <function_id> <input>
  pqctl <command> [flags]

Flags precede the function id, so negative input needs no quoting
(pqctl 6 -1). For call, end flags with --: pqctl call setPQMode -- -1

Commands:
  list                   Show the procedures of the active revision
  call <name|id> [args]  Call one procedure
  digest                 Print the revision and registry digest
  tune                   Interactive tuner for the single-value setters
  watch [--url <url>]    Live view of a running daemon's calls and settings
                         (--token or $PQD_API_TOKEN when the API needs one)
  version                Show version information

Flags:
  --config <path>        Configuration file or directory
  --device <path|sim>    Binder device, or sim for the simulated service
  --revision <name>      Protocol revision: legacy or checked
  --timeout <duration>   Per-call timeout
  --json                 Machine-readable output
`)
}

// options are the flags shared by every command.
type options struct {
	configPath string
	device     string
	revision   string
	timeout    time.Duration
	jsonOut    bool
}

func newFlagSet(name string) (*pflag.FlagSet, *options) {
	o := &options{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&o.device, "device", "", "Binder device, or sim")
	fs.StringVar(&o.revision, "revision", "", "Protocol revision (legacy, checked)")
	fs.DurationVar(&o.timeout, "timeout", 0, "Per-call timeout")
	fs.BoolVar(&o.jsonOut, "json", false, "Output in JSON")
	return fs, o
}

// load applies the flag overrides on top of the discovered config.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.device != "" {
		cfg.Binder.Device = o.device
	}
	if o.revision != "" {
		if _, err := registry.ParseRevision(o.revision); err != nil {
			return nil, err
		}
		cfg.Binder.Revision = o.revision
	}
	if o.timeout > 0 {
		cfg.Binder.CallTimeout = o.timeout
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

func (o *options) registry() (*config.Config, *registry.Registry, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.New(cfg.Revision())
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

// open connects to the service. The returned handle belongs to the caller.
func (o *options) open(ctx context.Context) (*config.Config, *pq.Handle, error) {
	cfg, reg, err := o.registry()
	if err != nil {
		return nil, nil, err
	}
	var drv pq.Driver = pq.HWBinder()
	if cfg.Simulated() {
		drv = pq.NewSimulator(reg)
	}
	h, err := pq.Open(ctx, drv, reg,
		pq.WithDevice(cfg.Binder.Device),
		pq.WithService(cfg.Binder.Service),
		pq.WithInterface(cfg.Binder.Interface),
		pq.WithTimeout(cfg.Binder.CallTimeout),
		pq.WithLogger(log.WithComponent("pqctl")),
	)
	if err != nil {
		return nil, nil, err
	}
	return cfg, h, nil
}

// resolve accepts a procedure name or a numeric operation id.
func resolve(reg *registry.Registry, ref string) (*registry.Procedure, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		return reg.Lookup(registry.OperationID(n))
	}
	return reg.ByName(ref)
}

func runLegacy(args []string) int {
	fs, o := newFlagSet("pqctl")
	// Flags go before the id so a negative input ("pqctl 6 -1") stays
	// positional.
	fs.SetInterspersed(false)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 2 {
		printUsage()
		return 1
	}

	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", fs.Arg(0))
		printUsage()
		return 1
	}

	_, reg, err := o.registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	p, err := reg.Lookup(registry.OperationID(n))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid function id %d (valid: 1-%d)\n", n, len(reg.Procedures()))
		return 1
	}

	var raw []string
	switch len(p.UserArgs()) {
	case 0:
	case 1:
		raw = []string{fs.Arg(1)}
	default:
		fmt.Fprintf(os.Stderr, "%s takes %d arguments; use: pqctl call %s <args...>\n", p.Name, len(p.UserArgs()), p.Name)
		return 1
	}
	values, err := p.ParseArgs(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		return 1
	}

	ctx := context.Background()
	_, h, err := o.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open PQ service: %v\n", err)
		return 1
	}
	defer h.Close()

	return report(o, h.Call(ctx, p.ID, values...))
}

func runCall(args []string) int {
	fs, o := newFlagSet("call")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pqctl call [flags] <name|id> [--] [args...]")
		return 1
	}

	_, reg, err := o.registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	p, err := resolve(reg, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	values, err := p.ParseArgs(fs.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\nSignature: %s%s\n", err, p.Name, p.Signature())
		return 1
	}

	ctx := context.Background()
	_, h, err := o.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open PQ service: %v\n", err)
		return 1
	}
	defer h.Close()

	return report(o, h.Call(ctx, p.ID, values...))
}

// report prints an outcome and maps it to an exit code: 0 on success,
// 1 for an unknown operation, 2 for any other failed call.
func report(o *options, out pq.Outcome) int {
	if o.jsonOut {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else if out.OK() {
		if out.Value != nil {
			fmt.Printf("%s = %s\n", out.Name, out.Value)
		} else {
			fmt.Printf("%s ok\n", out.Name)
		}
	} else {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %s\n", out.Name, out.Kind, out.Error)
	}

	switch {
	case out.OK():
		return 0
	case errors.Is(out.Err, pq.ErrUnknownOperation):
		return 1
	default:
		return 2
	}
}

type procedureJSON struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Method    string `json:"method"`
	Code      uint32 `json:"code"`
	Key       string `json:"key,omitempty"`
	Signature string `json:"signature"`
	Usage     string `json:"usage,omitempty"`
}

func runList(args []string) int {
	fs, o := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	_, reg, err := o.registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	procs := reg.Procedures()
	if o.jsonOut {
		out := make([]procedureJSON, 0, len(procs))
		for _, p := range procs {
			out = append(out, procedureJSON{
				ID:        int(p.ID),
				Name:      p.Name,
				Method:    p.Method,
				Code:      p.Code,
				Key:       p.Key,
				Signature: p.Signature(),
				Usage:     p.Usage,
			})
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Print(renderList(reg))
	return 0
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	idStyle     = lipgloss.NewStyle().Width(4).Align(lipgloss.Right)
	nameStyle   = lipgloss.NewStyle().Width(34).PaddingLeft(1)
	keyStyle    = lipgloss.NewStyle().Width(26).Foreground(lipgloss.Color("#E5C07B"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func renderList(reg *registry.Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n",
		titleStyle.Render(fmt.Sprintf("PQ procedures (%s)", reg.Revision())),
		dimStyle.Render(reg.Digest()))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Inherit(idStyle).Render("ID"),
		headerStyle.Inherit(nameStyle).Render("NAME"),
		headerStyle.Inherit(keyStyle).Render("KEY"),
		headerStyle.Render("SIGNATURE"),
	))
	b.WriteString("\n")
	for _, p := range reg.Procedures() {
		key := p.Key
		if key == "" {
			key = "-"
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(strconv.Itoa(int(p.ID))),
			nameStyle.Render(p.Name),
			keyStyle.Render(key),
			p.Signature(),
		)
		if p.Usage != "" {
			line += " " + dimStyle.Render(p.Usage)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func runDigest(args []string) int {
	fs, o := newFlagSet("digest")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	_, reg, err := o.registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if o.jsonOut {
		data, _ := json.MarshalIndent(map[string]any{
			"revision":   reg.Revision().String(),
			"digest":     reg.Digest(),
			"procedures": len(reg.Procedures()),
		}, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("%s %s\n", reg.Revision(), reg.Digest())
	return 0
}

func runTune(args []string) int {
	fs, o := newFlagSet("tune")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cfg, h, err := o.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open PQ service: %v\n", err)
		return 1
	}
	defer h.Close()

	m := tui.New(h.Registry(), h, cfg.Binder.CallTimeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Tuner error: %v\n", err)
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs, o := newFlagSet("watch")
	url := fs.String("url", "", "Daemon API base URL (default: http://<api.listen>)")
	token := fs.String("token", os.Getenv("PQD_API_TOKEN"), "Bearer token for the daemon API")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	baseURL := *url
	if baseURL == "" {
		cfg, err := o.load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		baseURL = "http://" + cfg.API.Listen
	}
	baseURL = strings.TrimRight(baseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := tea.NewProgram(watch.New(ctx, baseURL, *token), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		return 1
	}
	return 0
}
