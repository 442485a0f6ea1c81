// ABOUTME: Replays captured engine wire events through the live ingest pipeline.
// ABOUTME: Usage: chorus-replay [-v] [-no-color] <manifest.toml>
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/2389/chorus/internal/history"
	"github.com/2389/chorus/internal/hub"
	"github.com/2389/chorus/internal/schema"
	"github.com/2389/chorus/internal/session"
	"github.com/2389/chorus/internal/store"
	"github.com/2389/chorus/internal/transcript"
)

// maxCaptureLine bounds a single capture line. Exec output and diff payloads
// arrive as one JSON object per line and can run to megabytes.
const maxCaptureLine = 10 << 20

// Manifest describes one replay: which engine and thread the captures belong
// to, the capture files themselves, and an optional history fixture to check
// parity against once the replay settles.
type Manifest struct {
	Engine    string    `toml:"engine"`
	Workspace string    `toml:"workspace"`
	Thread    string    `toml:"thread"`
	Captures  []Capture `toml:"captures"`
	History   History   `toml:"history"`
}

// Capture points at one JSONL file of raw wire events. Engine overrides the
// manifest-level engine, for replays that interleave engines.
type Capture struct {
	Engine string `toml:"engine"`
	Path   string `toml:"path"`
}

// History wires the optional parity check: a fixture file holding the
// engine's resume payload, and the diff sections considered acceptable.
type History struct {
	Fixture string   `toml:"fixture"`
	Allow   []string `toml:"allow"`
}

func main() {
	verbose := flag.Bool("v", false, "Log skipped events and pipeline debug output")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: chorus-replay [-v] [-no-color] <manifest.toml>")
		os.Exit(2)
	}
	if *noColor {
		color.NoColor = true
	}

	if err := run(flag.Arg(0), *verbose); err != nil {
		log.Fatal(err)
	}
}

func run(manifestPath string, verbose bool) error {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	engine := schema.Engine(m.Engine)

	cfg := hub.Config{
		Archive: discardArchive{},
		Logger:  logger,
	}
	if m.History.Fixture != "" {
		payload, err := os.ReadFile(m.History.Fixture)
		if err != nil {
			return fmt.Errorf("reading history fixture: %w", err)
		}
		cfg.Backends = map[schema.Engine]history.SessionBackend{
			engine: fixtureBackend{payload: payload},
		}
	}

	h, err := hub.New(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	var total, applied int
	for _, c := range m.Captures {
		captureEngine := engine
		if c.Engine != "" {
			captureEngine = schema.Engine(c.Engine)
		}
		n, a, err := ingestFile(h, captureEngine, m.Workspace, c.Path, logger)
		if err != nil {
			return err
		}
		total += n
		applied += a
	}

	threadID := session.ThreadID(engine, m.Thread)
	state, ok := h.State(threadID)
	if !ok {
		return fmt.Errorf("replay produced no state for thread %s", threadID)
	}

	printHeader(threadID, total, applied)
	printTranscript(state)

	if m.History.Fixture == "" {
		return nil
	}
	return checkParity(h, engine, m)
}

// loadManifest parses the TOML manifest and resolves capture and fixture
// paths relative to the manifest's directory.
func loadManifest(path string) (Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Manifest{}, fmt.Errorf("manifest has unknown keys: %v", undecoded)
	}
	if m.Engine == "" {
		return Manifest{}, errors.New("manifest: engine is required")
	}
	if m.Workspace == "" {
		return Manifest{}, errors.New("manifest: workspace is required")
	}
	if m.Thread == "" {
		return Manifest{}, errors.New("manifest: thread is required")
	}
	if len(m.Captures) == 0 {
		return Manifest{}, errors.New("manifest: at least one capture file is required")
	}

	dir := filepath.Dir(path)
	for i := range m.Captures {
		if m.Captures[i].Path == "" {
			return Manifest{}, fmt.Errorf("manifest: captures[%d] has no path", i)
		}
		m.Captures[i].Path = resolvePath(dir, m.Captures[i].Path)
	}
	if m.History.Fixture != "" {
		m.History.Fixture = resolvePath(dir, m.History.Fixture)
	}
	return m, nil
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ingestFile feeds one JSONL capture through the hub line by line. Blank
// lines are skipped; a payload the pipeline rejects aborts the replay with
// its file and line number.
func ingestFile(h *hub.Hub, engine schema.Engine, workspaceID, path string, logger *slog.Logger) (total, applied int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxCaptureLine)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer across lines; the hub keeps the raw
		// payload for the ledger, so it gets its own copy.
		raw := make(json.RawMessage, len(line))
		copy(raw, line)

		total++
		ok, err := h.Ingest(engine, workspaceID, raw)
		if err != nil {
			return total, applied, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if ok {
			applied++
		} else {
			logger.Debug("event dropped",
				"file", filepath.Base(path),
				"line", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return total, applied, fmt.Errorf("reading %s: %w", path, err)
	}
	return total, applied, nil
}

// checkParity restores the fixture through the production path and filters
// the resulting diffs against the manifest's allow list.
func checkParity(h *hub.Hub, engine schema.Engine, m Manifest) error {
	res, err := h.RestoreHistory(context.Background(), engine, m.Workspace, m.Thread)
	if err != nil {
		return fmt.Errorf("history restore: %w", err)
	}
	if res.Installed {
		return errors.New("history fixture was installed, not compared: the replay produced no live items")
	}

	fmt.Println()
	unexpected := filterAllowed(res.Diffs, m.History.Allow)
	for _, d := range res.Diffs {
		if containsString(unexpected, d) {
			color.Red("  diverged: %s", d)
		} else {
			color.Yellow("  diverged: %s (allowed)", d)
		}
	}
	if len(unexpected) > 0 {
		return fmt.Errorf("parity diverged in %d section(s)", len(unexpected))
	}

	if len(res.Diffs) == 0 {
		color.Green("parity holds")
	} else {
		color.Green("parity holds (%d allowed divergence(s))", len(res.Diffs))
	}
	return nil
}

// filterAllowed drops diff sections named by the manifest's allow list.
func filterAllowed(diffs, allow []string) []string {
	if len(allow) == 0 {
		return diffs
	}
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowed[a] = true
	}
	var out []string
	for _, d := range diffs {
		if !allowed[d] {
			out = append(out, d)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func printHeader(threadID string, total, applied int) {
	color.Cyan("replayed %s", threadID)
	color.New(color.FgHiBlack).Printf("%d events, %d applied\n\n", total, applied)
}

// printTranscript writes the rendered conversation with light coloring:
// speakers get their own colors, bracketed section headers another.
func printTranscript(state schema.State) {
	userLine := color.New(color.FgGreen)
	assistantLine := color.New(color.FgCyan)
	sectionLine := color.New(color.FgYellow)

	text := strings.TrimRight(transcript.RenderText(state), "\n")
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "user>"):
			userLine.Println(line)
		case strings.HasPrefix(line, "assistant>"):
			assistantLine.Println(line)
		case strings.HasPrefix(line, "["), strings.HasPrefix(line, "plan"), strings.HasPrefix(line, "pending input:"):
			sectionLine.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

// discardArchive satisfies the hub's persistence interface without writing
// anything. A replay is read-only; nothing it produces should outlive it.
type discardArchive struct{}

func (discardArchive) SaveThread(context.Context, store.ThreadRecord) error { return nil }

func (discardArchive) AppendEvent(context.Context, store.EventRecord) (int64, error) {
	return 0, nil
}

func (discardArchive) SaveParityReport(context.Context, store.ParityReport) error { return nil }

// fixtureBackend serves a resume payload from a local file instead of an
// engine's session service.
type fixtureBackend struct {
	payload json.RawMessage
}

func (b fixtureBackend) FetchThread(context.Context, string, string) (json.RawMessage, error) {
	return b.payload, nil
}
