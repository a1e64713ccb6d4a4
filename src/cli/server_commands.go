package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"golang.org/x/sync/errgroup"

	"lsp-tester/src/config"
	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/errors"
	"lsp-tester/src/internal/gitignore"
	"lsp-tester/src/internal/registry"
	"lsp-tester/src/server"
	"lsp-tester/src/server/diagnostics"
	"lsp-tester/src/server/watcher"
)

// watchDebounce is how long watch mode lets a burst of saves settle
var watchDebounce = watcher.DefaultDebounceDelay

func runRunCmd(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	cfg, _, err := loadEffectiveConfig(v)
	if err != nil {
		return err
	}

	language, files, err := collectFiles(v.GetString(FlagLang), args)
	if err != nil {
		return err
	}

	root, err := common.ValidateAndGetWorkingDir(v.GetString(FlagRoot))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := RunOptions{
		Language: language,
		RootDir:  root,
		Files:    files,
		Jobs:     v.GetInt(FlagJobs),
	}
	reportOpts := &ReportOptions{NoColor: v.GetBool(FlagNoColor)}
	if v.GetBool(FlagWatch) {
		return WatchFiles(ctx, cfg, runOpts, cmd.OutOrStdout(), reportOpts)
	}

	report, err := RunFiles(ctx, cfg, runOpts)
	if err != nil {
		return err
	}

	RenderReport(cmd.OutOrStdout(), report, reportOpts)

	if v.GetBool(FlagFailOnErr) && report.HasErrors() {
		return &FindingsError{
			Errors: report.Counts()[protocol.DiagnosticSeverityError],
			Failed: report.Failed(),
		}
	}
	return nil
}

// FindingsError is returned when --fail-on-error trips on a completed run
type FindingsError struct {
	Errors int
	Failed int
}

func (e *FindingsError) Error() string {
	return fmt.Sprintf("%s and %d failed files reported", plural(e.Errors, "error"), e.Failed)
}

// detectLanguage maps a file extension onto a registry language name
func detectLanguage(path string) (string, error) {
	info, ok := registry.GetLanguageByExtension(filepath.Ext(path))
	if !ok {
		return "", fmt.Errorf("cannot detect language of %s, use --%s", path, FlagLang)
	}
	return info.Name, nil
}

// collectFiles expands directory arguments. Without a language the first file
// decides it, and directories are then searched for that language only.
func collectFiles(language string, args []string) (string, []string, error) {
	files, err := gitignore.NewCollector(extensionsFor(language)).Collect(args)
	if err != nil || language != "" {
		return language, files, err
	}

	if language, err = detectLanguage(files[0]); err != nil {
		return "", nil, err
	}
	files, err = gitignore.NewCollector(extensionsFor(language)).Collect(args)
	return language, files, err
}

// extensionsFor returns nil for languages only the config knows about
func extensionsFor(language string) []string {
	if info, ok := registry.GetLanguageByName(language); ok {
		return info.Extensions
	}
	return nil
}

// RunOptions selects what a run diagnoses
type RunOptions struct {
	Language string
	RootDir  string
	Files    []string
	// Jobs bounds how many files are open at once; values below 1 mean 1
	Jobs int
}

// RunFiles starts the language server configured for opts.Language, opens each file,
// waits for its first diagnostics and shuts the server down. A file that fails to
// open or never gets diagnostics is recorded in the report; only a server that
// cannot be started fails the whole run. Report entries follow opts.Files order.
func RunFiles(ctx context.Context, cfg *config.Config, opts RunOptions) (*RunReport, error) {
	fs, err := startFileSession(ctx, cfg, opts.Language, opts.RootDir)
	if err != nil {
		return nil, err
	}
	defer fs.shutdown()

	report := fs.newReport()
	report.Files = fs.openAll(ctx, opts.Files, opts.Jobs, true)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return report, nil
}

// WatchFiles reports on files like RunFiles, then keeps them open and re-diagnoses
// each one whenever it changes on disk. It returns nil once ctx is cancelled.
func WatchFiles(ctx context.Context, cfg *config.Config, opts RunOptions, out io.Writer, reportOpts *ReportOptions) error {
	fs, err := startFileSession(ctx, cfg, opts.Language, opts.RootDir)
	if err != nil {
		return err
	}
	defer fs.shutdown()

	files := opts.Files
	initial := fs.newReport()
	initial.Files = fs.openAll(ctx, files, opts.Jobs, false)
	RenderReport(out, initial, reportOpts)

	changes := make(chan []watcher.FileChangeEvent, 16)
	fw, err := watcher.NewFileWatcher(func(events []watcher.FileChangeEvent) {
		select {
		case changes <- events:
		case <-ctx.Done():
		}
	}, watcher.WithDebounceDelay(watchDebounce), watcher.WithLogger(common.CLILogger))
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := fw.AddFile(path); err != nil {
			_ = fw.Stop()
			return err
		}
	}
	fw.Start()
	defer fw.Stop()

	fmt.Fprintf(out, "\nWatching %s for changes (Ctrl+C to stop)\n", plural(len(files), "file"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fs.s.Done():
			return fmt.Errorf("language server exited: %w", errors.ErrConnectionClosed)
		case events := <-changes:
			report := fs.newReport()
			for _, e := range events {
				report.Files = append(report.Files, fs.syncFile(ctx, e.Path))
			}
			fmt.Fprintln(out)
			RenderReport(out, report, reportOpts)
		}
	}
}

// fileSession tracks which files a run has open in one server session
type fileSession struct {
	s        *server.LSPServer
	language string
	label    string
	timeout  time.Duration

	// keyed by absolute path
	mu      sync.Mutex
	display map[string]string
	open    map[string]uri.URI
}

func startFileSession(ctx context.Context, cfg *config.Config, language, rootDir string) (*fileSession, error) {
	clientCfg, err := cfg.ClientConfigFor(language, rootDir)
	if err != nil {
		return nil, err
	}

	opts := server.OptionsFromConfig(cfg)
	opts.RootDir = rootDir
	s := server.NewLSPServer(opts)

	common.CLILogger.Info("Starting %s server: %s", language, clientCfg.String())
	if err := s.Initialize(ctx, clientCfg); err != nil {
		return nil, err
	}

	return &fileSession{
		s:        s,
		language: language,
		label:    serverLabel(s.ServerInfo(), clientCfg.Command),
		timeout:  opts.ShutdownTimeout,
		display:  make(map[string]string),
		open:     make(map[string]uri.URI),
	}, nil
}

func (fs *fileSession) newReport() *RunReport {
	return &RunReport{Language: fs.language, Server: fs.label}
}

// openAll diagnoses files with at most jobs in flight, keeping report order.
// With closeAfter each document is closed once its diagnostics arrived.
func (fs *fileSession) openAll(ctx context.Context, files []string, jobs int, closeAfter bool) []FileReport {
	if jobs < 1 {
		jobs = 1
	}
	reports := make([]FileReport, len(files))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, path := range files {
		g.Go(func() error {
			reports[i] = fs.openFile(ctx, path)
			if closeAfter {
				fs.closeFile(ctx, path)
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// key returns the absolute path for path and the name to show for it
func (fs *fileSession) key(path string) (string, string) {
	abs, err := common.AbsPath(path)
	if err != nil {
		return path, path
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.display[abs]; !ok {
		fs.display[abs] = path
	}
	return abs, fs.display[abs]
}

func (fs *fileSession) lookup(key string) (uri.URI, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	u, ok := fs.open[key]
	return u, ok
}

// openFile opens path and waits for its first diagnostics
func (fs *fileSession) openFile(ctx context.Context, path string) FileReport {
	key, name := fs.key(path)
	fr := FileReport{Path: name}

	doc, err := fs.s.OpenDocument(ctx, path)
	if err != nil {
		fr.Err = err
		return fr
	}
	fs.mu.Lock()
	fs.open[key] = doc.URI()
	fs.mu.Unlock()
	fr.LanguageID = doc.LanguageID()

	fr.Diagnostics, fr.Err = fs.s.AwaitDiagnostics(ctx, doc.URI(), nil, 0)
	return fr
}

// syncFile pushes the file's current content and waits for diagnostics of that version.
// A file that disappeared is closed; one that reappeared is opened again.
func (fs *fileSession) syncFile(ctx context.Context, path string) FileReport {
	key, name := fs.key(path)
	fr := FileReport{Path: name}

	u, isOpen := fs.lookup(key)
	data, err := os.ReadFile(key)
	if err != nil {
		if isOpen {
			fs.closeFile(ctx, key)
		}
		if os.IsNotExist(err) {
			err = fmt.Errorf("file removed")
		}
		fr.Err = err
		return fr
	}
	if !isOpen {
		return fs.openFile(ctx, key)
	}

	doc, err := fs.s.ChangeDocument(ctx, u, string(data))
	if err != nil {
		fr.Err = err
		return fr
	}
	fr.LanguageID = doc.LanguageID()
	fr.Diagnostics, fr.Err = fs.s.AwaitDiagnostics(ctx, u, diagnostics.AtLeastVersion(doc.Version()), 0)
	return fr
}

func (fs *fileSession) closeFile(ctx context.Context, path string) {
	key, _ := fs.key(path)

	fs.mu.Lock()
	u, ok := fs.open[key]
	delete(fs.open, key)
	fs.mu.Unlock()

	if !ok {
		return
	}
	if err := fs.s.CloseDocument(ctx, u); err != nil {
		common.CLILogger.Debug("Failed to close %s: %v", path, err)
	}
}

func (fs *fileSession) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), fs.timeout*2)
	defer cancel()
	if err := fs.s.Shutdown(ctx); err != nil {
		common.CLILogger.Warn("Server shutdown failed: %v", err)
	}
}

func serverLabel(info *protocol.ServerInfo, command string) string {
	if info == nil || info.Name == "" {
		return filepath.Base(command)
	}
	if info.Version == "" {
		return info.Name
	}
	return info.Name + " " + info.Version
}
