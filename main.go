// ngxkit is a translation key helper for ngx-translate style JSON dictionaries.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minios-linux/ngxkit/cache"
	"github.com/minios-linux/ngxkit/config"
	"github.com/minios-linux/ngxkit/dictionary"
	"github.com/minios-linux/ngxkit/i18n"
	"github.com/minios-linux/ngxkit/translator"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ngxkit",
		Short: "Translation key helper for ngx-translate dictionaries",
		Long: `ngxkit: translation key helper for ngx-translate style JSON dictionaries.

Stores selected text as new dictionary keys and prints the key reference
to insert for the surrounding template syntax, searches existing
translations, and serves completion and hover over LSP.

Commands:
  status      Show the project configuration and dictionary
  store       Store text under a new key and print its reference
  search      Fuzzy-search translation texts
  complete    List keys below a prefix with their references
  hover       Show the translation of a key
  validate    Check a candidate key against the dictionary
  format      Rewrite the dictionary in canonical layout
  flatten     Print the flattened dictionary
  check       Report key references missing from the dictionary
  locale      Show or set the dictionary file
  serve       Run the language server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newStoreCmd(),
		newSearchCmd(),
		newCompleteCmd(),
		newHoverCmd(),
		newValidateCmd(),
		newFormatCmd(),
		newFlattenCmd(),
		newCheckCmd(),
		newLocaleCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints err with a hint matching its kind.
func reportError(err error) {
	logError("%v", err)
	switch {
	case errors.Is(err, dictionary.ErrNotFound):
		logInfo(i18n.T("Point ngxkit at your dictionary with: ngxkit locale set <file>"))
	case errors.Is(err, dictionary.ErrParse):
		logInfo(i18n.T("Choose a different dictionary with 'ngxkit locale set <file>' or fix the JSON in the file."))
	case errors.Is(err, translator.ErrNoKey):
		logInfo(i18n.T("Nothing was stored."))
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ngxkit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Project: configuration + dictionary
// ---------------------------------------------------------------------------

// project is the configuration and located dictionary of rootDir.
type project struct {
	cfg  *config.File
	path string
}

// loadConfig reads .ngxkit.yaml from rootDir.
func loadConfig() (*config.File, error) {
	return config.Load(rootDir)
}

// openProject loads the configuration and locates the dictionary.
func openProject() (*project, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := cfg.Locate()
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, path: path}, nil
}

func (p *project) source() dictionary.FileSource {
	return dictionary.FileSource{Path: p.path}
}

// flat returns the flattened dictionary, through the snapshot cache when it
// is enabled. Cache problems are reported and bypassed.
func (p *project) flat() (*dictionary.Flat, error) {
	if !p.cfg.CacheEnabled() {
		return p.parseFlat()
	}

	snap, err := cache.Load(p.cfg.Root())
	if err != nil {
		logWarning(i18n.T("Ignoring cache: %v"), err)
		return p.parseFlat()
	}
	flat, changed, err := snap.Flatten(p.path)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := snap.Save(); err != nil {
			logWarning(i18n.T("Could not save cache: %v"), err)
		}
	}
	return flat, nil
}

func (p *project) parseFlat() (*dictionary.Flat, error) {
	root, err := dictionary.ParseFile(p.path)
	if err != nil {
		return nil, err
	}
	return dictionary.Flatten(root), nil
}

// refreshCache rebuilds the snapshot after the dictionary was written.
func (p *project) refreshCache() {
	if p.cfg.CacheEnabled() {
		if _, err := p.flat(); err != nil {
			logWarning(i18n.T("Could not refresh cache: %v"), err)
		}
	}
}

// ---------------------------------------------------------------------------
// status (read-only: configuration + dictionary stats)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project configuration and dictionary",
		Long: `Show the configuration in effect, the dictionary file it resolves to,
and dictionary statistics. Does not modify any files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Project"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	absRoot, _ := filepath.Abs(cfg.Root())
	fmt.Fprintf(os.Stderr, "  Root:       %s\n", absRoot)
	if fileExists(cfg.Path()) {
		fmt.Fprintf(os.Stderr, "  Config:     %s\n", cfg.Path())
	} else {
		fmt.Fprintf(os.Stderr, "  Config:     %s\n", i18n.T("defaults (no .ngxkit.yaml)"))
	}
	fmt.Fprintf(os.Stderr, "  Locale:     %s\n", cfg.Locale)
	fmt.Fprintf(os.Stderr, "  Exclude:    %s\n", cfg.Exclude)
	fmt.Fprintf(os.Stderr, "  Pattern:    %s\n", cfg.Pattern)
	fmt.Fprintln(os.Stderr)

	path, err := cfg.Locate()
	if err != nil {
		return err
	}
	p := &project{cfg: cfg, path: path}
	fmt.Fprintf(os.Stderr, "  Dictionary: %s\n", path)

	root, err := dictionary.ParseFile(path)
	if err != nil {
		return err
	}
	flat := dictionary.Flatten(root)
	n := flat.Len()
	fmt.Fprintf(os.Stderr, "  Keys:       %s\n", fmt.Sprintf(i18n.N("%d key", "%d keys", n), n))

	data, err := dictionary.ReadFile(path)
	if err == nil && string(data) != string(dictionary.Marshal(root)) {
		logWarning(i18n.T("Dictionary is not in canonical layout. Run 'ngxkit format'."))
	}

	if cfg.CacheEnabled() {
		if snap, err := cache.Load(cfg.Root()); err == nil {
			fmt.Fprintf(os.Stderr, "  Cache:      %s\n", snap.Summary())
		}
	} else {
		fmt.Fprintf(os.Stderr, "  Cache:      %s\n", i18n.T("disabled"))
	}
	fmt.Fprintln(os.Stderr)

	printSuggestedCommands(p, n)
	return nil
}

func printSuggestedCommands(p *project, keys int) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Suggested Commands"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintln(os.Stderr)

	fmt.Fprintf(os.Stderr, "  # Store text under a new key (reference for markup)\n")
	fmt.Fprintf(os.Stderr, "  ngxkit store --content markup \"Hello {{ name }}\"\n\n")
	if keys > 0 {
		fmt.Fprintf(os.Stderr, "  # Find existing translations\n")
		fmt.Fprintf(os.Stderr, "  ngxkit search <text>\n\n")
	}
	fmt.Fprintf(os.Stderr, "  # Editor integration (completion + hover)\n")
	fmt.Fprintf(os.Stderr, "  ngxkit serve --root %s\n\n", p.cfg.Root())
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
