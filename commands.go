package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/minios-linux/ngxkit/dictionary"
	"github.com/minios-linux/ngxkit/extract"
	"github.com/minios-linux/ngxkit/fuzzy"
	"github.com/minios-linux/ngxkit/i18n"
	"github.com/minios-linux/ngxkit/keys"
	"github.com/minios-linux/ngxkit/server"
	"github.com/minios-linux/ngxkit/snippet"
	"github.com/minios-linux/ngxkit/translator"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// ---------------------------------------------------------------------------
// Cursor context flags
// ---------------------------------------------------------------------------

// cursorFlags describe where a key reference goes: either a position in a
// file (--file/--line/--col) or the text before the cursor given directly
// (--context/--content).
type cursorFlags struct {
	file    string
	line    int
	col     int
	text    string
	content string
}

func (f *cursorFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "file", "", "Template file the reference is inserted into")
	fs.IntVar(&f.line, "line", 1, "Cursor line in --file (1-based)")
	fs.IntVar(&f.col, "col", 1, "Cursor column in --file (1-based, UTF-16 units as reported by editors)")
	fs.StringVar(&f.text, "context", "", "Line text before the cursor (instead of --file)")
	fs.StringVar(&f.content, "content", "", "Content type with --context: markup, inline, other")
}

// Context implements translator.ContextProvider.
func (f *cursorFlags) Context() (snippet.LexicalContext, error) {
	if f.file == "" {
		content, err := snippet.ParseContentType(f.content)
		if err != nil {
			return snippet.LexicalContext{}, err
		}
		return snippet.LexicalContext{Text: f.text, Content: content}, nil
	}

	data, err := os.ReadFile(f.file)
	if err != nil {
		return snippet.LexicalContext{}, fmt.Errorf("reading %s: %w", f.file, err)
	}
	return snippet.ContextAt(string(data), f.line-1, f.col-1, snippet.LanguageID(f.file))
}

// linePrefix returns the text before the cursor, for completion triggers and
// hover lookups that need the raw line.
func (f *cursorFlags) linePrefix() (line string, col int, err error) {
	if f.file == "" {
		return f.text, len(f.text), nil
	}
	data, err := os.ReadFile(f.file)
	if err != nil {
		return "", 0, fmt.Errorf("reading %s: %w", f.file, err)
	}
	text, _, ok := snippet.Line(string(data), f.line-1)
	if !ok {
		return "", 0, fmt.Errorf("%s: line %d out of range", f.file, f.line)
	}
	return text, snippet.ByteColumn(text, f.col-1), nil
}

// ---------------------------------------------------------------------------
// store
// ---------------------------------------------------------------------------

func newStoreCmd() *cobra.Command {
	var (
		key    string
		dryRun bool
		plain  bool
		cursor cursorFlags
	)

	cmd := &cobra.Command{
		Use:   "store <text>...",
		Short: "Store text under a new key and print its reference",
		Long: `Store text as a new translation and print the key reference to insert
at the cursor.

Placeholder spacing is normalized ({{name}} becomes {{ name }}). Without
--key the key is read from stdin; invalid keys are explained and asked for
again, an empty line cancels. The reference form follows the cursor
context: attribute binding, attribute interpolation, tag attribute,
markup content or plain code.

Examples:
  ngxkit store --key greet --content markup "Hello {{name}}"
  ngxkit store --file src/app.component.html --line 12 --col 9 "Save"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(cmd, strings.Join(args, " "), key, &cursor, dryRun, plain)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Key to store the text under (prompted when empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the updated dictionary instead of writing it")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the reference without snippet tab stops")
	cursor.register(cmd.Flags())

	return cmd
}

func runStore(cmd *cobra.Command, text, key string, cursor *cursorFlags, dryRun, plain bool) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	var prompt translator.KeyPrompt = translator.FixedKey(key)
	if key == "" {
		prompt = stdinPrompt(cmd.InOrStdin())
	}

	svc := translator.New()
	var res *translator.StoreResult
	if dryRun {
		tree, err := p.source().Load()
		if err != nil {
			return err
		}
		lc, err := cursor.Context()
		if err != nil {
			return err
		}
		res, err = svc.Store(translator.StoreRequest{Text: text, Context: lc, Tree: tree, Prompt: prompt})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(res.Data))
	} else {
		res, err = svc.StoreAndSave(p.source(), text, cursor, prompt)
		if err != nil {
			if res != nil {
				// Saving failed; show what would have been written.
				fmt.Fprintln(cmd.OutOrStdout(), string(res.Data))
			}
			return err
		}
		logSuccess(i18n.T("Stored %s in %s"), res.Key, p.path)
		p.refreshCache()
	}

	out := res.Snippet
	if plain {
		out = snippet.StripTabStops(out)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// stdinPrompt reads keys line by line until one passes validation. EOF or an
// empty line cancels.
func stdinPrompt(in io.Reader) translator.KeyPrompt {
	return translator.KeyPromptFunc(func(validate func(string) error) (string, bool) {
		sc := bufio.NewScanner(in)
		for {
			fmt.Fprint(os.Stderr, i18n.T("Key: "))
			if !sc.Scan() {
				fmt.Fprintln(os.Stderr)
				return "", false
			}
			key := strings.TrimSpace(sc.Text())
			if key == "" {
				return "", false
			}
			if err := validate(key); err != nil {
				logWarning("%v", err)
				continue
			}
			return key, true
		}
	})
}

// ---------------------------------------------------------------------------
// search
// ---------------------------------------------------------------------------

func newSearchCmd() *cobra.Command {
	var (
		rank   bool
		pick   int
		cursor cursorFlags
	)

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Fuzzy-search translation texts",
		Long: `List translations whose text contains the query as a subsequence,
ignoring case and the query's spaces. Keys are not searched. Results are
in dictionary order unless --rank is given.

With --pick N the reference for the N-th result is printed instead, using
the cursor context flags.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), rank, pick, &cursor)
		},
	}

	cmd.Flags().BoolVar(&rank, "rank", false, "Order results by match quality")
	cmd.Flags().IntVar(&pick, "pick", 0, "Print the reference for the N-th result (1-based)")
	cursor.register(cmd.Flags())

	return cmd
}

func runSearch(cmd *cobra.Command, query string, rank bool, pick int, cursor *cursorFlags) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	flat, err := p.flat()
	if err != nil {
		return err
	}

	svc := translator.New()
	matches := svc.Search(query, flat)
	if len(matches) == 0 {
		logInfo(i18n.T("No translations found"))
		return nil
	}
	if rank {
		matches = rankMatches(query, matches)
	}

	if pick > 0 {
		if pick > len(matches) {
			return fmt.Errorf(i18n.T("--pick %d: only %d results"), pick, len(matches))
		}
		lc, err := cursor.Context()
		if err != nil {
			return err
		}
		ref, err := svc.Snippet(matches[pick-1].Key, lc, flat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ref)
		return nil
	}

	out := cmd.OutOrStdout()
	for i, m := range matches {
		fmt.Fprintf(out, "%3d  %s\t%s\n", i+1, m.Key, m.Value)
	}
	return nil
}

// rankMatches orders matches best first. Matches the ranker does not score
// keep their order after the scored ones.
func rankMatches(query string, matches []translator.Match) []translator.Match {
	values := make([]string, len(matches))
	for i, m := range matches {
		values[i] = m.Value
	}

	out := make([]translator.Match, 0, len(matches))
	seen := make(map[int]bool, len(matches))
	for _, r := range fuzzy.Rank(query, values) {
		out = append(out, matches[r.Index])
		seen[r.Index] = true
	}
	for i, m := range matches {
		if !seen[i] {
			out = append(out, m)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// complete
// ---------------------------------------------------------------------------

func newCompleteCmd() *cobra.Command {
	var cursor cursorFlags

	cmd := &cobra.Command{
		Use:   "complete [prefix]",
		Short: "List keys below a prefix with their references",
		Long: `List the keys starting with prefix, each with its text and the
reference to insert.

Without a prefix argument the completion trigger is read from the cursor
position instead: a quote or "_" followed by key segments and a dot, as in
'nav. or _. (which lists every key).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(cmd, args, &cursor)
		},
	}

	cursor.register(cmd.Flags())
	return cmd
}

func runComplete(cmd *cobra.Command, args []string, cursor *cursorFlags) error {
	var (
		prefix string
		lc     snippet.LexicalContext
		err    error
	)
	if len(args) == 1 {
		prefix = strings.TrimSuffix(args[0], dictionary.Separator)
		if lc, err = cursor.Context(); err != nil {
			return err
		}
	} else {
		line, col, err := cursor.linePrefix()
		if err != nil {
			return err
		}
		trigger, ok := snippet.ParseTrigger(line[:col])
		if !ok {
			return errors.New(i18n.T("no completion trigger before the cursor"))
		}
		prefix = trigger.Prefix
		lc, err = cursor.Context()
		if err != nil {
			return err
		}
		lc.Text = trigger.Context
	}

	p, err := openProject()
	if err != nil {
		return err
	}
	flat, err := p.flat()
	if err != nil {
		return err
	}
	if flat.Len() == 0 {
		logWarning(i18n.T("Your dictionary is empty"))
	}

	out := cmd.OutOrStdout()
	for _, s := range translator.New().Suggest(prefix, lc, flat) {
		fmt.Fprintf(out, "%s\t%s\t%s\n", s.Label, s.Detail, s.Snippet)
	}
	return nil
}

// ---------------------------------------------------------------------------
// hover
// ---------------------------------------------------------------------------

func newHoverCmd() *cobra.Command {
	var cursor cursorFlags

	cmd := &cobra.Command{
		Use:   "hover [key]",
		Short: "Show the translation of a key",
		Long: `Print the translation of a key, given directly or as the quoted key
under the cursor (--file/--line/--col).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHover(cmd, args, &cursor)
		},
	}

	cursor.register(cmd.Flags())
	return cmd
}

func runHover(cmd *cobra.Command, args []string, cursor *cursorFlags) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		line, col, err := cursor.linePrefix()
		if err != nil {
			return err
		}
		k, _, _, ok := snippet.KeyAt(line, col)
		if !ok {
			return errors.New(i18n.T("no quoted key under the cursor"))
		}
		key = k
	}

	p, err := openProject()
	if err != nil {
		return err
	}
	flat, err := p.flat()
	if err != nil {
		return err
	}

	value, ok := translator.New().Lookup(key, flat)
	if !ok {
		return fmt.Errorf(i18n.T("no translation for %q"), key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <key>",
		Short: "Check a candidate key against the dictionary",
		Long: `Check that a key is well formed and can be stored without turning an
existing translation into a group or a group into a translation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, key string) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	flat, err := p.flat()
	if err != nil {
		return err
	}

	if err := keys.Validate(key, flat); err != nil {
		var verr *keys.ValidationError
		if errors.As(err, &verr) && verr.Conflict != nil && strings.HasPrefix(verr.Conflict.Key, key+dictionary.Separator) {
			logInfo(i18n.T("Use %s to give the group itself a text"), key+dictionary.Separator+dictionary.Self)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

// ---------------------------------------------------------------------------
// format
// ---------------------------------------------------------------------------

func newFormatCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Rewrite the dictionary in canonical layout",
		Long: `Rewrite the dictionary with 4-space indentation, keys in ascending
order and "self" first, the layout every ngxkit write produces.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only report whether the file is formatted")
	return cmd
}

func runFormat(check bool) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	data, err := dictionary.ReadFile(p.path)
	if err != nil {
		return err
	}
	root, err := dictionary.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", p.path, err)
	}

	formatted := dictionary.Marshal(root)
	if bytes.Equal(data, formatted) {
		logSuccess(i18n.T("%s is formatted"), p.path)
		return nil
	}
	if check {
		return fmt.Errorf(i18n.T("%s is not formatted"), p.path)
	}

	if err := dictionary.WriteFile(p.path, root); err != nil {
		return err
	}
	logSuccess(i18n.T("Formatted %s"), p.path)
	p.refreshCache()
	return nil
}

// ---------------------------------------------------------------------------
// flatten
// ---------------------------------------------------------------------------

func newFlattenCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Print the flattened dictionary",
		Long:  `Print every key path with its text, in dictionary order.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlatten(cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON object (keys sorted)")
	return cmd
}

func runFlatten(out io.Writer, asJSON bool) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	flat, err := p.flat()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		return enc.Encode(flat.Map())
	}
	for _, k := range flat.Keys() {
		v, _ := flat.Get(k)
		fmt.Fprintf(out, "%s = %s\n", k, v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func newCheckCmd() *cobra.Command {
	var unused bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report key references missing from the dictionary",
		Long: `Scan the template files (the pattern glob of .ngxkit.yaml) for key
references such as 'nav.home' | translate, translate="nav.home" and
translate.instant('nav.home'), and report the keys the dictionary lacks.
Keys assembled at runtime are not seen.

Exits with an error when a reference is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), unused)
		},
	}

	cmd.Flags().BoolVar(&unused, "unused", false, "Also list dictionary keys no file references")
	return cmd
}

func runCheck(out io.Writer, unused bool) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	flat, err := p.flat()
	if err != nil {
		return err
	}

	files, err := extract.FindSources(p.cfg)
	if err != nil {
		return err
	}
	refs, err := extract.Scan(files)
	if err != nil {
		return err
	}
	logInfo(i18n.T("Scanned %s, %s"),
		fmt.Sprintf(i18n.N("%d file", "%d files", len(files)), len(files)),
		fmt.Sprintf(i18n.N("%d reference", "%d references", len(refs)), len(refs)))

	report := extract.Check(refs, flat)
	for _, r := range report.Missing {
		fmt.Fprintf(out, "%s\n", r)
	}
	if unused {
		for _, k := range report.Unused {
			fmt.Fprintf(out, "unused: %s\n", k)
		}
	}

	if !report.Clean() {
		n := len(report.Missing)
		return fmt.Errorf(i18n.N("%d missing key reference", "%d missing key references", n), n)
	}
	logSuccess(i18n.T("All key references resolve"))
	return nil
}

// ---------------------------------------------------------------------------
// locale
// ---------------------------------------------------------------------------

func newLocaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locale",
		Short: "Show or set the dictionary file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the dictionary file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <file>",
		Short: "Use a file as the dictionary",
		Long: `Point .ngxkit.yaml at a dictionary file. The file is stored as a
"**/<path relative to the root>" glob.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocaleSet(args[0])
		},
	})

	return cmd
}

func runLocaleSet(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Paths are taken relative to the working directory, like any argument.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if !fileExists(abs) {
		return fmt.Errorf("%w: %s", dictionary.ErrNotFound, path)
	}
	if _, err := dictionary.ParseFile(abs); err != nil {
		logWarning("%v", err)
	}

	if err := cfg.SetLocale(abs); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	logSuccess(i18n.T("Dictionary set to %s (%s)"), cfg.Locale, cfg.Path())
	return nil
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var (
		verbose int
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server on stdio",
		Long: `Run an LSP server on stdin/stdout providing translation key completion
(after 'prefix. or _.) and hover previews of quoted keys. The dictionary is
reloaded whenever it or .ngxkit.yaml changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(verbose, logFile)
		},
	}

	cmd.Flags().CountVarP(&verbose, "verbose", "v", "Log verbosity (repeat for more)")
	cmd.Flags().StringVar(&logFile, "log", "", "Log file (default: stderr)")
	return cmd
}

func runServe(verbose int, logFile string) error {
	var path *string
	if logFile != "" {
		path = &logFile
	}
	commonlog.Configure(verbose, path)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, version)
	go func() {
		if err := srv.Watch(ctx); err != nil {
			commonlog.GetLogger("ngxkit.watch").Errorf("%s", err)
		}
	}()

	return srv.RunStdio()
}
