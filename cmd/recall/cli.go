package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/hooks"
	"github.com/hpungsan/recall/internal/ops"
	"github.com/hpungsan/recall/internal/web"
)

// hookTimeout bounds one hook invocation so a slow store never stalls the host.
const hookTimeout = 25 * time.Second

// maxSnippet caps each memory printed by `recall search`.
const maxSnippet = 500

// setup opens the runtime on demand; help and version never need it.
type setup struct {
	baseDir string
}

func (s *setup) open(ctx context.Context, component string) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return newRuntime(ctx, s.baseDir, cwd, component)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(s *setup) *cli.App {
	app := &cli.App{
		Name:    "recall",
		Usage:   "Persistent memory across coding sessions",
		Version: Version,
		Commands: []*cli.Command{
			hookCmd(s),
			addCmd(s),
			searchCmd(s),
			statusCmd(s),
			indexCmd(s),
			uiCmd(s),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// hookCmd creates the hook command. Whatever fails, the host gets a valid
// response on stdout and exit status 0; only an unknown event is an error.
func hookCmd(s *setup) *cli.Command {
	events := make([]string, 0, len(hooks.Events()))
	for _, e := range hooks.Events() {
		events = append(events, string(e))
	}
	return &cli.Command{
		Name:      "hook",
		Usage:     "Handle a host lifecycle hook (reads the event JSON from stdin)",
		ArgsUsage: "<" + strings.Join(events, "|") + ">",
		Action: func(c *cli.Context) error {
			event := c.Args().First()
			ctx, cancel := context.WithTimeout(c.Context, hookTimeout)
			defer cancel()

			rt, err := s.open(ctx, "hook")
			if err != nil {
				_ = hooks.WriteOutput(os.Stdout, hooks.Default())
				fmt.Fprintf(os.Stderr, "recall: %v\n", err)
				return nil
			}
			defer rt.Close()

			runner := hooks.NewRunner(hooks.Deps{
				Config:      rt.env.Config,
				Store:       rt.env.Store,
				Checkpoints: rt.env.Checkpoints,
				Dedup:       rt.env.Dedup,
				Resolver:    rt.env.Resolver,
				Logger:      rt.env.Logger,
			})
			if err := runner.Run(ctx, event, os.Stdin, os.Stdout); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// addCmd creates the add command.
func addCmd(s *setup) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Save a memory for the current project",
		ArgsUsage: "<text...>",
		Action: func(c *cli.Context) error {
			content := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(content) == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				content = text
			}

			rt, err := s.open(c.Context, "cli")
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			output, err := ops.Add(c.Context, rt.env, ops.AddInput{Content: content, CWD: cwd()})
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintf(os.Stdout, "Saved memory %s to project %s\n", output.ID, output.Project)
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd(s *setup) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search memories of the current project",
		ArgsUsage: "<query...>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSearchLimit, Usage: "Maximum number of memories"},
			&cli.BoolFlag{Name: "json", Usage: "Print the raw result as JSON"},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")

			rt, err := s.open(c.Context, "cli")
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			output, err := ops.Search(c.Context, rt.env, ops.SearchInput{
				Query: query,
				CWD:   cwd(),
				Limit: c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(output)
			}
			printSearch(os.Stdout, output)
			return nil
		},
	}
}

// statusCmd creates the status command.
func statusCmd(s *setup) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show configuration and capture progress",
		ArgsUsage: "[session-id]",
		Action: func(c *cli.Context) error {
			rt, err := s.open(c.Context, "cli")
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			output, err := ops.Status(c.Context, rt.env, ops.StatusInput{
				SessionID: c.Args().First(),
				CWD:       cwd(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// indexCmd creates the index command.
func indexCmd(s *setup) *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Store the git-tracked files of a directory as project memories",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "skip", Usage: "Extra glob pattern of paths to leave out (repeatable)"},
			&cli.BoolFlag{Name: "json", Usage: "Print the raw result as JSON"},
		},
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				dir = cwd()
			}

			rt, err := s.open(c.Context, "cli")
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			quiet := c.Bool("json")
			if !quiet {
				fmt.Fprintf(os.Stdout, "Indexing code in: %s\n", dir)
			}
			output, err := ops.Index(c.Context, rt.env, ops.IndexInput{
				Dir:  dir,
				Skip: c.StringSlice("skip"),
				Progress: func(done, total int) {
					if !quiet && (done%10 == 0 || done == total) {
						fmt.Fprintf(os.Stdout, "  %d/%d files indexed\n", done, total)
					}
				},
			})
			if err != nil {
				return outputError(err)
			}
			if quiet {
				return outputJSON(output)
			}
			if output.Indexed == 0 {
				fmt.Fprintf(os.Stdout, "Nothing to index (skipped %d files).\n", output.Skipped)
				return nil
			}
			fmt.Fprintf(os.Stdout, "Indexed %d files into project %s (skipped %d).\n",
				output.Indexed, output.Project, output.Skipped)
			return nil
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(s *setup) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Start the web UI for browsing sessions and memories",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8321, Usage: "Port to listen on"},
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind to"},
		},
		Action: func(c *cli.Context) error {
			rt, err := s.open(c.Context, "ui")
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			srv, err := web.NewServer(rt.env, web.Options{
				Version: Version,
				Bind:    c.String("bind"),
				Port:    c.Int("port"),
				CWD:     cwd(),
				Logger:  rt.env.Logger,
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, nil)
		},
	}
}

// Helper functions

// printSearch writes a search result as readable markdown.
func printSearch(w io.Writer, out *ops.SearchOutput) {
	fmt.Fprintf(w, "## Memory Search: %q\n", out.Query)
	fmt.Fprintf(w, "Project: %s\n\n", out.Project)

	if len(out.Static) > 0 {
		fmt.Fprintln(w, "### User Preferences")
		for _, fact := range out.Static {
			fmt.Fprintf(w, "- %s\n", fact)
		}
		fmt.Fprintln(w)
	}
	if len(out.Dynamic) > 0 {
		fmt.Fprintln(w, "### Recent Context")
		for _, fact := range out.Dynamic {
			fmt.Fprintf(w, "- %s\n", fact)
		}
		fmt.Fprintln(w)
	}

	if len(out.Items) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return
	}
	fmt.Fprintln(w, "### Relevant Memories")
	for i, hit := range out.Items {
		fmt.Fprintf(w, "\n**Memory %d** (%d%% match)\n", i+1, int(hit.Score*100+0.5))
		if hit.Title != "" {
			fmt.Fprintf(w, "*%s*\n", hit.Title)
		}
		fmt.Fprintln(w, truncate(hit.Text, maxSnippet))
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// cwd returns the working directory, or "." when it cannot be read.
func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var rErr *errors.RecallError
	if stderrors.As(err, &rErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", rErr.Code, rErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
