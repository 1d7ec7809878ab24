package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/rulesync/internal"
	"github.com/starford/rulesync/internal/apperr"
	"github.com/starford/rulesync/internal/mcpserver"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/opener"
	"github.com/starford/rulesync/internal/paths"
	"github.com/starford/rulesync/internal/picker"
	"github.com/starford/rulesync/internal/ruleservice"
	pkgconfig "github.com/starford/rulesync/pkg/config"
)

type cliApp struct {
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	a := &cliApp{stdout: stdout, stderr: stderr}

	return &cli.Command{
		Name:    "rulesync",
		Usage:   "Keep editor rule files in sync with a shared rules directory",
		Version: version,
		Writer:  stdout,
		Action:  a.watch,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "$XDG_CONFIG_HOME/rulesync/config.yaml",
				Value:       paths.DefaultConfigFile(),
				Sources:     cli.EnvVars("RULESYNC_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "shared-dir",
				Usage:   "Shared rules directory (overrides rules.shared_dir)",
				Sources: cli.EnvVars("RULESYNC_SHARED_DIR"),
			},
			&cli.StringFlag{
				Name:  "marker",
				Usage: "Project rules directory relative to the project root (overrides rules.marker_path)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "watch",
				Usage:  "Watch project rule folders and sync changes into the shared directory",
				Action: a.watch,
			},
			{
				Name:      "sync",
				Usage:     "Copy rule files into the shared directory",
				ArgsUsage: "<file>...",
				Action:    a.sync,
			},
			{
				Name:  "import",
				Usage: "Copy a shared rule into the nearest project rules directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "context", Usage: "File or directory inside the target project (default: working directory)"},
					&cli.StringFlag{Name: "rule", Usage: "Rule to import without prompting"},
				},
				Action: a.importRule,
			},
			{
				Name:  "list",
				Usage: "List shared rules",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Fuzzy filter on name and description"},
					&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Only rules with this tag"},
				},
				Action: a.list,
			},
			{
				Name:      "show",
				Usage:     "Print a shared rule",
				ArgsUsage: "<name>",
				Action:    a.show,
			},
			{
				Name:      "save",
				Usage:     "Save a rule with metadata into the shared directory",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "Content file, - for stdin", Required: true},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Rule description"},
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Rule tag (repeatable)"},
				},
				Action: a.save,
			},
			{
				Name:      "delete",
				Usage:     "Delete a shared rule and its metadata",
				ArgsUsage: "<name>",
				Action:    a.delete,
			},
			{
				Name:      "search",
				Usage:     "Search shared rules",
				ArgsUsage: "<query>",
				Action:    a.search,
			},
			{
				Name:      "open",
				Usage:     "Open a rule file's directory with the configured tool",
				ArgsUsage: "<file>",
				Action:    a.openDir,
			},
			{
				Name:   "mcp",
				Usage:  "Serve rulesync tools over MCP on stdio",
				Action: a.mcp,
			},
		},
	}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("shared-dir"); dir != "" {
		cfg.Rules.SharedDir = dir
	}
	if marker := cmd.String("marker"); marker != "" {
		cfg.Rules.MarkerPath = marker
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// components loads the config and wires components for a one-shot command.
// Logs go to stderr so stdout stays free for command output.
func (a *cliApp) components(ctx context.Context, cmd *cli.Command) (*internal.Components, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(internal.NewLogger(a.stderr, cfg.App.LogLevel)),
		internal.WithNotifier(ruleservice.WriterNotifier{Out: a.stdout, Err: a.stderr}),
	)
}

func requireArgs(cmd *cli.Command, n int) error {
	if cmd.Args().Len() < n {
		return fmt.Errorf("%s: missing argument %s", cmd.Name, cmd.ArgsUsage)
	}
	return nil
}

func (a *cliApp) watch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func (a *cliApp) sync(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	var errs []error
	for _, src := range cmd.Args().Slice() {
		dst, err := c.Service.SyncFile(ctx, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.stdout, "Synced %s -> %s\n", src, dst)
	}
	return errors.Join(errs...)
}

func (a *cliApp) importRule(ctx context.Context, cmd *cli.Command) error {
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	contextPath := cmd.String("context")
	if contextPath == "" {
		if contextPath, err = os.Getwd(); err != nil {
			return err
		}
	}
	if contextPath, err = filepath.Abs(contextPath); err != nil {
		return err
	}

	pick := picker.New("Import rule").Pick
	if name := cmd.String("rule"); name != "" {
		pick = func(context.Context, []models.Rule) (string, error) { return name, nil }
	}

	_, err = c.Service.Import(ctx, contextPath, pick)
	if errors.Is(err, apperr.ErrNotInteractive) {
		return fmt.Errorf("import: stdin is not a terminal, pass --rule: %w", err)
	}
	return err
}

func (a *cliApp) list(ctx context.Context, cmd *cli.Command) error {
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	rules, err := c.Service.List(ctx)
	if err != nil {
		return err
	}
	rules = ruleservice.Filter(ruleservice.FilterTag(rules, cmd.String("tag")), cmd.String("filter"))

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION\tTAGS")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Description, strings.Join(r.Tags, ","))
	}
	return tw.Flush()
}

func (a *cliApp) show(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	content, err := c.Store.ReadContent(cmd.Args().First())
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, content)
	return err
}

func (a *cliApp) save(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	content, err := readInput(cmd.String("from"))
	if err != nil {
		return err
	}
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	rule := models.Rule{
		Name:        cmd.Args().First(),
		Description: cmd.String("description"),
		Tags:        cmd.StringSlice("tag"),
	}
	saved, err := c.Service.Save(ctx, rule, content)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved %s\n", saved.Path)
	return nil
}

func readInput(from string) ([]byte, error) {
	if from == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(from)
}

func (a *cliApp) delete(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	name := cmd.Args().First()
	if err := c.Service.Delete(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted %s\n", name)
	return nil
}

func (a *cliApp) search(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	results, err := c.Service.Search(ctx, strings.Join(cmd.Args().Slice(), " "), 20)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(a.stdout, "%s\t%s\n", r.Name, r.Description)
		if r.Snippet != "" {
			fmt.Fprintf(a.stdout, "    %s\n", strings.Join(strings.Fields(r.Snippet), " "))
		}
	}
	return nil
}

func (a *cliApp) openDir(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	file, err := filepath.Abs(cmd.Args().First())
	if err != nil {
		return err
	}

	o := opener.New(cfg.Open.Command, internal.NewLogger(a.stderr, cfg.App.LogLevel))
	res, err := o.Open(ctx, file)
	if res.Stdout != "" {
		fmt.Fprint(a.stdout, res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintf(a.stderr, "warning: %s\n", strings.TrimSpace(res.Stderr))
	}
	return err
}

func (a *cliApp) mcp(ctx context.Context, cmd *cli.Command) error {
	c, err := a.components(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return mcpserver.New(c.Service, version).ServeStdio()
}
