package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"portapak/internal"
	"portapak/internal/history"
	"portapak/internal/manifest"
	"portapak/internal/mcpserver"
	"portapak/internal/pipeline"
	"portapak/internal/progress"
	pkgconfig "portapak/pkg/config"
)

func loadConfig(path string) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func textLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newService(cfg *internal.Config, logger *slog.Logger, hist history.Store) *pipeline.Service {
	opts := []pipeline.Option{
		pipeline.WithRules(cfg.Classify.EffectiveRules()),
		pipeline.WithTools(cfg.Tools.ToolSet()),
		pipeline.WithReporter(progress.Slog(logger)),
		pipeline.WithLogger(logger),
	}
	if hist != nil {
		opts = append(opts, pipeline.WithHistory(hist))
	}
	return pipeline.New(opts...)
}

func openHistory(cfg *internal.Config, logger *slog.Logger) history.Store {
	db, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("run history disabled", slog.String("error", err.Error()))
		return nil
	}
	return db
}

func convertAction(ctx context.Context, cmd *cli.Command) error {
	tracePath := cmd.Args().First()
	if tracePath == "" {
		return fmt.Errorf("usage: portapak convert <trace.xml>")
	}

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := textLogger()

	output := cmd.String("output")
	if output == "" {
		output = strings.TrimSuffix(tracePath, ".xml") + ".json"
	}

	hist := openHistory(cfg, logger)
	if hist != nil {
		defer hist.Close()
	}

	res, err := newService(cfg, logger, hist).Convert(ctx, pipeline.ConvertRequest{
		TracePath:  tracePath,
		OutputPath: output,
		AppName:    cmd.String("app-name"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Converted %d trace entries into %s (app %q)\n", res.Entries, res.OutputPath, res.Config.AppName)
	for _, note := range res.Notes {
		fmt.Println("note:", note)
	}
	return nil
}

func buildAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.Args().First()
	if configPath == "" {
		return fmt.Errorf("usage: portapak build <config.json>")
	}

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := textLogger()

	output := cmd.String("output")
	if output == "" {
		output = strings.TrimSuffix(configPath, ".json") + "-package"
	}

	hist := openHistory(cfg, logger)
	if hist != nil {
		defer hist.Close()
	}

	res, err := newService(cfg, logger, hist).Build(ctx, pipeline.BuildRequest{
		ConfigPath: configPath,
		OutputRoot: output,
		DryRun:     cmd.Bool("dry-run"),
	})
	if err != nil {
		return err
	}

	counts := res.Manifest.Counts()
	verb := "Built package"
	if res.Manifest.DryRun {
		verb = "Dry run for"
	}
	fmt.Printf("%s %s (%d copied, %d exported, %d skipped, %d failed)\n",
		verb, res.OutputRoot,
		counts[manifest.StatusCopied], counts[manifest.StatusExported],
		counts[manifest.StatusSkipped], counts[manifest.StatusFailed])
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%-4d %-8s %-20s %s  copied=%d exported=%d skipped=%d failed=%d  %s\n",
			r.ID, r.Kind, r.AppName, r.CreatedAt.Format(time.RFC3339),
			r.Copied, r.Exported, r.Skipped, r.Failed, r.OutputPath)
	}
	return nil
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := textLogger()

	hist := openHistory(cfg, logger)
	if hist != nil {
		defer hist.Close()
	}

	return mcpserver.New(newService(cfg, logger, hist)).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "portapak",
		Usage: "Convert installer traces into declarative configurations and build portable application packages",
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert an installer trace XML into a configuration JSON",
				ArgsUsage: "<trace.xml>",
				Action:    convertAction,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path for the configuration JSON (default: trace name with .json)",
					},
					&cli.StringFlag{
						Name:  "app-name",
						Usage: "Application name (default: derived from the trace)",
					},
				},
			},
			{
				Name:      "build",
				Usage:     "Build a portable package from a configuration JSON",
				ArgsUsage: "<config.json>",
				Action:    buildAction,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output root for the package (default: config name with -package)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report what would be captured without writing anything",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP front end with live progress events",
				Action: serveAction,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "history",
				Usage:  "List recent convert and build runs",
				Action: historyAction,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Max runs to show",
						Value: 20,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve pipeline tools over the Model Context Protocol on stdio",
				Action: mcpAction,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
