package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/vocanote/internal"
	"github.com/starford/vocanote/internal/version"
	pkgconfig "github.com/starford/vocanote/pkg/config"
)

// Set at build time with -ldflags "-X main.appVersion=...".
var appVersion = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(appVersion),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, cmd.String("identity"), opts...)
}

func exportNotes(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out := cmd.String("output"); out != "" && out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}
	return internal.Export(ctx, cmd.String("identity"), w, opts...)
}

func importNotes(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument, got %d", cmd.NArg())
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if path := cmd.Args().First(); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	n, err := internal.Import(ctx, cmd.String("identity"), r, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "imported %d notes\n", n)
	return nil
}

func compareVersions(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("expected two versions, got %d", cmd.NArg())
	}
	fmt.Fprintln(cmd.Root().Writer, version.Compare(cmd.Args().Get(0), cmd.Args().Get(1)))
	return nil
}

func identityFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "identity",
		Aliases:  []string{"i"},
		Usage:    "Authenticated identity whose notes to open",
		Required: true,
		Sources:  cli.EnvVars("VOCANOTE_IDENTITY"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:           "vocanote",
		Usage:          "Local-first voice note core with dictation, sync and over-the-air updates",
		Version:        appVersion,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API the UI shell talks to",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve notes to an MCP client over stdio",
				Flags:  []cli.Flag{identityFlag()},
				Action: serveMCP,
			},
			{
				Name:  "export",
				Usage: "Write all notes as an export document",
				Flags: []cli.Flag{
					identityFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file, - for stdout",
						Value:   "-",
					},
				},
				Action: exportNotes,
			},
			{
				Name:      "import",
				Usage:     "Merge an export document into the notes",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{identityFlag()},
				Action:    importNotes,
			},
			{
				Name:      "compare-versions",
				Usage:     "Print -1, 0 or 1 comparing two dotted versions",
				ArgsUsage: "A B",
				Action:    compareVersions,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
