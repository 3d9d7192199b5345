// Package main provides the CLI entry point for montage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/user/montage/pkg/adapters/logger"
	"github.com/user/montage/pkg/adapters/osfilesystem"
	"github.com/user/montage/pkg/editor"
	"github.com/user/montage/pkg/ports"
	"github.com/user/montage/pkg/project"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:  "montage",
		Usage: "timeline-based video compositing and export",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "log level (debug, info, warn, error, quiet)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "load a project file and export its timeline",
				ArgsUsage: "<project.yaml>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "override the project's output path",
					},
					&cli.StringFlag{
						Name:  "font",
						Usage: "TTF font file for text clips",
					},
				},
				Action: runRender,
			},
			{
				Name:      "probe",
				Usage:     "print a summary of a project's timeline",
				ArgsUsage: "<project.yaml>",
				Action:    runProbe,
			},
			{
				Name:  "version",
				Usage: "show version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("montage %s\n", version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadProject(c *cli.Context) (project.Project, ports.Logger, error) {
	if c.Args().Len() != 1 {
		return project.Project{}, nil, fmt.Errorf("expected exactly one project file argument")
	}
	p, err := project.LoadFromFile(c.Args().First())
	if err != nil {
		return project.Project{}, nil, fmt.Errorf("failed to load project: %w", err)
	}

	level := c.String("log-level")
	if level == "info" && p.LogLevel != "" {
		level = p.LogLevel
	}
	lg := logger.NewConsole(ports.ParseLogLevel(level))
	return p, lg, nil
}

func runRender(c *cli.Context) error {
	p, lg, err := loadProject(c)
	if err != nil {
		return err
	}
	if out := c.String("output"); out != "" {
		p.Export.Output = out
	}

	ed, err := editor.New(p, osfilesystem.New(), &consoleEvents{logger: lg}, lg)
	if err != nil {
		return err
	}
	defer ed.Close()

	if font := c.String("font"); font != "" {
		ed.Compositor().SetFontPath(font)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Warn("Interrupted, cancelling export")
		ed.CancelExport()
		cancel()
	}()

	lg.Info("Rendering project %s", p.Name)
	return ed.Export(ctx)
}

func runProbe(c *cli.Context) error {
	p, _, err := loadProject(c)
	if err != nil {
		return err
	}

	fmt.Printf("project: %s\n", p.Name)
	fmt.Printf("canvas:  %dx%d @ %.3g fps\n", p.Canvas.Width, p.Canvas.Height, p.Canvas.FPS)
	fmt.Printf("sources: %d\n", len(p.Sources))
	for _, s := range p.Sources {
		fmt.Printf("  %-12s %-8s %s\n", s.ID, s.Kind, s.Path)
	}
	fmt.Printf("clips:   %d\n", len(p.Clips))
	for i, cc := range p.Clips {
		fmt.Printf("  %2d: %-12s track %d  [%d, %d)\n", i, cc.Source, cc.Track, cc.Start, cc.Start+cc.Duration)
	}
	return nil
}

// consoleEvents reports scheduler events through the logger.
type consoleEvents struct {
	logger ports.Logger
}

func (e *consoleEvents) ReadyToPlay() {}

func (e *consoleEvents) EncodeProgress(percent int) {
	if percent < 0 {
		e.logger.Error("Export failed")
		return
	}
	e.logger.Info("Export progress: %d%%", percent)
}

func (e *consoleEvents) EncodeComplete(path string) {
	e.logger.Info("Export completed: %s", path)
}

func (e *consoleEvents) ThumbnailReady(sourceID string) {
	e.logger.Debug("Thumbnail ready for source %s", sourceID)
}

var _ ports.EventSink = (*consoleEvents)(nil)
