// Package main is the entry point for the waypath tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/waypath/internal/config"
	"github.com/Faultbox/waypath/internal/imageio"
	"github.com/Faultbox/waypath/internal/logger"
	"github.com/Faultbox/waypath/internal/render"
	"github.com/Faultbox/waypath/internal/server"
	"github.com/Faultbox/waypath/internal/world"
	"github.com/Faultbox/waypath/pkg/walkmap"
)

const usage = `usage: waypath [global flags] <command> [flags]

commands:
  route   compute and draw the route through waypoints
  mask    write the walkability mask
  pick    print the color at a point
  serve   run the HTTP/WebSocket server
  config  print the effective configuration or write it to a file

global flags:`

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}

	// Parse CLI flags first
	config.ParseFlags()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Sugar.Debugf("Config: %+v", cfg)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "route":
		err = runRoute(cfg, args)
	case "mask":
		err = runMask(cfg, args)
	case "pick":
		err = runPick(cfg, args)
	case "serve":
		err = runServe(cfg)
	case "config":
		err = runConfig(cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Sync()
		failf("%s: %v", cmd, err)
	}
}

func failf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

// loadSession loads the image at path into a new session and adds colors.
func loadSession(cfg *config.Config, path, colors string) (*world.Session, error) {
	img, format, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	set, err := walkmap.ParseList(colors)
	if err != nil {
		return nil, err
	}

	sess, err := world.NewSession(world.Options{
		Policy:       cfg.Engine.Policy(),
		DeferRebuild: true,
		Logger:       logger.Named("session"),
	})
	if err != nil {
		return nil, err
	}
	src := walkmap.NewImageSampler(img)
	if err := sess.SetImage(src, cfg.Display.Fit(src.Size())); err != nil {
		return nil, err
	}
	for _, c := range set {
		if _, err := sess.AddWalkableColor(c); err != nil {
			return nil, err
		}
	}
	logger.Debug("image loaded", zap.String("path", path), zap.String("format", format), zap.Int("colors", len(set)))
	return sess, nil
}

func runRoute(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	imagePath := fs.String("image", "", "Map image")
	colors := fs.String("colors", "", "Walkable colors, comma separated hex")
	waypoints := fs.String("waypoints", "", "Waypoints as \"x,y;x,y;...\"")
	space := fs.String("space", "grid", "Waypoint coordinate space: grid or display")
	out := fs.String("out", "", "Output PNG with the route drawn")
	asJSON := fs.Bool("json", false, "Print the route as JSON")
	walkable := fs.Bool("walkable", cfg.Render.ShowWalkable, "Tint walkable area in the output")
	fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("-image is required")
	}
	sess, err := loadSession(cfg, *imagePath, *colors)
	if err != nil {
		return err
	}
	points, err := parsePoints(*waypoints)
	if err != nil {
		return err
	}
	if err := addWaypoints(sess, points, *space); err != nil {
		return err
	}

	route, wps, err := sess.ComputeRoute(cfg.Engine.CloseLoop)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(routeSummary(route, wps)); err != nil {
			return err
		}
	} else {
		printRoute(os.Stdout, route, wps)
	}

	if *out == "" {
		return nil
	}
	style, err := render.StyleFromConfig(cfg.Render)
	if err != nil {
		return err
	}
	style.ShowWalkable = *walkable
	m, _ := sess.Mapper()
	grid, _ := sess.Grid()
	img, err := render.Draw(render.Scene{
		Source:    sess.Source().(*walkmap.ImageSampler).Image(),
		Mapper:    m,
		Grid:      grid,
		Route:     route,
		Waypoints: wps,
	}, style)
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(*out, img); err != nil {
		return err
	}
	logger.Info("route image saved", zap.String("path", *out))
	return nil
}

func runMask(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	imagePath := fs.String("image", "", "Map image")
	colors := fs.String("colors", "", "Walkable colors, comma separated hex")
	out := fs.String("out", "mask.png", "Output PNG")
	scaled := fs.Bool("scaled", false, "Scale the mask to the display width")
	fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("-image is required")
	}
	sess, err := loadSession(cfg, *imagePath, *colors)
	if err != nil {
		return err
	}
	grid, err := sess.Grid()
	if err != nil {
		return err
	}

	if *scaled {
		m, _ := sess.Mapper()
		err = imageio.SavePNG(*out, render.ScaledMask(grid, m))
	} else {
		err = imageio.SavePNG(*out, grid.Mask())
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d of %d cells walkable, mask saved to %s\n", grid.Count(), grid.Size().Area(), *out)
	return nil
}

func runPick(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("pick", flag.ExitOnError)
	imagePath := fs.String("image", "", "Map image")
	at := fs.String("at", "", "Point as \"x,y\"")
	space := fs.String("space", "grid", "Coordinate space: grid or display")
	fs.Parse(args)

	if *imagePath == "" || *at == "" {
		return fmt.Errorf("-image and -at are required")
	}
	sess, err := loadSession(cfg, *imagePath, "")
	if err != nil {
		return err
	}
	v, err := parsePoint(*at)
	if err != nil {
		return err
	}
	p, err := toGrid(sess, v, *space)
	if err != nil {
		return err
	}
	c, err := sess.SampleColorAt(p)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", p, c.Hex(), c.CSS())
	return nil
}

func runServe(cfg *config.Config) error {
	s, err := server.New(cfg, logger.Named("server"))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

func runConfig(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	write := fs.Bool("write", false, "Write to the user config directory")
	out := fs.String("out", "", "Write to this path instead")
	fs.Parse(args)

	switch {
	case *out != "":
		err := cfg.SaveTo(*out)
		if err == nil {
			fmt.Printf("config written to %s\n", *out)
		}
		return err
	case *write:
		err := cfg.Save()
		if err == nil {
			fmt.Printf("config written to %s\n", config.ConfigDir())
		}
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
