package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"HumaGCS/cmd/gcs/app"
	"HumaGCS/internal/config"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := flags.String("c", "", "Path to the configuration file")
	endpoint := flags.String("e", "", "Vehicle endpoint, e.g. udp:127.0.0.1:14550, tcp:127.0.0.1:5760 or /dev/ttyUSB0,57600")
	takeoff := flags.Float64("takeoff", 0, "Run the autonomous takeoff sequence to this altitude in metres")
	land := flags.String("land", "", "Run the autonomous landing sequence to lat,lon")
	cruise := flags.Float64("cruise", 0, "Approach altitude for -land, overrides sequence.cruiseAltitude")
	plan := flags.String("plan", "", "Fly the waypoint plan in this YAML file")
	upload := flags.Bool("upload", false, "Upload -plan as an AUTO mission instead of flying it in GUIDED")
	kml := flags.String("kml", "", "Export the -plan mission to this KML file and exit")
	rtl := flags.Bool("rtl", false, "Switch the vehicle to RTL")
	watch := flags.Bool("watch", false, "Keep running after the requested actions")
	ports := flags.Bool("ports", false, "List serial ports and exit")
	_ = flags.Parse(os.Args[1:])

	if *ports {
		if err := app.ListPorts(os.Stdout); err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	if *kml != "" {
		if *plan == "" {
			logger.Error("-kml needs -plan")
			os.Exit(2)
		}
		if err := app.ExportKML(*plan, *kml); err != nil {
			logger.Error(err.Error(), slog.String("plan", *plan))
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", *configPath))
			os.Exit(1)
		}
		cfg = *loaded
	}
	if err := logLevel.UnmarshalText([]byte(cfg.Settings.LogLevel)); err != nil {
		logger.Warn("invalid log level, using INFO", slog.String("level", cfg.Settings.LogLevel))
	}

	if *endpoint != "" {
		cfg.Link.Endpoint = *endpoint
	}
	if *cruise > 0 {
		cfg.Sequence.CruiseAltitude = float32(*cruise)
	}

	actions := app.Actions{
		Takeoff: float32(*takeoff),
		Land:    *land,
		Plan:    *plan,
		Upload:  *upload,
		RTL:     *rtl,
		Watch:   *watch,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, &cfg, actions, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
