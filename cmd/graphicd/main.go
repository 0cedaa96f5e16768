package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/rive-ograf/asset"
	"github.com/wippyai/rive-ograf/config"
	"github.com/wippyai/rive-ograf/control"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/graphic"
)

func main() {
	var (
		configFile = flag.String("config", "", "Project file (YAML)")
		assetFile  = flag.String("asset", "", "Animation file (.riv)")
		engineFile = flag.String("engine", "", "Animation runtime wasm module")
		broker     = flag.String("broker", "", "MQTT broker URL")
		topic      = flag.String("topic", "", "Control topic prefix")
		clientID   = flag.String("client-id", "", "MQTT client id")
		play       = flag.String("play", "", "Trigger fired by playAction")
		stopTrig   = flag.String("stop", "", "Trigger fired by stopAction")
		verbose    = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	for dst, v := range map[*string]string{
		&cfg.Asset:         *assetFile,
		&cfg.Engine:        *engineFile,
		&cfg.MQTT.Broker:   *broker,
		&cfg.MQTT.Topic:    *topic,
		&cfg.MQTT.ClientID: *clientID,
		&cfg.Triggers.Play: *play,
		&cfg.Triggers.Stop: *stopTrig,
	} {
		if v != "" {
			*dst = v
		}
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	if cfg.Asset == "" || cfg.Engine == "" {
		fmt.Fprintln(os.Stderr, "Usage: graphicd -asset <file.riv> -engine <rive.wasm> -play <trigger> -stop <trigger> [-broker url] [-topic prefix]")
		fmt.Fprintln(os.Stderr, "       graphicd -config ograf.yaml")
		os.Exit(1)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	engine.SetLogger(logger)
	graphic.SetLogger(logger)
	control.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("graphicd failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config) error {
	guest, err := os.ReadFile(cfg.Engine)
	if err != nil {
		return fmt.Errorf("read engine: %w", err)
	}
	eng, err := engine.NewWazeroEngine(ctx, guest, nil)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close(context.Background())

	// Parsing continues in the background; loads before it finishes
	// answer 501.
	a, err := asset.Start(ctx, eng, asset.Source{Path: cfg.Asset})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	g, err := graphic.New(a, graphic.Config{
		Defaults:       cfg.Graphic.Defaults,
		Triggers:       cfg.Triggers,
		StateMachine:   cfg.Graphic.StateMachine,
		Width:          cfg.Graphic.Width,
		Height:         cfg.Graphic.Height,
		MaxWidth:       cfg.Graphic.MaxWidth,
		StrictTriggers: cfg.Graphic.StrictTriggers,
	})
	if err != nil {
		return err
	}
	defer g.Dispose(context.Background(), graphic.DisposeParams{})

	password, err := cfg.MQTT.Password()
	if err != nil {
		return err
	}
	client, err := control.Dial(ctx, control.ClientOptions{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: password,
		Timeout:  cfg.MQTT.Timeout,
	})
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	bridge := control.NewBridge(client, g, control.BridgeOptions{
		Topic:   cfg.MQTT.Topic,
		QoS:     cfg.MQTT.QoS,
		Timeout: cfg.MQTT.Timeout,
	})
	if err := bridge.Start(ctx); err != nil {
		return err
	}

	logger.Info("graphicd ready",
		zap.String("asset", cfg.Asset),
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("requests", bridge.RequestTopic()),
		zap.String("responses", bridge.ResponseTopic()))

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return bridge.Stop(stopCtx)
}
