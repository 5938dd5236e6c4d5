// Command press-logger counts button presses on a GPIO line, keeps a durable
// log of them and streams them to websocket and MQTT clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/press-logger/internal/config"
	"github.com/sweeney/press-logger/internal/gpio"
	"github.com/sweeney/press-logger/internal/logic"
	"github.com/sweeney/press-logger/internal/mqtt"
	"github.com/sweeney/press-logger/internal/status"
	"github.com/sweeney/press-logger/internal/store"
	"github.com/sweeney/press-logger/internal/timesource"
	"github.com/sweeney/press-logger/internal/web"
)

// runDaemon is what the root and serve commands run. Replaced in tests.
var runDaemon = serve

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// rootOptions holds the global flags and the resolved configuration.
type rootOptions struct {
	configPath string
	flags      config.Config // flag values, applied only when set
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{flags: config.Default()}

	cmd := &cobra.Command{
		Use:           "press-logger",
		Short:         "Durable button press counter with a live websocket feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts.cfg)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			overlayFlags(cmd.Flags(), &cfg, opts.flags)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default "+config.DefaultPath+" if present)")
	bindFlags(cmd.PersistentFlags(), &opts.flags)

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newResetCommand(opts))
	cmd.AddCommand(newPrintStateCommand(opts))

	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadOptional(config.DefaultPath)
	}
	return config.Load(path)
}

func bindFlags(fs *pflag.FlagSet, c *config.Config) {
	fs.StringVar(&c.Chip, "chip", c.Chip, "GPIO chip")
	fs.IntVar(&c.Pin, "pin", c.Pin, "line offset (BCM pin) of the button")
	fs.DurationVar(&c.Debounce, "debounce", c.Debounce, "minimum time between accepted presses")
	fs.DurationVar(&c.Poll, "poll", c.Poll, "queue polling interval")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "heartbeat interval (0 to disable)")
	fs.StringVar(&c.LogPath, "log", c.LogPath, "press log file")
	fs.BoolVar(&c.Sync, "sync", c.Sync, "fsync the log after every write")
	fs.IntVar(&c.QueueCapacity, "queue", c.QueueCapacity, "pending press capacity")
	fs.IntVar(&c.AppendRetries, "append-retries", c.AppendRetries, "retries for a failed log append")
	fs.DurationVar(&c.AppendRetryDelay, "append-retry-delay", c.AppendRetryDelay, "delay between append retries")
	fs.StringVar(&c.Broker, "broker", c.Broker, `MQTT broker address ("off" disables)`)
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "MQTT client ID")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP address (empty to disable)")
	fs.IntVar(&c.MaxPending, "max-pending", c.MaxPending, "live messages buffered per websocket client")
	fs.StringVar(&c.Timezone, "tz", c.Timezone, "timezone for press timestamps")
}

// overlayFlags copies the explicitly set flags from src into dst.
func overlayFlags(fs *pflag.FlagSet, dst *config.Config, src config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "chip":
			dst.Chip = src.Chip
		case "pin":
			dst.Pin = src.Pin
		case "debounce":
			dst.Debounce = src.Debounce
		case "poll":
			dst.Poll = src.Poll
		case "heartbeat":
			dst.Heartbeat = src.Heartbeat
		case "log":
			dst.LogPath = src.LogPath
		case "sync":
			dst.Sync = src.Sync
		case "queue":
			dst.QueueCapacity = src.QueueCapacity
		case "append-retries":
			dst.AppendRetries = src.AppendRetries
		case "append-retry-delay":
			dst.AppendRetryDelay = src.AppendRetryDelay
		case "broker":
			dst.Broker = src.Broker
		case "client-id":
			dst.ClientID = src.ClientID
		case "http":
			dst.HTTPAddr = src.HTTPAddr
		case "max-pending":
			dst.MaxPending = src.MaxPending
		case "tz":
			dst.Timezone = src.Timezone
		}
	})
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the press logging daemon (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts.cfg)
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored presses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}
			return printHistory(cmd.OutOrStdout(), store.OpenReadOnly(opts.cfg.LogPath), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}

func newResetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the press log (stop the daemon first, or POST /reset instead)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.cfg.LogPath, store.Options{Sync: true})
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", st.Path())
			return nil
		},
	}
}

func newPrintStateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the current button state and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := gpio.NewRealLine(opts.cfg.Chip, opts.cfg.Pin, nil)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer line.Close()
			return printState(cmd.OutOrStdout(), line)
		},
	}
}

func printState(w io.Writer, line gpio.Line) error {
	pressed, err := line.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	state := "RELEASED"
	if pressed {
		state = "PRESSED"
	}
	fmt.Fprintf(w, "button: %s\n", state)
	return nil
}

// history is the read side of the store.
type history interface {
	Replay() iter.Seq[logic.PressEvent]
}

func printHistory(w io.Writer, h history, format string) error {
	for ev := range h.Replay() {
		if format == "json" {
			line, err := logic.EncodeRecord(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", line)
			continue
		}
		ts := ev.Timestamp
		if ts == "" {
			ts = "(no time)"
		}
		fmt.Fprintf(w, "%6d  %s\n", ev.Sequence, ts)
	}
	return nil
}

func statusConfig(cfg config.Config) status.Config {
	sc := status.Config{
		Pin:           cfg.Pin,
		DebounceMs:    cfg.Debounce.Milliseconds(),
		PollMs:        cfg.Poll.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		QueueCapacity: cfg.QueueCapacity,
		LogPath:       cfg.LogPath,
		HTTPAddr:      cfg.HTTPAddr,
	}
	if cfg.MQTTEnabled() {
		sc.Broker = cfg.Broker
	}
	return sc
}

func serve(cfg config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	st, err := store.Open(cfg.LogPath, store.Options{Sync: cfg.Sync})
	if err != nil {
		return err
	}
	defer st.Close()

	last := st.LoadLastCount()
	stored := st.Len()
	log.Printf("store: %s holds %d records, resuming after press %d", st.Path(), stored, last)

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTTEnabled() {
		rp := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	clock := timesource.New(loc, timesource.DefaultFloor)
	if !clock.Synced() {
		log.Printf("clock not synchronized yet, presses will have no timestamp until it is")
	}

	d := newDaemon(cfg, st, last, stored, publisher, mqttStatus, clock, tracker, time.Now)

	// Initialize GPIO
	line, err := gpio.NewRealLine(cfg.Chip, cfg.Pin, d.onEdge)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer line.Close()

	d.publishSystem("STARTUP", "", true)

	// Start HTTP server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, d, cfg.MaxPending)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}
	defer d.hub.CloseAll()

	log.Printf("started: chip=%s pin=%d debounce=%v poll=%v broker=%s heartbeat=%v",
		cfg.Chip, cfg.Pin, cfg.Debounce, cfg.Poll, cfg.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(ticker.C, sigCh)
}
