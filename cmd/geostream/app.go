package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/ahmedkamals/geostream"
	"github.com/ahmedkamals/geostream/internal/config"
	"github.com/ahmedkamals/geostream/internal/logging"
	"github.com/ahmedkamals/geostream/producers/ipapi"
	"github.com/ahmedkamals/geostream/producers/nominatim"
	"github.com/ahmedkamals/geostream/producers/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type (
	// app holds what every command shares once the configuration is loaded.
	app struct {
		configPath string
		ctx        context.Context
		stop       context.CancelFunc
		config     *config.Config
		logger     *zap.Logger
		pool       *geostream.Pool
	}
)

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "geostream",
		Short:         "Location requests over GPS tracks, IP lookups and geocoding services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")

	root.AddCommand(
		newIPCommand(a),
		newGeocodeCommand(a),
		newReverseCommand(a),
		newAutocompleteCommand(a),
		newTrackCommand(a),
	)

	return root
}

func (a *app) setup() error {
	c, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(c.Log)
	if err != nil {
		return err
	}

	a.ctx, a.stop = signal.NotifyContext(context.Background(), os.Interrupt)
	a.config = c
	a.logger = logger
	a.pool = geostream.NewPool(
		geostream.WithLogger(logger),
		geostream.WithErrorQueue(geostream.ErrorQueueFunc(func(err error) {
			logger.Error("callback failure", zap.Error(err))
		})),
	)

	return nil
}

func (a *app) teardown() {
	if a.stop != nil {
		a.stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// timeout returns the request timeout policy of the configuration.
func (a *app) timeout() geostream.TimeoutPolicy {
	if a.config.Pool.TimeoutMode == "delayed" {
		return geostream.Delayed(a.config.Pool.Timeout)
	}

	return geostream.Immediate(a.config.Pool.Timeout)
}

// context bounds a lookup command by the pool timeout, with a grace period for the timeout delivery.
func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if a.config.Pool.Timeout <= 0 {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, a.config.Pool.Timeout+time.Second)
}

func (a *app) ipService() *ipapi.Service {
	c := a.config.Services.IPAPI

	return ipapi.New(c.Endpoint, c.APIKey, transport.New(
		transport.WithTimeout(c.Timeout),
		transport.WithRequestsPerMinute(c.RequestsPerMinute),
		transport.WithRetries(c.MaxRetries, 500*time.Millisecond),
		transport.WithLogger(a.logger.Named("ipapi")),
	))
}

func (a *app) nominatimService() *nominatim.Service {
	c := a.config.Services.Nominatim

	return nominatim.New(c.Endpoint, c.Language, c.Limit, transport.New(
		transport.WithTimeout(c.Timeout),
		transport.WithRequestsPerMinute(60),
		transport.WithRetries(c.MaxRetries, 500*time.Millisecond),
		transport.WithUserAgent(c.UserAgent),
		transport.WithLogger(a.logger.Named("nominatim")),
	))
}
