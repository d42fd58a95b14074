package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ahmedkamals/geostream"
	"github.com/ahmedkamals/geostream/internal/errors"
	"github.com/ahmedkamals/geostream/producers/simulator"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newIPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ip [address...]",
		Short: "Locate public IP addresses, or this host when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{""}
			}

			ctx, cancel := a.context(a.ctx)
			defer cancel()

			service := a.ipService()
			group, ctx := errgroup.WithContext(ctx)

			var mux sync.Mutex
			for _, address := range args {
				address := address
				request := service.Request(address, geostream.WithTimeout[geostream.IPLocation](a.timeout()))
				if err := a.pool.Add(request); err != nil {
					return err
				}

				group.Go(func() error {
					location, err := request.Async(ctx)
					if err != nil {
						return errors.E(errors.Operation("ip"), errors.Errorf("%q: %w", address, err))
					}

					mux.Lock()
					fmt.Printf("%s %s\n", colorized.Green(location.IP), colorized.White(location.String()))
					mux.Unlock()

					return nil
				})
			}

			return group.Wait()
		},
	}
}

func newGeocodeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "geocode <address>",
		Short: "Resolve an address into coordinates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := a.nominatimService().GeocodeRequest(strings.Join(args, " "), geostream.WithTimeout[[]geostream.Place](a.timeout()))

			return a.printPlaces(a.ctx, request)
		},
	}
}

func newReverseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse <latitude> <longitude>",
		Short: "Resolve coordinates into an address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinate, err := parseCoordinate(args[0], args[1])
			if err != nil {
				return err
			}

			request := a.nominatimService().ReverseRequest(coordinate, geostream.WithTimeout[[]geostream.Place](a.timeout()))

			return a.printPlaces(a.ctx, request)
		},
	}
}

func newAutocompleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autocomplete <text>",
		Short: "List the addresses matching a partial text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := a.nominatimService().AutocompleteRequest(strings.Join(args, " "), geostream.WithTimeout[[]geostream.Place](a.timeout()))

			return a.printPlaces(a.ctx, request)
		},
	}
}

func newTrackCommand(a *app) *cobra.Command {
	var (
		accuracy    float64
		minDistance float64
		geofence    string
	)

	command := &cobra.Command{
		Use:   "track <file>",
		Short: "Replay a YAML GPS track through a continuous location request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			track, err := simulator.LoadTrack(args[0])
			if err != nil {
				return err
			}

			a.pool.SetAuthorization(geostream.AuthorizationAlways)

			request := geostream.NewLocationRequest(geostream.LocationOptions{
				Subscription: geostream.SubscriptionContinuous,
				Accuracy:     geostream.Accuracy(accuracy),
				MinDistance:  minDistance,
			}, geostream.WithName[geostream.Location](track.Name))
			request.Then(nil, func(result geostream.Result[geostream.Location]) {
				if result.Err != nil {
					fmt.Println(colorized.Red(result.Err.Error()))
					return
				}
				fmt.Printf("%s %s\n", colorized.Cyan("location"), result.Value)
			})
			if err := a.pool.Add(request); err != nil {
				return err
			}

			if geofence != "" {
				region, err := parseGeofence(geofence)
				if err != nil {
					return err
				}
				fence := geostream.NewGeofenceRequest(region)
				fence.Then(nil, func(result geostream.Result[geostream.GeofenceEvent]) {
					if result.Err != nil {
						fmt.Println(colorized.Red(result.Err.Error()))
						return
					}
					fmt.Printf("%s %s\n", colorized.Magenta("geofence"), colorized.Yellow(result.Value.String()))
				})
				if err := a.pool.Add(fence); err != nil {
					return err
				}
			}

			group, ctx := errgroup.WithContext(a.ctx)
			group.Go(func() error {
				emitted, err := simulator.New(a.pool, track, a.logger).Run(ctx)
				fmt.Printf("%s %d points, %d delivered\n", colorized.White("replayed"), emitted, request.CountReceivedData())

				return err
			})

			return group.Wait()
		},
	}

	command.Flags().Float64Var(&accuracy, "accuracy", 0, "minimum horizontal accuracy in meters, 0 accepts any")
	command.Flags().Float64Var(&minDistance, "min-distance", 0, "minimum distance in meters between two locations")
	command.Flags().StringVar(&geofence, "geofence", "", "monitor a region given as latitude,longitude,radius")

	return command
}

func (a *app) printPlaces(parent context.Context, request *geostream.ServiceRequest[[]geostream.Place]) error {
	ctx, cancel := a.context(parent)
	defer cancel()

	if err := a.pool.Add(request); err != nil {
		return err
	}

	places, err := request.Async(ctx)
	if err != nil {
		return err
	}

	for index, place := range places {
		fmt.Printf("%s %s\n", colorized.Green(strconv.Itoa(index+1)+"."), place)
	}

	return nil
}

func parseCoordinate(latitude, longitude string) (geostream.Coordinate, error) {
	const op errors.Operation = "parseCoordinate"

	lat, err := strconv.ParseFloat(latitude, 64)
	if err != nil {
		return geostream.Coordinate{}, errors.E(op, errors.Invalid, err)
	}

	lon, err := strconv.ParseFloat(longitude, 64)
	if err != nil {
		return geostream.Coordinate{}, errors.E(op, errors.Invalid, err)
	}

	coordinate := geostream.Coordinate{Latitude: lat, Longitude: lon}
	if !coordinate.IsValid() {
		return geostream.Coordinate{}, errors.E(op, errors.Invalid, errors.Errorf("out of range %s", coordinate))
	}

	return coordinate, nil
}

func parseGeofence(value string) (geostream.GeofenceRegion, error) {
	const op errors.Operation = "parseGeofence"

	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return geostream.GeofenceRegion{}, errors.E(op, errors.Invalid, errors.Errorf("expected latitude,longitude,radius got %q", value))
	}

	center, err := parseCoordinate(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	if err != nil {
		return geostream.GeofenceRegion{}, err
	}

	radius, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil || radius <= 0 {
		return geostream.GeofenceRegion{}, errors.E(op, errors.Invalid, errors.Errorf("radius %q", parts[2]))
	}

	return geostream.GeofenceRegion{Center: center, Radius: radius}, nil
}
