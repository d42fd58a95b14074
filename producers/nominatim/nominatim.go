// Package nominatim geocodes addresses with an OpenStreetMap Nominatim compatible service.
package nominatim

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/ahmedkamals/geostream"
	"github.com/ahmedkamals/geostream/internal/errors"
	"github.com/ahmedkamals/geostream/producers/transport"
	"github.com/tidwall/gjson"
)

type (
	// Service issues geocoding lookups.
	Service struct {
		endpoint string
		language string
		limit    int
		client   *transport.Client
	}

	// query is one in-flight lookup.
	query struct {
		fetch  func(ctx context.Context) ([]geostream.Place, error)
		ctx    context.Context
		cancel context.CancelFunc
	}
)

// New creates a Service returning at most limit matches per lookup.
func New(endpoint string, language string, limit int, client *transport.Client) *Service {
	if limit <= 0 {
		limit = 5
	}

	return &Service{
		endpoint: strings.TrimRight(endpoint, "/"),
		language: language,
		limit:    limit,
		client:   client,
	}
}

// Geocode returns a producer resolving an address into places.
func (s *Service) Geocode(address string) geostream.Producer[[]geostream.Place] {
	return s.query(func(ctx context.Context) ([]geostream.Place, error) {
		return s.search(ctx, "nominatim.Geocode", address, s.limit)
	})
}

// Reverse returns a producer resolving a coordinate into the place there.
func (s *Service) Reverse(coordinate geostream.Coordinate) geostream.Producer[[]geostream.Place] {
	return s.query(func(ctx context.Context) ([]geostream.Place, error) {
		return s.reverse(ctx, coordinate)
	})
}

// Autocomplete returns a producer listing the places matching a partial address.
func (s *Service) Autocomplete(text string) geostream.Producer[[]geostream.Place] {
	return s.query(func(ctx context.Context) ([]geostream.Place, error) {
		return s.search(ctx, "nominatim.Autocomplete", text, s.limit)
	})
}

// GeocodeRequest creates a pool ready forward geocoding request.
func (s *Service) GeocodeRequest(address string, options ...geostream.RequestOption[[]geostream.Place]) *geostream.ServiceRequest[[]geostream.Place] {
	return geostream.NewGeocoderRequest(s.Geocode(address), options...)
}

// ReverseRequest creates a pool ready reverse geocoding request.
func (s *Service) ReverseRequest(coordinate geostream.Coordinate, options ...geostream.RequestOption[[]geostream.Place]) *geostream.ServiceRequest[[]geostream.Place] {
	return geostream.NewGeocoderRequest(s.Reverse(coordinate), options...)
}

// AutocompleteRequest creates a pool ready autocomplete request.
func (s *Service) AutocompleteRequest(text string, options ...geostream.RequestOption[[]geostream.Place]) *geostream.ServiceRequest[[]geostream.Place] {
	return geostream.NewAutocompleteRequest(s.Autocomplete(text), options...)
}

func (s *Service) query(fetch func(ctx context.Context) ([]geostream.Place, error)) *query {
	ctx, cancel := context.WithCancel(context.Background())

	return &query{fetch: fetch, ctx: ctx, cancel: cancel}
}

func (q *query) Execute(completion func(geostream.Result[[]geostream.Place])) {
	go func() {
		places, err := q.fetch(q.ctx)
		if q.ctx.Err() != nil {
			return
		}
		if err != nil {
			completion(geostream.Failure[[]geostream.Place](err))
			return
		}
		completion(geostream.Success(places))
	}()
}

func (q *query) Cancel() {
	q.cancel()
}

func (s *Service) search(ctx context.Context, op string, text string, limit int) ([]geostream.Place, error) {
	if strings.TrimSpace(text) == "" {
		return nil, geostream.NewError(op, geostream.ErrInvalid, errors.Errorf("empty query"))
	}

	values := s.values()
	values.Set("q", text)
	values.Set("limit", strconv.Itoa(limit))

	body, err := s.client.Get(ctx, op, s.endpoint+"/search?"+values.Encode())
	if err != nil {
		return nil, err
	}

	return ParseSearch(body)
}

func (s *Service) reverse(ctx context.Context, coordinate geostream.Coordinate) ([]geostream.Place, error) {
	const op = "nominatim.Reverse"

	if !coordinate.IsValid() {
		return nil, geostream.NewError(op, geostream.ErrInvalid, errors.Errorf("coordinate %s", coordinate))
	}

	values := s.values()
	values.Set("lat", strconv.FormatFloat(coordinate.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(coordinate.Longitude, 'f', -1, 64))

	body, err := s.client.Get(ctx, op, s.endpoint+"/reverse?"+values.Encode())
	if err != nil {
		return nil, err
	}

	return ParseReverse(body)
}

func (s *Service) values() url.Values {
	values := url.Values{}
	values.Set("format", "jsonv2")
	values.Set("addressdetails", "1")
	if s.language != "" {
		values.Set("accept-language", s.language)
	}

	return values
}

// ParseSearch decodes a search response body, an array of places.
func ParseSearch(body []byte) ([]geostream.Place, error) {
	const op = "nominatim.ParseSearch"

	if !gjson.ValidBytes(body) {
		return nil, geostream.NewError(op, geostream.ErrParsing, nil)
	}

	response := gjson.ParseBytes(body)
	if !response.IsArray() {
		return nil, geostream.NewError(op, geostream.ErrParsing, errors.Errorf("expected an array"))
	}

	results := response.Array()
	if len(results) == 0 {
		return nil, geostream.NewError(op, geostream.ErrNotFound, nil)
	}

	places := make([]geostream.Place, 0, len(results))
	for _, result := range results {
		place, err := parsePlace(op, result)
		if err != nil {
			return nil, err
		}
		places = append(places, place)
	}

	return places, nil
}

// ParseReverse decodes a reverse response body, a single place or an error object.
func ParseReverse(body []byte) ([]geostream.Place, error) {
	const op = "nominatim.ParseReverse"

	if !gjson.ValidBytes(body) {
		return nil, geostream.NewError(op, geostream.ErrParsing, nil)
	}

	response := gjson.ParseBytes(body)
	if message := response.Get("error"); message.Exists() {
		return nil, geostream.NewError(op, geostream.ErrNotFound, errors.Errorf("%s", message.String()))
	}

	place, err := parsePlace(op, response)
	if err != nil {
		return nil, err
	}

	return []geostream.Place{place}, nil
}

func parsePlace(op string, result gjson.Result) (geostream.Place, error) {
	lat, lon := result.Get("lat"), result.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return geostream.Place{}, geostream.NewError(op, geostream.ErrParsing, errors.Errorf("missing coordinates"))
	}

	address := result.Get("address")
	city := address.Get("city").String()
	for _, fallback := range []string{"town", "village", "hamlet"} {
		if city != "" {
			break
		}
		city = address.Get(fallback).String()
	}

	return geostream.Place{
		ID:          result.Get("place_id").String(),
		Name:        result.Get("name").String(),
		Address:     result.Get("display_name").String(),
		Coordinate:  geostream.Coordinate{Latitude: lat.Float(), Longitude: lon.Float()},
		City:        city,
		State:       address.Get("state").String(),
		Country:     address.Get("country").String(),
		CountryCode: strings.ToUpper(address.Get("country_code").String()),
		PostalCode:  address.Get("postcode").String(),
		Kind:        result.Get("type").String(),
	}, nil
}
