// Package ipapi resolves the location of a public IP address with an ip-api.com compatible service.
package ipapi

import (
	"context"
	"net/url"
	"strings"

	"github.com/ahmedkamals/geostream"
	"github.com/ahmedkamals/geostream/internal/errors"
	"github.com/ahmedkamals/geostream/producers/transport"
	"github.com/tidwall/gjson"
)

type (
	// Service issues IP lookups.
	Service struct {
		endpoint string
		apiKey   string
		client   *transport.Client
	}

	// lookup is one in-flight IP lookup.
	lookup struct {
		service *Service
		ip      string
		ctx     context.Context
		cancel  context.CancelFunc
	}
)

const fields = "status,message,query,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp"

// New creates a Service. An empty apiKey uses the free endpoint.
func New(endpoint string, apiKey string, client *transport.Client) *Service {
	return &Service{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   client,
	}
}

// Lookup returns a producer resolving ip, or the caller's public address when ip is empty.
func (s *Service) Lookup(ip string) geostream.Producer[geostream.IPLocation] {
	ctx, cancel := context.WithCancel(context.Background())

	return &lookup{
		service: s,
		ip:      ip,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Request creates a pool ready request for ip.
func (s *Service) Request(ip string, options ...geostream.RequestOption[geostream.IPLocation]) *geostream.ServiceRequest[geostream.IPLocation] {
	return geostream.NewIPLocationRequest(s.Lookup(ip), options...)
}

func (l *lookup) Execute(completion func(geostream.Result[geostream.IPLocation])) {
	go func() {
		location, err := l.service.fetch(l.ctx, l.ip)
		if l.ctx.Err() != nil {
			return
		}
		if err != nil {
			completion(geostream.Failure[geostream.IPLocation](err))
			return
		}
		completion(geostream.Success(location))
	}()
}

func (l *lookup) Cancel() {
	l.cancel()
}

func (s *Service) url(ip string) string {
	query := url.Values{}
	query.Set("fields", fields)
	if s.apiKey != "" {
		query.Set("key", s.apiKey)
	}

	target := s.endpoint
	if ip != "" {
		target += "/" + url.PathEscape(ip)
	}

	return target + "?" + query.Encode()
}

func (s *Service) fetch(ctx context.Context, ip string) (geostream.IPLocation, error) {
	const op = "ipapi.Lookup"

	body, err := s.client.Get(ctx, op, s.url(ip))
	if err != nil {
		return geostream.IPLocation{}, err
	}

	return Parse(body)
}

// Parse decodes an ip-api response body.
func Parse(body []byte) (geostream.IPLocation, error) {
	const op = "ipapi.Parse"

	if !gjson.ValidBytes(body) {
		return geostream.IPLocation{}, geostream.NewError(op, geostream.ErrParsing, nil)
	}

	response := gjson.ParseBytes(body)
	if status := response.Get("status").String(); status != "success" {
		message := response.Get("message").String()
		if message == "" {
			message = "status " + status
		}

		return geostream.IPLocation{}, geostream.NewError(op, geostream.ErrInternal, errors.Errorf("%s", message))
	}

	lat, lon := response.Get("lat"), response.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return geostream.IPLocation{}, geostream.NewError(op, geostream.ErrParsing, errors.Errorf("missing coordinates"))
	}

	return geostream.IPLocation{
		IP:          response.Get("query").String(),
		Coordinate:  geostream.Coordinate{Latitude: lat.Float(), Longitude: lon.Float()},
		City:        response.Get("city").String(),
		Region:      response.Get("regionName").String(),
		RegionCode:  response.Get("region").String(),
		Country:     response.Get("country").String(),
		CountryCode: response.Get("countryCode").String(),
		PostalCode:  response.Get("zip").String(),
		TimeZone:    response.Get("timezone").String(),
		ISP:         response.Get("isp").String(),
	}, nil
}
