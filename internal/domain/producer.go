package domain

import "fmt"

// WildcardProducer is the producer id of generic mappings that apply when no
// producer specific row exists.
const WildcardProducer = 9999

// Station producers of the climate database.
const (
	ProducerExtSynop         = 20011
	ProducerRoadWeather      = 20013
	ProducerSwedishRoad      = 20014
	ProducerFMIStationFmisid = 20015
	ProducerSounding         = 20016
	ProducerFinnishStations  = 20018
	ProducerIceBuoy          = 20022
)

// MissingValue is the sentinel for numeric lookups that found nothing.
const MissingValue = 32700.0

// StationNetwork identifies a station numbering scheme.
type StationNetwork int

const (
	NetworkWMO StationNetwork = iota + 1
	NetworkICAO
	NetworkLPNN
	NetworkRoadWeather
	NetworkFmiSID
)

func (n StationNetwork) String() string {
	switch n {
	case NetworkWMO:
		return "wmo"
	case NetworkICAO:
		return "icao"
	case NetworkLPNN:
		return "lpnn"
	case NetworkRoadWeather:
		return "roadweather"
	case NetworkFmiSID:
		return "fmisid"
	default:
		return "unknown"
	}
}

// BoundingBox is a latitude/longitude rectangle in degrees.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// ParseStationNetwork maps a network name as printed by String back to the
// network.
func ParseStationNetwork(name string) (StationNetwork, error) {
	for n := NetworkWMO; n <= NetworkFmiSID; n++ {
		if n.String() == name {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, name)
}
