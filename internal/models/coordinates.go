package models

// Coordinates represents a geographical point defined by its latitude and longitude.
type Coordinates struct {
	Latitude  float64 // Latitude of the geographical point.
	Longitude float64 // Longitude of the geographical point.
}

// CacheEntry is one durable mapping from a canonical address to its coordinates.
type CacheEntry struct {
	Address     string
	Coordinates Coordinates
}
