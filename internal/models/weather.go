package models

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherReading holds current conditions for one location. Produced per request, never persisted.
type WeatherReading struct {
	LocationName string
	Coord        Coordinates
	TemperatureC float64
	HumidityPct  int
	Condition    string // provider's primary label, e.g. "Rain", "Clouds"
	WindSpeedMps float64
	WindGustMps  float64
}

// WeatherEntry is one element of the provider's per-point weather list.
type WeatherEntry struct {
	Main        string
	Description string
	Icon        string
}

// RawForecastPoint is a forecast point as received from the provider, before normalization.
type RawForecastPoint struct {
	Epoch             int64
	TempC             float64
	Humidity          int
	PrecipProbability *float64 // 0..1; nil when the provider omits it
	CloudCoverPct     int
	Weather           []WeatherEntry
}

// RawForecast is the provider forecast feed plus the city's UTC offset in seconds.
type RawForecast struct {
	Points          []RawForecastPoint
	TimezoneSeconds int
}

type ForecastPoint struct {
	Epoch       int64  `json:"dt"`
	LocalTime   string `json:"time"`
	LocalDate   string `json:"date"`
	TempC       int    `json:"temp"`
	Humidity    int    `json:"humidity"`
	RainPct     int    `json:"rain"`
	IconCode    string `json:"iconCode"`
	Condition   string `json:"condition"`
	Description string `json:"desc"`
}

type NearbySite struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TempC     int     `json:"temp"`
	IconCode  string  `json:"icon"`
	Condition string  `json:"condition"`
}

// Advisory is the irrigation recommendation derived from a WeatherReading.
type Advisory struct {
	Message        string   `json:"advice"`
	ShouldIrrigate bool     `json:"irrigate"`
	Suggestions    []string `json:"suggestions"`
}

// IrrigationResult is the combined payload returned by POST /api/check-irrigation.
type IrrigationResult struct {
	City        string          `json:"city"`
	Coord       Coordinates     `json:"coord"`
	Temperature float64         `json:"temperature"`
	Condition   string          `json:"condition"`
	Humidity    int             `json:"humidity"`
	WindSpeed   float64         `json:"windSpeed"`
	WindGust    float64         `json:"windGust"`
	Advice      string          `json:"advice"`
	Suggestions []string        `json:"suggestions"`
	Irrigate    bool            `json:"irrigate"`
	Forecast    []ForecastPoint `json:"forecast"`
	Nearby      []NearbySite    `json:"nearby"`
}
