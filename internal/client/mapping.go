package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/forecast"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

// Response shapes and pure mapping functions. Nothing here performs I/O.

// gustFactor estimates gust speed when the provider omits it.
const gustFactor = 1.2

type owWeatherEntry struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owCurrentResponse struct {
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []owWeatherEntry `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
		Gust  float64 `json:"gust"`
	} `json:"wind"`
	Name string `json:"name"`
}

type owForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Weather []owWeatherEntry `json:"weather"`
		Clouds  *struct {
			All int `json:"all"`
		} `json:"clouds"`
		Pop *float64 `json:"pop"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

type owGeoResponse []struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

type owFindResponse struct {
	List []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Coord struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []owWeatherEntry `json:"weather"`
	} `json:"list"`
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// mapCurrent converts a current-conditions payload. A payload without coordinates
// or weather entries is malformed: the advisory needs both.
func mapCurrent(resp owCurrentResponse) (models.WeatherReading, error) {
	if resp.Coord == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: missing coord", ErrMalformedResponse)
	}
	if len(resp.Weather) == 0 {
		return models.WeatherReading{}, fmt.Errorf("%w: missing weather entries", ErrMalformedResponse)
	}
	gust := resp.Wind.Gust
	if gust == 0 {
		gust = resp.Wind.Speed * gustFactor
	}
	return models.WeatherReading{
		LocationName: resp.Name,
		Coord:        models.Coordinates{Lat: resp.Coord.Lat, Lon: resp.Coord.Lon},
		TemperatureC: resp.Main.Temp,
		HumidityPct:  resp.Main.Humidity,
		Condition:    resp.Weather[0].Main,
		WindSpeedMps: resp.Wind.Speed,
		WindGustMps:  gust,
	}, nil
}

func mapForecast(resp owForecastResponse) (models.RawForecast, error) {
	if resp.List == nil {
		return models.RawForecast{}, fmt.Errorf("%w: missing forecast list", ErrMalformedResponse)
	}
	points := make([]models.RawForecastPoint, 0, len(resp.List))
	for _, item := range resp.List {
		p := models.RawForecastPoint{
			Epoch:             item.Dt,
			TempC:             item.Main.Temp,
			Humidity:          item.Main.Humidity,
			PrecipProbability: item.Pop,
			Weather:           mapWeatherEntries(item.Weather),
		}
		if item.Clouds != nil {
			p.CloudCoverPct = item.Clouds.All
		}
		points = append(points, p)
	}
	return models.RawForecast{Points: points, TimezoneSeconds: resp.City.Timezone}, nil
}

func mapWeatherEntries(in []owWeatherEntry) []models.WeatherEntry {
	out := make([]models.WeatherEntry, 0, len(in))
	for _, w := range in {
		out = append(out, models.WeatherEntry{Main: w.Main, Description: w.Description, Icon: w.Icon})
	}
	return out
}

// mapGeoName returns the first reverse-geocode name, or "" when there is none.
func mapGeoName(resp owGeoResponse) string {
	if len(resp) == 0 {
		return ""
	}
	return resp[0].Name
}

func mapNearby(resp owFindResponse) []models.NearbySite {
	sites := make([]models.NearbySite, 0, len(resp.List))
	for _, item := range resp.List {
		site := models.NearbySite{
			ID:    item.ID,
			Name:  item.Name,
			Lat:   item.Coord.Lat,
			Lon:   item.Coord.Lon,
			TempC: forecast.RoundHalfUp(item.Main.Temp),
		}
		if len(item.Weather) > 0 {
			site.IconCode = item.Weather[0].Icon
			site.Condition = item.Weather[0].Main
		}
		sites = append(sites, site)
	}
	return sites
}

const (
	defaultNewsSource = "News Source"
	articleDateLayout = "1/2/2006"
)

// mapArticles keeps articles with a title, image and link, numbering them in order.
func mapArticles(resp newsAPIResponse) []models.Article {
	out := make([]models.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if strings.TrimSpace(a.Title) == "" || a.URLToImage == "" || a.URL == "" {
			continue
		}
		source := a.Source.Name
		if source == "" {
			source = defaultNewsSource
		}
		out = append(out, models.Article{
			ID:     models.IndexID(len(out)),
			Title:  a.Title,
			Source: source,
			Time:   formatPublished(a.PublishedAt),
			Image:  a.URLToImage,
			URL:    a.URL,
		})
	}
	return out
}

func formatPublished(s string) string {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ""
	}
	return ts.UTC().Format(articleDateLayout)
}
