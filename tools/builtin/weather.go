package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/xlog"
)

type forecast struct {
	temperature float64
	condition   string
}

var forecasts = map[string]forecast{
	"New York": {temperature: 22, condition: "Sunny"},
	"London":   {temperature: 18, condition: "Cloudy"},
	"Tokyo":    {temperature: 25, condition: "Partly cloudy"},
}

// WeatherInput is the input of the get_weather tool.
type WeatherInput struct {
	Location string `json:"location" jsonschema:"description=The city name like New York or London" validate:"required"`
	Unit     string `json:"unit,omitempty" jsonschema:"description=The temperature unit,enum=celsius,enum=fahrenheit,default=celsius"`
}

// Weather is the simulated current weather.
type Weather struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Unit        string  `json:"unit"`
	Condition   string  `json:"condition"`
}

// GetWeather returns a simulated forecast. Unknown locations report 20C.
func GetWeather(_ context.Context, in *WeatherInput, _ tools.Channel) (*Weather, error) {
	f, ok := forecasts[in.Location]
	if !ok {
		f = forecast{temperature: 20, condition: "Unknown"}
	}
	unit := in.Unit
	if unit == "" {
		unit = "celsius"
	}
	if unit == "fahrenheit" {
		f.temperature = f.temperature*9/5 + 32
	}
	return &Weather{
		Location:    in.Location,
		Temperature: f.temperature,
		Unit:        unit,
		Condition:   f.condition,
	}, nil
}

var reports = map[string]string{
	"london":        "Cloudy, 18C, Humidity 82%",
	"paris":         "Sunny, 25C, UV Index High",
	"san francisco": "Foggy, 14C, Wind 15km/h",
}

// WeatherReportInput is the input of the get_weather_report tool.
type WeatherReportInput struct {
	City string `json:"city" jsonschema:"description=The name of the city to fetch weather for" validate:"required"`
}

// WeatherReport is either a report or a structured error the model can act on.
type WeatherReport struct {
	Status       string `json:"status"`
	Report       string `json:"report,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// GetWeatherReport returns the report for a major city.
func GetWeatherReport(ctx context.Context, in *WeatherReportInput, _ tools.Channel) (*WeatherReport, error) {
	logger.ContextKV(ctx, xlog.DEBUG, "city", in.City)

	if report, ok := reports[strings.ToLower(strings.TrimSpace(in.City))]; ok {
		return &WeatherReport{Status: "success", Report: report}, nil
	}
	return &WeatherReport{
		Status:       "error",
		ErrorMessage: fmt.Sprintf("Weather data not available for '%s'. Try a major capital.", in.City),
	}, nil
}

// SentimentInput is the input of the analyze_sentiment tool.
type SentimentInput struct {
	Text string `json:"text" jsonschema:"description=The user's input text"`
}

// Sentiment is a label with a confidence score.
type Sentiment struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

var (
	positiveWords = []string{"good", "great", "sunny", "nice"}
	negativeWords = []string{"bad", "rain", "cold", "sad"}
)

// AnalyzeSentiment scores text by keywords.
func AnalyzeSentiment(_ context.Context, in *SentimentInput, _ tools.Channel) (*Sentiment, error) {
	text := strings.ToLower(in.Text)
	switch {
	case containsAny(text, positiveWords):
		return &Sentiment{Sentiment: "positive", Confidence: 0.9}, nil
	case containsAny(text, negativeWords):
		return &Sentiment{Sentiment: "negative", Confidence: 0.8}, nil
	}
	return &Sentiment{Sentiment: "neutral", Confidence: 0.5}, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
