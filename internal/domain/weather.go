package domain

// WeatherLabel is the synthesized weather condition for a delivery.
type WeatherLabel string

const (
	WeatherFog       WeatherLabel = "Fog"
	WeatherStormy    WeatherLabel = "Stormy"
	WeatherSandstorm WeatherLabel = "Sandstorm"
	WeatherWindy     WeatherLabel = "Windy"
	WeatherCloudy    WeatherLabel = "Cloudy"
	WeatherSunny     WeatherLabel = "Sunny"
)

// WeatherLabels lists every label ClassifyWeather can return.
var WeatherLabels = []WeatherLabel{WeatherFog, WeatherStormy, WeatherSandstorm, WeatherWindy, WeatherCloudy, WeatherSunny}

// WeatherObservation carries the measurements used for classification.
// A nil field means the measurement is missing.
type WeatherObservation struct {
	RelativeHumidity *float64 // %
	CloudCoverLow    *float64 // %
	CloudCoverTotal  *float64 // %
	WindSpeed        *float64 // km/h
	Precipitation    *float64 // mm
	IsDay            *float64 // 1 = daytime
}

type weatherRule struct {
	label WeatherLabel
	match func(o WeatherObservation) bool
}

// weatherRules are evaluated in order and the first match wins. Thresholds
// overlap, so the order is part of the behavior: a dry windy observation
// under heavy cloud also satisfies Cloudy and must resolve to Windy.
var weatherRules = []weatherRule{
	{WeatherFog, func(o WeatherObservation) bool {
		return above(o.RelativeHumidity, 90) && above(o.CloudCoverLow, 80) && below(o.WindSpeed, 2)
	}},
	{WeatherStormy, func(o WeatherObservation) bool {
		return above(o.WindSpeed, 12) && above(o.Precipitation, 2)
	}},
	{WeatherSandstorm, func(o WeatherObservation) bool {
		return above(o.WindSpeed, 10) && below(o.Precipitation, 0.1) && below(o.RelativeHumidity, 40)
	}},
	{WeatherWindy, func(o WeatherObservation) bool {
		return within(o.WindSpeed, 6, 12) && below(o.Precipitation, 1)
	}},
	{WeatherCloudy, func(o WeatherObservation) bool {
		return above(o.CloudCoverTotal, 70) && below(o.Precipitation, 1)
	}},
	{WeatherSunny, func(o WeatherObservation) bool {
		return below(o.CloudCoverTotal, 30) && equals(o.IsDay, 1)
	}},
}

// ClassifyWeather returns the label of the first matching rule, or Cloudy
// when none applies. A rule whose operands are missing does not apply.
func ClassifyWeather(o WeatherObservation) WeatherLabel {
	for _, r := range weatherRules {
		if r.match(o) {
			return r.label
		}
	}
	return WeatherCloudy
}

func above(v *float64, limit float64) bool { return v != nil && *v > limit }

func below(v *float64, limit float64) bool { return v != nil && *v < limit }

func within(v *float64, lo, hi float64) bool { return v != nil && *v >= lo && *v <= hi }

func equals(v *float64, want float64) bool { return v != nil && *v == want }
