package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestClassifyWeather(t *testing.T) {
	tests := []struct {
		name     string
		obs      WeatherObservation
		expected WeatherLabel
	}{
		{"fog", WeatherObservation{RelativeHumidity: f(95), CloudCoverLow: f(85), WindSpeed: f(1)}, WeatherFog},
		{"fog boundary is strict", WeatherObservation{RelativeHumidity: f(90), CloudCoverLow: f(80), WindSpeed: f(2)}, WeatherCloudy},
		{"stormy", WeatherObservation{WindSpeed: f(15), Precipitation: f(3)}, WeatherStormy},
		{"sandstorm", WeatherObservation{WindSpeed: f(11), Precipitation: f(0), RelativeHumidity: f(20)}, WeatherSandstorm},
		{"windy lower bound", WeatherObservation{WindSpeed: f(6), Precipitation: f(0.5)}, WeatherWindy},
		{"windy upper bound", WeatherObservation{WindSpeed: f(12), Precipitation: f(0.5)}, WeatherWindy},
		{"cloudy", WeatherObservation{CloudCoverTotal: f(80), Precipitation: f(0)}, WeatherCloudy},
		{"sunny", WeatherObservation{CloudCoverTotal: f(10), IsDay: f(1)}, WeatherSunny},
		{"clear night falls through", WeatherObservation{CloudCoverTotal: f(10), IsDay: f(0)}, WeatherCloudy},
		{"no measurements", WeatherObservation{}, WeatherCloudy},
		{"zero humidity is a value", WeatherObservation{WindSpeed: f(11), Precipitation: f(0), RelativeHumidity: f(0)}, WeatherSandstorm},
		{"wind without precipitation skips wind rules", WeatherObservation{WindSpeed: f(20)}, WeatherCloudy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyWeather(tt.obs))
		})
	}
}

func TestClassifyWeather_RuleOrder(t *testing.T) {
	fogAndSunny := WeatherObservation{RelativeHumidity: f(99), CloudCoverLow: f(90), WindSpeed: f(0), CloudCoverTotal: f(20), IsDay: f(1)}
	assert.Equal(t, WeatherFog, ClassifyWeather(fogAndSunny))

	stormyAndCloudy := WeatherObservation{WindSpeed: f(13), Precipitation: f(2.5), CloudCoverTotal: f(95)}
	assert.Equal(t, WeatherStormy, ClassifyWeather(stormyAndCloudy))

	sandstormAndSunny := WeatherObservation{WindSpeed: f(11), Precipitation: f(0), RelativeHumidity: f(15), CloudCoverTotal: f(5), IsDay: f(1)}
	assert.Equal(t, WeatherSandstorm, ClassifyWeather(sandstormAndSunny))

	windyAndCloudy := WeatherObservation{WindSpeed: f(8), Precipitation: f(0), CloudCoverTotal: f(90)}
	assert.Equal(t, WeatherWindy, ClassifyWeather(windyAndCloudy))
}

func TestClassifyWeather_TotalOverFieldPresence(t *testing.T) {
	values := []*float64{nil, f(0), f(1), f(50), f(95)}
	for _, rh := range values {
		for _, low := range values {
			for _, total := range values {
				for _, ws := range values {
					for _, p := range values {
						for _, day := range []*float64{nil, f(0), f(1)} {
							label := ClassifyWeather(WeatherObservation{
								RelativeHumidity: rh, CloudCoverLow: low, CloudCoverTotal: total,
								WindSpeed: ws, Precipitation: p, IsDay: day,
							})
							assert.Contains(t, WeatherLabels, label)
						}
					}
				}
			}
		}
	}
}
