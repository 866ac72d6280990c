// Package domain models last-mile delivery records and the rules used to
// enrich them before they are reconciled into one canonical dataset.
//
// # Data Sources
//
// Local deliveries arrive per city as two CSV files: a delivery log keyed by
// order id with acceptance and completion timestamps, and an hourly weather
// log from an Open-Meteo style export. External-provider deliveries arrive as
// a single CSV with a different shape (separate order date and time, a stated
// duration in minutes, no weather).
//
// # Column Conventions
//
// Column names are normalized once per table: a leading byte order mark is
// stripped, surrounding whitespace is trimmed, and the name is lowercased.
// Weather measurement columns keep their unit suffix after normalization:
//
//	relative_humidity_2m (%)   → RelativeHumidity
//	cloud_cover_low (%)        → CloudCoverLow
//	cloud_cover (%)            → CloudCoverTotal
//	wind_speed_10m (km/h)      → WindSpeed
//	precipitation (mm)         → Precipitation
//	is_day ()                  → IsDay (1 = daytime)
//
// The weather time column name varies between exports and is resolved from
// an ordered candidate list (see WeatherTimeCandidates).
//
// # Timestamps
//
// Timestamps are naive wall-clock values such as "2025-01-01 08:30:00" and are
// interpreted as UTC. Values that match none of the accepted layouts become an
// explicit null; callers decide whether to drop the row.
//
// # Labels
//
// Weather and traffic labels are synthesized from column heuristics, not from
// an external API. Both classifiers are total: they always return a label and
// never fail.
//
// # ETA Target
//
// The ETA target is the realized delivery duration in minutes, always
// recomputed as (delivery time − pickup time) when a record is reconciled.
package domain
