package domain

import "time"

// DeliveryRecord is one row of a local delivery log after its acceptance
// time has been parsed. Rows whose acceptance time cannot be parsed never
// become a DeliveryRecord.
type DeliveryRecord struct {
	OrderID         string
	AcceptTime      time.Time
	DeliveryTime    *time.Time // nil when absent or unparseable
	RawDeliveryTime string

	// Values holds the raw cell text aligned with the delivery table header.
	Values []string
}

// WeatherRecord is one row of a weather log with a parsed observation time.
type WeatherRecord struct {
	Time        time.Time
	Observation WeatherObservation

	// Values holds the raw cell text aligned with the weather table header.
	Values []string
}

// EnrichedDelivery is a delivery joined with the latest weather observation
// taken at or before its acceptance time.
type EnrichedDelivery struct {
	Delivery     DeliveryRecord
	Weather      *WeatherRecord // nil when no prior observation exists
	WeatherLabel WeatherLabel
	TrafficLabel TrafficLabel // empty until traffic enrichment has run
}

// ETAMinutes returns delivery − acceptance in minutes, or nil when the
// delivery time is unknown.
func (e EnrichedDelivery) ETAMinutes() *float64 {
	accept := e.Delivery.AcceptTime
	return ComputeETA(&accept, e.Delivery.DeliveryTime)
}

// CanonicalDelivery is the unified record both source families are reshaped
// into. Pointer fields are nil when the source value is missing.
type CanonicalDelivery struct {
	OrderID      string     `json:"order_id"`
	Date         string     `json:"date"`
	PickupTime   *time.Time `json:"pickup_time"`
	DeliveryTime *time.Time `json:"delivery_time"`
	PickupLat    *float64   `json:"pickup_lat"`
	PickupLng    *float64   `json:"pickup_lng"`
	DropLat      *float64   `json:"drop_lat"`
	DropLng      *float64   `json:"drop_lng"`
	Weather      *string    `json:"weather"`
	Traffic      *string    `json:"traffic"`
	ETATarget    *float64   `json:"eta_target"`

	// Source names the schema the record was reshaped from. It is not part
	// of the canonical CSV output.
	Source string `json:"source"`
}

// ComputeETA returns (delivery − pickup) in minutes, or nil if either
// timestamp is missing.
func ComputeETA(pickup, delivery *time.Time) *float64 {
	if pickup == nil || delivery == nil {
		return nil
	}
	m := delivery.Sub(*pickup).Seconds() / 60
	return &m
}
