package domain

// Observer receives data-quality diagnostics from the ingest and alignment
// stages. Implementations must not fail; the stages ignore their outcome.
type Observer interface {
	// RowsIn and RowsOut report table sizes entering and leaving a stage.
	RowsIn(stage string, n int)
	RowsOut(stage string, n int)

	// RowsDropped reports rows removed because a time column did not parse.
	RowsDropped(stage string, w ParseWarning)

	// NullValues reports how many values of column are missing after a stage.
	NullValues(stage, column string, n int)
}

// NopObserver discards all diagnostics.
type NopObserver struct{}

func (NopObserver) RowsIn(string, int)               {}
func (NopObserver) RowsOut(string, int)              {}
func (NopObserver) RowsDropped(string, ParseWarning) {}
func (NopObserver) NullValues(string, string, int)   {}
