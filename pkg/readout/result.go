package readout

// Result is the outcome of one extraction over a photo.
type Result struct {
	Display    Display
	Metrics    Metrics
	RawText    string
	Numbers    []float64
	Confidence float64
}

// Data returns the layout fields of the result's display as a name -> value map.
func (r *Result) Data() map[string]*float64 {
	return r.Metrics.Values(r.Display.Layout())
}

// FromText parses text read from display d into a Result.
func FromText(d Display, text string) *Result {
	numbers := ParseNumbers(text)
	return &Result{
		Display:    d,
		Metrics:    MapFields(d, numbers),
		RawText:    text,
		Numbers:    numbers,
		Confidence: Score(d, len(numbers)),
	}
}
