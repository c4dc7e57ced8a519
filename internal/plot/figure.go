// Package plot renders a reading series as an interactive HTML chart.
package plot

import (
	"time"

	"thermochart/internal/reading"
)

type Axis int

const (
	AxisPrimary Axis = iota
	AxisSecondary
)

// Trace names, in the order they are drawn.
const (
	TraceDesired = "Desired"
	TraceActual  = "Actual"
	TraceActive  = "Active"
)

type Point struct {
	Time  time.Time
	Value float64
}

type Trace struct {
	Name   string
	Axis   Axis
	Points []Point
}

type Figure struct {
	Traces []Trace
}

// BuildFigure maps readings to the desired and actual temperature traces on
// the primary axis and the on/off state on the secondary axis. Values are
// plotted as-is, in input order.
func BuildFigure(readings []reading.Reading) Figure {
	desired := make([]Point, 0, len(readings))
	actual := make([]Point, 0, len(readings))
	active := make([]Point, 0, len(readings))
	for _, r := range readings {
		desired = append(desired, Point{Time: r.Time, Value: r.Desired})
		actual = append(actual, Point{Time: r.Time, Value: r.Actual})
		active = append(active, Point{Time: r.Time, Value: r.OnValue()})
	}

	return Figure{Traces: []Trace{
		{Name: TraceDesired, Axis: AxisPrimary, Points: desired},
		{Name: TraceActual, Axis: AxisPrimary, Points: actual},
		{Name: TraceActive, Axis: AxisSecondary, Points: active},
	}}
}
