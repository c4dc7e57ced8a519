package reading

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownSchema = errors.New("no known on/off flag path")
	ErrMissingField  = errors.New("missing field")
)

// Schema identifies where an export file keeps its on/off flag. The export
// format moved the flag from the thermostat section to the protocol section.
type Schema int

const (
	SchemaUnknown Schema = iota
	// SchemaThermostat keeps the flag at Pt32Config.IsBtwSwitchedOn.
	SchemaThermostat
	// SchemaProtocol keeps the flag at ProtocolConfig.IsBtwSwitchedOn.
	SchemaProtocol
)

func (s Schema) String() string {
	switch s {
	case SchemaThermostat:
		return "thermostat"
	case SchemaProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Sample is the content of one export file.
type Sample struct {
	Desired float64
	Actual  float64
	On      bool
	Schema  Schema
}

type payload struct {
	Thermostat *thermostatSection `json:"Pt32Config"`
	Protocol   *protocolSection   `json:"ProtocolConfig"`
}

type thermostatSection struct {
	DesiredTemp     *float64 `json:"DesiredTemp"`
	CurrentTemp     *float64 `json:"CurrentTemp"`
	IsBtwSwitchedOn *onFlag  `json:"IsBtwSwitchedOn"`
}

type protocolSection struct {
	IsBtwSwitchedOn *onFlag `json:"IsBtwSwitchedOn"`
}

// onFlag accepts a JSON boolean or a number, where zero means off.
type onFlag bool

func (f *onFlag) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = onFlag(v)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("on/off flag %s: want bool or number", b)
	}
	*f = n != 0
	return nil
}

func (p payload) schema() Schema {
	switch {
	case p.Thermostat != nil && p.Thermostat.IsBtwSwitchedOn != nil:
		return SchemaThermostat
	case p.Protocol != nil && p.Protocol.IsBtwSwitchedOn != nil:
		return SchemaProtocol
	default:
		return SchemaUnknown
	}
}

// Decode reads one export file body.
func Decode(r io.Reader) (Sample, error) {
	var p payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Sample{}, fmt.Errorf("decode json: %w", err)
	}
	if p.Thermostat == nil {
		return Sample{}, fmt.Errorf("%w: Pt32Config", ErrMissingField)
	}
	if p.Thermostat.DesiredTemp == nil {
		return Sample{}, fmt.Errorf("%w: Pt32Config.DesiredTemp", ErrMissingField)
	}
	if p.Thermostat.CurrentTemp == nil {
		return Sample{}, fmt.Errorf("%w: Pt32Config.CurrentTemp", ErrMissingField)
	}

	s := Sample{
		Desired: *p.Thermostat.DesiredTemp,
		Actual:  *p.Thermostat.CurrentTemp,
		Schema:  p.schema(),
	}
	switch s.Schema {
	case SchemaThermostat:
		s.On = bool(*p.Thermostat.IsBtwSwitchedOn)
	case SchemaProtocol:
		s.On = bool(*p.Protocol.IsBtwSwitchedOn)
	default:
		return Sample{}, ErrUnknownSchema
	}
	return s, nil
}
