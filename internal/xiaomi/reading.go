package xiaomi

// Reading holds the values decoded from one advertisement. Fields that were
// not present in the payload are nil.
type Reading struct {
	Model string

	Temperature  *float64
	Humidity     *float64
	BatteryLevel *float64
	Conductivity *float64
	Illuminance  *float64
	Moisture     *float64
	Tablet       *float64

	IsActive  *bool
	HasMotion *bool
	IsLight   *bool
}

// Empty reports whether no value was decoded.
func (r *Reading) Empty() bool {
	return r.Temperature == nil && r.Humidity == nil && r.BatteryLevel == nil &&
		r.Conductivity == nil && r.Illuminance == nil && r.Moisture == nil &&
		r.Tablet == nil && r.IsActive == nil && r.HasMotion == nil && r.IsLight == nil
}

func float(v float64) *float64 { return &v }
func flag(v bool) *bool        { return &v }

// Field is one present value of a Reading. Booleans are reported as 1 or 0.
type Field struct {
	Name  string
	Value float64
}

// Fields lists the present values in canonical order.
func (r *Reading) Fields() []Field {
	var out []Field
	add := func(name string, v *float64) {
		if v != nil {
			out = append(out, Field{Name: name, Value: *v})
		}
	}
	addBool := func(name string, v *bool) {
		if v == nil {
			return
		}
		f := 0.0
		if *v {
			f = 1
		}
		out = append(out, Field{Name: name, Value: f})
	}

	add("temperature", r.Temperature)
	add("humidity", r.Humidity)
	add("battery_level", r.BatteryLevel)
	add("conductivity", r.Conductivity)
	add("illuminance", r.Illuminance)
	add("moisture", r.Moisture)
	add("tablet", r.Tablet)
	addBool("is_active", r.IsActive)
	addBool("has_motion", r.HasMotion)
	addBool("is_light", r.IsLight)
	return out
}
