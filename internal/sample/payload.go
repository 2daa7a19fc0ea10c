package sample

import "encoding/json"

// Payload is the upload document for one batch. The same shape is written,
// one per line, to the overflow store.
type Payload struct {
	SiteID      string              `json:"site_id"`
	DeviceID    string              `json:"device_id"`
	BatchID     string              `json:"batch_id"`
	Timestamp   string              `json:"timestamp"`
	TimeSynced  bool                `json:"time_synced"`
	Readings    []ReadingPayload    `json:"readings"`
	Level       *LevelPayload       `json:"level_sensor,omitempty"`
	Environment *EnvironmentPayload `json:"environment_sensor,omitempty"`
}

// ReadingPayload is one probe reading. Numeric fields are null exactly
// when Status is "error".
type ReadingPayload struct {
	SensorName string   `json:"sensor_name"`
	Bus        string   `json:"bus"`
	Pin        int      `json:"pin"`
	ROM        string   `json:"rom"`
	RawTempC   *float64 `json:"raw_temp_c"`
	TempC      *float64 `json:"temp_c"`
	Status     Status   `json:"status"`
}

// LevelPayload is the level switch block.
type LevelPayload struct {
	SensorName string `json:"sensor_name"`
	Pin        int    `json:"pin"`
	State      string `json:"state"`
}

// EnvironmentPayload is the environmental sensor block.
type EnvironmentPayload struct {
	SensorName        string  `json:"sensor_name"`
	Type              string  `json:"type"`
	TempC             float64 `json:"temp_c"`
	Humidity          float64 `json:"humidity"`
	PressureHPa       float64 `json:"pressure_hpa"`
	GasResistanceOhms float64 `json:"gas_resistance_ohms"`
}

// Origin identifies the site and device a batch was produced by.
type Origin struct {
	SiteID   string
	DeviceID string
}

// NewPayload builds the upload document for a batch.
func NewPayload(origin Origin, b *Batch) Payload {
	p := Payload{
		SiteID:     origin.SiteID,
		DeviceID:   origin.DeviceID,
		BatchID:    b.ID.String(),
		Timestamp:  b.Timestamp.String(),
		TimeSynced: b.Timestamp.Synced,
		Readings:   make([]ReadingPayload, 0, len(b.Readings)),
	}

	for _, r := range b.Readings {
		rp := ReadingPayload{
			SensorName: r.Name,
			Bus:        string(r.Bus),
			Pin:        r.Pin,
			ROM:        r.Address.String(),
			Status:     r.Status(),
		}
		if r.OK {
			raw, cal := r.Raw, r.Calibrated
			rp.RawTempC = &raw
			rp.TempC = &cal
		}
		p.Readings = append(p.Readings, rp)
	}

	if b.Level != nil {
		p.Level = &LevelPayload{
			SensorName: b.Level.Name,
			Pin:        b.Level.Pin,
			State:      b.Level.State(),
		}
	}

	if b.Env != nil {
		p.Environment = &EnvironmentPayload{
			SensorName:        b.Env.Name,
			Type:              b.Env.Type,
			TempC:             b.Env.TempC,
			Humidity:          b.Env.Humidity,
			PressureHPa:       b.Env.PressureHPa,
			GasResistanceOhms: b.Env.GasOhms,
		}
	}

	return p
}

// FormatPayload serializes the upload document for a batch.
func FormatPayload(origin Origin, b *Batch) ([]byte, error) {
	return json.Marshal(NewPayload(origin, b))
}
