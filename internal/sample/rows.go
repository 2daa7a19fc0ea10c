package sample

import "strconv"

// Columns is the log file schema, in order. It is the single source of
// truth for the header row and for Rows.
var Columns = []string{
	"timestamp", "device_id", "sensor_name", "bus", "pin", "rom",
	"raw_temp_c", "cal_temp_c", "status",
	"humidity", "pressure_hpa", "gas_ohms",
}

// Null and NotApplicable fill numeric and identity columns that have no value.
const (
	Null          = "null"
	NotApplicable = "N/A"
)

// Aux sensor bus labels used in the bus column.
const (
	LevelBus = "L"
	EnvBus   = "I2C"
)

// Rows renders the batch as log rows: one per reading, then one for the
// level switch and one for the environmental sensor when present.
// Temperature rows leave the auxiliary columns blank.
func Rows(deviceID string, b *Batch) [][]string {
	ts := b.Timestamp.String()
	rows := make([][]string, 0, len(b.Readings)+2)

	for _, r := range b.Readings {
		raw, cal := Null, Null
		if r.OK {
			raw = formatFloat(r.Raw)
			cal = formatFloat(r.Calibrated)
		}
		rows = append(rows, []string{
			ts, deviceID, r.Name, string(r.Bus), strconv.Itoa(r.Pin), r.Address.String(),
			raw, cal, string(r.Status()),
			"", "", "",
		})
	}

	if b.Level != nil {
		rows = append(rows, []string{
			ts, deviceID, b.Level.Name, LevelBus, strconv.Itoa(b.Level.Pin), NotApplicable,
			NotApplicable, NotApplicable, b.Level.State(),
			"", "", "",
		})
	}

	if b.Env != nil {
		t := formatFloat(b.Env.TempC)
		rows = append(rows, []string{
			ts, deviceID, b.Env.Name, EnvBus, NotApplicable, NotApplicable,
			t, t, string(StatusOK),
			formatFloat(b.Env.Humidity), formatFloat(b.Env.PressureHPa), formatFloat(b.Env.GasOhms),
		})
	}

	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
