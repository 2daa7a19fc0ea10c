package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	SiteID        string        `json:"site_id"`
	DeviceID      string        `json:"device_id"`
	Paused        bool          `json:"paused"`
	ClockSynced   bool          `json:"clock_synced"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastBatch     string        `json:"last_batch,omitempty"`
	Sensors       []SensorJSON  `json:"sensors"`
	Queue         QueueJSON     `json:"queue"`
	Log           LogJSON       `json:"log"`
	Transport     TransportJSON `json:"transport"`
	Counts        CountsJSON    `json:"counts"`
	Config        ConfigJSON    `json:"config"`
}

// SensorJSON is one probe row.
type SensorJSON struct {
	Name      string   `json:"sensor_name"`
	Bus       string   `json:"bus"`
	Pin       int      `json:"pin"`
	ROM       string   `json:"rom"`
	LastTempC *float64 `json:"last_temp_c"`
}

// QueueJSON reports upload queue state.
type QueueJSON struct {
	Depth          int     `json:"depth"`
	Capacity       int     `json:"capacity"`
	Phase          string  `json:"phase"`
	BackoffSeconds float64 `json:"backoff_seconds"`
}

// LogJSON reports the local log.
type LogJSON struct {
	Enabled         bool   `json:"enabled"`
	File            string `json:"file"`
	SizeBytes       int64  `json:"size_bytes"`
	OverflowRecords int    `json:"overflow_records"`
}

// TransportJSON reports the delivery transport.
type TransportJSON struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Cycles           uint64 `json:"cycles"`
	Batches          uint64 `json:"batches"`
	ReadingsOK       uint64 `json:"readings_ok"`
	ReadingsError    uint64 `json:"readings_error"`
	Evictions        uint64 `json:"evictions"`
	Delivered        uint64 `json:"delivered"`
	DeliveryFailures uint64 `json:"delivery_failures"`
	DeadLettered     uint64 `json:"dead_lettered"`
	DeadLetterLost   uint64 `json:"dead_letter_lost"`
	LogErrors        uint64 `json:"log_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs int64  `json:"interval_ms"`
	Resolution int    `json:"resolution_bits"`
	MaxRetries int    `json:"max_retries"`
	DataDir    string `json:"data_dir"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	sensors := make([]SensorJSON, 0, len(snap.Sensors))
	for _, s := range snap.Sensors {
		sj := SensorJSON{Name: s.Name, Bus: s.Bus, Pin: s.Pin, ROM: s.ROM}
		if s.LastOK {
			v := s.LastValue
			sj.LastTempC = &v
		}
		sensors = append(sensors, sj)
	}

	c := snap.Counters
	return StatusInner{
		SiteID:        snap.Config.SiteID,
		DeviceID:      snap.Config.DeviceID,
		Paused:        snap.Paused,
		ClockSynced:   snap.ClockSynced,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		LastBatch:     snap.LastBatch,
		Sensors:       sensors,
		Queue: QueueJSON{
			Depth:          snap.QueueDepth,
			Capacity:       snap.Config.QueueCapacity,
			Phase:          snap.RetryPhase,
			BackoffSeconds: snap.Backoff.Seconds(),
		},
		Log: LogJSON{
			Enabled:         snap.LogEnabled,
			File:            snap.LogFile,
			SizeBytes:       snap.LogSize,
			OverflowRecords: snap.OverflowRecords,
		},
		Transport: TransportJSON{Name: snap.Config.Transport, Connected: snap.TransportConnected},
		Counts: CountsJSON{
			Cycles:           c.Cycles,
			Batches:          c.Batches,
			ReadingsOK:       c.ReadingsOK,
			ReadingsError:    c.ReadingsError,
			Evictions:        c.Evictions,
			Delivered:        c.Delivered,
			DeliveryFailures: c.DeliveryFailures,
			DeadLettered:     c.DeadLettered,
			DeadLetterLost:   c.DeadLetterLost,
			LogErrors:        c.LogErrors,
		},
		Config: ConfigJSON{
			IntervalMs: snap.Config.IntervalMs,
			Resolution: snap.Config.Resolution,
			MaxRetries: snap.Config.MaxRetries,
			DataDir:    snap.Config.DataDir,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
