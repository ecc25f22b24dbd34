package status

import (
	"time"

	"github.com/goccy/go-json"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Relay         string        `json:"relay"`
	RemainingMs   uint32        `json:"relay_on_timer"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"relay_counts"`
	Firmware      *FirmwareJSON `json:"firmware,omitempty"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT session state.
type MQTTStatus struct {
	Connected       bool   `json:"connected"`
	Session         string `json:"session"`
	Broker          string `json:"broker"`
	LastError       string `json:"last_error,omitempty"`
	ConnectFailures int    `json:"connect_failures"`
	Publishes       int    `json:"publishes"`
	LastPublish     string `json:"last_publish,omitempty"`
}

// CountsJSON is the JSON representation of relay transition counts.
type CountsJSON struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

// FirmwareJSON is the JSON representation of the staged firmware image.
type FirmwareJSON struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
	Subject  string `json:"subject"`
	StagedAt string `json:"staged_at"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ThingName   string `json:"thing_name"`
	Broker      string `json:"broker"`
	Topic       string `json:"topic"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	RetryMs     int64  `json:"retry_ms"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Relay)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		Relay:         state,
		RemainingMs:   snap.RemainingMs,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected:       snap.MQTTConnected,
			Session:         snap.Session,
			Broker:          snap.Config.Broker,
			LastError:       snap.LastError,
			ConnectFailures: snap.ConnectFailures,
			Publishes:       snap.Publishes,
		},
		Counts: CountsJSON{On: snap.Counts.On, Off: snap.Counts.Off},
		Config: ConfigJSON{
			ThingName:   snap.Config.ThingName,
			Broker:      snap.Config.Broker,
			Topic:       snap.Config.Topic,
			HeartbeatMs: snap.Config.HeartbeatMs,
			RetryMs:     snap.Config.RetryMs,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if !snap.LastPublish.IsZero() {
		inner.MQTT.LastPublish = snap.LastPublish.UTC().Format(time.RFC3339)
	}
	if fw := snap.Firmware; fw != nil {
		inner.Firmware = &FirmwareJSON{
			Path:     fw.Path,
			Size:     fw.Size,
			SHA256:   fw.SHA256,
			Subject:  fw.Subject,
			StagedAt: fw.StagedAt.UTC().Format(time.RFC3339),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
