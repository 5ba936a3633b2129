package protocol

import "encoding/json"

// Job types accepted in a JobIntent.
const (
	JobTechnology = "technology"
	JobBuilding   = "building"
	JobDistrict   = "district"
	JobUpgrade    = "upgrade"
	JobShip       = "ship"
	JobTravel     = "travel"
)

// JobIntent is the declarative request to create a job. Only the target
// fields relevant to Type are read.
type JobIntent struct {
	Type       string   `json:"type"`
	Priority   float64  `json:"priority,omitempty"`
	System     string   `json:"system,omitempty"`
	Fleet      string   `json:"fleet,omitempty"`
	Technology string   `json:"technology,omitempty"`
	Building   string   `json:"building,omitempty"`
	District   string   `json:"district,omitempty"`
	Ship       string   `json:"ship,omitempty"`
	Path       []string `json:"path,omitempty"`
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	GameID          string `json:"game_id"`
	EmpireID        string `json:"empire_id"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	GameID          string            `json:"game_id"`
	EmpireID        string            `json:"empire_id"`
	Period          uint64            `json:"period"`
	Catalogs        map[string]string `json:"catalogs,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	GameID          string          `json:"game_id"`
	Period          uint64          `json:"period"`
	Kind            string          `json:"kind"`
	Topic           string          `json:"topic"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// JOB_CREATE (client -> server)
type JobCreateMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Ref             string    `json:"ref"`
	Intent          JobIntent `json:"intent"`
}

// JOB_CANCEL (client -> server)
type JobCancelMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	JobID           string `json:"job_id"`
}

// AGGREGATE (client -> server)
type AggregateMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Ref             string            `json:"ref"`
	Name            string            `json:"name"`
	Params          map[string]string `json:"params,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Data            any    `json:"data,omitempty"`
}

// GameRef describes one hosted game.
type GameRef struct {
	GameID   string `json:"game_id"`
	Name     string `json:"name"`
	Period   uint64 `json:"period"`
	PeriodMs int    `json:"period_ms"`
}
