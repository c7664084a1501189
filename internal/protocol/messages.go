package protocol

// HELLO (host -> agent), once per mission.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MissionID       string `json:"mission_id"`
	AdvancedMode    bool   `json:"advanced_mode"`
}

// WELCOME (agent -> host)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	MissionID       string `json:"mission_id"`
	AdvancedMode    bool   `json:"advanced_mode"`
	Phase           string `json:"phase"`
}

// SENSOR (host -> agent), once per tick.
type SensorMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Sensor          SensorData `json:"sensor"`
}

// ACT (agent -> host), exactly one per SENSOR.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	SessionID       string `json:"session_id"`
	Action          string `json:"action"`
	Phase           string `json:"phase"`
}

// ERROR (agent -> host)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(tick uint64, code, msg string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		Tick:            tick,
		Code:            code,
		Message:         msg,
	}
}
