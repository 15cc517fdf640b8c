package tune

// Command is one inbound line of the tuning protocol. Numeric fields are
// pointers so a partial set_params only touches what the sender included.
type Command struct {
	Cmd string `json:"cmd"`

	// set_params
	Kp            *float64 `json:"kp,omitempty"`
	Ki            *float64 `json:"ki,omitempty"`
	Kd            *float64 `json:"kd,omitempty"`
	LoopPeriod    *int64   `json:"loop_period,omitempty"`
	OutputLimit   *bool    `json:"output_limit,omitempty"`
	OutputMin     *float64 `json:"output_min,omitempty"`
	OutputMax     *float64 `json:"output_max,omitempty"`
	IntegralLimit *bool    `json:"integral_limit,omitempty"`
	IntegralMin   *float64 `json:"integral_min,omitempty"`
	IntegralMax   *float64 `json:"integral_max,omitempty"`

	// set_sp
	Value *float64 `json:"value,omitempty"`

	// step_test
	Amplitude *float64 `json:"amplitude,omitempty"`
}

// DataMsg is the 10 Hz telemetry sample sent to the tuning app.
type DataMsg struct {
	Type   string  `json:"type"` // "data"
	PV     float64 `json:"pv"`
	SP     float64 `json:"sp"`
	Output float64 `json:"output"`
	Error  float64 `json:"error"`
	P      float64 `json:"P"`
	I      float64 `json:"I"`
	D      float64 `json:"D"`
	Time   int64   `json:"time"` // milliseconds
}

// StatusMsg reports the current tuning state.
type StatusMsg struct {
	Type       string  `json:"type"` // "status"
	Running    bool    `json:"running"`
	Kp         float64 `json:"kp"`
	Ki         float64 `json:"ki"`
	Kd         float64 `json:"kd"`
	SP         float64 `json:"sp"`
	LoopPeriod int64   `json:"loop_period"` // milliseconds
	ErrorState bool    `json:"error_state"`
}

// DebugMsg carries a free-form notice.
type DebugMsg struct {
	Type  string `json:"type"` // "debug"
	Debug string `json:"debug"`
}

// ErrorMsg reports a protocol-level failure.
type ErrorMsg struct {
	Error string `json:"error"`
}

// StepTestStartedMsg announces a step test.
type StepTestStartedMsg struct {
	Type      string  `json:"type"` // "step_test_started"
	Amplitude float64 `json:"amplitude"`
}

// StepTestCompleteMsg announces the end of a step test.
type StepTestCompleteMsg struct {
	Type string `json:"type"` // "step_test_complete"
}
