package events

// Event enumerates the stable, JSON-serializable topics published on the
// bus (per the external interfaces section of the engine design).
type Event string

const (
	EventFetchFailed       Event = "fetch_failed"
	EventAlert             Event = "alert"
	EventArbitrage         Event = "arbitrage"
	EventExtremeEvent      Event = "extreme_event"
	EventHedgeOpened       Event = "hedge_opened"
	EventHedgeClosed       Event = "hedge_closed"
	EventHedgeFailed       Event = "hedge_failed"
	EventHedgeCloseFailed  Event = "hedge_close_failed"
	EventRiskExceeded      Event = "risk_exceeded"
	EventStateChange       Event = "state_change"
	EventDailyPnl          Event = "daily_pnl"
	EventEmergencyShutdown Event = "emergency_shutdown"
)

// AlertLevel is the severity carried on an Alert payload.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is the payload for EventAlert.
type Alert struct {
	Level   AlertLevel
	Venue   string
	Symbol  string
	Rate    string
	Message string
	TS      int64
}

// Arbitrage is the payload for EventArbitrage.
type Arbitrage struct {
	Symbol     string
	LongVenue  string
	ShortVenue string
	LongRate   string
	ShortRate  string
	Spread     string
	TS         int64
}

// FetchFailed is the payload for EventFetchFailed.
type FetchFailed struct {
	Venue string
	Err   string
	TS    int64
}

// ExtremeEvent is the payload for EventExtremeEvent.
type ExtremeEvent struct {
	Type   string // price_surge, price_crash, liquidity_drop, volatility_spike
	Symbol string
	Value  string // ratio or change, stringified decimal
	TS     int64
	Data   map[string]string
}

// HedgeOpened is the payload for EventHedgeOpened.
type HedgeOpened struct {
	Key        string
	Symbol     string
	LongVenue  string
	ShortVenue string
	Size       string
	EntryLong  string
	EntryShort string
	TS         int64
}

// HedgeClosed is the payload for EventHedgeClosed.
type HedgeClosed struct {
	Key         string
	Symbol      string
	Reason      string
	RealizedPnl string
	TS          int64
}

// HedgeFailed is the payload for EventHedgeFailed.
type HedgeFailed struct {
	Key         string
	Symbol      string
	PartialFill bool
	Reason      string
	TS          int64
}

// HedgeCloseFailed is the payload for EventHedgeCloseFailed.
type HedgeCloseFailed struct {
	Key    string
	Symbol string
	Reason string
	TS     int64
}

// RiskExceeded is the payload for EventRiskExceeded.
type RiskExceeded struct {
	Exposure string
	TS       int64
}

// StateChange is the payload for EventStateChange (published by the
// optional classifier bridge).
type StateChange struct {
	From string
	To   string
	TS   int64
}

// DailyPnl is the payload for EventDailyPnl.
type DailyPnl struct {
	Value string
	TS    int64
}

// EmergencyShutdown is the payload for EventEmergencyShutdown.
type EmergencyShutdown struct {
	TS int64
}
