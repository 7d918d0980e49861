package core

// DebugWriter is a function type for writing log lines
type DebugWriter func(string)

// Level is a log severity
type Level uint8

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// EventRecord captures a channel or bus event for post-mortem analysis
type EventRecord struct {
	EventType uint8  // Event type code
	Channel   uint8  // Channel or register involved
	Time      uint64 // System time in microseconds
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtAssignSlice   = 1  // pin bound to a slice channel
	EvtAssignLane    = 2  // pin bound to a PIO lane
	EvtAssignFailed  = 3  // no resource for pin
	EvtThrottleArm   = 4  // power-limit deadline armed
	EvtThrottleOn    = 5  // power-limit deadline passed, level limited
	EvtThrottleClear = 6  // level dropped to or below limit
	EvtRegReset      = 7  // register file reset to defaults
	EvtFreq          = 8  // frequency applied
	EvtEnable        = 9  // output enable changed
	EvtHandshake     = 10 // reset handshake confirmed
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the platform log writer (no-op until set)
	debugPrintln DebugWriter = func(s string) {}

	// minLevel drops messages below this severity
	minLevel = LevelInfo

	eventRing     [EventRingSize]EventRecord
	eventRingHead uint8

	// Async log output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific log output function
// This allows platforms to redirect output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetLogLevel sets the minimum severity that is written
func SetLogLevel(l Level) {
	minLevel = l
}

// InitAsyncDebug starts the async log output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains the log channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// Log writes a message at the given level. When the async writer is running
// the message is queued and dropped if the queue is full, so Log never blocks
// the main loop.
func Log(level Level, msg string) {
	if level < minLevel {
		return
	}
	line := "[" + level.String() + "] " + msg
	if debugChan != nil {
		select {
		case debugChan <- line:
		default:
			// Channel full, drop message (non-blocking)
		}
		return
	}
	if debugPrintln != nil {
		debugPrintln(line)
	}
}

// Info, Warn and Error log at a fixed level; callers build messages with itoa.
func Info(msg string)  { Log(LevelInfo, msg) }
func Warn(msg string)  { Log(LevelWarn, msg) }
func Error(msg string) { Log(LevelError, msg) }

// RecordEvent captures an event in the ring buffer
// This is always non-blocking and safe to call from the bus handler.
func RecordEvent(eventType, channel uint8, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = EventRecord{
		EventType: eventType,
		Channel:   channel,
		Time:      NowUS(),
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the recorded events, oldest first
func Events() []EventRecord {
	out := make([]EventRecord, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// DumpEventRing writes the event ring through the log writer directly
// (bypassing the async queue, which may not drain before a restart)
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		var name string
		switch evt.EventType {
		case EvtAssignSlice:
			name = "ASSIGN_SLICE"
		case EvtAssignLane:
			name = "ASSIGN_LANE"
		case EvtAssignFailed:
			name = "ASSIGN_FAIL!"
		case EvtThrottleArm:
			name = "THROTTLE_ARM"
		case EvtThrottleOn:
			name = "THROTTLE_ON"
		case EvtThrottleClear:
			name = "THROTTLE_CLR"
		case EvtRegReset:
			name = "REG_RESET"
		case EvtFreq:
			name = "FREQ"
		case EvtEnable:
			name = "ENABLE"
		case EvtHandshake:
			name = "HANDSHAKE"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[EVENTS] " + name +
			" ch=" + itoa(int(evt.Channel)) +
			" t=" + utoa64(evt.Time) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = EventRecord{}
	}
	eventRingHead = 0
}
