package stream

// State 是一次流式调用的生命周期阶段。
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal 报告该状态之后不会再有迁移。
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
