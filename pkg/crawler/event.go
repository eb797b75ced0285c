package crawler

const (
	QuitSignal EventType = iota
	TipUpdated
)

type EventType int

func (et EventType) String() string {
	switch et {
	case QuitSignal:
		return "QuitSignal"
	case TipUpdated:
		return "TipUpdated"
	default:
		return "Unknown"
	}
}

type QuitEvent struct{}

func (q QuitEvent) Type() EventType {
	return QuitSignal
}

// BlockEvent is emitted whenever the observed chain tip advances.
type BlockEvent struct {
	Height uint64
}

func (b BlockEvent) Type() EventType {
	return TipUpdated
}
