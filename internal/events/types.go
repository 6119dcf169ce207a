package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventTradeExecuted Event = "trade.executed"
	EventTradeFailed   Event = "trade.failed"
	EventTradeClosed   Event = "trade.closed"
	EventStopUpdated   Event = "trade.stop_updated"
	EventCommandIssued Event = "bot.command"
)
