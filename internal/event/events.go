package event

import "time"

type ZoneChangedEvent struct {
	BaseEvent
	From string
	To   string
}

func ZoneChanged(be BaseEvent, from, to string) ZoneChangedEvent {
	return ZoneChangedEvent{BaseEvent: be, From: from, To: to}
}

// SellCompletedEvent is published once per finished sell cycle, including
// cycles whose drain loop was cut short.
type SellCompletedEvent struct {
	BaseEvent
	CycleID     string
	Item        string
	ItemsSold   int
	Earned      float64
	EarnedKnown bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

func SellCompleted(be BaseEvent, cycleID, item string, itemsSold int, earned float64, earnedKnown bool, startedAt, finishedAt time.Time) SellCompletedEvent {
	return SellCompletedEvent{
		BaseEvent:   be,
		CycleID:     cycleID,
		Item:        item,
		ItemsSold:   itemsSold,
		Earned:      earned,
		EarnedKnown: earnedKnown,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
}

type PayoutSentEvent struct {
	BaseEvent
	Recipient string
	Amount    float64
}

func PayoutSent(be BaseEvent, recipient string, amount float64) PayoutSentEvent {
	return PayoutSentEvent{BaseEvent: be, Recipient: recipient, Amount: amount}
}

type ReconnectingEvent struct {
	BaseEvent
	Attempt int
	Delay   time.Duration
	Reason  string
}

func Reconnecting(be BaseEvent, attempt int, delay time.Duration, reason string) ReconnectingEvent {
	return ReconnectingEvent{BaseEvent: be, Attempt: attempt, Delay: delay, Reason: reason}
}

type AgentFatalEvent struct {
	BaseEvent
	Attempts int
}

func AgentFatal(be BaseEvent, attempts int) AgentFatalEvent {
	return AgentFatalEvent{BaseEvent: be, Attempts: attempts}
}

type AssistantToggledEvent struct {
	BaseEvent
	Enabled bool
	Reason  string
}

func AssistantToggled(be BaseEvent, enabled bool, reason string) AssistantToggledEvent {
	return AssistantToggledEvent{BaseEvent: be, Enabled: enabled, Reason: reason}
}
