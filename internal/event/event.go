package event

import "time"

type Event interface {
	Message() string
	Agent() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	message    string
	agent      string
	occurredAt time.Time
}

func (b BaseEvent) Message() string {
	return b.message
}

func (b BaseEvent) Agent() string {
	return b.agent
}

func (b BaseEvent) OccurredAt() time.Time {
	return b.occurredAt
}

func Text(agent string, message string) BaseEvent {
	return BaseEvent{
		message:    message,
		agent:      agent,
		occurredAt: time.Now(),
	}
}
