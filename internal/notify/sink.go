package notify

import "log"

// LogSink writes notifications to the process log. It is the only Sink
// this repository ships a concrete implementation of; a real webhook/chat
// Sink is the notification collaborator's job, not this engine's (see
// Non-goals).
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Println(message)
	return nil
}
