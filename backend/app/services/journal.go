package services

import (
	"time"

	"job-relay/backend/app/models"
	"job-relay/backend/app/session"
)

// Recorder is where the relay journals what it saw and did. The in-memory
// session state stays authoritative; a failing recorder only loses history.
type Recorder interface {
	DeviceSeen(deviceID string, at time.Time) error
	EventReceived(ev session.Event) error
	CommandSubmitted(deviceID string, cmd session.Command, outcome session.Outcome) error
	CommandStatus(commandID, status, transport string) error
	History(deviceID string, includeSent bool, limit int) ([]models.AgentCommand, error)
	Logs(deviceID string, limit int) ([]models.AgentLog, error)
}

// Journal is the gorm-backed Recorder.
type Journal struct {
	devices  *DeviceService
	logs     *AgentLogService
	commands *CommandLogService
}

func NewJournal(devices *DeviceService, logs *AgentLogService, commands *CommandLogService) *Journal {
	return &Journal{devices: devices, logs: logs, commands: commands}
}

func (j *Journal) DeviceSeen(deviceID string, at time.Time) error {
	return j.devices.Seen(deviceID, at)
}

func (j *Journal) EventReceived(ev session.Event) error { return j.logs.Create(ev) }

func (j *Journal) CommandSubmitted(deviceID string, cmd session.Command, outcome session.Outcome) error {
	status := models.CommandQueued
	if outcome == session.OutcomeDropped {
		status = models.CommandDropped
	}
	return j.commands.Record(deviceID, cmd, status)
}

func (j *Journal) CommandStatus(commandID, status, transport string) error {
	return j.commands.Mark(commandID, status, transport)
}

func (j *Journal) History(deviceID string, includeSent bool, limit int) ([]models.AgentCommand, error) {
	return j.commands.History(deviceID, includeSent, limit)
}

func (j *Journal) Logs(deviceID string, limit int) ([]models.AgentLog, error) {
	return j.logs.Latest(deviceID, limit)
}

// NopRecorder is used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) DeviceSeen(string, time.Time) error                              { return nil }
func (NopRecorder) EventReceived(session.Event) error                               { return nil }
func (NopRecorder) CommandSubmitted(string, session.Command, session.Outcome) error { return nil }
func (NopRecorder) CommandStatus(string, string, string) error                      { return nil }

func (NopRecorder) History(string, bool, int) ([]models.AgentCommand, error) { return nil, nil }
func (NopRecorder) Logs(string, int) ([]models.AgentLog, error)              { return nil, nil }
