package models

import "time"

type NotificationEvent struct {
	ID          string          `json:"id"`
	Identity    ProcessIdentity `json:"identity"`
	Name        string          `json:"name"`
	CommandLine string          `json:"command_line,omitempty"`
	CPUPercent  float64         `json:"cpu_percent"`
	Threshold   float64         `json:"threshold"`
	StartedAt   time.Time       `json:"started_at"`
	Timestamp   time.Time       `json:"timestamp"`
}

func NewNotificationEvent(id string, sample ProcessSample, threshold float64, now time.Time) NotificationEvent {
	return NotificationEvent{
		ID:         id,
		Identity:   sample.Identity,
		Name:       sample.Name,
		CPUPercent: sample.CPUPercent,
		Threshold:  threshold,
		StartedAt:  sample.StartedAt,
		Timestamp:  now,
	}
}
