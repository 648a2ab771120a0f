package ipc

import (
	"time"

	"proctor/internal/sources"
	"proctor/internal/violationlog"
)

// StartRequest starts monitoring.
type StartRequest struct{}

// StartResponse indicates whether monitoring was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops monitoring.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ActiveViolation is the prompt the presentation layer should show.
type ActiveViolation struct {
	Kind        string    `json:"kind"`
	Since       time.Time `json:"since"`
	Seq         int64     `json:"seq"`
	PromptOpen  bool      `json:"prompt_open"`
	Message     string    `json:"message"`
	Prompt      string    `json:"prompt"`
	ButtonLabel string    `json:"button_label"`
	Action      string    `json:"action"`
}

// StatusResponse represents combined daemon and arbitration state.
type StatusResponse struct {
	Running         bool              `json:"running"`
	SessionID       string            `json:"session_id"`
	Active          *ActiveViolation  `json:"active,omitempty"`
	Signals         map[string]string `json:"signals"`
	Noise           bool              `json:"noise"`
	Evaluations     uint64            `json:"evaluations"`
	LogEntries      int               `json:"log_entries"`
	PendingRequests int               `json:"pending_requests"`
	ReloadLatched   bool              `json:"reload_latched"`
	LockPath        string            `json:"lock_path"`
	DatabasePath    string            `json:"database_path"`
	PID             int               `json:"pid"`
}

// Entry is one audit log record.
type Entry = violationlog.Entry

// ViolationsRequest fetches the in-memory log of the running daemon.
type ViolationsRequest struct{}

// ViolationsResponse contains log entries in insertion order.
type ViolationsResponse struct {
	Entries []Entry `json:"entries"`
}

// HistoryRequest reads persisted entries, optionally for one session.
type HistoryRequest struct {
	SessionID string `json:"session_id"`
}

// HistoryResponse contains persisted entries.
type HistoryResponse struct {
	Entries []Entry `json:"entries"`
}

// SessionSummary aggregates persisted entries per session.
type SessionSummary = violationlog.SessionSummary

// SessionsRequest lists persisted sessions.
type SessionsRequest struct{}

// SessionsResponse contains one summary per session, oldest first.
type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// ReportSignalRequest carries a host-observed signal value.
type ReportSignalRequest struct {
	Signal string `json:"signal"`
	Value  string `json:"value"`
}

// ReportSignalResponse acknowledges a signal report.
type ReportSignalResponse struct {
	Accepted bool `json:"accepted"`
}

// ReportCaptureRequest carries the outcome of a screen capture attempt.
type ReportCaptureRequest struct {
	Shared  bool   `json:"shared"`
	Surface string `json:"surface"`
}

// ReportCaptureResponse acknowledges a capture report.
type ReportCaptureResponse struct {
	Accepted bool `json:"accepted"`
}

// ReportCaptureEndedRequest reports that the capture track ended.
type ReportCaptureEndedRequest struct{}

// ReportAudioFrameRequest carries one frame of frequency-bin levels.
type ReportAudioFrameRequest struct {
	Bins []float64 `json:"bins"`
}

// ReportAudioFrameResponse acknowledges an audio frame.
type ReportAudioFrameResponse struct {
	Accepted bool `json:"accepted"`
}

// AcknowledgeRequest reports a click on the prompt button. An empty kind
// acknowledges the active violation. Seq, when set, is the ActiveViolation.Seq
// of the prompt that was clicked.
type AcknowledgeRequest struct {
	Kind string `json:"kind"`
	Seq  int64  `json:"seq,omitempty"`
}

// AcknowledgeResponse reports how the acknowledgement was handled.
type AcknowledgeResponse struct {
	Kind         string `json:"kind"`
	Action       string `json:"action"`
	Seq          int64  `json:"seq"`
	Stale        bool   `json:"stale"`
	Deduplicated bool   `json:"deduplicated"`
}

// Request is a pending host request.
type Request = sources.Request

// RequestsRequest lists host requests; Drain removes them.
type RequestsRequest struct {
	Drain bool `json:"drain"`
}

// RequestsResponse contains pending host requests, oldest first.
type RequestsResponse struct {
	Requests []Request `json:"requests"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse captures the notification result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
