package dto

import "github.com/noah-isme/tourney-pipeline/internal/models"

// AutomationRunResponse acknowledges a queued automation run.
type AutomationRunResponse struct {
	TournamentID      int64  `json:"tournamentId"`
	CorrelationID     string `json:"correlationId"`
	OverrideFinalized bool   `json:"overrideFinalized"`
}

// CompletionCheckResponse reports whether a completion check published an automation run.
type CompletionCheckResponse struct {
	TournamentID int64 `json:"tournamentId"`
	Triggered    bool  `json:"triggered"`
}

// StatsJobResponse acknowledges a queued stats rebuild.
type StatsJobResponse struct {
	TournamentID int64  `json:"tournamentId"`
	JobID        string `json:"jobId"`
}

// ReservationStatusResponse describes one fetch reservation.
type ReservationStatusResponse struct {
	Type   models.ResourceType      `json:"type"`
	ID     int64                    `json:"id"`
	Status models.ReservationStatus `json:"status"`
}

// ReadinessResponse lists dependency checks by name.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
