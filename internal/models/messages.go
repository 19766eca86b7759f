package models

// MessageMeta travels with every broker payload.
type MessageMeta struct {
	CorrelationID string   `json:"correlationId"`
	Priority      Priority `json:"priority" validate:"gte=0,lte=2"`
}

// Meta gives decoders access to the embedded envelope.
func (m *MessageMeta) Meta() *MessageMeta { return m }

// FetchMatchMessage asks a worker to pull one match from the upstream API.
type FetchMatchMessage struct {
	MessageMeta
	OsuMatchID int64 `json:"osuMatchId" validate:"required,gt=0"`
}

// FetchBeatmapMessage asks a worker to pull one beatmap (and its set) from the upstream API.
type FetchBeatmapMessage struct {
	MessageMeta
	OsuBeatmapID int64 `json:"osuBeatmapId" validate:"required,gt=0"`
}

// FetchPlayerMessage asks a worker to pull one player profile from the upstream API.
type FetchPlayerMessage struct {
	MessageMeta
	OsuPlayerID int64 `json:"osuPlayerId" validate:"required,gt=0"`
}

// AutomationCheckMessage asks a worker to run the verification pipeline for a tournament.
type AutomationCheckMessage struct {
	MessageMeta
	TournamentID      int64 `json:"tournamentId" validate:"required,gt=0"`
	OverrideFinalized bool  `json:"overrideFinalized"`
	// ReleaseTrigger is set when the publisher holds the tournament's pending trigger.
	ReleaseTrigger    bool  `json:"releaseTrigger"`
}
