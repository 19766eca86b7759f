package models

// FetchStatus tracks the lifecycle of pulling one resource from the upstream API.
type FetchStatus int

const (
	FetchStatusNotFetched FetchStatus = iota
	FetchStatusFetching
	FetchStatusFetched
	FetchStatusNotFound
	FetchStatusError
)

// IsTerminal reports whether downstream processing may proceed past this status.
func (s FetchStatus) IsTerminal() bool {
	return s == FetchStatusFetched || s == FetchStatusNotFound
}

func (s FetchStatus) String() string {
	switch s {
	case FetchStatusNotFetched:
		return "not_fetched"
	case FetchStatusFetching:
		return "fetching"
	case FetchStatusFetched:
		return "fetched"
	case FetchStatusNotFound:
		return "not_found"
	case FetchStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// VerificationStatus is the verdict assigned to a tournament, match, game or score.
type VerificationStatus int

const (
	VerificationStatusNone VerificationStatus = iota
	VerificationStatusPreRejected
	VerificationStatusPreVerified
	VerificationStatusRejected
	VerificationStatusVerified
)

// IsTerminal reports whether the status is a final (human confirmed) verdict.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationStatusVerified || s == VerificationStatusRejected
}

// IsValid reports whether the entity currently counts as accepted.
func (s VerificationStatus) IsValid() bool {
	return s == VerificationStatusVerified || s == VerificationStatusPreVerified
}

// Confirmed maps a Pre status onto its final counterpart. Other statuses are returned unchanged.
func (s VerificationStatus) Confirmed() VerificationStatus {
	switch s {
	case VerificationStatusPreVerified:
		return VerificationStatusVerified
	case VerificationStatusPreRejected:
		return VerificationStatusRejected
	default:
		return s
	}
}

func (s VerificationStatus) String() string {
	switch s {
	case VerificationStatusNone:
		return "none"
	case VerificationStatusPreRejected:
		return "pre_rejected"
	case VerificationStatusPreVerified:
		return "pre_verified"
	case VerificationStatusRejected:
		return "rejected"
	case VerificationStatusVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// Ruleset is an osu! game mode. Mania keys variants are tracked separately.
type Ruleset int

const (
	RulesetOsu Ruleset = iota
	RulesetTaiko
	RulesetCatch
	RulesetManiaOther
	RulesetMania4k
	RulesetMania7k
)

// AllRulesets lists every ruleset a player profile can carry data for.
var AllRulesets = []Ruleset{RulesetOsu, RulesetTaiko, RulesetCatch, RulesetManiaOther, RulesetMania4k, RulesetMania7k}

// IsValid reports whether r is a known ruleset.
func (r Ruleset) IsValid() bool {
	return r >= RulesetOsu && r <= RulesetMania7k
}

// IsMania reports whether r is any mania variant.
func (r Ruleset) IsMania() bool {
	return r == RulesetManiaOther || r == RulesetMania4k || r == RulesetMania7k
}

// APIName returns the ruleset name used by the upstream API.
func (r Ruleset) APIName() string {
	switch r {
	case RulesetTaiko:
		return "taiko"
	case RulesetCatch:
		return "fruits"
	case RulesetManiaOther, RulesetMania4k, RulesetMania7k:
		return "mania"
	default:
		return "osu"
	}
}

// ScoringType is the win condition used by a game.
type ScoringType int

const (
	ScoringTypeScore ScoringType = iota
	ScoringTypeAccuracy
	ScoringTypeCombo
	ScoringTypeScoreV2
)

// TeamType is the lobby team mode of a game.
type TeamType int

const (
	TeamTypeHeadToHead TeamType = iota
	TeamTypeTagCoop
	TeamTypeTeamVs
	TeamTypeTagTeamVs
)

// Team identifies the side a score was set for.
type Team int

const (
	TeamNoTeam Team = iota
	TeamBlue
	TeamRed
)

func (t Team) String() string {
	switch t {
	case TeamBlue:
		return "blue"
	case TeamRed:
		return "red"
	default:
		return "none"
	}
}

// Opponent returns the other side for Red/Blue and NoTeam otherwise.
func (t Team) Opponent() Team {
	switch t {
	case TeamBlue:
		return TeamRed
	case TeamRed:
		return TeamBlue
	default:
		return TeamNoTeam
	}
}

// Mods is the osu! mod bitmask.
type Mods int

const (
	ModsNone        Mods = 0
	ModsNoFail      Mods = 1 << 0
	ModsEasy        Mods = 1 << 1
	ModsTouchDevice Mods = 1 << 2
	ModsHidden      Mods = 1 << 3
	ModsHardRock    Mods = 1 << 4
	ModsSuddenDeath Mods = 1 << 5
	ModsDoubleTime  Mods = 1 << 6
	ModsRelax       Mods = 1 << 7
	ModsHalfTime    Mods = 1 << 8
	ModsNightcore   Mods = 1 << 9
	ModsFlashlight  Mods = 1 << 10
	ModsAutoplay    Mods = 1 << 11
	ModsSpunOut     Mods = 1 << 12
	ModsAutopilot   Mods = 1 << 13
	ModsPerfect     Mods = 1 << 14
	ModsCinema      Mods = 1 << 22
	ModsTarget      Mods = 1 << 23
	ModsScoreV2     Mods = 1 << 29
)

// Has reports whether every bit of m2 is set in m.
func (m Mods) Has(m2 Mods) bool {
	return m&m2 == m2
}

// Priority orders queued fetch work.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)
