package models

import "time"

// Beatmap is one difficulty. When HasData is false the upstream confirmed it absent and the
// remaining descriptive fields are meaningless.
type Beatmap struct {
	ID           int64       `db:"id" json:"id"`
	OsuID        int64       `db:"osu_id" json:"osuId"`
	BeatmapsetID *int64      `db:"beatmapset_id" json:"beatmapsetId,omitempty"`
	HasData      bool        `db:"has_data" json:"hasData"`
	FetchStatus  FetchStatus `db:"fetch_status" json:"fetchStatus"`
	Ruleset      Ruleset     `db:"ruleset" json:"ruleset"`
	DiffName     string      `db:"diff_name" json:"diffName"`
	RankedStatus int         `db:"ranked_status" json:"rankedStatus"`
	TotalLength  int         `db:"total_length" json:"totalLength"`
	DrainLength  int         `db:"drain_length" json:"drainLength"`
	BPM          float64     `db:"bpm" json:"bpm"`
	CS           float64     `db:"cs" json:"cs"`
	AR           float64     `db:"ar" json:"ar"`
	HP           float64     `db:"hp" json:"hp"`
	OD           float64     `db:"od" json:"od"`
	SR           float64     `db:"sr" json:"sr"`
	MaxCombo     *int        `db:"max_combo" json:"maxCombo,omitempty"`
}

// Beatmapset groups the difficulties of one upload.
type Beatmapset struct {
	ID           int64      `db:"id" json:"id"`
	OsuID        int64      `db:"osu_id" json:"osuId"`
	HasData      bool       `db:"has_data" json:"hasData"`
	Artist       string     `db:"artist" json:"artist"`
	Title        string     `db:"title" json:"title"`
	CreatorID    *int64     `db:"creator_id" json:"creatorId,omitempty"`
	RankedStatus int        `db:"ranked_status" json:"rankedStatus"`
	RankedDate   *time.Time `db:"ranked_date" json:"rankedDate,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`

	Beatmaps []Beatmap `db:"-" json:"beatmaps,omitempty"`
}

// BeatmapFetchState is the slice of a beatmap the completion tracker needs.
type BeatmapFetchState struct {
	ID          int64       `db:"id"`
	OsuID       int64       `db:"osu_id"`
	FetchStatus FetchStatus `db:"fetch_status"`
}
