// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package dvr

// Event is one message from the DVR event stream.
//
// Type is the upstream event class (activities.set, jobs.created,
// jobs.deleted, programs.set, hello). Name is an opaque key whose structure
// depends on Type. Value is an activity string or a recording-/recorded-
// reference; an empty Value on activities.set means the session ended.
type Event struct {
	Type  string `json:"Type"`
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Channel is one entry from /api/v1/channels.
type Channel struct {
	Number  string `json:"number"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url"`
}

// Job is a scheduled or active recording job.
type Job struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	StartTime int64    `json:"start_time"`
	Duration  int64    `json:"duration"`
	Channels  []string `json:"channels"`
	Item      JobItem  `json:"item"`
}

// JobItem carries the program metadata attached to a job.
type JobItem struct {
	Summary  string `json:"summary"`
	ImageURL string `json:"image_url"`
}

// Channel returns the first channel the job records from, or "".
func (j Job) Channel() string {
	if len(j.Channels) == 0 {
		return ""
	}
	return j.Channels[0]
}

// Recording is a completed (or completing) recording file.
//
// The (Cancelled, Completed) pair classifies the outcome: both set means
// manually stopped, cancelled alone means cancelled, completed alone means a
// clean finish. Delayed decorates a completed recording that started late.
type Recording struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	Title        string  `json:"title"`
	EpisodeTitle string  `json:"episode_title"`
	Channel      string  `json:"channel"`
	Duration     float64 `json:"duration"`
	Processed    bool    `json:"processed"`
	Cancelled    bool    `json:"cancelled"`
	Completed    bool    `json:"completed"`
	Delayed      bool    `json:"delayed"`
	ImageURL     string  `json:"image_url"`
}

// VODItem is one catalog entry from /api/v1/all.
type VODItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	EpisodeTitle  string   `json:"episode_title"`
	Summary       string   `json:"summary"`
	Duration      float64  `json:"duration"`
	ImageURL      string   `json:"image_url"`
	ContentRating string   `json:"content_rating"`
	ReleaseYear   int      `json:"release_year"`
	Genres        []string `json:"genres"`
	Cast          []string `json:"cast"`
}

// Status is the DVR liveness response from /status.
type Status struct {
	Version string `json:"version"`
}

// DiskInfo describes the DVR storage volume from /dvr.
type DiskInfo struct {
	Free  uint64 `json:"free"`
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Path  string `json:"path"`
}

// FreePercent returns free space as a percentage of the volume, or 0 when
// the total is unknown.
func (d DiskInfo) FreePercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Free) / float64(d.Total) * 100
}

// dvrResponse is the envelope /dvr wraps disk info in.
type dvrResponse struct {
	Disk DiskInfo `json:"disk"`
	Path string   `json:"path"`
}
