package model

import "time"

// Sources a TimeRecord can originate from.
const (
	SourceTimer   = "timer"
	SourceManual  = "manual"
	SourceOutlook = "outlook"
)

// TimeRecord represents one tracked interval of work.
// A nil EndTime means the record is still running.
type TimeRecord struct {
	ID          string     `json:"id" yaml:"id"`
	OwnerID     string     `json:"user_id" yaml:"user_id"`
	ProjectID   string     `json:"project_id" yaml:"project_id"`
	Description *string    `json:"description,omitempty" yaml:"description,omitempty"`
	StartTime   time.Time  `json:"start_time" yaml:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Duration    *int64     `json:"duration,omitempty" yaml:"duration,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	Tags        []string   `json:"tags" yaml:"tags"`
	Source      string     `json:"source,omitempty" yaml:"source,omitempty"`
	ExternalID  string     `json:"external_id,omitempty" yaml:"external_id,omitempty"`
}

// Running reports whether the record has no end time yet.
func (r TimeRecord) Running() bool {
	return r.EndTime == nil
}

// Selection is the record predicate shared by in-memory filtering and the
// storage backends. Zero-valued fields impose no constraint; From and To
// bound StartTime inclusively.
type Selection struct {
	From      *time.Time
	To        *time.Time
	ProjectID string
	Tags      []string
}

// Matches reports whether r satisfies every constraint of s.
func (s Selection) Matches(r TimeRecord) bool {
	if s.From != nil && r.StartTime.Before(*s.From) {
		return false
	}
	if s.To != nil && r.StartTime.After(*s.To) {
		return false
	}
	if s.ProjectID != "" && r.ProjectID != s.ProjectID {
		return false
	}
	return r.HasTags(s.Tags)
}

// HasTags reports whether every tag in want is present on the record.
func (r TimeRecord) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		have[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

// DescriptionText returns the description or "" when unset.
func (r TimeRecord) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// Clone returns a deep copy so callers can mutate pointer fields freely.
func (r TimeRecord) Clone() TimeRecord {
	out := r
	if r.Description != nil {
		d := *r.Description
		out.Description = &d
	}
	if r.EndTime != nil {
		e := *r.EndTime
		out.EndTime = &e
	}
	if r.Duration != nil {
		d := *r.Duration
		out.Duration = &d
	}
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	return out
}

// CloneAll deep-copies a slice of records.
func CloneAll(records []TimeRecord) []TimeRecord {
	if records == nil {
		return nil
	}
	out := make([]TimeRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Patch is a partial update of a TimeRecord. Nil fields are left unchanged.
// Duration is not patchable; it is derived from start and end.
type Patch struct {
	ProjectID   *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
	Tags        *[]string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.ProjectID == nil && p.Description == nil && p.StartTime == nil &&
		p.EndTime == nil && p.Tags == nil
}

// Apply returns a copy of r with the patch applied.
func (p Patch) Apply(r TimeRecord) TimeRecord {
	out := r.Clone()
	if p.ProjectID != nil {
		out.ProjectID = *p.ProjectID
	}
	if p.Description != nil {
		d := *p.Description
		out.Description = &d
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e := *p.EndTime
		out.EndTime = &e
	}
	if p.Tags != nil {
		out.Tags = append([]string{}, (*p.Tags)...)
	}
	return out
}
