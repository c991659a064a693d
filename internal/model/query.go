package model

// RunFilter defines the filter parameters for run listings.
// Nil pointer fields are not applied.
type RunFilter struct {
	Status   *RunStatus `json:"status,omitempty"`
	Name     *string    `json:"name,omitempty"`
	TagKey   *string    `json:"tag_key,omitempty"`
	TagValue *string    `json:"tag_value,omitempty"` // only meaningful with TagKey
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
