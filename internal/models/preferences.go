package models

// Preferences holds a user's mail filtering settings. The file on disk is a
// plain JSON dump of this struct; updates replace the whole record.
type Preferences struct {
	Enabled         bool     `json:"enabled"`
	Interests       []string `json:"interests"`
	CustomInterests []string `json:"custom_interests,omitempty"`
}

// DefaultPreferences returns the preferences assumed for a user who has never
// saved any: processing enabled, no interest filtering.
func DefaultPreferences() *Preferences {
	return &Preferences{
		Enabled:   true,
		Interests: []string{},
	}
}
