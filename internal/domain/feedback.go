package domain

import "time"

// Feedback records a single rating for a completed edit. Rating is 1 for
// thumbs up and 0 for thumbs down; text is required for thumbs down.
type Feedback struct {
	EditUUID  string
	Rating    int
	Text      string
	UserIP    string
	Country   string
	CreatedAt time.Time
}
