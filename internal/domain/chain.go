package domain

import "time"

// DefaultMaxChainLength bounds how many follow-up edits may be stacked on a
// single lineage before new submissions are rejected.
const DefaultMaxChainLength = 5

// ChainLink associates an edit with its optional parent and its 1-based
// position in the lineage. An edit without a link is implicitly position 1.
type ChainLink struct {
	EditUUID       string
	ParentEditUUID string
	Position       int
	CreatedAt      time.Time
}

// ChainEntry is one element of a resolved lineage, oldest first.
type ChainEntry struct {
	Edit     Edit
	Position int
}
