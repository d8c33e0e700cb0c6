package syncmodel

// Migration describes a client schema jump included with the first pull
// after a local schema upgrade.
type Migration struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// PushRequest carries a batch of queued local changes to the server.
type PushRequest struct {
	Changes      []LocalChange `json:"changes"`
	LastPulledAt int64         `json:"lastPulledAt"`
}

// PushResponse reports the local ids the server refused to apply. The field
// is omitted entirely when nothing was rejected.
type PushResponse struct {
	ExperimentalRejectedIDs []string `json:"experimentalRejectedIds,omitempty"`
}

// PullRequest asks for everything that changed since the client watermark.
type PullRequest struct {
	LastPulledAt  int64      `json:"lastPulledAt,omitempty"`
	SchemaVersion int        `json:"schemaVersion"`
	Migration     *Migration `json:"migration,omitempty"`
}

// RowChange is one changed row in a pull response, tagged as a creation or
// an update relative to the client's watermark so the client can pick
// insert vs. merge without re-deriving it.
type RowChange struct {
	Table   Table  `json:"table"`
	ID      string `json:"id"`
	Created Record `json:"created,omitempty"`
	Updated Record `json:"updated,omitempty"`
}

// PullResponse groups changed rows by table. Tables with no changes are
// absent from the map: a missing key means "nothing changed", not an error.
type PullResponse struct {
	Changes   map[Table][]RowChange `json:"changes"`
	Timestamp int64                 `json:"timestamp"`
}
