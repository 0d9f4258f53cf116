package entity

// RepoCommit identifies the state of a content-addressed repository: the
// commit root and its revision. The pair is produced by the repo store and
// consumed unchanged by the account registry and the event log.
type RepoCommit struct {
	Root string `json:"root"`
	Rev  string `json:"rev"`
}
