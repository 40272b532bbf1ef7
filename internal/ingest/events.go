package ingest

// TaskPayload is the NSQ message scheduling one pipeline run for a resource.
// RunID doubles as the chunk generation written by the run.
type TaskPayload struct {
	ProjectID     string `json:"project_id"`
	ResourceID    string `json:"resource_id"`
	URL           string `json:"url"`
	RunID         string `json:"run_id"`
	Refresh       bool   `json:"refresh,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
