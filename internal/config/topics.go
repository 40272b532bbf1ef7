package config

const (
	// TopicResourceIngest is the NSQ topic carrying resource ingestion runs
	// (both initial adds and refreshes).
	TopicResourceIngest = "resource.ingest"

	// ChannelIngest is the consumer channel for the ingestion pipeline.
	// A single named channel keeps each task delivered to one pipeline worker.
	ChannelIngest = "backend"
)
