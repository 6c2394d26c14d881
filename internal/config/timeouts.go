// Package config provides centralized timeout constants for the application.
//
// A chat request makes at most one embedding call and one LLM call, and a
// generation request one LLM call plus a local render, so the request
// deadline is dominated by upstream model latency.
package config

import "time"

// HTTP server timeouts
const (
	// ChatProcessing is the default deadline for one /chat request.
	ChatProcessing = 60 * time.Second

	// HTTPRead is the server read timeout. Request bodies are small JSON.
	HTTPRead = 10 * time.Second

	// HTTPWrite must exceed ChatProcessing so a slow answer is still delivered.
	HTTPWrite = 65 * time.Second

	// HTTPIdle is the keep-alive idle timeout.
	HTTPIdle = 120 * time.Second

	// HTTPReadHeader bounds header reads to limit slowloris connections.
	HTTPReadHeader = 5 * time.Second
)

// Upstream timeouts
const (
	// LLMCall bounds a single completion request.
	LLMCall = 45 * time.Second

	// EmbeddingCall bounds a single embedding request.
	EmbeddingCall = 15 * time.Second

	// VectorSearch bounds a single dense or sparse search.
	VectorSearch = 15 * time.Second

	// ArchiveUpload bounds mirroring one generated document to R2.
	ArchiveUpload = 30 * time.Second

	// PDFDownload bounds fetching one catalog PDF during ingestion.
	PDFDownload = 60 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// RetentionSweepInterval is how often expired generated documents are removed.
	RetentionSweepInterval = time.Hour

	// RateLimiterCleanup is how often idle per-client limiters are evicted.
	RateLimiterCleanup = 5 * time.Minute

	// RetentionLockTTL is how long one replica may hold the sweep lock.
	RetentionLockTTL = 10 * time.Minute
)

// Startup
const (
	// EagerInitGrace caps how long /readyz waits for eager initialisation
	// before reporting ready anyway. Components still build on first use.
	EagerInitGrace = 2 * time.Minute

	// ReadinessCheck bounds the database ping behind /readyz.
	ReadinessCheck = 3 * time.Second
)
