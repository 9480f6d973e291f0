package api

import "time"

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AppendResponse is returned when a record is appended
type AppendResponse struct {
	Key string `json:"key"`
}

// ListResponse is one page of keys in insertion order
type ListResponse struct {
	Keys   []string `json:"keys"`
	Total  int      `json:"total"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}

// StatsResponse describes the store and how it was recovered
type StatsResponse struct {
	KeyMode  string           `json:"key_mode"`
	Keys     int              `json:"keys"`
	Records  uint64           `json:"records"`
	DataSize int64            `json:"data_size"`
	Recovery RecoveryResponse `json:"recovery"`
}

// RecoveryResponse summarizes the recovery run at open
type RecoveryResponse struct {
	State            string        `json:"state"`
	Path             []string      `json:"path"`
	RecordsValidated uint64        `json:"records_validated"`
	BytesTruncated   int64         `json:"bytes_truncated"`
	RecoveryTime     time.Duration `json:"recovery_time_ns"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind         string
	Port         int
	APIKey         string   // Empty disables authentication
	MaxBodyBytes   int64    // Largest accepted record, 0 uses DefaultMaxBodyBytes
	AllowedOrigins []string // CORS origins; empty disables CORS headers
}

// DefaultMaxBodyBytes bounds the size of an appended record
const DefaultMaxBodyBytes = 4 << 20
