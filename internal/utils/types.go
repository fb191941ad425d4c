package utils

import (
	"context"
	"io"
	"time"
)

// Source is one mirror of the resource. Implementations exist per scheme
// (http/https and s3).
type Source interface {
	URL() string
	// Probe reports the size of the resource and whether byte ranges are served.
	Probe(ctx context.Context) (*ProbeResult, error)
	// Fetch opens [start, end] inclusive. An end below zero requests the
	// whole resource without a range.
	Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error)
}

type ProbeResult struct {
	Size           int64
	RangeSupported bool
	FileName       string
}

type HTTPClientConfig struct {
	Timeout        time.Duration // connect and response-header timeout
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	Username       string // basic auth
	Password       string
	BearerToken    string
	HighThreadMode bool // advanced socket options for high concurrency
}

type S3Config struct {
	Profile      string
	Region       string
	Endpoint     string // S3-compatible stores
	UsePathStyle bool
}

type BatchEntry struct {
	Mirrors    []string `yaml:"mirrors"`
	OutputPath string   `yaml:"op,omitempty"`
	Hash       string   `yaml:"hash,omitempty"` // algorithm:hexdigest
	Threads    int      `yaml:"threads,omitempty"`
}

type BatchFile struct {
	Downloads []BatchEntry `yaml:"downloads"`
}
