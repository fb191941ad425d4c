package utils

import (
	"errors"
	"time"
)

const DefaultBufferSize = 1024 * 256 // 256KB read buffer
const DefaultThreads = 5
const DefaultConnectTimeout = 15 * time.Second
const DefaultMinChunkSize = 1024 * 1024
const DefaultRetriesPerMirror = 3
const TempDirName = ".smartdl-temp"
const ToolUserAgent = "smartdl"

var ErrUnexpectedStatus = errors.New("unexpected status code")
var ErrUnknownSize = errors.New("server didn't provide a usable content length")
var ErrUnsupportedScheme = errors.New("unsupported mirror scheme")

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/7.88.1",
	"Wget/1.21.4",
}
