package smarthttp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/utils"
)

// Source serves one http or https mirror.
type Source struct {
	link   string
	client *utils.HTTPClient
}

func New(link string, cfg utils.HTTPClientConfig) (*Source, error) {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, parsedURL.Scheme)
	}
	return &Source{link: link, client: utils.NewHTTPClient(cfg)}, nil
}

func (s *Source) URL() string {
	return s.link
}

func (s *Source) Probe(ctx context.Context) (*utils.ProbeResult, error) {
	req, err := utils.NewRequest(ctx, http.MethodHead, s.link)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error checking URL: %w", err)
	}
	resp.Body.Close()

	result := &utils.ProbeResult{Size: -1}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: URL not found (404)", utils.ErrUnexpectedStatus)
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		log.Debug().Str("op", "http/initial").Msgf("HEAD rejected by %s, probing with GET", s.link)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	default:
		result.FileName = fileNameFromHeader(resp.Header)
		result.RangeSupported = resp.Header.Get("Accept-Ranges") == "bytes"
		if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
			if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil && size >= 0 {
				result.Size = size
			}
		}
	}
	if result.Size >= 0 && result.RangeSupported {
		return result, nil
	}
	return s.probeWithRange(ctx, result)
}

// probeWithRange asks for the first byte; a 206 reveals both the total size
// and range support even when HEAD said neither.
func (s *Source) probeWithRange(ctx context.Context, result *utils.ProbeResult) (*utils.ProbeResult, error) {
	req, err := utils.NewRequest(ctx, http.MethodGet, s.link)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error probing URL: %w", err)
	}
	defer resp.Body.Close()
	if result.FileName == "" {
		result.FileName = fileNameFromHeader(resp.Header)
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		total, err := totalFromContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, err
		}
		result.Size = total
		result.RangeSupported = true
	case http.StatusOK:
		result.RangeSupported = false
		if resp.ContentLength >= 0 {
			result.Size = resp.ContentLength
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// only an empty resource cannot satisfy bytes=0-0
		if total, err := totalFromContentRange(resp.Header.Get("Content-Range")); err == nil && total == 0 {
			result.Size = 0
			result.RangeSupported = true
		}
	default:
		return nil, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	if result.Size < 0 {
		return nil, utils.ErrUnknownSize
	}
	return result, nil
}

func totalFromContentRange(contentRange string) (int64, error) {
	_, total, ok := strings.Cut(contentRange, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("unusable Content-Range %q: %w", contentRange, utils.ErrUnknownSize)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("unusable Content-Range %q: %w", contentRange, utils.ErrUnknownSize)
	}
	return size, nil
}

func fileNameFromHeader(header http.Header) string {
	contentDisposition := header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return utils.SanitizeFileName(fn)
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return utils.SanitizeFileName(unescaped)
	}
	return ""
}
