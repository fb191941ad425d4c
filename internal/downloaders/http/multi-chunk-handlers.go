package smarthttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/smartdl/internal/utils"
)

func (s *Source) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	req, err := utils.NewRequest(ctx, http.MethodGet, s.link)
	if err != nil {
		return nil, err
	}
	if end >= 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case end < 0 && resp.StatusCode == http.StatusOK:
	case end >= 0 && resp.StatusCode == http.StatusPartialContent:
		if resp.Header.Get("Content-Range") == "" {
			resp.Body.Close()
			return nil, errors.New("missing Content-Range header")
		}
	case end >= 0 && resp.StatusCode == http.StatusOK && start == 0 && resp.ContentLength == end+1:
		// range ignored but the whole body is exactly what was asked for
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", utils.ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp.Body, nil
}
