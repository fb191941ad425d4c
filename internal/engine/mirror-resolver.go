package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	smarthttp "github.com/tanq16/smartdl/internal/downloaders/http"
	"github.com/tanq16/smartdl/internal/downloaders/s3"
	"github.com/tanq16/smartdl/internal/utils"
)

// MirrorCandidate is the probe outcome for one mirror.
type MirrorCandidate struct {
	URL            string
	Probed         bool
	Reachable      bool
	Size           int64
	RangeSupported bool
	Err            error
}

type resolution struct {
	candidates     []MirrorCandidate
	sources        []utils.Source // usable sources in mirror order
	start          int            // index into sources of the resolved mirror
	size           int64
	rangeSupported bool
	fileName       string
}

func (r *resolution) resolvedURL() string {
	return r.sources[r.start].URL()
}

// newSource picks the transport for a mirror by scheme.
func newSource(ctx context.Context, link string, cfg Config) (utils.Source, error) {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	switch parsedURL.Scheme {
	case "http", "https":
		return smarthttp.New(link, cfg.httpConfig())
	case "s3":
		return s3.New(ctx, link, cfg.S3)
	}
	return nil, fmt.Errorf("%w: %q", utils.ErrUnsupportedScheme, parsedURL.Scheme)
}

type sourceFactory func(ctx context.Context, link string, cfg Config) (utils.Source, error)

// resolveMirrors probes mirrors in order until one reports a usable size.
// A timeout only surfaces as such when it happens on the last mirror.
func resolveMirrors(ctx context.Context, mirrors []string, cfg Config, factory sourceFactory) (*resolution, error) {
	res := &resolution{candidates: make([]MirrorCandidate, len(mirrors)), start: -1}
	var lastErr error
	for i, link := range mirrors {
		candidate := &res.candidates[i]
		candidate.URL = link
		src, err := factory(ctx, link, cfg)
		if err != nil {
			candidate.Err = err
			lastErr = err
			log.Warn().Str("op", "engine/mirror-resolver").Err(err).Msgf("skipping mirror %s", link)
			continue
		}
		res.sources = append(res.sources, src)
		if res.start >= 0 {
			continue
		}

		candidate.Probed = true
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		info, err := src.Probe(probeCtx)
		cancel()
		if err == nil {
			candidate.Reachable = true
			candidate.Size = info.Size
			candidate.RangeSupported = info.RangeSupported
			res.start = len(res.sources) - 1
			res.size = info.Size
			res.rangeSupported = info.RangeSupported
			res.fileName = info.FileName
			log.Debug().Str("op", "engine/mirror-resolver").Msgf("resolved %s (%d bytes, ranges=%t)", link, info.Size, info.RangeSupported)
			continue
		}
		candidate.Err = err
		lastErr = err
		if ctx.Err() != nil {
			return nil, newTaskError(KindCancellationRequested, context.Cause(ctx), "mirror resolution cancelled")
		}
		if utils.IsTimeout(err) && i == len(mirrors)-1 {
			return nil, newTaskError(KindConnectTimeout, err, "no response within %s", cfg.ConnectTimeout).withMirror(link)
		}
		log.Warn().Str("op", "engine/mirror-resolver").Err(err).Msgf("mirror %s unreachable", link)
	}
	if res.start < 0 {
		if lastErr == nil {
			lastErr = errors.New("no mirrors given")
		}
		return nil, newTaskError(KindMirrorUnreachable, lastErr, "all %d mirror(s) failed", len(mirrors))
	}
	if res.fileName == "" {
		res.fileName = utils.FileNameFromURL(res.resolvedURL())
	}
	return res, nil
}
