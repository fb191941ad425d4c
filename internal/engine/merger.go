package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/utils"
)

// mergeChunks writes the completed sinks into destination in index order.
// Partial output is removed on any failure.
func mergeChunks(ctx context.Context, destination string, chunks []*chunk, size int64) (err error) {
	if len(chunks) == 1 {
		if err := os.Rename(chunks[0].sink, destination); err != nil {
			return fmt.Errorf("error moving chunk into place: %w", err)
		}
		return verifySize(destination, size)
	}

	destFile, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := destFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(destination)
		}
	}()

	var totalWritten int64
	for _, c := range chunks {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		written, err := appendChunk(destFile, c.sink)
		if err != nil {
			return fmt.Errorf("error copying chunk %d: %w", c.index, err)
		}
		totalWritten += written
	}
	if totalWritten != size {
		return fmt.Errorf("size mismatch: expected %d, got %d", size, totalWritten)
	}
	if err := destFile.Sync(); err != nil {
		return err
	}

	for _, c := range chunks {
		os.Remove(c.sink)
	}
	return nil
}

func appendChunk(dst io.Writer, sinkPath string) (int64, error) {
	sink, err := os.Open(sinkPath)
	if err != nil {
		return 0, err
	}
	defer sink.Close()
	return io.Copy(dst, sink)
}

func verifySize(path string, size int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != size {
		os.Remove(path)
		return fmt.Errorf("size mismatch: expected %d, got %d", size, info.Size())
	}
	return nil
}

// cleanupSinks drops leftover part files and the temp dir if it is empty.
func cleanupSinks(destination string) {
	if err := utils.CleanFunction(destination); err != nil {
		log.Debug().Str("op", "engine/merger").Err(err).Msgf("temp cleanup for %s", destination)
	}
}

// Clean removes part files left behind for destination by an interrupted
// run, and the temp directory when nothing else uses it.
func Clean(destination string) error {
	return utils.CleanFunction(destination)
}
