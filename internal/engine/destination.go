package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/tanq16/smartdl/internal/utils"
)

// resolveDestination picks the output path. Empty gives a fresh directory
// under the system temp dir; a directory (existing, or written with a
// trailing separator) receives the mirror's file name.
func resolveDestination(destination, fileName string) string {
	if fileName == "" {
		fileName = "download"
	}
	if destination == "" {
		return filepath.Join(os.TempDir(), "smartdl", uuid.NewString(), fileName)
	}
	if strings.HasSuffix(destination, string(os.PathSeparator)) || strings.HasSuffix(destination, "/") {
		return filepath.Join(destination, fileName)
	}
	if info, err := os.Stat(destination); err == nil && info.IsDir() {
		return filepath.Join(destination, fileName)
	}
	return destination
}

// checkFreeSpace needs room for the chunk sinks plus the merged copy.
func checkFreeSpace(dir string, size int64, chunks int) error {
	needed := uint64(size)
	if chunks > 1 {
		needed *= 2
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		log.Warn().Str("op", "engine/destination").Err(err).Msgf("could not read free space for %s", dir)
		return nil
	}
	if usage.Free < needed {
		return newTaskError(KindInsufficientSpace, nil, "%s free in %s, need %s",
			utils.FormatBytes(usage.Free), dir, utils.FormatBytes(needed))
	}
	return nil
}
