package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var fileNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseHashSpec splits "algorithm:hexdigest".
func ParseHashSpec(spec string) (string, string, error) {
	algorithm, digest, ok := strings.Cut(spec, ":")
	if !ok || algorithm == "" || digest == "" {
		return "", "", fmt.Errorf("invalid hash %q, expected algorithm:hexdigest", spec)
	}
	return strings.TrimSpace(algorithm), strings.TrimSpace(digest), nil
}

func SanitizeFileName(name string) string {
	return fileNameRegex.ReplaceAllString(name, "_")
}

// FileNameFromURL returns the last path element of link, or "download".
func FileNameFromURL(link string) string {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	name := path.Base(parsedURL.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return SanitizeFileName(name)
}

func TempDir(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), TempDirName)
}

func PartPath(outputPath string, index int) string {
	return filepath.Join(TempDir(outputPath), fmt.Sprintf("%s.part%d", filepath.Base(outputPath), index))
}

// IsTimeout reports whether err comes from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func ReadBatchFile(filePath string) ([]BatchEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	for i, entry := range batch.Downloads {
		if len(entry.Mirrors) == 0 {
			return nil, fmt.Errorf("missing mirrors for entry %d", i+1)
		}
		if entry.Hash != "" {
			if _, _, err := ParseHashSpec(entry.Hash); err != nil {
				return nil, fmt.Errorf("entry %d: %v", i+1, err)
			}
		}
	}
	return batch.Downloads, nil
}

// CleanFunction removes the part files belonging to outputPath and the
// temp directory once it is empty.
func CleanFunction(outputPath string) error {
	tempDir := TempDir(outputPath)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	partPrefix := filepath.Base(outputPath) + ".part"
	for _, file := range files {
		if strings.HasPrefix(file.Name(), partPrefix) {
			if err := os.RemoveAll(filepath.Join(tempDir, file.Name())); err != nil {
				return err
			}
		}
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	if len(remainingFiles) == 0 {
		if err := os.Remove(tempDir); err != nil {
			return err
		}
	}
	return nil
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
