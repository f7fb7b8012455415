// Package fuse concatenates rendered transition segments into the final
// document video.
package fuse

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
)

// Concatenator joins segment files into a single output file.
type Concatenator interface {
	Concat(ctx context.Context, segments []string, output string) error
}

// FFmpeg concatenates with the ffmpeg concat demuxer and stream copy, so
// fusion never re-encodes.
type FFmpeg struct {
	path   string
	logger *observability.Logger
}

// NewFFmpeg creates a concatenator that shells out to the given ffmpeg binary.
func NewFFmpeg(path string, logger *observability.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, logger: logger.WithOperation("ffmpeg")}
}

// Concat writes a concat list next to the output and runs ffmpeg over it.
func (f *FFmpeg) Concat(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return domain.ValidationError("nothing to concatenate", nil)
	}

	list, err := writeConcatList(filepath.Dir(output), segments)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", list, "-c", "copy", output}
	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.Debug().Str("binary", f.path).Int("segments", len(segments)).Msg("Running ffmpeg concat")
	if err := cmd.Run(); err != nil {
		return domain.IOError(fmt.Sprintf("ffmpeg concat failed: %s", tail(stderr.String(), 500)), err)
	}
	return nil
}

// writeConcatList emits the concat demuxer input file. Single quotes in
// paths use the demuxer's quote-escape form.
func writeConcatList(dir string, segments []string) (string, error) {
	tmp, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", domain.IOError("failed to create concat list", err)
	}

	var b strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", domain.IOError("failed to resolve segment path", err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", domain.IOError("failed to write concat list", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", domain.IOError("failed to close concat list", err)
	}
	return tmp.Name(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
