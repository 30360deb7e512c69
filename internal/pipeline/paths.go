package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// RunPaths are every location one run reads or writes. All names share the
// run id so runs never collide.
type RunPaths struct {
	RunID   string
	Project string

	Workspace      string
	Concatenated   string
	NarrationAudio string
	ProjectDir     string
	Final          string
	TempAudio      string
}

func newRunPaths(outRoot, project, runID string) RunPaths {
	name := normalizePathSegment(project)
	if name == "" {
		name = "project"
	}
	projectDir := filepath.Join(outRoot, "combined", name)
	return RunPaths{
		RunID:          runID,
		Project:        name,
		Workspace:      filepath.Join(outRoot, "videos", "temp_"+runID),
		Concatenated:   filepath.Join(outRoot, "videos", fmt.Sprintf("%s_%s.mp4", name, runID)),
		NarrationAudio: filepath.Join(outRoot, "audio", fmt.Sprintf("%s_%s.mp3", name, runID)),
		ProjectDir:     projectDir,
		Final:          filepath.Join(projectDir, fmt.Sprintf("%s_final_%s.mp4", name, runID)),
		TempAudio:      filepath.Join(projectDir, fmt.Sprintf("%s_mixed_audio_%s.mp3", name, runID)),
	}
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
