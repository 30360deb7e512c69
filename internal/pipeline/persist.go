package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
	"github.com/forPelevin/storyreel/internal/usecase"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type artifacts struct {
	Storyboard types.Storyboard
	Narration  string
	Candidates *types.CandidateSet
	Config     Config
	Manifest   types.Manifest
}

// persist writes each artifact as its own file under dir. Every write is
// attempted; failures are joined and reported as ErrPersistence.
func persist(dir string, a artifacts, now time.Time, log zerolog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", usecase.ErrPersistence, err)
	}

	lists := a.Candidates.Lists()
	if lists == nil {
		lists = []types.EventCandidates{}
	}

	var errs []error
	write := func(name string, fn func(path string) error) {
		path := filepath.Join(dir, name)
		if err := fn(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("persist artifact")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		log.Debug().Str("path", path).Msg("artifact written")
	}

	write("storyboard.json", func(p string) error { return writeJSON(p, a.Storyboard) })
	write("narration.txt", func(p string) error { return os.WriteFile(p, []byte(a.Narration), 0o644) })
	write("candidates.json", func(p string) error { return writeJSON(p, lists) })
	write("project_config.yaml", func(p string) error { return writeConfigSnapshot(p, a.Config, now) })
	write("manifest.json", func(p string) error { return writeJSON(p, a.Manifest) })

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", usecase.ErrPersistence, errors.Join(errs...))
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return encodeJSON(f, v)
}

// encodeJSON writes indented JSON and closes w. A failed close is an error.
func encodeJSON(w io.WriteCloser, v any) (err error) {
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeConfigSnapshot(path string, cfg Config, now time.Time) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("# generated at %s\n", now.UTC().Format(time.RFC3339))
	return os.WriteFile(path, append([]byte(header), b...), 0o644)
}

// readStoryboard loads a storyboard file written by a previous run or by hand.
func readStoryboard(path string) (types.Storyboard, error) {
	var sb types.Storyboard
	if err := readJSON(path, &sb); err != nil {
		return sb, fmt.Errorf("read storyboard: %w", err)
	}
	if len(sb.Events) == 0 {
		return sb, fmt.Errorf("read storyboard %s: no events", path)
	}
	if idx, ok := sb.DuplicateIndex(); ok {
		return sb, fmt.Errorf("read storyboard %s: event index %d is used more than once", path, idx)
	}
	return sb, nil
}

// readCandidates loads per-event candidate lists; clip order in the file is
// the rank order.
func readCandidates(path string) (*types.CandidateSet, error) {
	var lists []types.EventCandidates
	if err := readJSON(path, &lists); err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	return types.NewCandidateSet(lists...), nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
