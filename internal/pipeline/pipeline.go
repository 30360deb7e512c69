package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/forPelevin/storyreel/internal/ledger"
	"github.com/forPelevin/storyreel/internal/logging"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/ports/adapters/elevenlabs"
	"github.com/forPelevin/storyreel/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/storyreel/internal/ports/adapters/openrouter"
	"github.com/forPelevin/storyreel/internal/ports/adapters/twelvelabs"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/forPelevin/storyreel/internal/usecase"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AssembleSources are the files the assemble mode reads instead of calling
// the collaborators.
type AssembleSources struct {
	Storyboard     string
	Candidates     string
	NarrationAudio string
	// NarrationText is optional; it is only copied into the artifacts.
	NarrationText string
}

// Outcome describes a finished run. PersistErr is set when some artifact
// could not be written; the media files are still in place.
type Outcome struct {
	RunID      string
	Paths      RunPaths
	Manifest   types.Manifest
	PersistErr error
}

type material struct {
	storyboard     types.Storyboard
	narration      string
	candidates     *types.CandidateSet
	narrationAudio string
}

type runner struct {
	cfg      Config
	log      zerolog.Logger
	deps     usecase.Deps
	now      func() time.Time
	newRunID func() string
}

func newRunner(cfg Config, log zerolog.Logger) *runner {
	log = logging.WithComponent(log, "pipeline")
	return &runner{
		cfg:      cfg,
		log:      log,
		deps:     wire(cfg, log),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

func wire(cfg Config, log zerolog.Logger) usecase.Deps {
	return usecase.Deps{
		Encoder: ffmpeg.New(ffmpeg.Options{
			FFmpegPath: cfg.FFmpegPath,
			VideoCodec: cfg.OutputVideoCodec,
			AudioCodec: cfg.OutputAudioCodec,
			MixCodec:   cfg.MixAudioCodec,
			Preset:     cfg.Preset,
			CRF:        cfg.CRF,
		}, log),
		Writer: openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouter.Model, cfg.OpenRouter.BaseURL, log),
		Search: twelvelabs.New(twelvelabs.Options{
			APIKey:        cfg.TwelveLabsAPIKey,
			BaseURL:       cfg.TwelveLabs.BaseURL,
			IndexID:       cfg.TwelveLabs.IndexID,
			VideoID:       cfg.TwelveLabs.VideoID,
			SearchOptions: cfg.TwelveLabs.SearchOptions,
		}, log),
		Voice: elevenlabs.New(elevenlabs.Options{
			APIKey:       cfg.ElevenLabsAPIKey,
			BaseURL:      cfg.ElevenLabs.BaseURL,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			ModelID:      cfg.ElevenLabs.ModelID,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
			Settings:     cfg.ElevenLabs.VoiceSettings,
		}, log),
		Log: log,
	}
}

// Run is the full pipeline: storyboard, narration, search and speech, then
// assembly and artifacts.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) (Outcome, error) {
	if err := cfg.Validate(ModeRun); err != nil {
		return Outcome{}, err
	}
	return newRunner(cfg, log).run(ctx)
}

// Assemble runs only the selection and assembly core from files on disk.
func Assemble(ctx context.Context, cfg Config, src AssembleSources, log zerolog.Logger) (Outcome, error) {
	if err := cfg.Validate(ModeAssemble); err != nil {
		return Outcome{}, err
	}
	return newRunner(cfg, log).assemble(ctx, src)
}

func (r *runner) run(ctx context.Context) (Outcome, error) {
	if err := requireInput("source video", r.cfg.SourceVideo); err != nil {
		return Outcome{}, err
	}
	raw, err := os.ReadFile(r.cfg.RawText)
	if err != nil {
		return Outcome{}, inputErr("read raw text", err)
	}

	return r.execute(ctx, ModeRun, func(p RunPaths) (material, error) {
		prep, err := usecase.New(r.deps).Prepare(ctx, usecase.PrepareInput{
			RawText:        string(raw),
			NarrationAudio: p.NarrationAudio,
		})
		if err != nil {
			return material{}, err
		}
		return material{
			storyboard:     prep.Storyboard,
			narration:      prep.Narration,
			candidates:     prep.Candidates,
			narrationAudio: prep.NarrationAudio,
		}, nil
	})
}

func (r *runner) assemble(ctx context.Context, src AssembleSources) (Outcome, error) {
	// Nothing is created on disk or in the ledger until every input exists.
	if err := requireInput("source video", r.cfg.SourceVideo); err != nil {
		return Outcome{}, err
	}
	if err := requireInput("narration audio", src.NarrationAudio); err != nil {
		return Outcome{}, err
	}
	sb, err := readStoryboard(src.Storyboard)
	if err != nil {
		return Outcome{}, inputErr("storyboard", err)
	}
	cands, err := readCandidates(src.Candidates)
	if err != nil {
		return Outcome{}, inputErr("candidates", err)
	}
	var narration string
	if src.NarrationText != "" {
		b, err := os.ReadFile(src.NarrationText)
		if err != nil {
			return Outcome{}, inputErr("narration text", err)
		}
		narration = string(b)
	}

	return r.execute(ctx, ModeAssemble, func(RunPaths) (material, error) {
		return material{
			storyboard:     sb,
			narration:      narration,
			candidates:     cands,
			narrationAudio: src.NarrationAudio,
		}, nil
	})
}

// execute owns one run: paths, workspace lifetime, ledger entry, assembly
// and artifacts.
func (r *runner) execute(ctx context.Context, mode Mode, prepare func(RunPaths) (material, error)) (out Outcome, err error) {
	p := newRunPaths(r.cfg.OutDir, r.cfg.Project, r.newRunID())
	out.RunID, out.Paths = p.RunID, p
	log := r.log.With().Str("run_id", p.RunID).Str("project", p.Project).Logger()

	for _, dir := range []string{p.Workspace, p.ProjectDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return out, fmt.Errorf("prepare workspace: %w", err)
		}
	}
	defer r.cleanupWorkspace(p.Workspace, log)

	led := r.openLedger(log)
	if led != nil {
		defer led.Close()
		if lerr := led.Start(ctx, p.RunID, p.Project, string(mode), r.now()); lerr != nil {
			log.Warn().Err(lerr).Msg("ledger start")
			led = nil
		}
	}
	var res usecase.Result
	defer func() {
		if led == nil {
			return
		}
		o := ledger.Outcome{
			Clips:     len(res.Selection.Clips),
			Skipped:   len(res.Selection.Skipped),
			FinalPath: res.Manifest.Final,
			Err:       err,
			At:        r.now(),
		}
		// The run context may already be cancelled; the outcome must still land.
		if lerr := led.Finish(context.WithoutCancel(ctx), p.RunID, o); lerr != nil {
			log.Warn().Err(lerr).Msg("ledger finish")
		}
	}()

	log.Info().Str("mode", string(mode)).Str("workspace", p.Workspace).Msg("run started")

	m, err := prepare(p)
	if err != nil {
		return out, err
	}

	uc := usecase.New(usecase.Deps{Encoder: r.deps.Encoder, Log: log})
	res, err = uc.Assemble(ctx, usecase.AssembleInput{
		SourceVideo:     r.cfg.SourceVideo,
		NarrationAudio:  m.narrationAudio,
		Events:          m.storyboard.Events,
		Candidates:      m.candidates,
		Workspace:       p.Workspace,
		Concatenated:    p.Concatenated,
		Final:           p.Final,
		TempAudio:       p.TempAudio,
		MaxClipDuration: r.cfg.MaxClipDuration,
		OriginalGain:    r.cfg.OriginalAudioGain,
		NarrationGain:   r.cfg.NarrationAudioGain,
	})
	if err != nil {
		return out, err
	}

	res.Manifest.Project = p.Project
	res.Manifest.RunID = p.RunID
	out.Manifest = res.Manifest

	out.PersistErr = persist(p.ProjectDir, artifacts{
		Storyboard: m.storyboard,
		Narration:  m.narration,
		Candidates: m.candidates,
		Config:     r.cfg,
		Manifest:   res.Manifest,
	}, r.now(), log)

	log.Info().
		Str("final", p.Final).
		Int("clips", len(res.Manifest.Clips)).
		Ints("skipped_events", res.Manifest.SkippedEvents).
		Float64("total_sec", res.Manifest.TotalSec).
		Msg("run finished")
	return out, nil
}

func (r *runner) cleanupWorkspace(dir string, log zerolog.Logger) {
	if r.cfg.KeepWorkspace {
		log.Info().Str("workspace", dir).Msg("workspace kept")
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("workspace", dir).Msg("remove workspace")
	}
}

func (r *runner) openLedger(log zerolog.Logger) *ledger.Ledger {
	path := r.cfg.ledgerPath()
	if path == "" {
		return nil
	}
	l, err := ledger.Open(path, log)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("run ledger unavailable")
		return nil
	}
	return l
}

// History lists recent runs recorded in the ledger.
func History(ctx context.Context, cfg Config, project string, limit int, log zerolog.Logger) ([]ledger.Run, error) {
	path := cfg.ledgerPath()
	if path == "" {
		return nil, errors.New("run ledger is disabled (ledger_path is empty)")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	l, err := ledger.Open(path, log)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	if project != "" {
		project = normalizePathSegment(project)
	}
	return l.List(ctx, project, limit)
}

func requireInput(what, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s path is empty", usecase.ErrInputMissing, what)
	}
	info, err := os.Stat(path)
	if err != nil {
		return inputErr(what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s %s is a directory", usecase.ErrInputMissing, what, path)
	}
	return nil
}

func inputErr(what string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", usecase.ErrInputMissing, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ensure adapters implement ports
var (
	_ ports.Encoder     = (*ffmpeg.Adapter)(nil)
	_ ports.StoryWriter = (*openrouter.Adapter)(nil)
	_ ports.ClipSearch  = (*twelvelabs.Adapter)(nil)
	_ ports.Voice       = (*elevenlabs.Adapter)(nil)
)
