package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultMixCodec   = "libmp3lame"
	DefaultPreset     = "fast"
	DefaultCRF        = 18

	maxStderrBytes = 8 * 1024
)

type Options struct {
	FFmpegPath string
	VideoCodec string
	AudioCodec string
	MixCodec   string
	Preset     string
	CRF        int
}

type Adapter struct {
	ffmpeg string
	opts   Options
	log    zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Adapter {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = DefaultVideoCodec
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = DefaultAudioCodec
	}
	if opts.MixCodec == "" {
		opts.MixCodec = DefaultMixCodec
	}
	if opts.Preset == "" {
		opts.Preset = DefaultPreset
	}
	if opts.CRF <= 0 {
		opts.CRF = DefaultCRF
	}
	return &Adapter{
		ffmpeg: opts.FFmpegPath,
		opts:   opts,
		log:    log.With().Str("component", "ffmpeg").Logger(),
	}
}

func (a *Adapter) Cut(ctx context.Context, source string, iv types.Interval, out string) error {
	if !iv.Valid() || !iv.Millis().Valid() {
		return fmt.Errorf("ffmpeg cut: invalid interval %v", iv)
	}
	if err := requireFile(source); err != nil {
		return fmt.Errorf("ffmpeg cut: %w", err)
	}
	return a.run(ctx, "cut", a.cutArgs(source, iv, out))
}

func (a *Adapter) cutArgs(source string, iv types.Interval, out string) []string {
	iv = iv.Millis()
	return []string{
		"-y",
		"-ss", types.FormatSeconds(iv.Start),
		"-to", types.FormatSeconds(iv.End),
		"-i", source,
		"-c:v", a.opts.VideoCodec,
		"-preset", a.opts.Preset,
		"-crf", strconv.Itoa(a.opts.CRF),
		"-c:a", a.opts.AudioCodec,
		"-avoid_negative_ts", "make_zero",
		out,
	}
}

// Concat joins inputs with the concat demuxer. Every input must come from Cut
// so codec parameters match and stream copy is safe.
func (a *Adapter) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return errors.New("ffmpeg concat: no inputs")
	}
	for _, in := range inputs {
		if err := requireFile(in); err != nil {
			return fmt.Errorf("ffmpeg concat: %w", err)
		}
	}

	listPath := filepath.Join(filepath.Dir(inputs[0]), "concat_list.txt")
	list, err := concatList(inputs)
	if err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	if err := os.WriteFile(listPath, []byte(list), 0o644); err != nil {
		return fmt.Errorf("ffmpeg concat: write list: %w", err)
	}
	defer os.Remove(listPath)

	return a.run(ctx, "concat", []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		out,
	})
}

func concatList(inputs []string) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", err
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String(), nil
}

// Mix blends the attenuated original audio with the narration into
// req.TempAudio, then remuxes it under the untouched video track. TempAudio
// is removed whatever the outcome.
func (a *Adapter) Mix(ctx context.Context, req ports.MixRequest) error {
	for _, p := range []string{req.Video, req.Narration} {
		if err := requireFile(p); err != nil {
			return fmt.Errorf("ffmpeg mix: %w", err)
		}
	}
	defer func() {
		if err := os.Remove(req.TempAudio); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.log.Warn().Err(err).Str("path", req.TempAudio).Msg("remove mixed audio")
		}
	}()

	if err := a.run(ctx, "mix audio", a.mixArgs(req)); err != nil {
		return err
	}
	return a.run(ctx, "remux", a.remuxArgs(req))
}

func (a *Adapter) mixArgs(req ports.MixRequest) []string {
	return []string{
		"-y",
		"-i", req.Video,
		"-i", req.Narration,
		"-filter_complex", mixFilter(req.OriginalGain, req.NarrationGain),
		"-c:a", a.opts.MixCodec,
		req.TempAudio,
	}
}

func (a *Adapter) remuxArgs(req ports.MixRequest) []string {
	return []string{
		"-y",
		"-i", req.Video,
		"-i", req.TempAudio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", a.opts.AudioCodec,
		"-shortest",
		req.Output,
	}
}

func mixFilter(originalGain, narrationGain float64) string {
	return fmt.Sprintf("[0:a]volume=%s[a1];[1:a]volume=%s[a2];[a1][a2]amix=inputs=2:duration=longest",
		strconv.FormatFloat(originalGain, 'f', -1, 64),
		strconv.FormatFloat(narrationGain, 'f', -1, 64),
	)
}

func (a *Adapter) run(ctx context.Context, op string, args []string) error {
	a.log.Debug().Str("op", op).Strs("args", args).Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg %s: %w", op, ctx.Err())
		}
		return fmt.Errorf("ffmpeg %s: %w\n%s", op, err, tail(b, maxStderrBytes))
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
