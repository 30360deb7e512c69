package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

// fakeFFmpeg writes a shell script that touches its last argument (the
// output path), appends its argv to a log, and exits with code.
func fakeFFmpeg(t *testing.T, code int) (bin, logPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a POSIX shell")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "ffmpeg")
	logPath = filepath.Join(dir, "calls.log")
	script := fmt.Sprintf("#!/bin/sh\nfor last; do :; done\n: > \"$last\"\necho \"$@\" >> %q\nexit %d\n", logPath, code)
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return bin, logPath
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
	return path
}

func readCalls(t *testing.T, logPath string) []string {
	t.Helper()
	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read call log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestCutArgs_ReencodesExactRange(t *testing.T) {
	a := New(Options{}, zerolog.Nop())
	got := strings.Join(a.cutArgs("/src.mp4", types.Interval{Start: 100, End: 106}, "/w/clip_0.mp4"), " ")
	want := "-y -ss 100.000 -to 106.000 -i /src.mp4 -c:v libx264 -preset fast -crf 18 -c:a aac -avoid_negative_ts make_zero /w/clip_0.mp4"
	if got != want {
		t.Fatalf("unexpected cut args:\n got %s\nwant %s", got, want)
	}
	if strings.Contains(got, "-c copy") {
		t.Fatalf("cut must not stream copy")
	}
}

func TestCutArgs_NeverExceedsClampedDuration(t *testing.T) {
	a := New(Options{}, zerolog.Nop())
	tests := []struct {
		iv         types.Interval
		start, end string
	}{
		{types.Interval{Start: 0.0005, End: 6.0005}, "0.001", "6.000"},
		{types.Interval{Start: 2.3, End: 8.3}, "2.300", "8.300"},
		{types.Interval{Start: 10.1234, End: 16.1234}, "10.124", "16.123"},
	}
	for _, tt := range tests {
		t.Run(tt.iv.String(), func(t *testing.T) {
			args := a.cutArgs("/src.mp4", tt.iv, "/w/clip.mp4")
			if args[2] != tt.start || args[4] != tt.end {
				t.Fatalf("cut bounds = %s..%s, want %s..%s", args[2], args[4], tt.start, tt.end)
			}
		})
	}
}

func TestCut_SubMillisecondInterval(t *testing.T) {
	a := New(Options{FFmpegPath: "/nonexistent/ffmpeg"}, zerolog.Nop())
	err := a.Cut(context.Background(), "/src.mp4", types.Interval{Start: 1.0001, End: 1.0004}, "out.mp4")
	if err == nil || !strings.Contains(err.Error(), "invalid interval") {
		t.Fatalf("expected invalid interval error, got %v", err)
	}
}

func TestCut_MissingSource(t *testing.T) {
	a := New(Options{FFmpegPath: "/nonexistent/ffmpeg"}, zerolog.Nop())
	err := a.Cut(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), types.Interval{Start: 0, End: 1}, "out.mp4")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestCut_NonZeroExitCarriesOutput(t *testing.T) {
	bin, _ := fakeFFmpeg(t, 1)
	dir := t.TempDir()
	src := touch(t, filepath.Join(dir, "src.mp4"))

	err := New(Options{FFmpegPath: bin}, zerolog.Nop()).Cut(context.Background(), src, types.Interval{Start: 0, End: 2}, filepath.Join(dir, "clip.mp4"))
	if err == nil || !strings.HasPrefix(err.Error(), "ffmpeg cut:") {
		t.Fatalf("expected ffmpeg cut error, got %v", err)
	}
}

func TestConcatList_QuotesPaths(t *testing.T) {
	got, err := concatList([]string{"/w/clip_0.mp4", "/w/it's.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	want := "file '/w/clip_0.mp4'\nfile '/w/it'\\''s.mp4'\n"
	if got != want {
		t.Fatalf("unexpected list:\n%q\nwant\n%q", got, want)
	}
}

func TestConcat_Validation(t *testing.T) {
	a := New(Options{FFmpegPath: "/nonexistent/ffmpeg"}, zerolog.Nop())
	if err := a.Concat(context.Background(), nil, "out.mp4"); err == nil {
		t.Fatalf("expected error for empty input list")
	}
	dir := t.TempDir()
	in := []string{touch(t, filepath.Join(dir, "a.mp4")), filepath.Join(dir, "b.mp4")}
	if err := a.Concat(context.Background(), in, filepath.Join(dir, "out.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error for missing segment, got %v", err)
	}
}

func TestConcat_StreamCopiesAndRemovesList(t *testing.T) {
	bin, logPath := fakeFFmpeg(t, 0)
	dir := t.TempDir()
	in := []string{touch(t, filepath.Join(dir, "clip_0.mp4")), touch(t, filepath.Join(dir, "clip_2.mp4"))}
	out := filepath.Join(dir, "joined.mp4")

	if err := New(Options{FFmpegPath: bin}, zerolog.Nop()).Concat(context.Background(), in, out); err != nil {
		t.Fatalf("concat: %v", err)
	}
	calls := readCalls(t, logPath)
	if len(calls) != 1 || !strings.Contains(calls[0], "-f concat -safe 0") || !strings.Contains(calls[0], "-c copy") {
		t.Fatalf("unexpected concat invocation: %v", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "concat_list.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected concat list removed, stat err=%v", err)
	}
}

func TestMixFilter(t *testing.T) {
	got := mixFilter(0.05, 1)
	want := "[0:a]volume=0.05[a1];[1:a]volume=1[a2];[a1][a2]amix=inputs=2:duration=longest"
	if got != want {
		t.Fatalf("mixFilter = %q, want %q", got, want)
	}
}

func TestMix_RemovesTempAudio(t *testing.T) {
	for _, code := range []int{0, 1} {
		t.Run(fmt.Sprintf("exit %d", code), func(t *testing.T) {
			bin, logPath := fakeFFmpeg(t, code)
			dir := t.TempDir()
			req := ports.MixRequest{
				Video:         touch(t, filepath.Join(dir, "joined.mp4")),
				Narration:     touch(t, filepath.Join(dir, "narration.mp3")),
				TempAudio:     filepath.Join(dir, "mixed.mp3"),
				Output:        filepath.Join(dir, "final.mp4"),
				OriginalGain:  0.05,
				NarrationGain: 1,
			}

			err := New(Options{FFmpegPath: bin}, zerolog.Nop()).Mix(context.Background(), req)
			if code == 0 && err != nil {
				t.Fatalf("mix: %v", err)
			}
			if code != 0 && err == nil {
				t.Fatalf("expected mix error")
			}
			if _, statErr := os.Stat(req.TempAudio); !os.IsNotExist(statErr) {
				t.Fatalf("temp audio left behind, stat err=%v", statErr)
			}

			calls := readCalls(t, logPath)
			if code != 0 {
				if len(calls) != 1 {
					t.Fatalf("expected to stop after failed mix step, got %d calls", len(calls))
				}
				return
			}
			if len(calls) != 2 {
				t.Fatalf("expected mix + remux calls, got %v", calls)
			}
			if !strings.Contains(calls[1], "-map 0:v -map 1:a -c:v copy -c:a aac -shortest") {
				t.Fatalf("unexpected remux invocation: %s", calls[1])
			}
			if _, err := os.Stat(req.Output); err != nil {
				t.Fatalf("expected final output: %v", err)
			}
		})
	}
}

func TestMix_MissingNarration(t *testing.T) {
	dir := t.TempDir()
	err := New(Options{FFmpegPath: "/nonexistent/ffmpeg"}, zerolog.Nop()).Mix(context.Background(), ports.MixRequest{
		Video:     touch(t, filepath.Join(dir, "joined.mp4")),
		Narration: filepath.Join(dir, "missing.mp3"),
		TempAudio: filepath.Join(dir, "mixed.mp3"),
		Output:    filepath.Join(dir, "final.mp4"),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
