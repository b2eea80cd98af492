package main

import (
	"path/filepath"

	"github.com/v0xg/uiverify/internal/gifgen"
	"github.com/v0xg/uiverify/internal/overlay"
	"github.com/v0xg/uiverify/internal/runner"
)

// writeReplay turns a run's screenshots into <artifacts>/<scenario>/replay.gif.
// It returns an empty path when the run produced no screenshots.
func writeReplay(res runner.Result, artifactsDir string) (string, int64, error) {
	paths := res.Artifacts()
	if len(paths) == 0 {
		return "", 0, nil
	}

	frames, err := gifgen.LoadFrames(paths)
	if err != nil {
		return "", 0, err
	}
	frames, err = overlay.ApplyOutcome(frames, replayMarks(res, paths))
	if err != nil {
		return "", 0, err
	}

	out := filepath.Join(artifactsDir, res.Scenario(), "replay.gif")
	size, err := gifgen.Generate(frames, out, gifgen.Options{MaxWidth: gifgen.DefaultMaxWidth})
	if err != nil {
		return "", 0, err
	}
	return out, size, nil
}

func replayMarks(res runner.Result, paths []string) []overlay.Mark {
	marks := make([]overlay.Mark, len(paths))
	for i, p := range paths {
		switch {
		case p == res.FailureArtifact():
			marks[i] = overlay.MarkFailed
		case res.Passed() && filepath.Base(p) == "passed.png":
			marks[i] = overlay.MarkPassed
		default:
			marks[i] = overlay.MarkStep
		}
	}
	return marks
}
