package model

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var snapshotName = regexp.MustCompile(`^run\d+$`)

// Preserver keeps model output around after each evaluation instead of
// letting the next run overwrite it. The built-in behavior snapshots
// the working directory into run<counter>; a user command replaces the
// snapshot entirely.
type Preserver struct {
	Enabled bool
	Command string // user script, empty for the built-in snapshot
	BestCmd string // run whenever a new best evaluation completes
}

// AfterRun preserves the output of the evaluation that just finished
// in dir. Failures are logged, not fatal: losing a snapshot should not
// kill a long calibration.
func (p *Preserver) AfterRun(dir string, rank, counter int, best bool) {
	if p.Enabled {
		if p.Command != "" {
			p.runScript(p.Command, dir, rank, counter, best)
		} else if err := snapshot(dir, counter); err != nil {
			slog.Warn("failed to preserve model output", "run", counter, "err", err)
		}
	}
	if best && p.BestCmd != "" {
		p.runScript(p.BestCmd, dir, rank, counter, true)
	}
}

func (p *Preserver) runScript(command, dir string, rank, counter int, best bool) {
	category := "run"
	if best {
		category = "best"
	}
	args := append(strings.Fields(command),
		strconv.Itoa(rank), strconv.Itoa(counter), category)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.Warn("preserve command failed",
			"cmd", command, "run", counter, "err", err, "output", string(out))
	}
}

// snapshot copies the working directory into run<counter> inside it,
// skipping earlier snapshots so they do not nest.
func snapshot(dir string, counter int) error {
	dst := filepath.Join(dir, fmt.Sprintf("run%d", counter))
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if snapshotName.MatchString(ent.Name()) {
			continue
		}
		src := filepath.Join(dir, ent.Name())
		if err := copyTree(src, filepath.Join(dst, ent.Name()), ent); err != nil {
			return err
		}
	}
	return nil
}

func copyTree(src, dst string, ent os.DirEntry) error {
	if ent.IsDir() {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return err
		}
		children, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := copyTree(filepath.Join(src, c.Name()), filepath.Join(dst, c.Name()), c); err != nil {
				return err
			}
		}
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
