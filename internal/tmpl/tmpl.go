// Package tmpl substitutes parameter values into templated model input
// files. Each Pipe binds a template file (read once, cached in memory)
// to the target file written before every model run.
package tmpl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sub is one token replacement.
type Sub struct {
	Token string
	Value string
}

// Pipe holds a template in memory and writes substituted copies of it.
type Pipe struct {
	template string // template file path
	target   string // target file path
	contents string // cached template text
}

// NewPipe reads the template file and binds it to the target path.
func NewPipe(template, target string) (*Pipe, error) {
	data, err := os.ReadFile(template)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", template, err)
	}
	return &Pipe{template: template, target: target, contents: string(data)}, nil
}

// Template returns the template file path.
func (p *Pipe) Template() string { return p.template }

// Target returns the target file path.
func (p *Pipe) Target() string { return p.target }

// Retarget rebinds the pipe to a new target path, used when evaluations
// run inside per-rank working directories.
func (p *Pipe) Retarget(dir string) {
	p.target = filepath.Join(dir, filepath.Base(p.target))
}

// Contains reports whether the template text mentions the token.
func (p *Pipe) Contains(token string) bool {
	return strings.Contains(p.contents, token)
}

// Substitute applies all replacements to a copy of the template text and
// writes the result atomically to the target path. Tokens are replaced
// longest-first so that no token can clobber another token it is a
// prefix of. Returns the total number of replacements made.
func (p *Pipe) Substitute(subs []Sub) (int, error) {
	ordered := make([]Sub, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Token) > len(ordered[j].Token)
	})

	text := p.contents
	total := 0
	for _, s := range ordered {
		n := strings.Count(text, s.Token)
		if n == 0 {
			continue
		}
		text = strings.ReplaceAll(text, s.Token, s.Value)
		total += n
	}

	if err := writeAtomic(p.target, []byte(text)); err != nil {
		return total, err
	}
	return total, nil
}

// writeAtomic writes data via a temp file and rename so a crashed run
// never leaves a half-written model input behind.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}
