package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ratectl/ratectl/internal/service"
)

// Prompter implements interactive terminal prompting for the import and
// indexation flows.
type Prompter struct {
	reader *NonBlockingReader
	writer io.Writer
}

// NewPrompter creates a prompter with the given reader and writer. Nil
// arguments fall back to stdin and stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// Confirm asks a yes/no question. Empty input picks the default answer.
func (p *Prompter) Confirm(ctx context.Context, question string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	for {
		if _, err := fmt.Fprintf(p.writer, "%s %s ", FormatPrompt(question), hint); err != nil {
			return false, fmt.Errorf("failed to write prompt: %w", err)
		}

		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, fmt.Errorf("input terminated")
			}
			return false, err
		}

		switch strings.ToLower(answer) {
		case "":
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Please answer y or n.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

// SelectFile lists the files in dir matching pattern and asks the user to
// pick one by number. The returned path includes dir.
func (p *Prompter) SelectFile(ctx context.Context, dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no files matching %s in %s", pattern, dir)
	}
	sort.Strings(matches)

	var list strings.Builder
	for i, match := range matches {
		fmt.Fprintf(&list, "%d. %s\n", i+1, filepath.Base(match))
	}

	box := RenderBox(FolderIcon+" "+dir, strings.TrimRight(list.String(), "\n"))
	if _, err := fmt.Fprintln(p.writer, box); err != nil {
		return "", fmt.Errorf("failed to write file list: %w", err)
	}

	prompt := fmt.Sprintf("Select file [1-%d]", len(matches))
	for {
		if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("input terminated")
			}
			return "", err
		}

		choice, err := strconv.Atoi(answer)
		if err == nil && choice >= 1 && choice <= len(matches) {
			return matches[choice-1], nil
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid selection. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

// Ensure Prompter implements the service.Prompter interface.
var _ service.Prompter = (*Prompter)(nil)
