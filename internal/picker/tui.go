package picker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/jlettvin/browseiso/internal/log"
)

// TUI is a terminal file browser restricted to archive images
type TUI struct {
	extensions []string
	pick       func(ctx context.Context, dir string) (string, error)
}

// NewTUI creates a terminal picker for the given archive extensions
func NewTUI(extensions []string) *TUI {
	p := &TUI{extensions: extensions}
	p.pick = p.runForm
	return p
}

// Choose shows the file browser and blocks until a file is picked or the
// user aborts
func (p *TUI) Choose(ctx context.Context, defaultPath, startURI string) (string, bool, error) {
	dir := startDirectory(defaultPath, startURI)
	log.Debug("opening terminal picker", "dir", dir, "default", defaultPath)

	path, err := p.pick(ctx, dir)
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
		log.Debug("closed, no files selected")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("run file picker: %w", err)
	}
	if path == "" {
		return "", false, nil
	}

	log.Debug("archive selected", "path", path)
	return path, true, nil
}

func (p *TUI) runForm(ctx context.Context, dir string) (string, error) {
	var selected string

	field := huh.NewFilePicker().
		Title("Search for ISO file archive").
		Description(fmt.Sprintf("Archive images (%s) in %s", strings.Join(p.extensions, ", "), dir)).
		CurrentDirectory(dir).
		AllowedTypes(p.allowedTypes()).
		FileAllowed(true).
		DirAllowed(false).
		Picking(true).
		Value(&selected)

	form := huh.NewForm(huh.NewGroup(field))
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return selected, nil
}

// allowedTypes lists each extension in lower and upper case; the file
// picker matches suffixes case-sensitively
func (p *TUI) allowedTypes() []string {
	types := make([]string, 0, 2*len(p.extensions))
	for _, ext := range p.extensions {
		for _, v := range []string{strings.ToLower(ext), strings.ToUpper(ext)} {
			if !slices.Contains(types, v) {
				types = append(types, v)
			}
		}
	}
	return types
}
