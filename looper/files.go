package looper

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"go-looper/debug"
)

// resolveLoopFile looks for name as given, then inside the recordings dir.
func (l *Looper) resolveLoopFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	if !filepath.IsAbs(name) && l.cfg.RecordingsDir != "" {
		alt := filepath.Join(l.cfg.RecordingsDir, name)
		if _, err := os.Stat(alt); err == nil {
			return alt, nil
		}
	}
	return "", errors.Wrapf(ErrFileNotFound, "loop file %s", name)
}

// LoadLoopFile decodes a WAV file into the slot for note. The first
// channel is used and anything past the slot capacity is dropped.
func (l *Looper) LoadLoopFile(note int, name string) error {
	if l == nil {
		return ErrClosed
	}
	if !validNote(note) {
		return ErrInvalidNote
	}
	path, err := l.resolveLoopFile(name)
	if err != nil {
		return err
	}
	a, err := l.readLoopAudio(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{
		Kind:  IntentLoadAudio,
		Note:  int16(note),
		Audio: a,
	}); err != nil {
		return err
	}
	l.releaseClaim(note)
	l.files[note] = name
	debug.Log("files", "note %d <- %s (%d frames @ %d Hz)", note, path, len(a.Samples), a.SampleRate)
	return nil
}
