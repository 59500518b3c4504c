package ui

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/editor"
	"github.com/fsnotify/fsnotify"

	"github.com/Dherick07/dexterous/internal/samples"
	"github.com/Dherick07/dexterous/tts"
)

// sessionEventMsg carries one lifecycle event off the generation bus.
type sessionEventMsg struct {
	event tts.Event
}

// voicesLoadedMsg delivers the voice catalog, or the error fetching
// it.
type voicesLoadedMsg struct {
	voices []string
	err    error
}

// generateStartedMsg reports the synchronous outcome of starting a
// session. Validation failures land here; everything after a
// successful start arrives as session events.
type generateStartedMsg struct {
	session *tts.Session
	err     error
}

// artifactSavedMsg reports where generated audio was written.
type artifactSavedMsg struct {
	path string
	err  error
}

// statusMsg sets a transient status line.
type statusMsg struct {
	text  string
	isErr bool
}

// statusTimeoutMsg clears a transient status line. The token guards
// against a stale timeout wiping a newer message.
type statusTimeoutMsg struct {
	token int
}

// previewDoneMsg reports a voice preview attempt.
type previewDoneMsg struct {
	voice string
	err   error
}

// editorFinishedMsg returns the composer text edited externally.
type editorFinishedMsg struct {
	content string
	err     error
}

// fileChangedMsg reports that the composer's source file changed on
// disk.
type fileChangedMsg struct{}

// fileReloadedMsg delivers freshly read source file content.
type fileReloadedMsg struct {
	content string
	err     error
}

// listenForEvents waits for the next event on the subscription. The
// model re-issues this command after every received event.
func listenForEvents(sub *tts.Subscription) tea.Cmd {
	return func() tea.Msg {
		return sessionEventMsg{event: <-sub.Events()}
	}
}

// fetchVoices loads the voice catalog from the speech server.
func fetchVoices(lister VoiceLister) tea.Cmd {
	return func() tea.Msg {
		voices, err := lister.Voices(context.Background())
		return voicesLoadedMsg{voices: voices, err: err}
	}
}

// startGeneration cancels any non-terminal session, waits for it to
// settle, and starts a new one. The selection must be a snapshot the
// model no longer mutates.
func startGeneration(ctrl *tts.Controller, text string, sel *tts.Selection, speed float64) tea.Cmd {
	return func() tea.Msg {
		if s := ctrl.Active(); s != nil && !s.State().Terminal() {
			s.Cancel()
			<-s.Done()
		}
		session, err := ctrl.Start(context.Background(), text, sel, speed)
		return generateStartedMsg{session: session, err: err}
	}
}

// cancelGeneration cancels the active session, if any.
func cancelGeneration(ctrl *tts.Controller) tea.Cmd {
	return func() tea.Msg {
		if !ctrl.Cancel() {
			return statusMsg{text: "nothing to cancel"}
		}
		return nil
	}
}

// togglePlayback pauses live playback, or resumes it when paused.
func togglePlayback(ctrl *tts.Controller) tea.Cmd {
	return func() tea.Msg {
		var err error
		if ctrl.PlaybackActive() {
			err = ctrl.Pause()
		} else {
			err = ctrl.Resume()
		}
		if err != nil {
			return statusMsg{text: err.Error(), isErr: true}
		}
		return nil
	}
}

// saveArtifact writes the artifact into the download directory under
// its canonical filename.
func saveArtifact(artifact *tts.Artifact, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := artifact.Save(dir)
		return artifactSavedMsg{path: path, err: err}
	}
}

// copyToClipboard puts the saved artifact path on the system
// clipboard.
func copyToClipboard(path string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(path); err != nil {
			return statusMsg{text: "clipboard: " + err.Error(), isErr: true}
		}
		return statusMsg{text: "path copied to clipboard"}
	}
}

// previewVoice plays a stored sample clip for the voice through the
// playback sink.
func previewVoice(sink tts.PlaybackSink, store *samples.Store, voice string) tea.Cmd {
	return func() tea.Msg {
		clip, err := store.Open(voice)
		if err != nil {
			return previewDoneMsg{voice: voice, err: err}
		}
		contentType := tts.ContentTypeForFormat(store.Format())
		if err := sink.Play(bytes.NewReader(clip), contentType); err != nil {
			return previewDoneMsg{voice: voice, err: err}
		}
		return previewDoneMsg{voice: voice}
	}
}

// editText hands the composer content to $EDITOR and reads it back.
func editText(content string) tea.Cmd {
	tmp, err := os.CreateTemp("", "dexterous-*.txt")
	if err != nil {
		return func() tea.Msg { return editorFinishedMsg{err: err} }
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return func() tea.Msg { return editorFinishedMsg{err: err} }
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return func() tea.Msg { return editorFinishedMsg{err: err} }
	}

	cmd, err := editor.Cmd("dexterous", tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return func() tea.Msg { return editorFinishedMsg{err: err} }
	}
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		defer os.Remove(tmp.Name())
		if err != nil {
			return editorFinishedMsg{err: err}
		}
		data, err := os.ReadFile(tmp.Name())
		return editorFinishedMsg{content: string(data), err: err}
	})
}

// waitForFileChange blocks until the watched source file is written
// and reports it. Editors replace files on save, so the watcher
// watches the directory and the name is matched here.
func waitForFileChange(watcher *fsnotify.Watcher, path string) tea.Cmd {
	base := filepath.Base(path)
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
					return fileChangedMsg{}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				return statusMsg{text: "watch: " + err.Error(), isErr: true}
			}
		}
	}
}

// reloadFile reads the source file again.
func reloadFile(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		return fileReloadedMsg{content: string(data), err: err}
	}
}
