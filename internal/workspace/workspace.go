package workspace

import (
	"fmt"
	"strings"
	"time"

	"chithravani/internal/preview"
)

// Workspace is one upload-to-story session. It is not safe for concurrent
// use; Store serialises access.
type Workspace struct {
	id             string
	images         *ImageList
	genre          Genre
	characters     string
	story          string
	step           Step
	loading        bool
	characterModal bool
	updatedAt      time.Time
	now            func() time.Time
}

func New(id string, previews Previews) *Workspace {
	return newWorkspace(id, previews, time.Now)
}

func newWorkspace(id string, previews Previews, now func() time.Time) *Workspace {
	return &Workspace{
		id:        id,
		images:    NewImageList(previews),
		genre:     DefaultGenre,
		step:      StepUpload,
		updatedAt: now(),
		now:       now,
	}
}

func (w *Workspace) ID() string         { return w.id }
func (w *Workspace) Genre() Genre       { return w.genre }
func (w *Workspace) Characters() string { return w.characters }
func (w *Workspace) Story() string      { return w.story }
func (w *Workspace) Step() Step         { return w.step }
func (w *Workspace) Loading() bool      { return w.loading }
func (w *Workspace) Images() []Entry    { return w.images.Entries() }
func (w *Workspace) ImageCount() int    { return w.images.Len() }

func (w *Workspace) CharacterModalOpen() bool { return w.characterModal }

func (w *Workspace) UpdatedAt() time.Time { return w.updatedAt }

func (w *Workspace) AddImages(sources ...Source) ([]Entry, error) {
	if w.loading {
		return nil, ErrBusy
	}
	if len(sources) == 0 {
		return nil, nil
	}
	added := w.images.Add(sources...)
	w.invalidateStory()
	w.touch()
	return added, nil
}

func (w *Workspace) RemoveImage(id string) error {
	if w.loading {
		return ErrBusy
	}
	if _, err := w.images.Remove(id); err != nil {
		return err
	}
	w.invalidateStory()
	if w.images.Len() == 0 {
		w.step = StepUpload
	}
	w.touch()
	return nil
}

// ReorderImages moves activeID to the slot of overID. Dropping an image on
// itself changes nothing and keeps the story.
func (w *Workspace) ReorderImages(activeID, overID string) (bool, error) {
	if w.loading {
		return false, ErrBusy
	}
	moved, err := w.images.Reorder(activeID, overID)
	if err != nil || !moved {
		return false, err
	}
	w.invalidateStory()
	w.touch()
	return true, nil
}

func (w *Workspace) MoveImage(from, to int) error {
	if w.loading {
		return ErrBusy
	}
	if err := w.images.Move(from, to); err != nil {
		return err
	}
	if from != to {
		w.invalidateStory()
	}
	w.touch()
	return nil
}

func (w *Workspace) SetGenre(g Genre) error {
	parsed, ok := ParseGenre(string(g))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGenre, g)
	}
	w.genre = parsed
	w.touch()
	return nil
}

func (w *Workspace) SetCharacters(text string) {
	w.characters = text
	w.touch()
}

func (w *Workspace) hasCharacters() bool {
	return strings.TrimSpace(w.characters) != ""
}

// Continue drives the step controller forward.
func (w *Workspace) Continue() (Transition, error) {
	switch w.step {
	case StepUpload:
		if w.images.Len() == 0 {
			return 0, ErrNoImages
		}
		w.step = StepGenre
	case StepGenre:
		w.step = StepCharacters
	case StepCharacters:
		if !w.hasCharacters() {
			w.characterModal = true
			w.touch()
			return TransitionModal, nil
		}
		w.step = StepGenerate
	default:
		return 0, fmt.Errorf("%w: no step after %s", ErrInvalidTransition, w.step)
	}
	w.touch()
	return TransitionAdvanced, nil
}

// EditSettings goes back from Generate to Genre without clearing anything.
func (w *Workspace) EditSettings() error {
	if w.step != StepGenerate {
		return fmt.Errorf("%w: edit settings from %s", ErrInvalidTransition, w.step)
	}
	w.step = StepGenre
	w.touch()
	return nil
}

func (w *Workspace) OpenCharacterModal() {
	w.characterModal = true
	w.touch()
}

// CancelCharacterModal closes the modal and keeps whatever was typed.
func (w *Workspace) CancelCharacterModal() {
	w.characterModal = false
	w.touch()
}

// SubmitCharacterModal closes the modal. The caller should start generation
// when it returns nil.
func (w *Workspace) SubmitCharacterModal() error {
	if !w.hasCharacters() {
		return ErrCharactersRequired
	}
	w.characterModal = false
	if w.step == StepCharacters {
		w.step = StepGenerate
	}
	w.touch()
	return nil
}

func (w *Workspace) CanGenerate() bool {
	return !w.loading && w.images.Len() > 0
}

// BeginGeneration checks the preconditions and marks the workspace as
// loading. With empty characters it opens the character modal and returns
// ErrCharactersRequired; no request must be sent in that case.
func (w *Workspace) BeginGeneration() (GenerationRequest, error) {
	if w.loading {
		return GenerationRequest{}, ErrBusy
	}
	if w.images.Len() == 0 {
		return GenerationRequest{}, ErrNoImages
	}
	if !w.hasCharacters() {
		w.characterModal = true
		w.touch()
		return GenerationRequest{}, ErrCharactersRequired
	}

	w.loading = true
	w.images.SetStatus(StatusAnalyzing)
	w.touch()

	return GenerationRequest{
		Images:     w.images.Sources(),
		Genre:      w.genre,
		Characters: w.characters,
	}, nil
}

func (w *Workspace) CompleteGeneration(story string) {
	w.story = story
	w.images.SetStatus(StatusComplete)
	w.loading = false
	w.touch()
}

func (w *Workspace) FailGeneration() {
	w.images.SetStatus(StatusReady)
	w.loading = false
	w.touch()
}

// Close releases every preview handle. The workspace must not be used
// afterwards.
func (w *Workspace) Close() {
	w.images.ReleaseAll()
	w.story = ""
	w.loading = false
	w.characterModal = false
}

func (w *Workspace) invalidateStory() {
	w.story = ""
}

func (w *Workspace) touch() {
	w.updatedAt = w.now()
}

type ImageInfo struct {
	ID       string         `json:"id"`
	Position int            `json:"position"`
	Name     string         `json:"name"`
	MimeType string         `json:"mime_type"`
	Size     int            `json:"size"`
	Preview  preview.Handle `json:"preview"`
	Status   Status         `json:"status"`
}

type Snapshot struct {
	ID                 string      `json:"id"`
	Images             []ImageInfo `json:"images"`
	Genre              Genre       `json:"genre"`
	Characters         string      `json:"characters"`
	Story              string      `json:"story,omitempty"`
	Step               Step        `json:"step"`
	StepCaption        string      `json:"step_caption"`
	Loading            bool        `json:"loading"`
	CharacterModalOpen bool        `json:"character_modal_open"`
	CanGenerate        bool        `json:"can_generate"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (s Snapshot) HasCharacters() bool {
	return strings.TrimSpace(s.Characters) != ""
}

func (s Snapshot) ImageIDs() []string {
	out := make([]string, 0, len(s.Images))
	for _, img := range s.Images {
		out = append(out, img.ID)
	}
	return out
}

func (w *Workspace) Snapshot() Snapshot {
	entries := w.images.Entries()
	images := make([]ImageInfo, 0, len(entries))
	for i, e := range entries {
		images = append(images, ImageInfo{
			ID:       e.ID,
			Position: i + 1,
			Name:     e.Source.Name,
			MimeType: e.Source.MimeType,
			Size:     len(e.Source.Data),
			Preview:  e.Preview,
			Status:   e.Status,
		})
	}

	return Snapshot{
		ID:                 w.id,
		Images:             images,
		Genre:              w.genre,
		Characters:         w.characters,
		Story:              w.story,
		Step:               w.step,
		StepCaption:        w.step.Caption(len(entries)),
		Loading:            w.loading,
		CharacterModalOpen: w.characterModal,
		CanGenerate:        w.CanGenerate(),
		UpdatedAt:          w.updatedAt,
	}
}
