package composer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akshayp/chirpmedia/internal/notify"
	"github.com/akshayp/chirpmedia/internal/uploader"
	"github.com/akshayp/chirpmedia/internal/validate"
)

// Kind distinguishes the two attachment flavors. Images travel inline with
// the post; videos go through the chunked upload pipeline first.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var (
	// ErrUploadInProgress rejects a second video while one is still uploading.
	ErrUploadInProgress = errors.New("a video upload is already in progress")

	// ErrMixedMedia rejects mixing a video with other media in the same post.
	ErrMixedMedia = errors.New("a post cannot mix video with other media")
)

// Selected is a file the user picked: declared metadata plus random-access
// contents.
type Selected struct {
	Name string
	Size int64
	Type string
	Data io.ReaderAt
}

func (s Selected) info() validate.FileInfo {
	return validate.FileInfo{Name: s.Name, Size: s.Size, Type: s.Type}
}

// Preview is a revocable on-screen reference to a selected file. Release
// must be idempotent and must be called before the attachment is dropped;
// previews must never leak.
type Preview interface {
	URL() string
	Release()
}

// PreviewFactory creates a preview for a selected file.
type PreviewFactory func(Selected) Preview

type memoryPreview struct {
	url  string
	once sync.Once
}

func (p *memoryPreview) URL() string { return p.url }
func (p *memoryPreview) Release()    { p.once.Do(func() { p.url = "" }) }

// MemoryPreviews is the default factory: opaque in-process URLs with
// idempotent release.
func MemoryPreviews(s Selected) Preview {
	return &memoryPreview{url: "preview://" + uuid.New().String()}
}

// Attachment is one pending media item in the composer, exclusively owned by
// it.
type Attachment struct {
	Kind     Kind
	File     validate.FileInfo
	UploadID string

	preview Preview
	session *uploader.Session
}

// PreviewURL exposes the attachment's on-screen preview reference.
func (a *Attachment) PreviewURL() string { return a.preview.URL() }

// Composer owns the pending attachment list for a single post draft. At most
// one video upload session exists per composer at a time.
type Composer struct {
	mu sync.Mutex

	uploads   *uploader.Client
	validator *validate.Validator
	notifier  notify.Notifier
	previews  PreviewFactory
	log       zerolog.Logger

	attachments []*Attachment
	uploading   bool
	progress    int
}

// New creates a composer. notifier and previews may be nil for the defaults.
func New(uploads *uploader.Client, validator *validate.Validator, notifier notify.Notifier, previews PreviewFactory, logger zerolog.Logger) *Composer {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if previews == nil {
		previews = MemoryPreviews
	}
	if validator == nil {
		validator = validate.New(0, 0)
	}
	return &Composer{
		uploads:   uploads,
		validator: validator,
		notifier:  notifier,
		previews:  previews,
		log:       logger.With().Str("component", "composer").Logger(),
	}
}

// Attachments returns a snapshot of the pending attachments.
func (c *Composer) Attachments() []*Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Attachment, len(c.attachments))
	copy(out, c.attachments)
	return out
}

// IsUploading reports whether a video upload session is active.
func (c *Composer) IsUploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

// Progress returns the active upload's last reported percentage.
func (c *Composer) Progress() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// AttachImage validates and queues an image. A failing file is rejected
// entirely and the user is notified.
func (c *Composer) AttachImage(file Selected) (*Attachment, error) {
	if err := c.validator.Image(file.info()); err != nil {
		c.notifier.Error(err.Error())
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasVideoLocked() {
		c.notifier.Error(ErrMixedMedia.Error())
		return nil, ErrMixedMedia
	}

	att := &Attachment{Kind: KindImage, File: file.info(), preview: c.previews(file)}
	c.attachments = append(c.attachments, att)
	return att, nil
}

// AttachVideo validates the file, queues it with a preview, and runs the
// chunked upload to completion. On any terminal failure the attachment is
// discarded, its preview released, and exactly one error toast is shown; the
// user must re-select the file to retry.
func (c *Composer) AttachVideo(ctx context.Context, file Selected) (*Attachment, error) {
	if err := c.validator.Video(file.info()); err != nil {
		c.notifier.Error(err.Error())
		return nil, err
	}

	c.mu.Lock()
	if c.uploading || c.hasVideoLocked() {
		c.mu.Unlock()
		c.notifier.Error(ErrUploadInProgress.Error())
		return nil, ErrUploadInProgress
	}
	if len(c.attachments) > 0 {
		c.mu.Unlock()
		c.notifier.Error(ErrMixedMedia.Error())
		return nil, ErrMixedMedia
	}

	session := c.uploads.NewSession(
		uploader.File{Name: file.Name, Size: file.Size, Data: file.Data},
		c.setProgress,
	)
	att := &Attachment{Kind: KindVideo, File: file.info(), preview: c.previews(file), session: session}
	c.attachments = append(c.attachments, att)
	c.uploading = true
	c.progress = 0
	c.mu.Unlock()

	if err := session.Upload(ctx); err != nil {
		c.discard(att)
		c.notifier.Error(uploadFailureMessage(err, file.Name))
		return nil, err
	}

	c.mu.Lock()
	att.UploadID = session.UploadID()
	c.uploading = false
	c.progress = 100
	c.mu.Unlock()

	c.notifier.Success(fmt.Sprintf("%s uploaded", file.Name))
	return att, nil
}

// Remove drops one attachment, releasing its preview. A video removed
// mid-upload abandons the session; in-flight requests are not cancelled at
// the transport level but their results are ignored.
func (c *Composer) Remove(att *Attachment) {
	c.discard(att)
}

// Clear drops every attachment and releases every preview.
func (c *Composer) Clear() {
	c.mu.Lock()
	dropped := c.attachments
	c.attachments = nil
	c.uploading = false
	c.progress = 0
	c.mu.Unlock()

	for _, att := range dropped {
		att.preview.Release()
	}
}

func (c *Composer) discard(att *Attachment) {
	c.mu.Lock()
	for i, a := range c.attachments {
		if a == att {
			c.attachments = append(c.attachments[:i], c.attachments[i+1:]...)
			break
		}
	}
	if att.Kind == KindVideo {
		c.uploading = false
		c.progress = 0
	}
	c.mu.Unlock()

	att.preview.Release()
}

func (c *Composer) setProgress(p int) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
}

func (c *Composer) hasVideoLocked() bool {
	for _, a := range c.attachments {
		if a.Kind == KindVideo {
			return true
		}
	}
	return false
}

func uploadFailureMessage(err error, name string) string {
	var chunkErr *uploader.ChunkUploadError
	switch {
	case errors.Is(err, uploader.ErrInitializationFailed):
		return fmt.Sprintf("could not start the upload of %s; please try again", name)
	case errors.As(err, &chunkErr):
		return fmt.Sprintf("the upload of %s was interrupted; please try again", name)
	case errors.Is(err, uploader.ErrCompletionFailed):
		return fmt.Sprintf("the upload of %s could not be finalized; please try again", name)
	default:
		return fmt.Sprintf("the upload of %s failed; please try again", name)
	}
}
