package validate

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Default size limits for media selected in the composer: 10 MiB for images,
// 1 GiB for video.
const (
	MaxImageSize int64 = 10 * 1024 * 1024
	MaxVideoSize int64 = 1024 * 1024 * 1024
)

// FileInfo carries the facts about a selected file that are known before any
// bytes are read: its declared name, size and MIME type.
type FileInfo struct {
	Name string
	Size int64
	Type string
}

// FileTooLargeError reports a file over the configured size limit.
type FileTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("%s is too large (%s); the maximum size is %s",
		e.Name, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

// InvalidTypeError reports a file whose declared type is not acceptable.
type InvalidTypeError struct {
	Name string
	Type string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("%s is not a video file (type %q)", e.Name, e.Type)
}

// Validator holds the size limits applied to selected media. The zero value
// is not usable; construct with New or use the package-level helpers.
type Validator struct {
	maxImageSize int64
	maxVideoSize int64
}

// New creates a validator with custom limits. Non-positive limits fall back
// to the package defaults.
func New(maxImageSize, maxVideoSize int64) *Validator {
	if maxImageSize <= 0 {
		maxImageSize = MaxImageSize
	}
	if maxVideoSize <= 0 {
		maxVideoSize = MaxVideoSize
	}
	return &Validator{maxImageSize: maxImageSize, maxVideoSize: maxVideoSize}
}

// Image checks a selected image before it is queued as an attachment.
// Images are accepted on size alone.
func (v *Validator) Image(f FileInfo) error {
	if f.Size > v.maxImageSize {
		return &FileTooLargeError{Name: f.Name, Size: f.Size, Limit: v.maxImageSize}
	}
	return nil
}

// Video checks a selected video before an upload session is created.
func (v *Validator) Video(f FileInfo) error {
	if f.Size > v.maxVideoSize {
		return &FileTooLargeError{Name: f.Name, Size: f.Size, Limit: v.maxVideoSize}
	}
	if !strings.HasPrefix(f.Type, "video/") {
		return &InvalidTypeError{Name: f.Name, Type: f.Type}
	}
	return nil
}

// Image validates with the default limits.
func Image(f FileInfo) error { return New(0, 0).Image(f) }

// Video validates with the default limits.
func Video(f FileInfo) error { return New(0, 0).Video(f) }
