package media

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusCreated  = "Created"
	StatusFinished = "Finished"
)

// UploadedStatus is the record status shown while a source is being copied.
func UploadedStatus(percent int) string {
	return fmt.Sprintf("%d%% Uploaded", percent)
}

// keyDelimiter separates the collection and row parts of a record key and
// the suffixes appended to task names.
const keyDelimiter = ";"

// RecordKey identifies a media record. Collection is the human title of the
// source file and Row the generated unique key.
type RecordKey struct {
	Collection string
	Row        string
}

func (k RecordKey) String() string {
	return k.Collection + keyDelimiter + k.Row
}

// ParseRecordKey parses "collection;row". Anything after a second delimiter
// is ignored so task names such as "title;row;Thumbnails" resolve to their
// record.
func ParseRecordKey(s string) (RecordKey, error) {
	parts := strings.SplitN(s, keyDelimiter, 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RecordKey{}, fmt.Errorf("invalid record key %q", s)
	}
	return RecordKey{Collection: parts[0], Row: parts[1]}, nil
}

// NewRowKey returns a unique row key whose lexical order is newest first:
// the inverted timestamp is zero padded to the full width of an int64 and a
// random UUID breaks ties.
func NewRowKey(now time.Time) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-now.UnixNano(), uuid.NewString())
}

// Record is the persisted processing record of one source file encoded with
// one encoder preset.
type Record struct {
	Collection     string        `json:"collection"`
	Row            string        `json:"row"`
	OriginalFile   string        `json:"original_file"`
	Encoding       string        `json:"encoding"`
	Protection     string        `json:"protection"`
	Renderer       string        `json:"renderer"`
	CreatedAt      time.Time     `json:"created_at"`
	ProcessingTime time.Duration `json:"processing_time"`
	ExpiresAt      time.Time     `json:"expires_at"`
	Status         string        `json:"status"`
	SizeBytes      int64         `json:"size_bytes"`
	URL            string        `json:"url"`
	ThumbnailURL   string        `json:"thumbnail_url"`
}

func (r *Record) Key() RecordKey {
	return RecordKey{Collection: r.Collection, Row: r.Row}
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// InProgress reports whether the record has not reached the finished status.
func (r *Record) InProgress() bool {
	return r.Status != StatusFinished
}

// SourceFile describes an uploaded file waiting to be encoded.
type SourceFile struct {
	// Name is the file name as uploaded, e.g. "interview.mp4".
	Name string `json:"name"`
	// Size is the size reported at upload time, 0 when unknown.
	Size int64 `json:"size"`
	// Ref is the storage reference of the uploaded object.
	Ref string `json:"ref"`
}

// FileName returns the base name of the file.
func (f SourceFile) FileName() string {
	return path.Base(f.Name)
}

// Title returns the file name without its extension.
func (f SourceFile) Title() string {
	name := f.FileName()
	return strings.TrimSuffix(name, path.Ext(name))
}

// Protection selects how encoded output is protected.
type Protection int

const (
	ProtectionNone Protection = iota
	ProtectionStorageEncrypted
	ProtectionCommonEncryption
	ProtectionEnvelopeEncryption
)

func (p Protection) String() string {
	switch p {
	case ProtectionStorageEncrypted:
		return "StorageEncrypted"
	case ProtectionCommonEncryption:
		return "CommonEncryptionProtected"
	case ProtectionEnvelopeEncryption:
		return "EnvelopeEncryptionProtected"
	default:
		return "None"
	}
}

// Description is the protection label stored on media records.
func (p Protection) Description() string {
	switch p {
	case ProtectionEnvelopeEncryption:
		return "PlayReady DRM"
	case ProtectionCommonEncryption:
		return "Ultra-Violet DRM"
	case ProtectionStorageEncrypted:
		return "Storage Encrypted"
	case ProtectionNone:
		return "HTTPS & SAS"
	default:
		return ""
	}
}

// ParseProtectionCode maps the numeric codes used by the upload form.
// Unknown or empty codes mean no protection.
func ParseProtectionCode(code string) Protection {
	switch strings.TrimSpace(code) {
	case "1":
		return ProtectionStorageEncrypted
	case "2":
		return ProtectionCommonEncryption
	case "3":
		return ProtectionEnvelopeEncryption
	default:
		return ProtectionNone
	}
}
