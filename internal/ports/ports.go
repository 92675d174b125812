package ports

import (
	"context"
	"errors"
	"time"

	"ContentPipeline/internal/domain"
)

// ErrRateLimited is returned by provider clients on HTTP 429.
var ErrRateLimited = errors.New("rate limited")

// RecordQuery narrows record selection for a pipeline stage.
type RecordQuery struct {
	Status         domain.Status
	RequireNoBody  bool
	RequireBody    bool
	RequireTitle   bool
	MissingOutline bool
	NeedsImage     bool
	Limit          int
}

// RecordUpdate carries the generated fields written back after ingestion.
type RecordUpdate struct {
	BodyHTML       string
	FocusKeyphrase string
	SEOTitle       string
	SEODescription string
	Tags           []string
	ImageFilename  string
	ImageCaption   string
	ImageAltText   string
	ImagePrompt    string
	Rewrite        bool
	Notes          string
	Status         domain.Status
}

// RecordRepository persists content records keyed by their stable identifier.
type RecordRepository interface {
	Select(ctx context.Context, q RecordQuery) ([]domain.ContentRecord, error)
	Get(ctx context.Context, id string) (domain.ContentRecord, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.ContentRecord, error)
	Insert(ctx context.Context, rec domain.ContentRecord) error
	SaveFlair(ctx context.Context, id string, flair []string) error
	SaveOutline(ctx context.Context, id, outline string) error
	SaveBody(ctx context.Context, id, body string) error
	MarkInBatch(ctx context.Context, ids []string, batchID string) error
	ReleaseBatch(ctx context.Context, batchID string) (int, error)
	ApplyGeneration(ctx context.Context, id string, upd RecordUpdate) error
	SaveImage(ctx context.Context, id, filename, prompt string, status domain.Status) error
	SetStatus(ctx context.Context, id string, status domain.Status, notes string) error
	MarkPublished(ctx context.Context, id, url string) error
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// LedgerRepository stores the append-only published ledger.
type LedgerRepository interface {
	Append(ctx context.Context, entry domain.LedgerEntry) (bool, error)
	InCategory(ctx context.Context, category string, from, to time.Time) ([]domain.LedgerEntry, error)
}

// AuthorRepository reads author persona reference data.
type AuthorRepository interface {
	FindAuthor(ctx context.Context, nameOrSlug string) (domain.AuthorPersona, error)
	UpsertAuthor(ctx context.Context, p domain.AuthorPersona) error
}

// BatchRepository tracks submitted batch jobs.
type BatchRepository interface {
	SaveBatch(ctx context.Context, job domain.BatchJob) error
	GetBatch(ctx context.Context, id string) (domain.BatchJob, error)
	PendingBatches(ctx context.Context) ([]domain.BatchJob, error)
	SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus) error
	MarkIngested(ctx context.Context, id string, at time.Time) error
}

// BatchRequest is one generation request inside a batch submission.
type BatchRequest struct {
	CorrelationID string
	System        string
	User          []byte
}

// BatchState is the provider view of a batch.
type BatchState struct {
	Status     domain.BatchStatus
	ResultsURL string
}

// BatchResult is one result line matched back by correlation identifier.
type BatchResult struct {
	CorrelationID string
	RawText       string
	Err           string
}

// BatchClient talks to the asynchronous generation batch API.
type BatchClient interface {
	Submit(ctx context.Context, reqs []BatchRequest) (string, error)
	Status(ctx context.Context, batchID string) (BatchState, error)
	Results(ctx context.Context, resultsURL string) ([]BatchResult, error)
}

// OutlineRequest describes a structural outline request.
type OutlineRequest struct {
	Title    string
	Category string
	Author   string
}

// OutlineClient produces short article outlines.
type OutlineClient interface {
	Outline(ctx context.Context, req OutlineRequest) (string, error)
}

// OutlineCache memoizes outlines by title and category.
type OutlineCache interface {
	Get(ctx context.Context, title, category string) (string, bool)
	Put(ctx context.Context, title, category, outline string) error
	Flush(ctx context.Context) error
}

// ImageJobStatus is the provider state of an image prediction.
type ImageJobStatus string

const (
	ImagePending   ImageJobStatus = "pending"
	ImageSucceeded ImageJobStatus = "succeeded"
	ImageFailed    ImageJobStatus = "failed"
)

// ImageJob is a snapshot of an image prediction.
type ImageJob struct {
	Handle    string
	Status    ImageJobStatus
	OutputURL string
	Error     string
}

// ImageClient drives the image-generation provider.
type ImageClient interface {
	Start(ctx context.Context, prompt string) (string, error)
	Poll(ctx context.Context, handle string) (ImageJob, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Media is an uploaded CMS attachment.
type Media struct {
	ID  int64
	URL string
}

// Post is the CMS post payload.
type Post struct {
	Title          string   `validate:"required"`
	Slug           string   `validate:"required"`
	Content        string   `validate:"required"`
	Status         string   `validate:"required,oneof=publish draft future pending private"`
	CategoryIDs    []int64  `validate:"min=1"`
	TagIDs         []int64
	FeaturedMedia  int64
	Author         string
	Tier           string
	SEOTitle       string
	SEODescription string
	FocusKeyphrase string
}

// PublishedPost identifies a post on the CMS.
type PublishedPost struct {
	ID  int64
	URL string
}

// CMSClient wraps the CMS REST surface used for publishing.
type CMSClient interface {
	FindMedia(ctx context.Context, slug string) (Media, bool, error)
	UploadMedia(ctx context.Context, data []byte, filename, altText string) (Media, error)
	GetOrCreateTag(ctx context.Context, name string) (int64, error)
	FindPost(ctx context.Context, slug string) (PublishedPost, bool, error)
	CreatePost(ctx context.Context, post Post) (PublishedPost, error)
	UpdateSEOMeta(ctx context.Context, postID int64, title, description, focus string) error
}

// FileStore owns the pipeline's filesystem layout.
type FileStore interface {
	WriteBatchID(batchID string) error
	ReadBatchID() (string, error)
	WriteDebugPayload(recordID string, payload any) error
	ImageExists(filename string) bool
	UniqueImageName(filename string) (string, error)
	WriteImage(filename string, data []byte) error
	ReadImage(filename string) ([]byte, error)
}

// Notifier pushes run summaries to operators.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Scheduler controls when pipeline stages execute.
type Scheduler interface {
	Add(spec string, job func()) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
