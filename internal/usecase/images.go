package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// ImageSettings controls prompt sanitizing and prediction polling.
type ImageSettings struct {
	// Constraints is appended to every prompt that lacks Marker.
	Constraints string
	// Marker identifies an already-sanitized prompt; defaults to Constraints.
	Marker       string
	PollInterval time.Duration
	MaxWait      time.Duration
	Limit        int
}

// ImageDeps wires the image acquisition use case.
type ImageDeps struct {
	Records  ports.RecordRepository
	Client   ports.ImageClient
	Files    ports.FileStore
	Settings ImageSettings
	Logger   *slog.Logger
}

// ImageAcquirer generates, downloads and stores one image per record.
type ImageAcquirer struct {
	records  ports.RecordRepository
	client   ports.ImageClient
	files    ports.FileStore
	settings ImageSettings
	logger   *slog.Logger
}

func NewImageAcquirer(deps ImageDeps) *ImageAcquirer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := deps.Settings
	if st.PollInterval <= 0 {
		st.PollInterval = 2 * time.Second
	}
	if st.MaxWait <= 0 {
		st.MaxWait = 5 * time.Minute
	}
	return &ImageAcquirer{
		records:  deps.Records,
		client:   deps.Client,
		files:    deps.Files,
		settings: st,
		logger:   logger.With("component", "images"),
	}
}

// SanitizePrompt appends constraints once. A prompt already carrying marker
// is returned unchanged.
func SanitizePrompt(prompt, constraints, marker string) string {
	prompt = strings.TrimSpace(prompt)
	constraints = strings.TrimSpace(constraints)
	if constraints == "" {
		return prompt
	}
	if marker == "" {
		marker = constraints
	}
	if strings.Contains(prompt, marker) {
		return prompt
	}
	return prompt + "\n\n" + constraints
}

// Run processes image_needed records in publish-date order.
func (a *ImageAcquirer) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Stage: "images"}

	records, err := a.records.Select(ctx, ports.RecordQuery{
		Status:     domain.StatusImageNeeded,
		NeedsImage: true,
		Limit:      a.settings.Limit,
	})
	if err != nil {
		return summary, fmt.Errorf("select image_needed: %w", err)
	}
	if len(records) == 0 {
		a.logger.Info("no records need images")
		return summary, nil
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		name, err := a.acquire(ctx, rec)
		if err != nil {
			summary.Failed++
			a.logger.Warn("image failed", "record_id", rec.ID, "error", err)
			continue
		}
		summary.Accepted++
		a.logger.Info("image saved", "record_id", rec.ID, "filename", name)
	}

	summary.Log(a.logger)
	return summary, nil
}

func (a *ImageAcquirer) acquire(ctx context.Context, rec domain.ContentRecord) (string, error) {
	if err := rec.Transition(domain.StatusReady); err != nil {
		return "", err
	}

	prompt := SanitizePrompt(rec.ImagePrompt, a.settings.Constraints, a.settings.Marker)

	handle, err := a.client.Start(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("start prediction: %w", err)
	}
	job, err := a.await(ctx, handle)
	if err != nil {
		return "", err
	}

	data, err := a.client.Download(ctx, job.OutputURL)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}

	name, err := a.files.UniqueImageName(rec.ImageFilename)
	if err != nil {
		return "", fmt.Errorf("choose filename: %w", err)
	}
	if err := a.files.WriteImage(name, data); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	if err := a.records.SaveImage(ctx, rec.ID, name, prompt, rec.Status); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return name, nil
}

func (a *ImageAcquirer) await(ctx context.Context, handle string) (ports.ImageJob, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.settings.MaxWait)
	defer cancel()

	for {
		job, err := a.client.Poll(waitCtx, handle)
		if err != nil {
			return ports.ImageJob{}, fmt.Errorf("poll prediction: %w", err)
		}
		switch job.Status {
		case ports.ImageSucceeded:
			if job.OutputURL == "" {
				return ports.ImageJob{}, errors.New("prediction succeeded without output")
			}
			return job, nil
		case ports.ImageFailed:
			return ports.ImageJob{}, fmt.Errorf("prediction failed: %s", job.Error)
		}

		timer := time.NewTimer(a.settings.PollInterval)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return ports.ImageJob{}, fmt.Errorf("prediction %s: %w", handle, waitCtx.Err())
		case <-timer.C:
		}
	}
}
