package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/playtestlabs/playtest/internal/metrics"
	storagedomain "github.com/playtestlabs/playtest/internal/storage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// uploadConcurrency bounds parallel store writes within one batch.
const uploadConcurrency = 4

const defaultExtension = "png"

var dataURLPrefix = regexp.MustCompile(`^data:image/(\w+);base64,`)

type Address struct {
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type ItemResult struct {
	Index int
	URL   string
	Err   error
}

// Report is the batch outcome: however many URLs resolved, plus per-item
// results so callers and tests can see exactly which references failed.
type Report struct {
	URLs          []string
	Items         []ItemResult
	UploadedCount int
	TotalCount    int
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Store   storagedomain.ObjectStore
	Metrics *metrics.Metrics
}

type Service struct {
	log     *zap.Logger
	store   storagedomain.ObjectStore
	metrics *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:     p.Log.Named("image.ingest"),
		store:   p.Store,
		metrics: p.Metrics,
	}
}

// Ingest resolves every reference independently and best-effort: bare URLs
// pass through untouched, encoded payloads are decoded and uploaded, and a
// failed item is dropped from the output rather than aborting the batch.
// Survivors keep their relative input order; failed slots are compacted away,
// so output position does not correspond to input position when anything
// fails.
func (s *Service) Ingest(ctx context.Context, refs []string, orderID string, addr *Address) *Report {
	report := &Report{
		Items:      make([]ItemResult, len(refs)),
		TotalCount: len(refs),
	}

	folder := fmt.Sprintf("%s/%d/%s", orderID, time.Now().UnixMilli(), addressBucket(addr))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			report.Items[i] = s.processOne(ctx, i, ref, folder)
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range report.Items {
		if item.Err == nil && item.URL != "" {
			report.URLs = append(report.URLs, item.URL)
		}
	}
	report.UploadedCount = len(report.URLs)
	return report
}

func (s *Service) processOne(ctx context.Context, index int, ref, folder string) ItemResult {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		s.metrics.ImageUploads.WithLabelValues("passthrough").Inc()
		return ItemResult{Index: index, URL: ref}
	}

	data, ext, err := decodePayload(ref)
	if err != nil {
		s.log.Warn("image decode failed", zap.Int("index", index), zap.Error(err))
		s.metrics.ImageUploads.WithLabelValues("decode_error").Inc()
		return ItemResult{Index: index, Err: err}
	}

	path := fmt.Sprintf("%s/%s.%s", folder, uuid.NewString(), ext)
	url, err := s.store.Put(ctx, path, data, "image/"+ext)
	if err != nil {
		s.log.Warn("image upload failed",
			zap.Int("index", index),
			zap.String("path", path),
			zap.Error(err))
		s.metrics.ImageUploads.WithLabelValues("store_error").Inc()
		return ItemResult{Index: index, Err: err}
	}

	s.metrics.ImageUploads.WithLabelValues("ok").Inc()
	return ItemResult{Index: index, URL: url}
}

// decodePayload strips an optional data-URL prefix and base64-decodes the
// body. The declared format picks the extension; anything unrecognized falls
// back to png.
func decodePayload(ref string) ([]byte, string, error) {
	ext := defaultExtension
	body := ref
	if match := dataURLPrefix.FindStringSubmatch(ref); match != nil {
		ext = strings.ToLower(match[1])
		body = ref[len(match[0]):]
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, ext, nil
}

// addressBucket derives a coarse geographic path component from the shipping
// address, for storage browsing only.
func addressBucket(addr *Address) string {
	if addr == nil || addr.Country == "" {
		return "unknown"
	}
	postal := "unknown"
	if addr.PostalCode != "" {
		postal = slug.Make(addr.PostalCode)
	}
	return strings.ToUpper(addr.Country) + "_" + postal
}

var Module = fx.Module("image.service",
	fx.Provide(NewService),
)
