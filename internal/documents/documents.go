// Package documents issues presigned S3 upload URLs the capture SDK uses to
// upload document images directly to the bucket.
package documents

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"

	dErrors "verity/pkg/domain-errors"
)

// DefaultTTL is how long an upload URL stays valid.
const DefaultTTL = 15 * time.Minute

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Part names which side of the capture an upload holds.
type Part string

const (
	PartFront  Part = "front"
	PartBack   Part = "back"
	PartSelfie Part = "selfie"
)

var allowedContentTypes = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"application/pdf": "pdf",
}

// ParsePart normalizes a part name; empty means front.
func ParsePart(raw string) (Part, error) {
	switch p := Part(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PartFront, nil
	case PartFront, PartBack, PartSelfie:
		return p, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "part must be front, back or selfie")
	}
}

// ValidateContentType accepts JPEG, PNG and PDF uploads.
func ValidateContentType(contentType string) error {
	if _, ok := allowedContentTypes[contentType]; !ok {
		return dErrors.New(dErrors.CodeValidation, "contentType must be image/jpeg, image/png or application/pdf")
	}
	return nil
}

// Upload is a presigned PUT the client performs itself.
type Upload struct {
	URL       string
	Method    string
	Headers   http.Header
	Key       string
	ExpiresAt time.Time
	// MaxBytes is the size limit the bucket's upload policy enforces.
	MaxBytes int64
}

// Service presigns uploads into one bucket.
type Service struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
	maxBytes  int64
}

// New creates the service. A zero ttl uses DefaultTTL.
func New(presigner Presigner, bucket string, ttl time.Duration, maxBytes int64) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{presigner: presigner, bucket: bucket, ttl: ttl, maxBytes: maxBytes}
}

// ObjectKey places uploads under the owning client and case.
func ObjectKey(clientID, caseID string, part Part, contentType string) string {
	return fmt.Sprintf("cases/%s/%s/%s-%s.%s", clientID, caseID, part, strings.ToLower(ulid.Make().String()), allowedContentTypes[contentType])
}

// PresignUpload returns a URL valid for the configured TTL.
func (s *Service) PresignUpload(ctx context.Context, clientID, caseID string, part Part, contentType string, now time.Time) (*Upload, error) {
	if err := ValidateContentType(contentType); err != nil {
		return nil, err
	}
	key := ObjectKey(clientID, caseID, part, contentType)
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
		Metadata: map[string]string{
			"case_id":   caseID,
			"client_id": clientID,
			"part":      string(part),
		},
	}
	req, err := s.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = s.ttl })
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to presign upload")
	}
	return &Upload{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   req.SignedHeader,
		Key:       key,
		ExpiresAt: now.Add(s.ttl),
		MaxBytes:  s.maxBytes,
	}, nil
}
