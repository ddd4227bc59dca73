package documents

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verity/pkg/domain-errors"
)

type fakePresigner struct {
	input   *s3.PutObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:          "https://documents.s3.amazonaws.com/" + *in.Key + "?X-Amz-Signature=abc",
		Method:       http.MethodPut,
		SignedHeader: http.Header{"Content-Type": []string{*in.ContentType}},
	}, nil
}

func TestPresignUpload(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("presigns under the case prefix", func(t *testing.T) {
		p := &fakePresigner{}
		svc := New(p, "documents", 5*time.Minute, 10<<20)

		up, err := svc.PresignUpload(context.Background(), "client-1", "case-1", PartBack, "image/png", now)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(up.Key, "cases/client-1/case-1/back-"), up.Key)
		assert.True(t, strings.HasSuffix(up.Key, ".png"), up.Key)
		assert.Equal(t, http.MethodPut, up.Method)
		assert.Equal(t, now.Add(5*time.Minute), up.ExpiresAt)
		assert.Equal(t, int64(10<<20), up.MaxBytes)
		assert.Equal(t, 5*time.Minute, p.expires)
		assert.Equal(t, "documents", *p.input.Bucket)
		assert.Equal(t, "case-1", p.input.Metadata["case_id"])
	})

	t.Run("rejects unsupported content types", func(t *testing.T) {
		svc := New(&fakePresigner{}, "documents", 0, 0)
		_, err := svc.PresignUpload(context.Background(), "client-1", "case-1", PartFront, "text/html", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("presign failure is internal", func(t *testing.T) {
		svc := New(&fakePresigner{err: errors.New("no credentials")}, "documents", 0, 0)
		_, err := svc.PresignUpload(context.Background(), "client-1", "case-1", PartFront, "image/jpeg", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestParsePart(t *testing.T) {
	p, err := ParsePart("")
	require.NoError(t, err)
	assert.Equal(t, PartFront, p)

	p, err = ParsePart(" Selfie ")
	require.NoError(t, err)
	assert.Equal(t, PartSelfie, p)

	_, err = ParsePart("left")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
