package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"qcsync/internal/qc"
)

var testTime = time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)

func testEntry(product string) qc.Entry {
	return qc.Draft{
		FarmerDeliveryID: "FD-1",
		ProductID:        product,
		AcceptedQuantity: 9,
		RejectedQuantity: 1,
		RejectionReasons: []string{"bruising"},
	}.Stamp(testTime)
}

type fakeUploader struct {
	objects map[string][]byte
	failAt  int
	calls   int
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, errors.New("connection reset")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &manager.UploadOutput{Key: in.Key}, nil
}

func TestS3Endpoint_SubmitBatch(t *testing.T) {
	t.Run("uploads one object per entry", func(t *testing.T) {
		up := &fakeUploader{}
		ep := NewS3Endpoint(up, "qc-inbox", "plant-2", "tablet-1")

		entries := []qc.Entry{testEntry("P-1"), testEntry("P-2")}
		results, err := ep.SubmitBatch(context.Background(), entries)
		if err != nil {
			t.Fatalf("SubmitBatch() error = %v", err)
		}
		for i, r := range results {
			if r != qc.Accepted() {
				t.Errorf("results[%d] = %+v, want accepted", i, r)
			}
		}

		key := "qc-inbox/plant-2/" + entries[0].IdempotencyKey() + ".json"
		data, ok := up.objects[key]
		if !ok {
			t.Fatalf("object %s not uploaded; have %d objects", key, len(up.objects))
		}
		var doc struct {
			DeviceID       string `json:"deviceId"`
			ProductID      string `json:"productId"`
			IdempotencyKey string `json:"idempotencyKey"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("decoding object: %v", err)
		}
		if doc.DeviceID != "tablet-1" || doc.ProductID != "P-1" || doc.IdempotencyKey != entries[0].IdempotencyKey() {
			t.Errorf("object = %+v", doc)
		}
	})

	t.Run("invalid entry rejected without upload", func(t *testing.T) {
		up := &fakeUploader{}
		ep := NewS3Endpoint(up, "qc-inbox", "", "tablet-1")
		bad := testEntry("")

		results, err := ep.SubmitBatch(context.Background(), []qc.Entry{bad})
		if err != nil {
			t.Fatalf("SubmitBatch() error = %v", err)
		}
		if results[0].Status != qc.OutcomeRejected {
			t.Errorf("results[0] = %+v, want rejected", results[0])
		}
		if up.calls != 0 {
			t.Errorf("uploads = %d, want 0", up.calls)
		}
	})

	t.Run("upload failure stops the batch", func(t *testing.T) {
		up := &fakeUploader{failAt: 2}
		ep := NewS3Endpoint(up, "qc-inbox", "", "tablet-1")

		_, err := ep.SubmitBatch(context.Background(), []qc.Entry{testEntry("P-1"), testEntry("P-2"), testEntry("P-3")})
		if !errors.Is(err, qc.ErrTransport) {
			t.Fatalf("SubmitBatch() error = %v, want ErrTransport", err)
		}
		if up.calls != 2 {
			t.Errorf("uploads attempted = %d, want 2", up.calls)
		}
	})
}
