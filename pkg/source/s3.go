package source

import (
	"context"
	"fmt"

	"github.com/icelift/icelift/pkg/storage/s3"
)

// ObjectLister is the subset of the S3 client the enumerator needs.
type ObjectLister interface {
	ListAll(ctx context.Context, bucket, prefix string) ([]s3.ObjectInfo, error)
}

// S3Enumerator lists Parquet objects under a bucket/prefix without
// downloading any bytes.
type S3Enumerator struct {
	Lister ObjectLister
	Bucket string
	Prefix string
}

// Enumerate pages through the bucket listing and returns Parquet object
// locators in S3 key order.
func (e *S3Enumerator) Enumerate(ctx context.Context) ([]Locator, error) {
	objects, err := e.Lister.ListAll(ctx, e.Bucket, e.Prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: s3://%s/%s: %v", ErrSourceUnavailable, e.Bucket, e.Prefix, err)
	}

	var locators []Locator
	for _, obj := range objects {
		if !isParquet(obj.Key) {
			continue
		}
		locators = append(locators, Locator{
			Bucket: e.Bucket,
			Key:    obj.Key,
			Size:   obj.Size,
			ETag:   obj.ETag,
		})
	}

	return locators, nil
}
