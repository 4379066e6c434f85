package report

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/gcs"
	"gopkg.in/yaml.v3"
)

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

// NewBucket returns a GCS bucket when gcsBucket is set, and a bucket
// rooted at dir otherwise.
func NewBucket(ctx context.Context, logger log.Logger, dir, gcsBucket string) (objstore.Bucket, error) {
	if gcsBucket == "" {
		bkt, err := filesystem.NewBucket(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "opening report dir %s", dir)
		}
		return bkt, nil
	}

	conf, err := yaml.Marshal(GCSConfig{Bucket: gcsBucket})
	if err != nil {
		return nil, err
	}
	bkt, err := gcs.NewBucket(ctx, logger, conf, "io-bench")
	if err != nil {
		return nil, errors.Wrapf(err, "opening gcs bucket %s", gcsBucket)
	}
	return bkt, nil
}
