package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxNameAttempts bounds the "name (n).ext" search in LocalSaver.
const maxNameAttempts = 1000

// LocalSaver writes exports into a download directory. An existing file is
// never overwritten: the next free "name (n).ext" is used instead.
type LocalSaver struct {
	Dir string
}

func (s LocalSaver) Save(ctx context.Context, name string, r io.Reader) (Artifact, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("creating download dir: %w", err)
	}
	f, err := s.create(name)
	if err != nil {
		return Artifact{}, err
	}
	n, copyErr := io.Copy(f, readerWithContext(ctx, r))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(f.Name())
		return Artifact{}, fmt.Errorf("writing %s: %w", f.Name(), err)
	}
	return Artifact{
		Name:     filepath.Base(f.Name()),
		Location: f.Name(),
		Size:     n,
	}, nil
}

func (s LocalSaver) create(name string) (*os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(s.Dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating %s: %w", candidate, err)
		}
	}
	return nil, fmt.Errorf("no free file name for %s in %s", name, s.Dir)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return ctxReader{ctx: ctx, r: r}
}

// S3Saver archives exports to an S3 bucket. Each export lands under its own
// timestamped key so repeated exports never overwrite each other.
type S3Saver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	now      func() time.Time
}

// S3Options configures NewS3Saver.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Path-style
	// addressing is used when set.
	Endpoint string
}

// NewS3Saver builds an S3Saver from the default AWS credential chain.
func NewS3Saver(ctx context.Context, opts S3Options) (*S3Saver, error) {
	if opts.Bucket == "" {
		return nil, errors.New("export bucket not set")
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SaverFromClient(s3Client, opts.Bucket, opts.Prefix), nil
}

// NewS3SaverFromClient wraps an existing S3 API client.
func NewS3SaverFromClient(api manager.UploadAPIClient, bucket, prefix string) *S3Saver {
	return &S3Saver{
		uploader: manager.NewUploader(api),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		now:      time.Now,
	}
}

func (s *S3Saver) Save(ctx context.Context, name string, r io.Reader) (Artifact, error) {
	key := path.Join(s.prefix, s.now().UTC().Format("20060102T150405.000000000Z"), name)
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	counter := &countingReader{r: r}
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        counter,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("s3 upload failed: %w", err)
	}
	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	if out.Location != "" {
		location = out.Location
	}
	return Artifact{Name: name, Location: location, Size: counter.n}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
