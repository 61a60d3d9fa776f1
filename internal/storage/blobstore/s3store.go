package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// s3Client — подмножество методов minio.Client, используемых S3Store.
type s3Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	RemoveIncompleteUpload(ctx context.Context, bucketName, objectName string) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	ListIncompleteUploads(ctx context.Context, bucketName, objectPrefix string, recursive bool) <-chan minio.ObjectMultipartInfo
}

// S3Store — хранение файлов в бакете S3-совместимого хранилища (MinIO).
type S3Store struct {
	client s3Client
	bucket string
}

// NewS3Store подключается к хранилищу и создаёт бакет, если его нет.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания S3-клиента: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки бакета %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета %s: %w", cfg.Bucket, err)
		}
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Put загружает поток в бакет с подсчётом SHA-256 на лету.
// При ошибке удаляет незавершённую multipart-загрузку и сам объект.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (*PutResult, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	size := opts.Size
	if size <= 0 {
		size = -1
	}

	hasher := sha256.New()
	tee := io.TeeReader(uploadReader(ctx, r, opts.MaxSize), hasher)

	info, err := s.client.PutObject(ctx, s.bucket, key, tee, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		s.cleanup(key)
		return nil, fmt.Errorf("ошибка записи объекта %s: %w", key, err)
	}

	return &PutResult{
		Key:      key,
		Location: s.Location(key),
		Size:     info.Size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// cleanup удаляет следы прерванной загрузки. Контекст запроса к этому
// моменту может быть отменён, поэтому используется собственный таймаут.
func (s *S3Store) cleanup(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.client.RemoveIncompleteUpload(ctx, s.bucket, key)
	_ = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// Open открывает объект для чтения. minio.Object поддерживает Seek и ReadAt.
func (s *S3Store) Open(ctx context.Context, key string) (Object, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", key, err)
	}
	// GetObject ленивый: отсутствие объекта обнаруживается только при Stat/Read
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", key, err)
	}
	return obj, nil
}

// Exists проверяет наличие объекта через StatObject.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
	}
	return true, nil
}

// Delete удаляет объект. S3 не возвращает ошибку для отсутствующего ключа.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// Location возвращает расположение объекта в виде s3://bucket/key.
func (s *S3Store) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Walk обходит все объекты бакета.
func (s *S3Store) Walk(ctx context.Context, fn func(BlobInfo) error) error {
	// Отмена контекста останавливает горутину листинга minio-go
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("ошибка листинга бакета %s: %w", s.bucket, obj.Err)
		}
		if validateKey(obj.Key) != nil {
			continue
		}
		if err := fn(BlobInfo{Key: obj.Key, Size: obj.Size, ModTime: obj.LastModified}); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// RemoveStale прерывает multipart-загрузки, начатые раньше cutoff.
// Такие загрузки остаются, если процесс упал до cleanup.
func (s *S3Store) RemoveStale(ctx context.Context, cutoff time.Time) (int, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stale []string
	for upload := range s.client.ListIncompleteUploads(listCtx, s.bucket, "", true) {
		if upload.Err != nil {
			return 0, fmt.Errorf("ошибка листинга незавершённых загрузок %s: %w", s.bucket, upload.Err)
		}
		if upload.Initiated.Before(cutoff) {
			stale = append(stale, upload.Key)
		}
	}

	removed := 0
	for _, key := range stale {
		if err := s.client.RemoveIncompleteUpload(ctx, s.bucket, key); err != nil {
			return removed, fmt.Errorf("ошибка удаления незавершённой загрузки %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// Check проверяет доступность бакета.
func (s *S3Store) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("S3 недоступен: %w", err)
	}
	if !exists {
		return fmt.Errorf("бакет %s не существует", s.bucket)
	}
	return nil
}

// isNoSuchKey определяет ответ S3 «объект не найден».
func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
