package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const gridFSBucket = "media_files"

// GridFSStore keeps blobs in a MongoDB GridFS bucket, keyed by file name.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

// ConnectGridFS connects to MongoDB and opens the media bucket.
func ConnectGridFS(ctx context.Context, uri, database string) (*GridFSStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(gridFSBucket))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	return &GridFSStore{client: client, bucket: bucket}, nil
}

func (s *GridFSStore) Put(ctx context.Context, name, mimeType string, r io.Reader) error {
	opts := options.GridFSUpload().SetMetadata(bson.M{
		"mime_type":   mimeType,
		"uploaded_at": time.Now(),
	})
	stream, err := s.bucket.OpenUploadStream(name, opts)
	if err != nil {
		return fmt.Errorf("gridfs open: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(dl)
	}
	if _, err := io.Copy(stream, r); err != nil {
		_ = stream.Abort()
		return fmt.Errorf("gridfs write: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("gridfs close: %w", err)
	}
	return nil
}

func (s *GridFSStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	stream, err := s.bucket.OpenDownloadStreamByName(name)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("gridfs download: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = stream.SetReadDeadline(dl)
	}
	return stream, nil
}

func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
