package object

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Notifier receives an event whenever an object is created or removed, for
// dispatch into the event propagation fabric (component J).
type Notifier interface {
	EmitObjectEvent(bucket, key, eventName string, size int64)
}

// Engine manages every bucket's on-disk tree under one data directory.
type Engine struct {
	mu      sync.RWMutex
	dataDir string
	buckets map[string]bool
	uploads map[string]*MultipartUpload // uploadID -> upload
	notify  Notifier
}

func NewEngine(dataDir string, notify Notifier) *Engine {
	return &Engine{
		dataDir: dataDir,
		buckets: make(map[string]bool),
		uploads: make(map[string]*MultipartUpload),
		notify:  notify,
	}
}

func (e *Engine) bucketDir(bucket string) string {
	return filepath.Join(e.dataDir, "objects", bucket)
}

// objectPaths returns the body file and sidecar metadata file for a key,
// rejecting any key that would escape the bucket root via ".." traversal.
func (e *Engine) objectPaths(bucket, key string) (body, meta string, err error) {
	clean := filepath.Clean("/" + key)[1:] // collapses ".." segments against a virtual root
	if clean == "" || strings.Contains(key, "..") {
		return "", "", ldkerr.Client("InvalidArgument", "invalid object key: "+key)
	}
	root := e.bucketDir(bucket)
	full := filepath.Join(root, clean)
	if !strings.HasPrefix(full, root+string(filepath.Separator)) && full != root {
		return "", "", ldkerr.Client("InvalidArgument", "object key escapes bucket root: "+key)
	}
	return full, full + ".meta.json", nil
}

// CreateBucket registers a new bucket and its root directory.
func (e *Engine) CreateBucket(bucket string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buckets[bucket] {
		return ldkerr.Conflict("BucketAlreadyOwnedByYou", "bucket already exists: "+bucket)
	}
	if err := os.MkdirAll(e.bucketDir(bucket), 0o755); err != nil {
		return ldkerr.Fatal("StorageError", "create bucket directory: "+err.Error())
	}
	e.buckets[bucket] = true
	return nil
}

// DeleteBucket removes a bucket and everything in it.
func (e *Engine) DeleteBucket(bucket string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.buckets[bucket] {
		return ldkerr.NotFound("NoSuchBucket", "bucket not found: "+bucket)
	}
	if err := os.RemoveAll(e.bucketDir(bucket)); err != nil {
		return ldkerr.Fatal("StorageError", "remove bucket directory: "+err.Error())
	}
	delete(e.buckets, bucket)
	return nil
}

// BucketExists reports whether bucket has been created.
func (e *Engine) BucketExists(bucket string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buckets[bucket]
}

// ListBuckets returns every bucket name.
func (e *Engine) ListBuckets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.buckets))
	for name := range e.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) requireBucket(bucket string) error {
	if !e.BucketExists(bucket) {
		return ldkerr.NotFound("NoSuchBucket", "bucket not found: "+bucket)
	}
	return nil
}

// Put writes an object's body and metadata, then emits an ObjectCreated
// notification.
func (e *Engine) Put(bucket, key string, body []byte, contentType string) (PutResult, error) {
	if err := e.requireBucket(bucket); err != nil {
		return PutResult{}, err
	}
	bodyPath, metaPath, err := e.objectPaths(bucket, key)
	if err != nil {
		return PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return PutResult{}, ldkerr.Fatal("StorageError", "create object directory: "+err.Error())
	}
	if err := os.WriteFile(bodyPath, body, 0o644); err != nil {
		return PutResult{}, ldkerr.Fatal("StorageError", "write object body: "+err.Error())
	}

	sum := md5.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	meta := ObjectMeta{
		Key:          key,
		ContentType:  contentType,
		ETag:         etag,
		Size:         int64(len(body)),
		LastModified: time.Now(),
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return PutResult{}, err
	}

	if e.notify != nil {
		e.notify.EmitObjectEvent(bucket, key, "ObjectCreated:Put", meta.Size)
	}
	return PutResult{ETag: etag}, nil
}

// Get reads an object's full body and metadata.
func (e *Engine) Get(bucket, key string) ([]byte, ObjectMeta, error) {
	if err := e.requireBucket(bucket); err != nil {
		return nil, ObjectMeta{}, err
	}
	bodyPath, metaPath, err := e.objectPaths(bucket, key)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	data, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, ObjectMeta{}, ldkerr.Fatal("StorageError", "read object body: "+err.Error())
	}
	return data, meta, nil
}

// Head returns an object's metadata without reading its body.
func (e *Engine) Head(bucket, key string) (ObjectMeta, error) {
	if err := e.requireBucket(bucket); err != nil {
		return ObjectMeta{}, err
	}
	_, metaPath, err := e.objectPaths(bucket, key)
	if err != nil {
		return ObjectMeta{}, err
	}
	return readMeta(metaPath)
}

// Delete removes an object's body and metadata, emitting ObjectRemoved.
func (e *Engine) Delete(bucket, key string) error {
	if err := e.requireBucket(bucket); err != nil {
		return err
	}
	bodyPath, metaPath, err := e.objectPaths(bucket, key)
	if err != nil {
		return err
	}
	meta, _ := readMeta(metaPath)
	if err := os.Remove(bodyPath); err != nil && !os.IsNotExist(err) {
		return ldkerr.Fatal("StorageError", "remove object body: "+err.Error())
	}
	_ = os.Remove(metaPath)

	if e.notify != nil {
		e.notify.EmitObjectEvent(bucket, key, "ObjectRemoved:Delete", meta.Size)
	}
	return nil
}

// Copy duplicates an object within or across buckets, re-deriving its ETag,
// size and modification time; an empty contentType keeps the source's
// content type.
func (e *Engine) Copy(srcBucket, srcKey, dstBucket, dstKey, contentType string) (PutResult, error) {
	data, meta, err := e.Get(srcBucket, srcKey)
	if err != nil {
		return PutResult{}, err
	}
	if contentType == "" {
		contentType = meta.ContentType
	}
	return e.Put(dstBucket, dstKey, data, contentType)
}

// List returns objects under prefix, paginated by MaxKeys and a
// continuation token that is simply the last key returned.
func (e *Engine) List(bucket string, opts ListOptions) (ListResult, error) {
	if err := e.requireBucket(bucket); err != nil {
		return ListResult{}, err
	}
	root := e.bucketDir(bucket)
	var keys []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || strings.HasSuffix(path, ".meta.json") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return ListResult{}, ldkerr.Fatal("StorageError", "list objects: "+err.Error())
	}
	sort.Strings(keys)

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	start := 0
	if opts.ContinuationToken != "" {
		for i, k := range keys {
			if k == opts.ContinuationToken {
				start = i + 1
				break
			}
		}
	}

	var out ListResult
	for i := start; i < len(keys) && len(out.Objects) < maxKeys; i++ {
		_, metaPath, err := e.objectPaths(bucket, keys[i])
		if err != nil {
			continue
		}
		meta, err := readMeta(metaPath)
		if err != nil {
			continue
		}
		out.Objects = append(out.Objects, meta)
		if len(out.Objects) == maxKeys && start+maxKeys < len(keys) {
			out.IsTruncated = true
			out.NextContinuationToken = keys[i]
		}
	}
	return out, nil
}

// CreateMultipartUpload begins tracking parts for an upload.
func (e *Engine) CreateMultipartUpload(bucket, key string) (string, error) {
	if err := e.requireBucket(bucket); err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	e.mu.Lock()
	e.uploads[uploadID] = &MultipartUpload{
		UploadID: uploadID,
		Bucket:   bucket,
		Key:      key,
		Parts:    make(map[int][]byte),
		Started:  time.Now(),
	}
	e.mu.Unlock()
	return uploadID, nil
}

// UploadPart stores one part's bytes in memory, keyed by part number.
func (e *Engine) UploadPart(uploadID string, partNumber int, body []byte) (string, error) {
	e.mu.Lock()
	upload, ok := e.uploads[uploadID]
	e.mu.Unlock()
	if !ok {
		return "", ldkerr.NotFound("NoSuchUpload", "unknown upload id: "+uploadID)
	}
	sum := md5.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	upload.Parts[partNumber] = body
	return etag, nil
}

// CompleteMultipartUpload concatenates the named parts in order and commits
// the result as a single object, then discards the in-memory upload state.
func (e *Engine) CompleteMultipartUpload(uploadID string, parts []CompletedPart, contentType string) (PutResult, error) {
	e.mu.Lock()
	upload, ok := e.uploads[uploadID]
	if ok {
		delete(e.uploads, uploadID)
	}
	e.mu.Unlock()
	if !ok {
		return PutResult{}, ldkerr.NotFound("NoSuchUpload", "unknown upload id: "+uploadID)
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	var full []byte
	for _, p := range parts {
		data, ok := upload.Parts[p.PartNumber]
		if !ok {
			return PutResult{}, ldkerr.Client("InvalidPart", fmt.Sprintf("missing part %d", p.PartNumber))
		}
		full = append(full, data...)
	}
	res, err := e.Put(upload.Bucket, upload.Key, full, contentType)
	if err != nil {
		return res, err
	}
	if _, metaPath, perr := e.objectPaths(upload.Bucket, upload.Key); perr == nil {
		if meta, merr := readMeta(metaPath); merr == nil {
			meta.UploadID = uploadID
			_ = writeMeta(metaPath, meta)
		}
	}
	return res, nil
}

// AbortMultipartUpload discards all in-memory parts for an upload.
func (e *Engine) AbortMultipartUpload(uploadID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.uploads[uploadID]; !ok {
		return ldkerr.NotFound("NoSuchUpload", "unknown upload id: "+uploadID)
	}
	delete(e.uploads, uploadID)
	return nil
}

// Reset removes every bucket's on-disk contents, used by /_ldk/reset.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(e.dataDir, "objects")); err != nil {
		return err
	}
	e.buckets = make(map[string]bool)
	e.uploads = make(map[string]*MultipartUpload)
	return nil
}

func writeMeta(path string, meta ObjectMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return ldkerr.Fatal("StorageError", "marshal object metadata: "+err.Error())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ldkerr.Fatal("StorageError", "write object metadata: "+err.Error())
	}
	return nil
}

func readMeta(path string) (ObjectMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMeta{}, ldkerr.NotFound("NoSuchKey", "object not found")
		}
		return ObjectMeta{}, ldkerr.Fatal("StorageError", "read object metadata: "+err.Error())
	}
	var meta ObjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return ObjectMeta{}, ldkerr.Fatal("StorageError", "corrupt object metadata: "+err.Error())
	}
	return meta, nil
}

// streamCopy is a small helper retained for callers that hold an io.Reader
// (e.g. a chunked HTTP body) rather than a full []byte already in memory.
func streamCopy(w io.Writer, r io.Reader) (int64, error) {
	return io.Copy(w, r)
}
