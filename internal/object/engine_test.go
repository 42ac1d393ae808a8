package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) EmitObjectEvent(bucket, key, eventName string, size int64) {
	n.events = append(n.events, eventName+":"+bucket+"/"+key)
}

func TestPutGetHeadDelete(t *testing.T) {
	notifier := &recordingNotifier{}
	e := NewEngine(t.TempDir(), notifier)
	require.NoError(t, e.CreateBucket("assets"))

	_, err := e.Put("assets", "images/logo.png", []byte("binary-data"), "image/png")
	require.NoError(t, err)

	data, meta, err := e.Get("assets", "images/logo.png")
	require.NoError(t, err)
	require.Equal(t, "binary-data", string(data))
	require.Equal(t, "image/png", meta.ContentType)

	head, err := e.Head("assets", "images/logo.png")
	require.NoError(t, err)
	require.Equal(t, meta.ETag, head.ETag)

	require.NoError(t, e.Delete("assets", "images/logo.png"))
	_, _, err = e.Get("assets", "images/logo.png")
	require.Error(t, err)

	require.Contains(t, notifier.events, "ObjectCreated:Put:assets/images/logo.png")
	require.Contains(t, notifier.events, "ObjectRemoved:Delete:assets/images/logo.png")
}

func TestPathTraversalRejected(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	require.NoError(t, e.CreateBucket("assets"))
	_, err := e.Put("assets", "../../etc/passwd", []byte("x"), "")
	require.Error(t, err)
}

func TestListWithPrefixAndPagination(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	require.NoError(t, e.CreateBucket("assets"))
	for _, key := range []string{"a/1", "a/2", "a/3", "b/1"} {
		_, err := e.Put("assets", key, []byte("x"), "")
		require.NoError(t, err)
	}

	res, err := e.List("assets", ListOptions{Prefix: "a/", MaxKeys: 2})
	require.NoError(t, err)
	require.Len(t, res.Objects, 2)
	require.True(t, res.IsTruncated)

	res2, err := e.List("assets", ListOptions{Prefix: "a/", MaxKeys: 2, ContinuationToken: res.NextContinuationToken})
	require.NoError(t, err)
	require.Len(t, res2.Objects, 1)
	require.False(t, res2.IsTruncated)
}

func TestMultipartUploadLifecycle(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	require.NoError(t, e.CreateBucket("assets"))

	uploadID, err := e.CreateMultipartUpload("assets", "big-file")
	require.NoError(t, err)

	etag1, err := e.UploadPart(uploadID, 1, []byte("hello-"))
	require.NoError(t, err)
	etag2, err := e.UploadPart(uploadID, 2, []byte("world"))
	require.NoError(t, err)

	_, err = e.CompleteMultipartUpload(uploadID, []CompletedPart{
		{PartNumber: 2, ETag: etag2},
		{PartNumber: 1, ETag: etag1},
	}, "text/plain")
	require.NoError(t, err)

	data, _, err := e.Get("assets", "big-file")
	require.NoError(t, err)
	require.Equal(t, "hello-world", string(data))
}
