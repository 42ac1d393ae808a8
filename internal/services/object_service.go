package services

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/object"
)

// ObjectService exposes the object store engine over the REST+XML dialect:
// path-addressed resources (bucket and key segments), not an Action/Target
// operation name, so it builds its own gorilla/mux router instead of going
// through wire.Dispatch.
type ObjectService struct {
	engine *object.Engine
	router *mux.Router
}

func NewObjectService(engine *object.Engine) *ObjectService {
	s := &ObjectService{engine: engine}
	r := mux.NewRouter()
	r.HandleFunc("/", s.listBuckets).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}", s.bucketRoot).Methods(http.MethodPut, http.MethodDelete, http.MethodGet)
	r.HandleFunc("/{bucket}/{key:.+}", s.objectRoot).Methods(http.MethodPut, http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodPost)
	s.router = r
	return s
}

func (s *ObjectService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *ObjectService) bucketRoot(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	switch r.Method {
	case http.MethodPut:
		if err := s.engine.CreateBucket(bucket); err != nil {
			writeXMLError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if err := s.engine.DeleteBucket(bucket); err != nil {
			writeXMLError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.listObjects(w, r, bucket)
	}
}

type listBucketResultXML struct {
	XMLName               xml.Name          `xml:"ListBucketResult"`
	Name                   string            `xml:"Name"`
	Prefix                 string            `xml:"Prefix"`
	IsTruncated            bool              `xml:"IsTruncated"`
	NextContinuationToken  string            `xml:"NextContinuationToken,omitempty"`
	Contents               []objectMetaXML   `xml:"Contents"`
}

type objectMetaXML struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

func (s *ObjectService) listObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	maxKeys, _ := strconv.Atoi(q.Get("max-keys"))
	result, err := s.engine.List(bucket, object.ListOptions{
		Prefix:            q.Get("prefix"),
		MaxKeys:           maxKeys,
		ContinuationToken: q.Get("continuation-token"),
	})
	if err != nil {
		writeXMLError(w, err)
		return
	}
	out := listBucketResultXML{
		Name:                  bucket,
		Prefix:                q.Get("prefix"),
		IsTruncated:           result.IsTruncated,
		NextContinuationToken: result.NextContinuationToken,
	}
	for _, meta := range result.Objects {
		out.Contents = append(out.Contents, objectMetaXML{
			Key:          meta.Key,
			LastModified: meta.LastModified.UTC().Format("2006-01-02T15:04:05.000Z"),
			ETag:         meta.ETag,
			Size:         meta.Size,
		})
	}
	writeXML(w, http.StatusOK, out)
}

func (s *ObjectService) listBuckets(w http.ResponseWriter, r *http.Request) {
	type bucketXML struct {
		Name string `xml:"Name"`
	}
	type listAllBucketsResult struct {
		XMLName xml.Name    `xml:"ListAllMyBucketsResult"`
		Buckets []bucketXML `xml:"Buckets>Bucket"`
	}
	out := listAllBucketsResult{}
	for _, name := range s.engine.ListBuckets() {
		out.Buckets = append(out.Buckets, bucketXML{Name: name})
	}
	writeXML(w, http.StatusOK, out)
}

func (s *ObjectService) objectRoot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, key := vars["bucket"], vars["key"]
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodPost && q.Has("uploads"):
		s.createMultipartUpload(w, bucket, key)
		return
	case r.Method == http.MethodPut && q.Get("partNumber") != "" && q.Get("uploadId") != "":
		s.uploadPart(w, r, q.Get("uploadId"), q.Get("partNumber"))
		return
	case r.Method == http.MethodPost && q.Get("uploadId") != "":
		s.completeMultipartUpload(w, r, q.Get("uploadId"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.putObject(w, r, bucket, key)
	case http.MethodGet:
		s.getObject(w, bucket, key)
	case http.MethodHead:
		s.headObject(w, bucket, key)
	case http.MethodDelete:
		s.deleteObject(w, bucket, key)
	}
}

func (s *ObjectService) putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeXMLError(w, ldkerr.Client("InvalidRequest", "could not read request body"))
		return
	}
	if src := r.Header.Get("X-Amz-Copy-Source"); src != "" {
		srcBucket, srcKey := splitCopySource(src)
		res, err := s.engine.Copy(srcBucket, srcKey, bucket, key, r.Header.Get("Content-Type"))
		if err != nil {
			writeXMLError(w, err)
			return
		}
		w.Header().Set("ETag", res.ETag)
		w.WriteHeader(http.StatusOK)
		return
	}
	res, err := s.engine.Put(bucket, key, body, r.Header.Get("Content-Type"))
	if err != nil {
		writeXMLError(w, err)
		return
	}
	w.Header().Set("ETag", res.ETag)
	w.WriteHeader(http.StatusOK)
}

func splitCopySource(src string) (bucket, key string) {
	src = trimLeadingSlash(src)
	for i := 0; i < len(src); i++ {
		if src[i] == '/' {
			return src[:i], src[i+1:]
		}
	}
	return src, ""
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

func (s *ObjectService) getObject(w http.ResponseWriter, bucket, key string) {
	data, meta, err := s.engine.Get(bucket, key)
	if err != nil {
		writeXMLError(w, err)
		return
	}
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("ETag", meta.ETag)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *ObjectService) headObject(w http.ResponseWriter, bucket, key string) {
	meta, err := s.engine.Head(bucket, key)
	if err != nil {
		writeXMLError(w, err)
		return
	}
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("ETag", meta.ETag)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *ObjectService) deleteObject(w http.ResponseWriter, bucket, key string) {
	if err := s.engine.Delete(bucket, key); err != nil {
		writeXMLError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ObjectService) createMultipartUpload(w http.ResponseWriter, bucket, key string) {
	uploadID, err := s.engine.CreateMultipartUpload(bucket, key)
	if err != nil {
		writeXMLError(w, err)
		return
	}
	type initResult struct {
		XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
		Bucket   string   `xml:"Bucket"`
		Key      string   `xml:"Key"`
		UploadID string   `xml:"UploadId"`
	}
	writeXML(w, http.StatusOK, initResult{Bucket: bucket, Key: key, UploadID: uploadID})
}

func (s *ObjectService) uploadPart(w http.ResponseWriter, r *http.Request, uploadID, partNumberStr string) {
	partNumber, err := strconv.Atoi(partNumberStr)
	if err != nil {
		writeXMLError(w, ldkerr.Client("InvalidArgument", "partNumber must be an integer"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeXMLError(w, ldkerr.Client("InvalidRequest", "could not read request body"))
		return
	}
	etag, err := s.engine.UploadPart(uploadID, partNumber, body)
	if err != nil {
		writeXMLError(w, err)
		return
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

func (s *ObjectService) completeMultipartUpload(w http.ResponseWriter, r *http.Request, uploadID string) {
	type partXML struct {
		PartNumber int    `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	}
	type completeRequest struct {
		XMLName xml.Name  `xml:"CompleteMultipartUpload"`
		Part    []partXML `xml:"Part"`
	}
	var req completeRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeXMLError(w, ldkerr.Client("MalformedXML", "could not parse complete-multipart-upload body"))
		return
	}
	parts := make([]object.CompletedPart, len(req.Part))
	for i, p := range req.Part {
		parts[i] = object.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	res, err := s.engine.CompleteMultipartUpload(uploadID, parts, r.Header.Get("Content-Type"))
	if err != nil {
		writeXMLError(w, err)
		return
	}
	type completeResult struct {
		XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
		ETag    string   `xml:"ETag"`
	}
	writeXML(w, http.StatusOK, completeResult{ETag: res.ETag})
}

func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(v)
}

type xmlErrorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func writeXMLError(w http.ResponseWriter, err error) {
	e, ok := ldkerr.As(err)
	if !ok {
		e = ldkerr.New(ldkerr.KindInternal, "InternalError", err.Error())
	}
	status := http.StatusInternalServerError
	switch e.Kind {
	case ldkerr.KindClient:
		status = http.StatusBadRequest
	case ldkerr.KindNotFound:
		status = http.StatusNotFound
	case ldkerr.KindConflict:
		status = http.StatusConflict
	case ldkerr.KindPolicyDenial:
		status = http.StatusForbidden
	case ldkerr.KindChaos, ldkerr.KindTransient:
		status = http.StatusServiceUnavailable
	}
	writeXML(w, status, xmlErrorBody{Code: e.Code, Message: e.Message})
}
