package mock

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 is a minimal path-style S3 endpoint supporting conditional puts
// and deletes.
type fakeS3 struct {
	mu      sync.Mutex
	seq     int
	objects map[string]fakeObject
}

type fakeObject struct {
	data []byte
	etag string
}

type fakeListResult struct {
	XMLName     xml.Name          `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name        string            `xml:"Name"`
	Prefix      string            `xml:"Prefix"`
	KeyCount    int               `xml:"KeyCount"`
	MaxKeys     int               `xml:"MaxKeys"`
	IsTruncated bool              `xml:"IsTruncated"`
	Contents    []fakeListContent `xml:"Contents"`
}

type fakeListContent struct {
	Key  string `xml:"Key"`
	ETag string `xml:"ETag"`
	Size int    `xml:"Size"`
}

type fakeError struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

// NewS3Client returns a client talking to an in-memory S3 endpoint which
// lives until the test ends.
func NewS3Client(tb testing.TB) *s3.Client {
	tb.Helper()
	fake := &fakeS3{objects: map[string]fakeObject{}}
	server := httptest.NewServer(fake)
	tb.Cleanup(server.Close)

	return s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(server.URL),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("test", "test", ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket == "" {
		f.error(w, http.StatusBadRequest, "InvalidBucketName")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := bucket + "/" + key
	obj, exists := f.objects[id]

	switch {
	case r.Method == http.MethodGet && key == "":
		f.list(w, bucket, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodGet:
		if !exists {
			f.error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", obj.etag)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.data)
	case r.Method == http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			f.error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		if !f.preconditions(w, r, obj, exists) {
			return
		}
		f.seq++
		etag := strconv.Quote(strconv.Itoa(f.seq))
		f.objects[id] = fakeObject{data: data, etag: etag}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		if !f.preconditions(w, r, obj, exists) {
			return
		}
		delete(f.objects, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		f.error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (f *fakeS3) preconditions(w http.ResponseWriter, r *http.Request, obj fakeObject, exists bool) bool {
	if r.Header.Get("If-None-Match") == "*" && exists {
		f.error(w, http.StatusPreconditionFailed, "PreconditionFailed")
		return false
	}
	if match := r.Header.Get("If-Match"); match != "" {
		if !exists {
			f.error(w, http.StatusNotFound, "NoSuchKey")
			return false
		}
		if match != obj.etag {
			f.error(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return false
		}
	}
	return true
}

func (f *fakeS3) list(w http.ResponseWriter, bucket, prefix string) {
	result := fakeListResult{Name: bucket, Prefix: prefix, MaxKeys: 1000}
	for id, obj := range f.objects {
		b, key, _ := strings.Cut(id, "/")
		if b != bucket || !strings.HasPrefix(key, prefix) {
			continue
		}
		result.Contents = append(result.Contents, fakeListContent{Key: key, ETag: obj.etag, Size: len(obj.data)})
	}
	sort.Slice(result.Contents, func(i, j int) bool {
		return result.Contents[i].Key < result.Contents[j].Key
	})
	result.KeyCount = len(result.Contents)
	f.xml(w, http.StatusOK, result)
}

func (f *fakeS3) error(w http.ResponseWriter, status int, code string) {
	f.xml(w, status, fakeError{Code: code, Message: code, RequestID: "fake"})
}

func (f *fakeS3) xml(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}
