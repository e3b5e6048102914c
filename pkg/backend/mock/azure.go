package mock

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// fakeAzure is a minimal Azure Blob container endpoint supporting download,
// block blob upload and delete with If-Match / If-None-Match conditions.
type fakeAzure struct {
	mu      sync.Mutex
	seq     int
	objects map[string]fakeObject
}

type fakeAzureError struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// NewAzureContainerClient returns a client for the container "objects" of an
// in-memory Azure endpoint which lives until the test ends.
func NewAzureContainerClient(tb testing.TB) *container.Client {
	tb.Helper()
	fake := &fakeAzure{objects: map[string]fakeObject{}}
	server := httptest.NewServer(fake)
	tb.Cleanup(server.Close)

	client, err := container.NewClientWithNoCredential(server.URL+"/objects", nil)
	if err != nil {
		tb.Fatalf("failed to create azure client: %v", err)
	}
	return client
}

func (f *fakeAzure) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if name != "objects" || key == "" {
		f.error(w, http.StatusNotFound, "ContainerNotFound")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	obj, exists := f.objects[key]

	switch r.Method {
	case http.MethodGet:
		if !exists {
			f.error(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		w.Header().Set("ETag", obj.etag)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.Header().Set("x-ms-blob-type", "BlockBlob")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.data)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			f.error(w, http.StatusBadRequest, "InvalidInput")
			return
		}
		if r.Header.Get("If-None-Match") == "*" && exists {
			f.error(w, http.StatusConflict, "BlobAlreadyExists")
			return
		}
		if !f.ifMatch(w, r, obj, exists) {
			return
		}
		f.seq++
		etag := strconv.Quote("0x" + strconv.Itoa(f.seq))
		f.objects[key] = fakeObject{data: data, etag: etag}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if !exists {
			f.error(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		if r.Header.Get("If-None-Match") == "*" {
			f.error(w, http.StatusPreconditionFailed, "ConditionNotMet")
			return
		}
		if !f.ifMatch(w, r, obj, exists) {
			return
		}
		delete(f.objects, key)
		w.WriteHeader(http.StatusAccepted)
	default:
		f.error(w, http.StatusMethodNotAllowed, "UnsupportedHttpVerb")
	}
}

func (f *fakeAzure) ifMatch(w http.ResponseWriter, r *http.Request, obj fakeObject, exists bool) bool {
	match := r.Header.Get("If-Match")
	if match == "" {
		return true
	}
	if !exists {
		f.error(w, http.StatusNotFound, "BlobNotFound")
		return false
	}
	if match != obj.etag {
		f.error(w, http.StatusPreconditionFailed, "ConditionNotMet")
		return false
	}
	return true
}

func (f *fakeAzure) error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-ms-error-code", code)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(fakeAzureError{Code: code, Message: code})
}
