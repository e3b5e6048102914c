package registry

import (
	"github.com/foomo/objectregistry/pkg/backend"
)

// Object describes one loaded version. The loaded value itself is written
// to the target passed to Load.
type Object struct {
	Name     string
	Version  string
	Metadata backend.Metadata
	// Path is the location of the version's content in the backend.
	Path string
}

// Class returns the class identifier recorded at save time.
func (o *Object) Class() string {
	v, _ := o.Metadata[backend.MetadataClass].(string)
	return v
}

// Materializer returns the id of the materializer used at save time.
func (o *Object) Materializer() string {
	v, _ := o.Metadata[backend.MetadataMaterializer].(string)
	return v
}

type (
	saveOptions struct {
		version        string
		metadata       map[string]any
		materializerID string
	}
	SaveOption func(*saveOptions)

	downloadOptions struct {
		name    string
		version string
	}
	DownloadOption func(*downloadOptions)
)

// WithVersion saves under an explicit version instead of the next auto version.
func WithVersion(v string) SaveOption {
	return func(o *saveOptions) {
		o.version = v
	}
}

// WithMetadata adds caller metadata to the saved version.
func WithMetadata(v map[string]any) SaveOption {
	return func(o *saveOptions) {
		if o.metadata == nil {
			o.metadata = map[string]any{}
		}
		for key, value := range v {
			o.metadata[key] = value
		}
	}
}

// WithMaterializerID forces a materializer regardless of the class mapping.
func WithMaterializerID(v string) SaveOption {
	return func(o *saveOptions) {
		o.materializerID = v
	}
}

// DownloadAs stores the downloaded version under another name.
func DownloadAs(name string) DownloadOption {
	return func(o *downloadOptions) {
		o.name = name
	}
}

// DownloadVersion stores the downloaded version under another version.
func DownloadVersion(version string) DownloadOption {
	return func(o *downloadOptions) {
		o.version = version
	}
}
