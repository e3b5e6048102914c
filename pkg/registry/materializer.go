package registry

import (
	"io"
	"os"
	"path/filepath"
	"reflect"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	MaterializerJSON  = "json"
	MaterializerYAML  = "yaml"
	MaterializerBytes = "bytes"
	MaterializerText  = "text"
	MaterializerPath  = "path"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// Materializer turns a value into files and back.
	Materializer interface {
		// Save writes value into the empty directory dir.
		Save(value any, dir string) error
		// Load restores the content of dir into the value into points to.
		Load(dir string, into any) error
	}

	// Path is a file or directory on the local disk. Saving a Path stores
	// the tree, loading one restores the tree into the directory it names.
	Path string

	JSONMaterializer  struct{}
	YAMLMaterializer  struct{}
	BytesMaterializer struct{}
	TextMaterializer  struct{}
	PathMaterializer  struct{}
)

// DefaultMaterializers returns a fresh catalog of the built-in materializers.
func DefaultMaterializers() map[string]Materializer {
	return map[string]Materializer{
		MaterializerJSON:  JSONMaterializer{},
		MaterializerYAML:  YAMLMaterializer{},
		MaterializerBytes: BytesMaterializer{},
		MaterializerText:  TextMaterializer{},
		MaterializerPath:  PathMaterializer{},
	}
}

// ClassOf returns the class identifier of value: the package path qualified
// name of its named type, or the type's string form.
func ClassOf(value any) string {
	t := reflect.TypeOf(value)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// defaultMaterializerID picks the materializer used for a class that has
// none registered yet.
func defaultMaterializerID(value any) string {
	switch value.(type) {
	case []byte, *[]byte:
		return MaterializerBytes
	case string, *string:
		return MaterializerText
	case Path, *Path:
		return MaterializerPath
	default:
		return MaterializerJSON
	}
}

// ------------------------------------------------------------------------------------------------
// ~ JSON
// ------------------------------------------------------------------------------------------------

func (JSONMaterializer) Save(value any, dir string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to encode json")
	}
	return os.WriteFile(filepath.Join(dir, "data.json"), data, 0o644)
}

func (JSONMaterializer) Load(dir string, into any) error {
	data, err := os.ReadFile(filepath.Join(dir, "data.json"))
	if err != nil {
		return err
	}
	return errors.Wrap(json.Unmarshal(data, into), "failed to decode json")
}

// ------------------------------------------------------------------------------------------------
// ~ YAML
// ------------------------------------------------------------------------------------------------

func (YAMLMaterializer) Save(value any, dir string) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to encode yaml")
	}
	return os.WriteFile(filepath.Join(dir, "data.yaml"), data, 0o644)
}

func (YAMLMaterializer) Load(dir string, into any) error {
	data, err := os.ReadFile(filepath.Join(dir, "data.yaml"))
	if err != nil {
		return err
	}
	return errors.Wrap(yaml.Unmarshal(data, into), "failed to decode yaml")
}

// ------------------------------------------------------------------------------------------------
// ~ Bytes
// ------------------------------------------------------------------------------------------------

func (BytesMaterializer) Save(value any, dir string) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case *[]byte:
		data = *v
	default:
		return errors.Errorf("bytes materializer cannot save %T", value)
	}
	return os.WriteFile(filepath.Join(dir, "data.bin"), data, 0o644)
}

func (BytesMaterializer) Load(dir string, into any) error {
	dst, ok := into.(*[]byte)
	if !ok {
		return errors.Errorf("bytes materializer cannot load into %T", into)
	}
	data, err := os.ReadFile(filepath.Join(dir, "data.bin"))
	if err != nil {
		return err
	}
	*dst = data
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Text
// ------------------------------------------------------------------------------------------------

func (TextMaterializer) Save(value any, dir string) error {
	var data string
	switch v := value.(type) {
	case string:
		data = v
	case *string:
		data = *v
	default:
		return errors.Errorf("text materializer cannot save %T", value)
	}
	return os.WriteFile(filepath.Join(dir, "data.txt"), []byte(data), 0o644)
}

func (TextMaterializer) Load(dir string, into any) error {
	dst, ok := into.(*string)
	if !ok {
		return errors.Errorf("text materializer cannot load into %T", into)
	}
	data, err := os.ReadFile(filepath.Join(dir, "data.txt"))
	if err != nil {
		return err
	}
	*dst = string(data)
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Path
// ------------------------------------------------------------------------------------------------

func (PathMaterializer) Save(value any, dir string) error {
	var src Path
	switch v := value.(type) {
	case Path:
		src = v
	case *Path:
		src = *v
	default:
		return errors.Errorf("path materializer cannot save %T", value)
	}
	info, err := os.Stat(string(src))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(string(src), filepath.Join(dir, filepath.Base(string(src))), info.Mode())
	}
	return copyTree(string(src), dir)
}

func (PathMaterializer) Load(dir string, into any) error {
	dst, ok := into.(*Path)
	if !ok {
		return errors.Errorf("path materializer cannot load into %T", into)
	}
	if *dst == "" {
		return errors.New("path materializer needs a destination directory")
	}
	return copyTree(dir, string(*dst))
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
