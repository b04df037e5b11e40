package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// ArtifactNames returns the sorted names of the files bundled with the
// model that are neither graph nor parameter files, such as label lists
// and vocabularies. A model that was never loaded or saved has none.
func (m *Model) ArtifactNames() ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if m.modelDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.modelDir)
	if err != nil {
		return nil, ioError("list artifacts", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || isModelFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func validArtifactName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") ||
		filepath.IsAbs(name) {
		return fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}
	return nil
}

// artifactPath returns the file backing the named artifact, or "" if it
// does not exist.
func (m *Model) artifactPath(name string) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	if err := validArtifactName(name); err != nil {
		return "", err
	}
	if m.modelDir == "" || isModelFile(name) {
		return "", nil
	}
	p := filepath.Join(m.modelDir, name)
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", ioError("artifact "+name, err)
	case !info.Mode().IsRegular():
		return "", nil
	}
	return p, nil
}

// ArtifactURL returns a file URL for the named artifact, or nil if the
// model has no such artifact.
func (m *Model) ArtifactURL(name string) (*url.URL, error) {
	p, err := m.artifactPath(name)
	if err != nil || p == "" {
		return nil, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, ioError("artifact "+name, err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// ArtifactStream opens the named artifact. It returns nil and no error if
// the model has no such artifact. The caller closes the stream.
func (m *Model) ArtifactStream(name string) (io.ReadCloser, error) {
	p, err := m.artifactPath(name)
	if err != nil || p == "" {
		return nil, err
	}
	f, err := os.Open(p) //nolint:gosec // G304: name is validated as a plain file name
	if err != nil {
		return nil, ioError("open artifact "+name, err)
	}
	return f, nil
}

func (m *Model) cachedArtifact(name string) (any, bool) {
	m.artifactMu.Lock()
	defer m.artifactMu.Unlock()
	v, ok := m.artifacts[name]
	return v, ok
}

func (m *Model) storeArtifact(name string, v any) {
	m.artifactMu.Lock()
	defer m.artifactMu.Unlock()
	m.artifacts[name] = v
}

// GetArtifact returns the named artifact decoded by load, caching the result.
//
// load runs at most once per name and model, even when several goroutines
// ask for the same artifact concurrently; they all receive its result. A
// nil result is cached too, and returned as the zero value of T. Errors
// from load are returned and not cached, so a later call retries.
//
// Opening a missing artifact fails with ErrIO. Asking for a cached artifact
// as a different type fails with an *ArtifactTypeError.
//
//	labels, err := model.GetArtifact(m, "synset.txt", func(r io.Reader) ([]string, error) {
//	    return readLines(r)
//	})
func GetArtifact[T any](m *Model, name string, load func(io.Reader) (T, error)) (T, error) {
	var zero T
	if err := m.checkOpen(); err != nil {
		return zero, err
	}
	if err := validArtifactName(name); err != nil {
		return zero, err
	}
	if v, ok := m.cachedArtifact(name); ok {
		return artifactAs[T](name, v)
	}

	v, err, _ := m.flight.Do(name, func() (any, error) {
		// A flight that finished between the check above and Do has
		// already stored its result.
		if v, ok := m.cachedArtifact(name); ok {
			return v, nil
		}
		rc, err := m.ArtifactStream(name)
		if err != nil {
			return nil, err
		}
		if rc == nil {
			return nil, ioError("open artifact "+name, fs.ErrNotExist)
		}
		defer rc.Close()

		val, err := load(rc)
		m.logger.LogArtifact(context.Background(), name, err)
		if err != nil {
			return nil, fmt.Errorf("load artifact %s: %w", name, err)
		}
		var stored any = val
		if isNil(stored) {
			stored = nil
		}
		m.storeArtifact(name, stored)
		return stored, nil
	})
	if err != nil {
		return zero, err
	}
	return artifactAs[T](name, v)
}

func artifactAs[T any](name string, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &ArtifactTypeError{Name: name, Want: reflect.TypeFor[T](), Got: reflect.TypeOf(v)}
	}
	return t, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
