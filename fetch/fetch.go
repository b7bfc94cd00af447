// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fetch downloads the input data named by a manifest,
// verifying checksums and skipping items that are already present.
// Manifests are YAML documents of the following form:
//
//	data:
//	  - name: run2012-doublemu
//	    source_type: url
//	    source: https://example.org/Run2012B_DoubleMuParked.evc
//	    target_location: data/Run2012B_DoubleMuParked.evc
//	    verification:
//	      checksum: 6e7f1c0f2e6b...
//
// Sources of type "url" are downloaded over HTTP; sources of type
// "file" (or its synonym "filesystem") are copied through the file
// package and may thus name any registered file system
// implementation, for example s3:// URLs. Sources of type "backpack"
// name files bundled alongside the manifest itself and are resolved
// relative to the manifest's directory.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	yaml "gopkg.in/yaml.v2"
)

// A Manifest names a set of data items to be fetched.
type Manifest struct {
	Data []Item `yaml:"data"`

	// Root is the directory against which "backpack" sources are
	// resolved. Load sets it to the manifest's directory.
	Root string `yaml:"-"`
}

// An Item is a single entry in a manifest.
type Item struct {
	// Name identifies the item in logs and error messages.
	Name string `yaml:"name"`
	// SourceType is "url", "file" (or its synonym "filesystem"),
	// or "backpack".
	SourceType string `yaml:"source_type"`
	// Source locates the item's contents: an HTTP(S) URL for source
	// type "url", a file URL or path for source type "file", or a
	// path relative to the manifest for source type "backpack".
	Source string `yaml:"source"`
	// Target is the local path at which the item is placed.
	Target string `yaml:"target_location"`
	// Verification holds the item's expected checksum. Items
	// without a checksum are fetched only if the target is absent.
	Verification struct {
		Checksum string `yaml:"checksum"`
	} `yaml:"verification"`
}

func (item Item) validate() error {
	if item.Name == "" || item.Source == "" || item.Target == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("manifest item %+v is missing required fields", item))
	}
	switch item.SourceType {
	case "url", "file", "filesystem", "backpack":
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("%s: unsupported source type %q", item.Name, item.SourceType))
	}
	return nil
}

// Load reads and parses the manifest at the named path.
func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, errors.E(errors.Invalid, fmt.Sprintf("manifest %s", path), err)
	}
	m.Root = filepath.Dir(path)
	if len(m.Data) == 0 {
		return m, errors.E(errors.Invalid, fmt.Sprintf("manifest %s names no data", path))
	}
	for _, item := range m.Data {
		if err := item.validate(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// Ensure fetches every item in the manifest that is not already
// present with a matching checksum. Items are fetched concurrently;
// the first error aborts the remaining fetches.
func Ensure(ctx context.Context, m Manifest) error {
	return traverse.Each(len(m.Data), func(i int) error {
		return ensure(ctx, m.resolve(m.Data[i]))
	})
}

// resolve returns item with backpack sources resolved against the
// manifest root.
func (m Manifest) resolve(item Item) Item {
	if item.SourceType == "backpack" && !filepath.IsAbs(item.Source) {
		item.Source = filepath.Join(m.Root, item.Source)
	}
	return item
}

func ensure(ctx context.Context, item Item) error {
	ok, err := verified(item)
	if err != nil {
		return err
	}
	if ok {
		log.Printf("fetch: %s: up to date at %s", item.Name, item.Target)
		return nil
	}
	if err := item.fetch(ctx); err != nil {
		return err
	}
	if item.Verification.Checksum == "" {
		return nil
	}
	sum, err := checksum(item.Target)
	if err != nil {
		return err
	}
	if sum != item.Verification.Checksum {
		return errors.E(errors.Integrity,
			fmt.Sprintf("%s: %s has checksum %s, expected %s", item.Name, item.Target, sum, item.Verification.Checksum))
	}
	return nil
}

// verified reports whether the item's target already exists and,
// when the item carries a checksum, matches it. A target that exists
// with a mismatched checksum is refetched.
func verified(item Item) (bool, error) {
	info, err := os.Stat(item.Target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, errors.E(errors.Invalid, fmt.Sprintf("%s: target %s is not a regular file", item.Name, item.Target))
	}
	if item.Verification.Checksum == "" {
		return true, nil
	}
	sum, err := checksum(item.Target)
	if err != nil {
		return false, err
	}
	if sum != item.Verification.Checksum {
		log.Printf("fetch: %s: checksum mismatch at %s; refetching", item.Name, item.Target)
		return false, nil
	}
	return true, nil
}

// fetch writes the item's contents to a temporary file beside the
// target and then renames it into place, so that interrupted fetches
// never leave a partial target behind.
func (item Item) fetch(ctx context.Context) (err error) {
	if err = os.MkdirAll(filepath.Dir(item.Target), 0777); err != nil {
		return err
	}
	tmp := item.Target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	switch item.SourceType {
	case "url":
		log.Printf("fetch: %s: downloading %s", item.Name, item.Source)
		err = download(ctx, item.Source, f)
	case "file", "filesystem", "backpack":
		log.Printf("fetch: %s: copying %s", item.Name, item.Source)
		err = copyFile(ctx, item.Source, f)
	default:
		err = errors.E(errors.Invalid, fmt.Sprintf("unsupported source type %q", item.SourceType))
	}
	if err == nil {
		err = f.Close()
	} else {
		f.Close()
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, item.Target)
}

func download(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.E(errors.Net, fmt.Sprintf("get %s: %s", url, resp.Status))
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func copyFile(ctx context.Context, path string, w io.Writer) error {
	f, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close(ctx)
	_, err = io.Copy(w, f.Reader(ctx))
	return err
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
