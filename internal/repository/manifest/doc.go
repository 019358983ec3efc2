// Package manifest persists the release manifest.
//
// The FileRepository stores and loads the manifest as YAML inside a release
// directory; Decode reads one served by a mirror.
package manifest
