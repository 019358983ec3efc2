// Package release holds the manifest describing a published release
// directory: version metadata plus one checksum per artifact.
package release
