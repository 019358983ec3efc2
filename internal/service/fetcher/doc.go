// Package fetcher downloads a pre-built mpm release archive for a platform,
// verifies it and installs the extracted directory under a fixed name.
package fetcher
