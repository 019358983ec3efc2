package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// LatestVersion selects the newest published release.
const LatestVersion = "latest"

// DefaultURLTemplate follows the release-host layout:
// <base>/download/<version>/<archive>, or <base>/latest/download/<archive>.
const DefaultURLTemplate = `{{ trimSuffix "/" .BaseURL }}/` +
	`{{ if eq .Version "latest" }}latest/download{{ else }}download/{{ .Version }}{{ end }}/` +
	`{{ .Archive }}`

// errEmptyURL is returned when a template renders to nothing.
var errEmptyURL = errors.New("download URL is empty")

// URLData is the value a download URL template is executed with.
type URLData struct {
	BaseURL string
	Version string
	Asset   string
	OS      string
	Arch    string
	Ext     string
	Archive string
}

// NewURLData fills the template data for an asset on a platform.
func NewURLData(baseURL, version, asset string, p Platform) URLData {
	if version == "" {
		version = LatestVersion
	}

	return URLData{
		BaseURL: baseURL,
		Version: version,
		Asset:   asset,
		OS:      p.OS,
		Arch:    p.Arch,
		Ext:     p.Ext,
		Archive: p.ArchiveName(asset),
	}
}

// AssetURL renders tmpl (DefaultURLTemplate when empty) with sprig functions
// and checks that the result is an absolute URL.
func AssetURL(tmpl string, data URLData) (string, error) {
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}

	parsed, err := template.New("url").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse URL template: %w", err)
	}

	var buf bytes.Buffer
	if err = parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render URL template: %w", err)
	}

	rendered := strings.TrimSpace(buf.String())
	if rendered == "" {
		return "", errEmptyURL
	}

	if _, err = url.ParseRequestURI(rendered); err != nil {
		return "", fmt.Errorf("invalid download URL %q: %w", rendered, err)
	}

	return rendered, nil
}

// siblingURL replaces the last path element of rawURL with name.
func siblingURL(rawURL, name string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	idx := strings.LastIndex(u.Path, "/")
	u.Path = u.Path[:idx+1] + name
	u.RawPath = ""

	return u.String(), nil
}
