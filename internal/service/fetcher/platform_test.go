package fetcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myprojectmanager/mpm-release/internal/domain/target"
)

// TestDetectPlatform checks archive formats and rejection of unknown platforms.
func TestDetectPlatform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		goos, goarch string
		want         Platform
		wantErr      bool
	}{
		{goos: "windows", goarch: "amd64", want: Platform{OS: "windows", Arch: "amd64", Ext: ".zip"}},
		{goos: "linux", goarch: "arm64", want: Platform{OS: "linux", Arch: "arm64", Ext: ".tar.gz"}},
		{goos: "darwin", goarch: "arm64", want: Platform{OS: "darwin", Arch: "arm64", Ext: ".tar.gz"}},
		{goos: "freebsd", goarch: "amd64", wantErr: true},
		{goos: "linux", goarch: "386", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			t.Parallel()

			got, err := DetectPlatform(tt.goos, tt.goarch)
			if tt.wantErr {
				require.ErrorIs(t, err, target.ErrUnsupported)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestAssetURL covers the default layout and custom sprig templates.
func TestAssetURL(t *testing.T) {
	t.Parallel()

	darwin, err := DetectPlatform("darwin", "arm64")
	require.NoError(t, err)

	windows, err := DetectPlatform("windows", "amd64")
	require.NoError(t, err)

	const base = "https://github.com/myprojectmanager/mpm/releases/"

	tests := []struct {
		name string
		tmpl string
		data URLData
		want string
	}{
		{
			name: "latest darwin arm64",
			data: NewURLData(base, "", "mpm", darwin),
			want: "https://github.com/myprojectmanager/mpm/releases/latest/download/mpm-darwin-arm64.tar.gz",
		},
		{
			name: "pinned windows",
			data: NewURLData(base, "v1.2.0", "mpm", windows),
			want: "https://github.com/myprojectmanager/mpm/releases/download/v1.2.0/mpm-windows-amd64.zip",
		},
		{
			name: "custom template with sprig",
			tmpl: `{{ .BaseURL | trimSuffix "/" }}/{{ .Version | trimPrefix "v" }}/{{ .Asset }}_{{ .OS | upper }}{{ .Ext }}`,
			data: NewURLData(base, "v1.2.0", "mpm", darwin),
			want: "https://github.com/myprojectmanager/mpm/releases/1.2.0/mpm_DARWIN.tar.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := AssetURL(tt.tmpl, tt.data)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestAssetURL_Errors rejects broken templates and non-URLs.
func TestAssetURL_Errors(t *testing.T) {
	t.Parallel()

	data := NewURLData("https://example.com", "", "mpm", Platform{OS: "linux", Arch: "amd64", Ext: ".tar.gz"})

	_, err := AssetURL("{{ .Missing", data)
	require.Error(t, err)

	_, err = AssetURL("{{ .Nope }}", data)
	require.Error(t, err)

	_, err = AssetURL("   ", data)
	require.ErrorIs(t, err, errEmptyURL)

	_, err = AssetURL("{{ .Archive }}", data)
	require.Error(t, err)
}

// TestSiblingURL replaces the last path element.
func TestSiblingURL(t *testing.T) {
	t.Parallel()

	got, err := siblingURL("http://127.0.0.1:8080/download/v1/mpm-linux-amd64.tar.gz", "mpm-manifest.yaml")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080/download/v1/mpm-manifest.yaml", got)
}
