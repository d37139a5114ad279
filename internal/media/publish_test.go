package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyAsset(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  AssetClass
	}{
		{"mp4 only", []string{"clip.mp4", "clip_manifest.xml"}, SingleBitrate},
		{"empty", nil, SingleBitrate},
		{"server manifest", []string{"clip.mp4", "clip.ism"}, MultiBitrate},
		{"client manifest", []string{"clip.ismc", "clip_1.mp4"}, MultiBitrate},
		{"fragments", []string{"clip.ism", "clip.ismc", "clip_1.ismv", "clip_2.ismv"}, AdaptiveStream},
		{"upper case", []string{"CLIP.ISMV"}, AdaptiveStream},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyAsset(tc.files))
		})
	}
}

func TestFileURL(t *testing.T) {
	files := []string{"clip_manifest.xml", "clip_1.mp4", "clip_2.mp4", "clip.ism", "clip.ismc", "clip_1.ismv"}

	tests := []struct {
		name    string
		locator string
		exclude extSet
		want    string
	}{
		{
			name:    "multi bitrate sas keeps last mp4",
			locator: "https://blob.test/asset-1?sv=2012&sig=abc",
			exclude: multiSASExcluded,
			want:    "https://blob.test/asset-1/clip_2.mp4?sv=2012&sig=abc",
		},
		{
			name:    "multi bitrate odo points at manifest",
			locator: "https://origin.test/asset-1/",
			exclude: multiODOExcluded,
			want:    "https://origin.test/asset-1/clip.ism/manifest",
		},
		{
			name:    "adaptive odo",
			locator: "https://origin.test/asset-1",
			exclude: adaptiveODOExclude,
			want:    "https://origin.test/asset-1/clip.ism/manifest",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fileURL(tc.locator, files, tc.exclude)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestFileURL_NothingLeft(t *testing.T) {
	got, err := fileURL("https://blob.test/asset-1", []string{"clip_manifest.xml"}, baseExcluded)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileURL_EscapesNames(t *testing.T) {
	got, err := fileURL("https://blob.test/asset-1?sig=x", []string{"my clip.mp4"}, baseExcluded)
	require.NoError(t, err)
	require.Equal(t, "https://blob.test/asset-1/my%20clip.mp4?sig=x", got)
}

func TestMultiBitrateExclusions(t *testing.T) {
	for _, ext := range []string{".xml", ".ism", ".ismc", ".ismv"} {
		require.True(t, multiSASExcluded.excludes("clip"+ext), ext)
	}
	require.False(t, multiODOExcluded.excludes("clip.ism"))
	require.True(t, multiODOExcluded.excludes("clip.mp4"))
}
