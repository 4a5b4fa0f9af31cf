package enrich

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGenres(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "extracts genre buttons in document order",
			html: `<html><body>
				<div class="BookPageMetadataSection__genres">
					<a class="BookPageMetadataSection__genreButton">Fantasy</a>
					<a class="BookPageMetadataSection__genreButton">Fiction</a>
					<a class="BookPageMetadataSection__genreButton"> Young Adult </a>
				</div>
			</body></html>`,
			want: []string{"Fantasy", "Fiction", "Young Adult"},
		},
		{
			name: "ignores genre buttons outside the genres section",
			html: `<html><body>
				<a class="BookPageMetadataSection__genreButton">Stray</a>
				<div class="BookPageMetadataSection__genres">
					<a class="BookPageMetadataSection__genreButton">History</a>
				</div>
			</body></html>`,
			want: []string{"History"},
		},
		{
			name: "no genres section",
			html: `<html><body><h1>Some Book</h1></body></html>`,
			want: nil,
		},
		{
			name: "skips empty labels",
			html: `<html><body>
				<div class="BookPageMetadataSection__genres">
					<a class="BookPageMetadataSection__genreButton">  </a>
					<a class="BookPageMetadataSection__genreButton">Poetry</a>
				</div>
			</body></html>`,
			want: []string{"Poetry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGenres(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
