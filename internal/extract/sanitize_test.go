package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

func TestSanitizerCheckTitle(t *testing.T) {
	t.Parallel()

	s := NewSanitizer(3)
	tests := []struct {
		title string
		want  error
	}{
		{"Registered Nurse", nil},
		{"RN", errTitleTooShort},
		{"Search", errTitleBoilerplate},
		{"Next Page", errTitleBoilerplate},
		{"Show more", errTitleBoilerplate},
		{"3 days ago", errTitleRelative},
		{"2 weeks ago", errTitleRelative},
		{"Posted 1 hour ago", errTitleRelative},
		{"just now", errTitleRelative},
		{"Yesterday", errTitleRelative},
		{"Nurse Manager - 3 days a week", nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, s.CheckTitle(tc.title), tc.title)
	}
}

func TestSanitizerClean(t *testing.T) {
	t.Parallel()

	s := NewSanitizer(3)
	got, err := s.Clean(crawler.CandidateRecord{
		Title:           "  <b>Senior</b>\n\tNurse  ",
		Company:         "Acme &amp; Sons",
		DescriptionHTML: "<ul><li>Day shift</li><li>Benefits</li></ul>",
		ExternalID:      " 42 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Senior Nurse", got.Title)
	assert.Equal(t, "Acme & Sons", got.Company)
	assert.Equal(t, "Day shift Benefits", got.DescriptionText)
	assert.Equal(t, "42", got.ExternalID)

	_, err = s.Clean(crawler.CandidateRecord{Title: "<span>Next page</span>"})
	require.Error(t, err)
}

func TestSanitizerTruncates(t *testing.T) {
	t.Parallel()

	got := NewSanitizer(1).Normalize(crawler.CandidateRecord{Title: strings.Repeat("a", 500)})
	assert.Len(t, got.Title, maxTitleRunes)
}

func TestStripMarkupPlainText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "already plain", StripMarkup("already plain"))
	assert.Equal(t, "a b", StripMarkup("<p>a</p><script>evil()</script><p>b</p>"))
}

func TestIDHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3812345678", NormalizeID("urn:li:jobPosting:3812345678"))
	assert.Equal(t, "abc", NormalizeID(" abc "))

	assert.Equal(t, "3812345678", IDFromURL("https://www.linkedin.com/jobs/view/registered-nurse-at-st-david-s-3812345678?refId=x"))
	assert.Equal(t, "3812345679", IDFromURL("https://www.linkedin.com/jobs/search?currentJobId=3812345679&keywords=nurse"))
	assert.Equal(t, "abcdef1234", IDFromURL("https://www.indeed.com/viewjob?jk=abcdef1234&from=serp"))
	assert.Empty(t, IDFromURL("https://example.com/about"))

	assert.Equal(t, "https://example.com/jobs/a", CanonicalURL("HTTPS://Example.COM/jobs/a/?utm=1#top"))
	assert.Empty(t, CanonicalURL("/relative"))
}

func TestIDResolverFallsBackToDigest(t *testing.T) {
	t.Parallel()

	r := idResolver{hasher: fixedHasher{}}
	id, err := r.resolve(crawler.CandidateRecord{Title: "Nurse", SourceURL: "https://example.com/careers/nurse?src=x"})
	require.NoError(t, err)
	assert.Equal(t, "sha256:https://example.com/careers/nurse", id)

	id, err = r.resolve(crawler.CandidateRecord{Title: "Nurse", Company: "Acme", Location: "Austin"})
	require.NoError(t, err)
	assert.Equal(t, "sha256:nurse|acme|austin", id)
}

type fixedHasher struct{}

func (fixedHasher) Hash(data []byte) (string, error) { return string(data), nil }
