package identity

import "github.com/JakeFAU/realtime-job-crawler/internal/crawler"

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// DefaultProfiles returns the built-in desktop browser fingerprints.
func DefaultProfiles() []crawler.HeaderProfile {
	return []crawler.HeaderProfile{
		{
			Name:           "chrome-windows",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			Accept:         acceptHTML,
			AcceptLanguage: "en-US,en;q=0.9",
			SecChUA:        `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
			Platform:       `"Windows"`,
		},
		{
			Name:           "chrome-macos",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
			Accept:         acceptHTML,
			AcceptLanguage: "en-US,en;q=0.8",
			SecChUA:        `"Google Chrome";v="125", "Chromium";v="125", "Not.A/Brand";v="24"`,
			Platform:       `"macOS"`,
		},
		{
			Name:           "edge-windows",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
			Accept:         acceptHTML,
			AcceptLanguage: "en-US,en;q=0.9,en-GB;q=0.8",
			SecChUA:        `"Not/A)Brand";v="8", "Chromium";v="126", "Microsoft Edge";v="126"`,
			Platform:       `"Windows"`,
		},
		{
			Name:           "firefox-linux",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
			Accept:         acceptHTML,
			AcceptLanguage: "en-US,en;q=0.5",
		},
		{
			Name:           "safari-macos",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			AcceptLanguage: "en-US,en;q=0.9",
		},
	}
}
