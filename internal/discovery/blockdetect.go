package discovery

import "strings"

// Block markers seen on the map surface when automated traffic is flagged.
// Matching any of them means the page content is a challenge, not results —
// it must be reported as blocked, never parsed as an empty region.
var blockMarkers = []struct {
	marker   string
	fragment string
}{
	{"captcha", "captcha"},
	{"captcha", "recaptcha"},
	{"captcha", "hcaptcha"},
	{"access_denied", "접근이 제한"},
	{"access_denied", "접근이 차단"},
	{"abnormal_traffic", "비정상적인 접근"},
	{"abnormal_traffic", "자동화된 요청"},
	{"browser_check", "checking your browser"},
	{"browser_check", "cf-browser-verification"},
}

// DetectBlockedPage checks rendered page text for anti-bot markers and names
// the first one it finds.
func DetectBlockedPage(body string) (bool, string) {
	if body == "" {
		return false, ""
	}
	lower := strings.ToLower(body)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m.fragment) {
			return true, m.marker
		}
	}
	return false, ""
}
