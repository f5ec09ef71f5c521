// Package appsflyer talks to the AppsFlyer pull API.
package appsflyer

import "regexp"

// ReportTimezone is the timezone every report is requested in.
const ReportTimezone = "America/Panama"

// BuildReportURL appends the report query to base, which must already accept
// "api_token=..." (e.g. end with '?'). Values are concatenated verbatim and
// dates are not validated; the API rejects what it cannot parse.
func BuildReportURL(base, token, from, to string, reattr bool) string {
	u := base +
		"api_token=" + token +
		"&from=" + from +
		"&to=" + to +
		"&timezone=" + ReportTimezone
	if reattr {
		u += "&reattr=true"
	}
	return u
}

var tokenParam = regexp.MustCompile(`(api_token=)[^&]*`)

// RedactToken masks the api_token value so a report URL can be logged.
func RedactToken(u string) string {
	return tokenParam.ReplaceAllString(u, "${1}REDACTED")
}
