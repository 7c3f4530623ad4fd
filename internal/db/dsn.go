package db

import (
	"net/url"
	"regexp"
	"strings"
)

var kvPairRegex = regexp.MustCompile(`(?i)\b(host|user|password|dbname|port|sslmode)=`)

// NormalizeDSN accepts either a URL style DSN (postgres://...) or a lib/pq key=value list.
// It trims quotes and whitespace, adds sslmode=disable when missing from a key=value
// list and, when database is set and the DSN names none, points it at database.
func NormalizeDSN(raw, database string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'")
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		u, err := url.Parse(s)
		if err != nil || database == "" {
			return s
		}
		if strings.Trim(u.Path, "/") == "" {
			u.Path = "/" + database
		}
		return u.String()
	}
	// Not key=value pairs either: leave it to the driver to complain.
	if !kvPairRegex.MatchString(s) {
		return s
	}
	cleaned := strings.Join(strings.Fields(s), " ")
	lower = strings.ToLower(cleaned)
	if !strings.Contains(lower, "sslmode=") {
		cleaned += " sslmode=disable"
	}
	if database != "" && !strings.Contains(lower, "dbname=") {
		cleaned += " dbname=" + database
	}
	return cleaned
}

var passwordKV = regexp.MustCompile(`(?i)\bpassword=\S+`)

// RedactDSN hides the password so the DSN can be logged.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	return passwordKV.ReplaceAllString(dsn, "password=xxxxx")
}
