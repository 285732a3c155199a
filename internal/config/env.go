package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// env returns the variable k, or def when it is unset or empty.
func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envParse parses k with parse, returning def when k is empty or invalid.
func envParse[T any](k string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func envInt(k string, def int) int { return envParse(k, def, strconv.Atoi) }

func envDuration(k string, def time.Duration) time.Duration {
	return envParse(k, def, time.ParseDuration)
}

func envFloat(k string, def float64) float64 {
	return envParse(k, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envBool(k string, def bool) bool {
	return envParse(k, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errors.New("not a boolean")
	})
}

// envList splits a comma-separated variable, dropping blanks.
func envList(k string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(k), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validateURL requires an absolute http(s) URL.
func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// empty means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
