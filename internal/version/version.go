// Package version checks GitHub for newer SmartCharge releases and compares
// semantic versions.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

type githubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// ReleaseInfo contains version comparison results
type ReleaseInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	ReleaseName     string    `json:"release_name,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

const (
	cacheTTL    = 1 * time.Hour
	httpTimeout = 10 * time.Second
	apiURL      = "https://api.github.com/repos/%s/%s/releases/latest"
)

// Checker polls the GitHub releases API with a short cache so the endpoint
// can be hit freely.
type Checker struct {
	currentVersion string
	owner          string
	repo           string
	httpClient     *http.Client

	mu          sync.RWMutex
	cachedInfo  *ReleaseInfo
	cacheExpiry time.Time
}

// NewChecker creates a version checker for the given repository.
func NewChecker(currentVersion, owner, repo string) *Checker {
	return &Checker{
		currentVersion: normalize(currentVersion),
		owner:          owner,
		repo:           repo,
		httpClient:     &http.Client{Timeout: httpTimeout},
	}
}

// CurrentVersion returns the running version string.
func (c *Checker) CurrentVersion() string {
	return c.currentVersion
}

// Check fetches the latest release info, serving from cache when fresh. A
// failed fetch falls back to stale cache if one exists.
func (c *Checker) Check() (*ReleaseInfo, error) {
	c.mu.RLock()
	if c.cachedInfo != nil && time.Now().Before(c.cacheExpiry) {
		info := *c.cachedInfo
		c.mu.RUnlock()
		return &info, nil
	}
	c.mu.RUnlock()

	info, err := c.fetchLatest()
	if err != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.cachedInfo != nil {
			stale := *c.cachedInfo
			stale.CheckedAt = time.Now()
			return &stale, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cachedInfo = info
	c.cacheExpiry = time.Now().Add(cacheTTL)
	c.mu.Unlock()
	return info, nil
}

func (c *Checker) fetchLatest() (*ReleaseInfo, error) {
	url := fmt.Sprintf(apiURL, c.owner, c.repo)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", fmt.Sprintf("SmartCharge/%s", c.currentVersion))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release info: %w", err)
	}
	defer resp.Body.Close()

	// No releases yet is not an error.
	if resp.StatusCode == http.StatusNotFound {
		return c.noUpdate(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode release info: %w", err)
	}
	if release.Draft || release.Prerelease {
		return c.noUpdate(), nil
	}

	latest := normalize(release.TagName)
	return &ReleaseInfo{
		CurrentVersion:  c.currentVersion,
		LatestVersion:   latest,
		UpdateAvailable: Compare(c.currentVersion, latest) < 0,
		ReleaseURL:      release.HTMLURL,
		ReleaseName:     release.Name,
		PublishedAt:     release.PublishedAt,
		CheckedAt:       time.Now(),
	}, nil
}

func (c *Checker) noUpdate() *ReleaseInfo {
	return &ReleaseInfo{
		CurrentVersion:  c.currentVersion,
		LatestVersion:   c.currentVersion,
		UpdateAvailable: false,
		CheckedAt:       time.Now(),
	}
}

// Compare compares two semantic versions.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2.
func Compare(v1, v2 string) int {
	p1 := parse(normalize(v1))
	p2 := parse(normalize(v2))

	for i := 0; i < 3; i++ {
		if p1[i] < p2[i] {
			return -1
		}
		if p1[i] > p2[i] {
			return 1
		}
	}

	// A stable build outranks any prerelease of the same number.
	pre1, pre2 := p1[3], p2[3]
	switch {
	case pre1 == 0 && pre2 != 0:
		return 1
	case pre1 != 0 && pre2 == 0:
		return -1
	case pre1 < pre2:
		return -1
	case pre1 > pre2:
		return 1
	}
	return 0
}

func normalize(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")
	return strings.TrimPrefix(v, "V")
}

// parse extracts [major, minor, patch, prerelease weight].
func parse(v string) [4]int {
	var out [4]int

	if idx := strings.Index(v, "-"); idx != -1 {
		pre := strings.ToLower(v[idx+1:])
		v = v[:idx]

		weight := 0
		if m := regexp.MustCompile(`(\d+)`).FindStringSubmatch(pre); len(m) > 1 {
			weight, _ = strconv.Atoi(m[1])
		}
		switch {
		case strings.HasPrefix(pre, "alpha"):
			weight += 1000
		case strings.HasPrefix(pre, "beta"):
			weight += 2000
		case strings.HasPrefix(pre, "rc"):
			weight += 3000
		default:
			weight += 500
		}
		out[3] = weight
	}

	parts := strings.Split(v, ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		numStr := regexp.MustCompile(`^\d+`).FindString(parts[i])
		if num, err := strconv.Atoi(numStr); err == nil {
			out[i] = num
		}
	}
	return out
}
