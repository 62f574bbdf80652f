// Package core provides the shared execution model types for shopper-runner.
package core

import (
	"crypto/md5" //#nosec G501 -- used for a short filename tag, not security
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"
)

// Common content types
const (
	ContentTypePNG = "image/png"
)

// Screenshot tags used by the behavior script.
const (
	TagReadinessWait  = "WebDriverWait"
	TagNavigate       = "handle_popups_and_navigate"
	TagSearch         = "search_keyword"
	TagProductDetail  = "handle_product_detail"
	TagClickAndReturn = "click_and_return"
)

// Attachment represents a debug artifact captured during a run
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"`
	Body        []byte `json:"-"`
}

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        "screenshot",
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// TagHash returns the first 8 hex characters of md5(tag).
func TagHash(tag string) string {
	sum := md5.Sum([]byte(tag)) //#nosec G401
	return hex.EncodeToString(sum[:])[:8]
}

// ScreenshotName builds "{YYYY-MM-DD}_{tag}_{hash8}.png".
func ScreenshotName(now time.Time, tag string) string {
	return fmt.Sprintf("%s_%s_%s.png", now.Format("2006-01-02"), tag, TagHash(tag))
}

// ScreenshotPath joins dir and ScreenshotName. An empty dir means the working directory.
func ScreenshotPath(dir string, now time.Time, tag string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, ScreenshotName(now, tag))
}
