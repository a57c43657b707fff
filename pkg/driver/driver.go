// Package driver defines the page-driving capability consumed by the action
// executor. The executor depends only on this interface; concrete
// implementations (see the playwright subpackage) live behind it.
package driver

import (
	"context"
	"time"

	"github.com/entrhq/relay/pkg/types"
)

// PageDriver performs atomic operations against one browser page. A driver
// is bound to a single logical browsing identity; the resource lock
// guarantees only one run uses it at a time, so implementations do not need
// internal synchronization across actions.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string, delay time.Duration) error
	Scroll(ctx context.Context, direction string, amount int, selector string) error

	// Extract reads the requested fields and returns the values it found,
	// keyed by field name. Fields that cannot be located are simply absent
	// from the record; only page-level failures return an error.
	Extract(ctx context.Context, fields []types.ExtractField) (map[string]string, error)

	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitForTimeout(ctx context.Context, d time.Duration) error
	Hover(ctx context.Context, selector string) error
	Select(ctx context.Context, selector, value string) error

	CurrentURL() string
	Title() (string, error)
}

// Provider hands out the driver bound to a resource. The orchestrator asks
// for one after acquiring the resource lock and before executing any step.
type Provider interface {
	DriverFor(ctx context.Context, resourceID string) (PageDriver, error)
}
