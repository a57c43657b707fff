package playwright

import (
	"context"
	"fmt"
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/entrhq/relay/pkg/types"
)

// Driver drives one profile's page. Playwright calls carry their own
// timeouts; the executor additionally races every call against the run's
// cancellation signal, so the context parameters are unused here.
type Driver struct {
	session *session
}

// Navigate loads the URL and waits for the load event.
func (d *Driver) Navigate(_ context.Context, url string) error {
	d.session.touch()
	if _, err := d.session.page.Goto(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the element matching the selector.
func (d *Driver) Click(_ context.Context, selector string) error {
	d.session.touch()
	if err := d.session.page.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Type fills the element and types the text with an optional per-key delay,
// so typed messages look human rather than pasted.
func (d *Driver) Type(_ context.Context, selector, text string, delay time.Duration) error {
	d.session.touch()

	opts := pw.PageTypeOptions{}
	if delay > 0 {
		opts.Delay = pw.Float(float64(delay.Milliseconds()))
	}
	if err := d.session.page.Type(selector, text, opts); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	return nil
}

// Scroll scrolls the page, or brings a specific element into view when a
// selector is given.
func (d *Driver) Scroll(_ context.Context, direction string, amount int, selector string) error {
	d.session.touch()

	if selector != "" {
		element, err := d.session.page.QuerySelector(selector)
		if err != nil {
			return fmt.Errorf("scroll target query failed: %w", err)
		}
		if element == nil {
			return fmt.Errorf("no element found matching selector: %s", selector)
		}
		if err := element.ScrollIntoViewIfNeeded(); err != nil {
			return fmt.Errorf("scroll into view failed: %w", err)
		}
		return nil
	}

	if amount <= 0 {
		amount = defaultViewportHeight
	}
	if strings.EqualFold(direction, "up") {
		amount = -amount
	}
	if _, err := d.session.page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", amount)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Extract reads the requested fields from the page. Fields whose selector
// matches nothing are absent from the record; the executor reports them.
func (d *Driver) Extract(_ context.Context, fields []types.ExtractField) (map[string]string, error) {
	d.session.touch()

	record := make(map[string]string)
	for _, field := range fields {
		element, err := d.session.page.QuerySelector(field.Selector)
		if err != nil || element == nil {
			continue
		}

		var value string
		if field.Attribute != "" {
			attr, attrErr := element.GetAttribute(field.Attribute)
			if attrErr != nil {
				continue
			}
			value = attr
		} else {
			text, textErr := element.TextContent()
			if textErr != nil {
				continue
			}
			value = strings.TrimSpace(text)
		}
		if value != "" {
			record[field.Name] = value
		}
	}
	return record, nil
}

// Screenshot captures the current page as PNG bytes.
func (d *Driver) Screenshot(_ context.Context, fullPage bool) ([]byte, error) {
	d.session.touch()

	img, err := d.session.page.Screenshot(pw.PageScreenshotOptions{
		FullPage: pw.Bool(fullPage),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return img, nil
}

// WaitForSelector waits until the selector is present.
func (d *Driver) WaitForSelector(_ context.Context, selector string, timeout time.Duration) error {
	d.session.touch()

	opts := pw.PageWaitForSelectorOptions{}
	if timeout > 0 {
		opts.Timeout = pw.Float(float64(timeout.Milliseconds()))
	}
	if _, err := d.session.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// WaitForTimeout pauses for a fixed duration.
func (d *Driver) WaitForTimeout(_ context.Context, duration time.Duration) error {
	d.session.touch()
	d.session.page.WaitForTimeout(float64(duration.Milliseconds()))
	return nil
}

// Hover moves the pointer over the element matching the selector.
func (d *Driver) Hover(_ context.Context, selector string) error {
	d.session.touch()
	if err := d.session.page.Hover(selector); err != nil {
		return fmt.Errorf("hover failed: %w", err)
	}
	return nil
}

// Select chooses an option in a select element by value.
func (d *Driver) Select(_ context.Context, selector, value string) error {
	d.session.touch()

	if _, err := d.session.page.SelectOption(selector, pw.SelectOptionValues{
		Values: &[]string{value},
	}); err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

// CurrentURL returns the page's current URL.
func (d *Driver) CurrentURL() string {
	return d.session.page.URL()
}

// Title returns the page's current title.
func (d *Driver) Title() (string, error) {
	return d.session.page.Title()
}
