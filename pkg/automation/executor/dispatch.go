package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/relay/pkg/driver"
	"github.com/entrhq/relay/pkg/types"
)

// dispatch maps one action variant onto the driver capability of the same
// name and returns the action's result payload. The switch is exhaustive
// over the closed Action set; an unknown variant is a programming error and
// fails fast without retries.
func (e *Executor) dispatch(ctx context.Context, drv driver.PageDriver, action types.Action) (map[string]any, error) {
	switch a := action.(type) {
	case types.NavigateAction:
		if err := drv.Navigate(ctx, a.URL); err != nil {
			return nil, err
		}
		return map[string]any{"url": drv.CurrentURL()}, nil

	case types.ClickAction:
		return e.click(ctx, drv, a)

	case types.TypeAction:
		if err := drv.Type(ctx, a.Selector, a.Text, a.Delay); err != nil {
			return nil, err
		}
		return map[string]any{"selector": a.Selector}, nil

	case types.ScrollAction:
		if err := drv.Scroll(ctx, a.Direction, a.Amount, a.Selector); err != nil {
			return nil, err
		}
		return nil, nil

	case types.ExtractAction:
		return e.extract(ctx, drv, a)

	case types.ScreenshotAction:
		img, err := drv.Screenshot(ctx, a.FullPage)
		if err != nil {
			return nil, err
		}
		return map[string]any{"image": img, "bytes": len(img)}, nil

	case types.WaitAction:
		if a.Selector != "" {
			if err := drv.WaitForSelector(ctx, a.Selector, a.Timeout); err != nil {
				return nil, err
			}
			return map[string]any{"selector": a.Selector}, nil
		}
		if err := drv.WaitForTimeout(ctx, a.Duration); err != nil {
			return nil, err
		}
		return nil, nil

	case types.HoverAction:
		if err := drv.Hover(ctx, a.Selector); err != nil {
			return nil, err
		}
		return map[string]any{"selector": a.Selector}, nil

	case types.SelectAction:
		if err := drv.Select(ctx, a.Selector, a.Value); err != nil {
			return nil, err
		}
		return map[string]any{"selector": a.Selector, "value": a.Value}, nil

	default:
		return nil, fmt.Errorf("%w: unknown action kind %T", errMalformedAction, action)
	}
}

// click tries the primary selector and then each fallback strictly in order,
// using the first that succeeds. When every selector fails the error
// aggregates all individual failures so diagnosis does not lose the earlier
// ones.
func (e *Executor) click(ctx context.Context, drv driver.PageDriver, a types.ClickAction) (map[string]any, error) {
	var failures []string
	for _, selector := range a.Selectors() {
		err := drv.Click(ctx, selector)
		if err == nil {
			return map[string]any{"selector": selector}, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", selector, err))
	}
	return nil, fmt.Errorf("all %d click selectors failed: %s", len(failures), strings.Join(failures, "; "))
}

// extract reads the requested fields and reports missing ones in the result
// rather than raising. A partial read succeeds with the errors recorded in
// the payload; only a read that yields no fields at all fails the action.
func (e *Executor) extract(ctx context.Context, drv driver.PageDriver, a types.ExtractAction) (map[string]any, error) {
	record, err := drv.Extract(ctx, a.Fields)
	if err != nil {
		return nil, err
	}

	result := types.ExtractResult{
		Data: record,
	}
	for _, field := range a.Fields {
		if _, ok := record[field.Name]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("field %q not found (selector %s)", field.Name, field.Selector))
		}
	}
	result.Success = len(record) > 0

	payload := map[string]any{
		"data":   result.Data,
		"errors": result.Errors,
	}
	if !result.Success {
		return payload, fmt.Errorf("extraction found none of %d fields: %s", len(a.Fields), strings.Join(result.Errors, "; "))
	}
	return payload, nil
}
