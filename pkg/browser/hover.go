package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/entrhq/webtest/pkg/report"
)

// hitTestScript checks that the element's bounding-box centre hits the
// element itself and that it accepts pointer events.
const hitTestScript = `(el) => {
  const style = window.getComputedStyle(el);
  if (style.pointerEvents === "none") {
    return { ok: false, reason: "pointer-events disabled" };
  }
  const r = el.getBoundingClientRect();
  const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
  if (!top) {
    return { ok: false, reason: "element centre is outside the viewport" };
  }
  if (top !== el && !el.contains(top)) {
    const id = top.id ? "#" + top.id : "";
    return { ok: false, reason: "covered by " + top.tagName.toLowerCase() + id };
  }
  return { ok: true, reason: "" };
}`

const hoverMatchScript = `(el) => el.matches(":hover")`

// hoverPhase is a named step of the hover check.
type hoverPhase string

const (
	phaseVisible  hoverPhase = "visibility"
	phaseScroll   hoverPhase = "scroll into view"
	phaseHitTest  hoverPhase = "hit test"
	phaseHovering hoverPhase = "hover state"
)

// Hover moves the pointer over target after checking that it is visible,
// in the viewport, and not covered. It returns true only when the element
// matches :hover afterwards. Failed checks return false; only page
// infrastructure failures are returned as errors.
func (e *Executor) Hover(ctx context.Context, target string, timeout time.Duration) (ok bool, err error) {
	ctx, span, err := e.begin(ctx, "hover", attribute.String("target", target))
	defer func() {
		span.SetAttributes(attribute.Bool("hovered", ok))
		e.finish(span, err)
	}()
	if err != nil {
		return false, err
	}
	if timeout <= 0 {
		timeout = e.timeout
	}
	desc := "Hover " + target

	phases := []struct {
		name hoverPhase
		run  func() error
	}{
		{phaseVisible, func() error { return e.page.WaitForSelector(target, WaitVisible, timeout) }},
		{phaseScroll, func() error { return e.page.ScrollIntoView(target, timeout) }},
		{phaseHitTest, func() error { return e.hitTest(target, timeout) }},
		{phaseHovering, func() error {
			if err := e.page.Hover(target, timeout); err != nil {
				return err
			}
			return e.checkHovered(target, timeout)
		}},
	}

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			e.reporter.AddStep(desc, report.StatusError, err)
			return false, err
		}
		phaseErr := phase.run()
		if phaseErr == nil {
			continue
		}
		cause := fmt.Errorf("%s: %w", phase.name, phaseErr)
		switch {
		case classify(phaseErr) == OutcomeFatal:
			e.reporter.AddStep(desc, report.StatusError, cause)
			return false, e.captureFailure("hover_error", cause)
		case errors.Is(phaseErr, ErrTimeout):
			e.reporter.AddStep(desc, report.StatusWarning, cause)
			e.captureQuietly("hover_timeout")
		default:
			e.reporter.AddStep(desc, report.StatusFailed, cause)
			e.captureQuietly("hover_error")
		}
		return false, nil
	}

	e.reporter.AddStep(desc, report.StatusSuccess, nil)
	if _, err := e.screenshot("hover_"+hoverLabel(target), false); err != nil {
		e.logger.Warnf("hover screenshot: %v", err)
	}
	return true, nil
}

// errHitTest is a hit-test rejection reported by the page.
type errHitTest struct{ reason string }

func (e *errHitTest) Error() string { return e.reason }

func (e *Executor) hitTest(target string, timeout time.Duration) error {
	v, err := e.page.EvaluateElement(target, hitTestScript, timeout)
	if err != nil {
		return err
	}
	res, _ := v.(map[string]interface{})
	if ok, _ := res["ok"].(bool); ok {
		return nil
	}
	reason, _ := res["reason"].(string)
	if reason == "" {
		reason = "element is not hittable"
	}
	return &errHitTest{reason: reason}
}

func (e *Executor) checkHovered(target string, timeout time.Duration) error {
	v, err := e.page.EvaluateElement(target, hoverMatchScript, timeout)
	if err != nil {
		return err
	}
	if hovered, _ := v.(bool); !hovered {
		return errors.New("element does not match :hover after hovering")
	}
	return nil
}

var labelUnsafe = regexp.MustCompile(`[^A-Za-z0-9]+`)

func hoverLabel(target string) string {
	label := strings.Trim(labelUnsafe.ReplaceAllString(target, "_"), "_")
	if len(label) > 40 {
		label = label[:40]
	}
	if label == "" {
		label = "element"
	}
	return strings.ToLower(label)
}
