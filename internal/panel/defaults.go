package panel

import (
	"context"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
)

// defaultBindings are registered on every panel before its own handlers.
func (p *Panel) defaultBindings() []bridge.Binding {
	return []bridge.Binding{
		bridge.Analytics(func(ctx context.Context, event string, props map[string]any) error {
			if p.deps.Analytics != nil {
				p.deps.Analytics.Track(ctx, event, props)
			}
			return nil
		}),
		bridge.OpenInBrowser(func(ctx context.Context, url string) error {
			return p.deps.Opener.Open(ctx, url)
		}),
		bridge.ResizePanel(func(ctx context.Context, width, height int, animate bool) error {
			p.sizeMu.Lock()
			p.size = Size{Width: width, Height: height, Animate: animate}
			p.sizeMu.Unlock()
			logging.FromContext(ctx).Debug().Int("width", width).Int("height", height).Bool("animate", animate).Msg("resize")
			return nil
		}),
	}
}
