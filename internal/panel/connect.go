package panel

import (
	"context"
	"fmt"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
)

func (p *Panel) setupConnect() {
	p.session.Register(
		bridge.GetAuthURL(func(context.Context) (string, error) {
			if p.deps.Auth.JiraHost() == "" {
				return "", nil
			}
			return p.deps.Auth.AuthorizationURL()
		}),
		bridge.SetAuthURL(func(_ context.Context, url string) error {
			return p.deps.Auth.SetJiraURL(url)
		}),
		bridge.TestAuthorization(func(ctx context.Context) (bool, error) {
			var ok bool
			err := p.exec.Await(func() error {
				var err error
				ok, err = p.deps.Auth.TestAuthorization(ctx, p.deps.Tracker)
				return err
			})
			return ok, err
		}),
		bridge.AuthorizationComplete(func(ctx context.Context) error {
			if p.deps.Navigator != nil {
				if err := p.deps.Navigator.OpenPanel(ctx, Issues); err != nil {
					return fmt.Errorf("open issues panel: %w", err)
				}
			}
			logging.FromContext(ctx).Info().Msg("authorization complete, closing connect panel")
			p.session.Close()
			return nil
		}),
	)
}
