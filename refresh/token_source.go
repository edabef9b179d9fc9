package refresh

import (
	"context"

	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx context.Context
	c   *Coordinator
}

// TokenSource exposes the coordinator to golang.org/x/oauth2 consumers. Each
// Token call goes through Ensure, so it refreshes exactly like a request would.
func (c *Coordinator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	s, err := ts.c.Ensure(ts.ctx)
	if err != nil {
		return nil, err
	}
	if tok := s.Token(); tok != nil {
		return tok, nil
	}
	return nil, errors.New(errors.ErrNotAuthenticated, "refresh.TokenSource", 0, nil)
}
