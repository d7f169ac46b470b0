package twitter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/retry"
)

// Options configures Authenticate.
type Options struct {
	AppKey    string
	AppSecret string
	BaseURL   string
	TokenURL  string
	UserAgent string
	Timeout   time.Duration
	// HTTPClient is the base client used for the token request and as the
	// transport under the authenticated client. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// TokenAttempts bounds token requests that fail for transient reasons.
	TokenAttempts int
	Clock         retry.Clock
	Logger        logger.Logger
}

// Authenticate exchanges the app key and secret for an app-only bearer token
// and returns a client that sends it with every call. The token is obtained
// eagerly so bad credentials are reported before any work starts.
func Authenticate(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.AppKey == "" || opts.AppSecret == "" {
		return nil, errs.NewAuthError("app key and app secret are required (set TWITTER_APP_KEY and TWITTER_APP_SECRET or run 'tweetharvest auth login')", nil)
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	attempts := opts.TokenAttempts
	if attempts <= 0 {
		attempts = 3
	}

	cc := &clientcredentials.Config{
		ClientID:     opts.AppKey,
		ClientSecret: opts.AppSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)

	token, err := retry.DoWithResult(func() (*oauth2.Token, error) {
		tok, err := cc.Token(tokenCtx)
		if err != nil {
			return nil, classifyTokenError(err)
		}
		return tok, nil
	}, &retry.Config{
		MaxAttempts: attempts,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Clock:       opts.Clock,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("obtained app-only bearer token")

	httpClient := oauth2.NewClient(tokenCtx, oauth2.StaticTokenSource(token))
	httpClient.Timeout = opts.Timeout

	client := NewClient(httpClient, opts.BaseURL, log)
	client.SetUserAgent(opts.UserAgent)
	return client, nil
}

// classifyTokenError turns a token endpoint failure into a typed error.
func classifyTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		status := rerr.Response.StatusCode
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
			return errs.NewAuthError("token request rejected", err)
		case status == http.StatusTooManyRequests:
			return errs.Wrap(errs.ErrorTypeRateLimit, status, "token request rate limited", err)
		case status >= 500:
			return errs.Wrap(errs.ErrorTypeServerError, status, "token endpoint error", err)
		default:
			return errs.Wrap(errs.ErrorTypeAuth, status, "token request failed", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errs.Wrap(errs.ErrorTypeNetwork, 0, "token request failed", err)
}
