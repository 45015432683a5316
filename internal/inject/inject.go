package inject

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/stabilitybot/internal/handler"
	"github.com/dmorgan81/stabilitybot/internal/image"
	"github.com/dmorgan81/stabilitybot/internal/log"
	"github.com/dmorgan81/stabilitybot/internal/page"
	"github.com/dmorgan81/stabilitybot/internal/param"
	"github.com/dmorgan81/stabilitybot/internal/session"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const defaultRequestTimeout = 60 * time.Second

func Setup(ctx context.Context) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, &http.Client{})

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.Provide[image.Generator](injector, image.NewStabilityGenerator)
	do.Provide[*session.Orchestrator](injector, session.NewOrchestrator)
	do.Provide[*session.Session](injector, session.NewSession)
	do.Provide[*page.Templator](injector, page.NewTemplator)

	do.ProvideNamed[string](injector, "stability_key", func(i *do.Injector) (string, error) {
		if key := os.Getenv("STABILITY_KEY"); key != "" {
			return key, nil
		}
		path := os.Getenv("STABILITY_KEY_PARAM")
		if path == "" {
			log.Warn("no stability key configured")
			return "", nil
		}
		key, err := param.FetchOptional(ctx, do.MustInvoke[param.Fetcher](i), path)
		if err != nil {
			log.Error("fetching stability key failed, treating it as missing", "path", path, "error", err)
			return "", nil
		}
		return key, nil
	})
	do.ProvideNamed[time.Duration](injector, "request_timeout", func(i *do.Injector) (time.Duration, error) {
		v := os.Getenv("REQUEST_TIMEOUT")
		if v == "" {
			return defaultRequestTimeout, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		return d, nil
	})
	endpoint := os.Getenv("STABILITY_ENDPOINT")
	do.ProvideNamedValue[string](injector, "stability_endpoint", lo.Ternary(endpoint != "", endpoint, image.DefaultEndpoint))

	do.Provide[*handler.Handler](injector, handler.NewHandler)

	return injector
}
