package middleware

import (
	"os"
	"path/filepath"
	"sync"

	"optifish/pkg/errx"
	"optifish/pkg/logger"
	"optifish/pkg/response"

	sentinel "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	sentinelconfig "github.com/alibaba/sentinel-golang/core/config"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/gin-gonic/gin"
)

// ResJoin 参团接口的限流资源名
const ResJoin = "groupbuy_join"

var (
	initOnce sync.Once
	initErr  error

	errTooManyRequests = errx.New(errx.KindTooManyRequests, "too_many_requests", "System busy, please try again later.")
)

// InitSentinel starts sentinel once per process and (re)loads the flow rule for resource.
// A qps of zero or less disables the rule.
func InitSentinel(appName, resource string, qps float64) error {
	initOnce.Do(func() {
		conf := sentinelconfig.NewDefaultConfig()
		conf.Sentinel.App.Name = appName
		conf.Sentinel.Log.Dir = filepath.Join(os.TempDir(), "sentinel", appName)
		initErr = sentinel.InitWithConfig(conf)
	})
	if initErr != nil {
		return initErr
	}

	rules := []*flow.Rule{}
	if qps > 0 {
		rules = append(rules, &flow.Rule{
			Resource:               resource,
			TokenCalculateStrategy: flow.Direct,
			ControlBehavior:        flow.Reject,
			Threshold:              qps,
			StatIntervalInMs:       1000,
		})
	}
	if _, err := flow.LoadRules(rules); err != nil {
		return err
	}
	logger.Info().Str("resource", resource).Float64("qps", qps).Msg("sentinel flow rule loaded")
	return nil
}

// RateLimit rejects with 429 once the sentinel rule for resource blocks.
func RateLimit(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, b := sentinel.Entry(resource, sentinel.WithTrafficType(base.Inbound))
		if b != nil {
			response.Error(c, errTooManyRequests)
			return
		}
		defer e.Exit()
		c.Next()
	}
}
