// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of being imported.
package autoload

import (
	configx "github.com/saralytics/saralytics/pkg/config"
	logx "github.com/saralytics/saralytics/pkg/logx"
)

func init() {
	cfg := configx.MustLoad[logx.Config]("LOG")
	logx.Init(*cfg)
}
