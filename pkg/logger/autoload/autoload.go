// Package autoload initializes the global logger from LOG_* variables on import.
package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/adhityan/resto-ai-sub001/pkg/logger"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		logx.Init()
		return
	}
	logx.Init(conf)
}
